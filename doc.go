// Package hnswfield provides an embedded approximate nearest-neighbor search
// database built on per-field HNSW graphs.
//
// Every vector field owns an independent graph whose construction
// parameters (metric, M, efConstruction) come from a registry. A field's
// configuration is frozen once it stores its first vector and is checked
// again whenever a saved database is reopened.
//
// # Quick Start
//
//	ctx := context.Background()
//	reg, _ := registry.Load("fields.yaml")
//	db, _ := hnswfield.Open(ctx,
//	    hnswfield.WithRegistry(reg),
//	    hnswfield.WithBlobStore(blobstore.NewLocalStore("./data")),
//	)
//	defer db.Close()
//
//	id, _ := db.InsertDocument(ctx, "description_vector", vec, docstore.Record{
//	    Fields:     map[string]string{"name": "Dune"},
//	    Attributes: metadata.Document{"year": metadata.Int(1965)},
//	})
//
// # Search
//
// Searches are built fluently. Attribute filters are evaluated to a bitmap
// and handed to the filtered search coordinator, which widens the beam until
// k accepted neighbors are found or falls back to an exact scan:
//
//	resp, _ := db.Search("description_vector", query).
//	    KNN(10).
//	    Where(metadata.Gte("year", 2000)).
//	    Run(ctx)
//	fmt.Println(resp.Status) // ok, filter_exhausted or budget_exceeded
//
// With an embedder configured, text can be inserted and queried directly:
//
//	db.InsertText(ctx, "description_vector", "A desert planet...", rec)
//	hits, _ := db.SearchText("description_vector", "alien invasion").KNN(5).Execute(ctx)
//
// # Durability
//
// Save writes one compressed snapshot per field to the blob store and then
// commits a manifest naming them. Open restores the newest manifest.
// Records written to a persistent document store survive independently;
// records beyond the last saved vector are ignored on reopen.
package hnswfield
