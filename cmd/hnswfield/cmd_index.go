package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/metadata"
	"github.com/hupe1980/hnswfield/model"
)

// document is one line of an index input file.
type document struct {
	Vector     []float32         `json:"vector,omitempty"`
	Text       string            `json:"text,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Attributes metadata.Document `json:"attributes,omitempty"`
}

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Insert documents from a JSON lines file and save",
		Long: `Insert one document per input line into a field, then save the database.

Each line holds a vector or a text to embed, plus optional stored fields and
filterable attributes:

  {"vector":[0.1,0.2],"fields":{"name":"Dune"},"attributes":{"year":1965}}
  {"text":"A desert planet","attributes":{"year":1965}}

Text lines are embedded together and inserted after all vector lines.

Examples:
  hnswfield index --field description_vector --input books.jsonl
  cat books.jsonl | hnswfield index --field description_vector`,
		RunE: func(cmd *cobra.Command, args []string) error {
			field, _ := cmd.Flags().GetString("field")
			input, _ := cmd.Flags().GetString("input")

			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}
			docs, err := readDocuments(in)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, _, err := openDB(ctx, cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ids, err := insertDocuments(cmd, db, field, docs)
			if err != nil {
				return err
			}
			if err := db.Save(ctx); err != nil {
				return fmt.Errorf("save failed: %w", err)
			}

			m := db.Manifest()
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"field":    field,
					"inserted": len(ids),
					"total":    db.Len(field),
					"manifest": m.ID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents into %s (%d total, manifest %d)\n",
				len(ids), field, db.Len(field), m.ID)
			return nil
		},
	}
	cmd.Flags().StringP("field", "f", "", "Vector field to insert into")
	cmd.Flags().StringP("input", "i", "-", "JSON lines input file, - for stdin")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func readDocuments(r io.Reader) ([]document, error) {
	var docs []document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var d document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if (len(d.Vector) == 0) == (d.Text == "") {
			return nil, fmt.Errorf("line %d: exactly one of vector and text must be set", line)
		}
		docs = append(docs, d)
	}
	return docs, sc.Err()
}

// insertDocuments inserts vectors one by one, then embeds all texts in one
// batch and inserts them after the vectors.
func insertDocuments(cmd *cobra.Command, db *hnswfield.DB, field string, docs []document) ([]model.ID, error) {
	ctx := cmd.Context()

	var (
		ids      []model.ID
		texts    []string
		textRecs []docstore.Record
	)
	for _, d := range docs {
		rec := docstore.Record{Fields: d.Fields, Attributes: d.Attributes}
		if d.Text != "" {
			texts = append(texts, d.Text)
			textRecs = append(textRecs, rec)
			continue
		}
		id, err := db.InsertDocument(ctx, field, d.Vector, rec)
		if err != nil {
			return ids, fmt.Errorf("insert: %w", err)
		}
		ids = append(ids, id)
	}
	if len(texts) == 0 {
		return ids, nil
	}

	textIDs, err := db.InsertTexts(ctx, field, texts, textRecs)
	if errors.Is(err, hnswfield.ErrNoEmbedder) {
		return ids, fmt.Errorf("%d documents need embedding but embedding.endpoint is not configured", len(texts))
	}
	if err != nil {
		return ids, fmt.Errorf("insert texts: %w", err)
	}
	return append(ids, textIDs...), nil
}
