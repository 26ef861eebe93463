package hnswfield

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/hnswfield/blobstore"
	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/engine"
	"github.com/hupe1980/hnswfield/manifest"
	"github.com/hupe1980/hnswfield/metadata"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/persistence"
	"github.com/hupe1980/hnswfield/registry"
)

// embedChunk is the number of texts InsertTexts hands to one EmbedBatch call.
const embedChunk = 64

// DB is an embedded vector database of independently configured fields.
// It is safe for concurrent use.
type DB struct {
	opts      options
	registry  *registry.Registry
	engine    *engine.Engine
	blobs     blobstore.BlobStore
	docs      docstore.Store
	manifests *manifest.Store
	logger    *Logger
	metrics   MetricsCollector

	mu      sync.RWMutex
	attrs   map[string]*metadata.Index
	writers map[string]*sync.Mutex

	// saveMu serializes Save and guards current.
	saveMu  sync.Mutex
	current *manifest.Manifest

	closed atomic.Bool
}

// Open creates a database and restores the fields of the newest saved
// manifest in the configured blob store.
//
// Open fails with ErrConfigMismatch when a field registered explicitly in
// the registry was saved with a different configuration. Saved fields
// without an explicit registration keep their saved configuration.
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	reg := o.registry
	if reg == nil {
		var err error
		if reg, err = registry.New(registry.DefaultFieldConfig()); err != nil {
			return nil, err
		}
	}
	blobs := o.blobs
	if blobs == nil {
		blobs = blobstore.NewMemoryStore()
	}
	docs := o.docs
	if docs == nil {
		docs = docstore.NewMemoryStore()
	}

	db := &DB{
		opts:     o,
		registry: reg,
		engine: engine.New(reg,
			engine.WithLogger(o.logger.Logger),
			engine.WithFilterPolicy(o.filterPolicy...),
		),
		blobs:     blobs,
		docs:      docs,
		manifests: manifest.NewStore(blobs),
		logger:    o.logger,
		metrics:   o.metricsCollector,
		attrs:     make(map[string]*metadata.Index),
		writers:   make(map[string]*sync.Mutex),
	}

	if err := db.load(ctx); err != nil {
		db.logger.LogLoad(ctx, 0, 0, err)
		return nil, translateError(err)
	}
	db.logger.LogLoad(ctx, db.current.ID, len(db.current.Fields), nil)
	return db, nil
}

func (db *DB) load(ctx context.Context) error {
	m, err := db.manifests.Load(ctx)
	if err != nil {
		return err
	}
	if err := m.Verify(db.registry); err != nil {
		return err
	}
	if err := m.Install(db.registry); err != nil {
		return err
	}

	for _, info := range m.Fields {
		if err := db.restoreField(ctx, info); err != nil {
			return fmt.Errorf("field %q: %w", info.Name, err)
		}
	}
	db.current = m
	return nil
}

func (db *DB) restoreField(ctx context.Context, info manifest.FieldInfo) error {
	data, err := blobstore.ReadAll(ctx, db.blobs, info.Path)
	if err != nil {
		return err
	}
	snap, err := persistence.Unmarshal(data)
	if err != nil {
		return err
	}
	if snap.Field != info.Name {
		return fmt.Errorf("%w: snapshot holds field %q", persistence.ErrCorrupt, snap.Field)
	}
	if snap.Config != info.Config {
		return fmt.Errorf("%w: snapshot config %+v, manifest config %+v", manifest.ErrConfigMismatch, snap.Config, info.Config)
	}
	if err := db.engine.RestoreField(snap); err != nil {
		return err
	}

	// Records past the saved vectors belong to inserts after the last save.
	count := snap.Count()
	ix := metadata.NewIndex()
	err = db.docs.ForEach(ctx, info.Name, func(id model.ID, rec docstore.Record) error {
		if int(id) < count {
			ix.Set(id, rec.Attributes)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for id := model.ID(0); int(id) < count; id++ {
		if _, ok := ix.Get(id); !ok {
			ix.Set(id, nil)
		}
	}

	db.mu.Lock()
	db.attrs[info.Name] = ix
	db.mu.Unlock()
	return nil
}

// Registry returns the registry resolving field configurations.
func (db *DB) Registry() *registry.Registry { return db.registry }

// Fields returns the sorted names of all populated fields.
func (db *DB) Fields() []string { return db.engine.Fields() }

// Len returns the number of vectors in field.
func (db *DB) Len(field string) int { return db.engine.Len(field) }

func (db *DB) writer(field string) *sync.Mutex {
	db.mu.Lock()
	defer db.mu.Unlock()
	w, ok := db.writers[field]
	if !ok {
		w = &sync.Mutex{}
		db.writers[field] = w
	}
	return w
}

// attributes returns the attribute index of field. Unknown fields get a
// shared empty index unless create is set.
func (db *DB) attributes(field string, create bool) *metadata.Index {
	db.mu.RLock()
	ix, ok := db.attrs[field]
	db.mu.RUnlock()
	if ok {
		return ix
	}
	if !create {
		return metadata.NewIndex()
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if ix, ok = db.attrs[field]; !ok {
		ix = metadata.NewIndex()
		db.attrs[field] = ix
	}
	return ix
}

// Insert stores vec in field without a record.
func (db *DB) Insert(ctx context.Context, field string, vec []float32) (model.ID, error) {
	return db.insertRecord(ctx, field, vec, nil)
}

// InsertDocument stores vec in field together with rec. The record's
// attributes become filterable immediately.
func (db *DB) InsertDocument(ctx context.Context, field string, vec []float32, rec docstore.Record) (model.ID, error) {
	return db.insertRecord(ctx, field, vec, &rec)
}

func (db *DB) insertRecord(ctx context.Context, field string, vec []float32, rec *docstore.Record) (model.ID, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}

	start := time.Now()
	id, err := db.insert(ctx, field, vec, rec)
	err = translateError(err)
	db.metrics.RecordInsert(field, time.Since(start), err)
	db.logger.LogInsert(ctx, field, uint32(id), len(vec), err)
	return id, err
}

func (db *DB) insert(ctx context.Context, field string, vec []float32, rec *docstore.Record) (model.ID, error) {
	w := db.writer(field)
	w.Lock()
	defer w.Unlock()

	// IDs are dense, so under the writer lock the next ID is the field length.
	// A record stored past the last save may still sit there after a reopen.
	if rec == nil {
		next := model.ID(db.engine.Len(field))
		if err := db.docs.Delete(ctx, field, next); err != nil {
			return 0, err
		}
	}

	id, err := db.engine.Insert(ctx, field, vec)
	if err != nil {
		return 0, err
	}

	var attrs metadata.Document
	if rec != nil {
		attrs = rec.Attributes
	}
	db.attributes(field, true).Set(id, attrs)

	if rec != nil {
		if err := db.docs.Put(ctx, field, id, *rec); err != nil {
			return id, fmt.Errorf("store record %q/%d: %w", field, uint32(id), err)
		}
	}
	return id, nil
}

// InsertText embeds text as a passage and stores it like InsertDocument.
func (db *DB) InsertText(ctx context.Context, field, text string, rec docstore.Record) (model.ID, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	if db.opts.embedder == nil {
		return 0, ErrNoEmbedder
	}
	vec, err := db.opts.embedder.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	return db.InsertDocument(ctx, field, vec, rec)
}

// InsertTexts embeds texts in parallel chunks and inserts them in order.
// recs is either nil or holds one record per text. On error the texts
// inserted before the failure remain.
func (db *DB) InsertTexts(ctx context.Context, field string, texts []string, recs []docstore.Record) ([]model.ID, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if db.opts.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if recs != nil && len(recs) != len(texts) {
		return nil, fmt.Errorf("hnswfield: %d records for %d texts", len(recs), len(texts))
	}

	vecs := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.opts.concurrency)
	for start := 0; start < len(texts); start += embedChunk {
		end := min(start+embedChunk, len(texts))
		g.Go(func() error {
			out, err := db.opts.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(out) != end-start {
				return fmt.Errorf("hnswfield: embedder returned %d vectors for %d texts", len(out), end-start)
			}
			copy(vecs[start:end], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		db.logger.LogBatchInsert(ctx, field, len(texts), err)
		return nil, err
	}

	ids := make([]model.ID, 0, len(texts))
	for i, vec := range vecs {
		var (
			id  model.ID
			err error
		)
		if recs != nil {
			id, err = db.InsertDocument(ctx, field, vec, recs[i])
		} else {
			id, err = db.Insert(ctx, field, vec)
		}
		if err != nil {
			db.logger.LogBatchInsert(ctx, field, len(texts), err)
			return ids, err
		}
		ids = append(ids, id)
	}
	db.logger.LogBatchInsert(ctx, field, len(ids), nil)
	return ids, nil
}

// Get returns the record stored with id in field.
func (db *DB) Get(ctx context.Context, field string, id model.ID) (docstore.Record, error) {
	if db.closed.Load() {
		return docstore.Record{}, ErrClosed
	}
	if int(id) >= db.engine.Len(field) {
		return docstore.Record{}, fmt.Errorf("%w: %q/%d", ErrNotFound, field, id)
	}
	rec, err := db.docs.Get(ctx, field, id)
	return rec, translateError(err)
}

// Vector returns a copy of the vector stored with id in field.
func (db *DB) Vector(field string, id model.ID) ([]float32, error) {
	v, err := db.engine.Vector(field, id)
	return v, translateError(err)
}

// FieldStats describes one populated field.
type FieldStats struct {
	engine.FieldStats
	Attributes metadata.Stats
}

// Stats returns statistics for every populated field, sorted by name.
func (db *DB) Stats() []FieldStats {
	fields := db.engine.Stats()
	out := make([]FieldStats, len(fields))
	for i, f := range fields {
		out[i] = FieldStats{
			FieldStats: f,
			Attributes: db.attributes(f.Field, false).Stats(),
		}
	}
	return out
}

// Save writes a snapshot of every populated field and commits a manifest
// naming them. Snapshots of the previous manifest are pruned afterwards.
// Inserts into a field wait while its snapshot is taken.
func (db *DB) Save(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}

	db.saveMu.Lock()
	defer db.saveMu.Unlock()

	start := time.Now()
	next, err := db.save(ctx)
	db.metrics.RecordSave(len(next.Fields), time.Since(start), err)
	db.logger.LogSave(ctx, next.ID, len(next.Fields), err)
	return translateError(err)
}

func (db *DB) save(ctx context.Context) (*manifest.Manifest, error) {
	next := db.current.Next()
	names := db.engine.Fields()
	infos := make([]manifest.FieldInfo, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(db.opts.concurrency)
	for i, name := range names {
		g.Go(func() error {
			snap, err := db.engine.Snapshot(name)
			if err != nil {
				return err
			}
			data, err := persistence.Marshal(snap, db.opts.compression)
			if err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
			path := manifest.SnapshotPath(name, next.ID)
			if err := db.blobs.Put(gctx, path, data); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
			infos[i] = manifest.FieldInfo{
				Name:        name,
				Config:      snap.Config,
				Dimension:   snap.Dimension,
				Count:       snap.Count(),
				Path:        path,
				Compression: db.opts.compression,
				Size:        int64(len(data)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return next, err
	}

	for _, info := range infos {
		next.SetField(info)
	}
	if err := db.manifests.Save(ctx, next); err != nil {
		return next, err
	}
	db.current = next

	removed, err := db.manifests.Prune(ctx, next)
	if err != nil {
		db.logger.WarnContext(ctx, "prune failed", "manifest", next.ID, "error", err)
	} else if len(removed) > 0 {
		db.logger.DebugContext(ctx, "pruned blobs", "manifest", next.ID, "removed", len(removed))
	}
	return next, nil
}

// Manifest returns a copy of the last saved or loaded manifest.
func (db *DB) Manifest() manifest.Manifest {
	db.saveMu.Lock()
	defer db.saveMu.Unlock()
	m := *db.current
	m.Fields = slices.Clone(m.Fields)
	return m
}

// Close releases the document store. Unsaved vectors are lost.
// Closing twice is a no-op.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := db.docs.Close(); err != nil && !errors.Is(err, docstore.ErrClosed) {
		return err
	}
	return nil
}
