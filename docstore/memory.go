package docstore

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/hnswfield/model"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu     sync.RWMutex
	fields map[string]map[model.ID]Record
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fields: make(map[string]map[model.ID]Record)}
}

// Put stores a copy of rec.
func (s *MemoryStore) Put(_ context.Context, field string, id model.ID, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	recs, ok := s.fields[field]
	if !ok {
		recs = make(map[model.ID]Record)
		s.fields[field] = recs
	}
	recs[id] = rec.Clone()
	return nil
}

// Get returns a copy of the record stored for (field, id).
func (s *MemoryStore) Get(_ context.Context, field string, id model.ID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	rec, ok := s.fields[field][id]
	if !ok {
		return Record{}, notFound(field, id)
	}
	return rec.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, field string, id model.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.fields[field], id)
	return nil
}

// ForEach implements Store.
func (s *MemoryStore) ForEach(ctx context.Context, field string, fn func(model.ID, Record) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	recs := s.fields[field]
	ids := make([]model.ID, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	snapshot := make(map[model.ID]Record, len(recs))
	for _, id := range ids {
		snapshot[id] = recs[id].Clone()
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.fields = nil
	return nil
}
