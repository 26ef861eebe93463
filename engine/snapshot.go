package engine

import (
	"fmt"
	"slices"

	"github.com/hupe1980/hnswfield/persistence"
	"github.com/hupe1980/hnswfield/vectorstore"
)

// Snapshot captures the named field. It waits for an in-flight insert into
// that field and blocks further inserts until the copy is taken.
func (e *Engine) Snapshot(name string) (*persistence.FieldSnapshot, error) {
	f, ok := e.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return &persistence.FieldSnapshot{
		Field:     name,
		Config:    f.cfg,
		Dimension: f.store.Dimension(),
		Vectors:   slices.Clone(f.store.Raw()),
		Graph:     f.graph.Export(),
	}, nil
}

// RestoreField installs a snapshot as a new field. The snapshot's
// configuration is frozen in the registry; the restored graph is validated.
func (e *Engine) RestoreField(snap *persistence.FieldSnapshot) error {
	if snap == nil {
		return fmt.Errorf("engine: nil snapshot")
	}
	if _, ok := e.lookup(snap.Field); ok {
		return fmt.Errorf("%w: %q", ErrFieldExists, snap.Field)
	}

	var (
		store *vectorstore.Store
		err   error
	)
	if snap.Dimension == 0 {
		store = vectorstore.New(snap.Config.Dimension)
	} else if store, err = vectorstore.Load(snap.Dimension, snap.Vectors); err != nil {
		return fmt.Errorf("engine: restore %q: %w", snap.Field, err)
	}

	nodes := 0
	if snap.Graph != nil {
		nodes = len(snap.Graph.Levels)
	}
	if nodes != store.Count() {
		return fmt.Errorf("engine: restore %q: %d vectors but %d graph nodes", snap.Field, store.Count(), nodes)
	}

	f, err := newField(snap.Field, snap.Config, store, snap.Graph)
	if err != nil {
		return fmt.Errorf("engine: restore %q: %w", snap.Field, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.fields[snap.Field]; ok {
		return fmt.Errorf("%w: %q", ErrFieldExists, snap.Field)
	}
	if err := e.registry.Install(snap.Field, snap.Config); err != nil {
		return err
	}
	e.fields[snap.Field] = f
	return nil
}
