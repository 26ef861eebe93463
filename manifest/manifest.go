package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/hnswfield/blobstore"
	"github.com/hupe1980/hnswfield/persistence"
	"github.com/hupe1980/hnswfield/registry"
)

const (
	ManifestPrefix  = "MANIFEST-"
	CurrentFileName = "CURRENT"
	FieldsDir       = "fields/"
	CurrentVersion  = 1
)

// ErrConfigMismatch is returned when a configured field disagrees with the
// configuration its persisted graph was built with.
var ErrConfigMismatch = errors.New("manifest: field config differs from persisted config")

// Manifest describes the persisted fields at one point in time.
type Manifest struct {
	Version   int         `json:"version"`
	ID        uint64      `json:"id"`
	DBID      string      `json:"db_id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Fields    []FieldInfo `json:"fields"`
}

// FieldInfo describes one field snapshot.
type FieldInfo struct {
	Name        string                  `json:"name"`
	Config      registry.FieldConfig    `json:"config"`
	Dimension   int                     `json:"dimension"`
	Count       int                     `json:"count"`
	Path        string                  `json:"path"`
	Compression persistence.Compression `json:"compression"`
	Size        int64                   `json:"size"`
}

// New returns an empty manifest with a fresh database id.
func New() *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		Version:   CurrentVersion,
		DBID:      uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Next returns a copy of m with the following id.
func (m *Manifest) Next() *Manifest {
	next := *m
	next.ID++
	next.Fields = slices.Clone(m.Fields)
	return &next
}

// Field returns the entry of name.
func (m *Manifest) Field(name string) (FieldInfo, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// SetField adds or replaces the entry of info.Name, keeping Fields sorted.
func (m *Manifest) SetField(info FieldInfo) {
	i, found := slices.BinarySearchFunc(m.Fields, info.Name, func(f FieldInfo, name string) int {
		return strings.Compare(f.Name, name)
	})
	if found {
		m.Fields[i] = info
		return
	}
	m.Fields = slices.Insert(m.Fields, i, info)
}

// SnapshotPath returns where the snapshot of field is written for manifest id.
// Every save writes new paths so that CURRENT switches atomically.
func SnapshotPath(field string, id uint64) string {
	return fmt.Sprintf("%s%s-%06d.snap", FieldsDir, field, id)
}

// Verify checks that every field registered explicitly in reg uses the
// configuration it was persisted with.
func (m *Manifest) Verify(reg *registry.Registry) error {
	var errs []error
	for _, f := range m.Fields {
		want, ok := reg.Explicit(f.Name)
		if ok && want != f.Config {
			errs = append(errs, fmt.Errorf("%w: %q configured as %+v, persisted as %+v", ErrConfigMismatch, f.Name, want, f.Config))
		}
	}
	return errors.Join(errs...)
}

// Install freezes the persisted configuration of every field in reg.
func (m *Manifest) Install(reg *registry.Registry) error {
	for _, f := range m.Fields {
		if err := reg.Install(f.Name, f.Config); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigMismatch, err)
		}
	}
	return nil
}

// Store reads and writes manifests in a blob store.
type Store struct {
	blobs blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a manifest store.
func NewStore(blobs blobstore.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Load returns the current manifest, or a new one if none was saved.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := blobstore.ReadAll(ctx, s.blobs, CurrentFileName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read CURRENT: %w", err)
	}

	name := strings.TrimSpace(string(current))
	data, err := blobstore.ReadAll(ctx, s.blobs, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", name, err)
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("manifest: unsupported version %d (expected %d)", m.Version, CurrentVersion)
	}
	for _, f := range m.Fields {
		if err := f.Config.Validate(); err != nil {
			return nil, fmt.Errorf("manifest: field %q: %w", f.Name, err)
		}
	}
	return &m, nil
}

// Save writes m under its id and then points CURRENT at it.
// The caller writes the snapshots named by m before calling Save.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	m.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	name := ManifestName(m.ID)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("manifest: write %s: %w", name, err)
	}
	if err := s.blobs.Put(ctx, CurrentFileName, []byte(name)); err != nil {
		return fmt.Errorf("manifest: write CURRENT: %w", err)
	}
	return nil
}

// ManifestName returns the blob name of manifest id.
func ManifestName(id uint64) string {
	return fmt.Sprintf("%s%06d.json", ManifestPrefix, id)
}

// Prune deletes manifests older than m and snapshots m does not reference.
func (s *Store) Prune(ctx context.Context, m *Manifest) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := map[string]bool{ManifestName(m.ID): true}
	for _, f := range m.Fields {
		live[f.Path] = true
	}

	var removed []string
	for _, prefix := range []string{ManifestPrefix, FieldsDir} {
		names, err := s.blobs.List(ctx, prefix)
		if err != nil {
			return removed, err
		}
		for _, name := range names {
			if live[name] {
				continue
			}
			if err := s.blobs.Delete(ctx, name); err != nil {
				return removed, err
			}
			removed = append(removed, name)
		}
	}
	return removed, nil
}
