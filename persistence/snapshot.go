package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index/hnsw"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/registry"
)

// FieldSnapshot is the persisted state of one vector field.
type FieldSnapshot struct {
	Field     string
	Config    registry.FieldConfig
	Dimension int
	// Vectors holds Count()*Dimension components in ID order.
	Vectors []float32
	Graph   *hnsw.GraphState
}

// Count returns the number of vectors in the snapshot.
func (s *FieldSnapshot) Count() int {
	if s.Dimension == 0 {
		return 0
	}
	return len(s.Vectors) / s.Dimension
}

// Marshal encodes snap with the given compression.
func Marshal(snap *FieldSnapshot, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, snap, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a snapshot produced by Marshal.
func Unmarshal(data []byte) (*FieldSnapshot, error) {
	return Read(bytes.NewReader(data))
}

// Write encodes snap to w.
func Write(w io.Writer, snap *FieldSnapshot, c Compression) error {
	raw, err := encodeBody(snap)
	if err != nil {
		return err
	}

	stored, used, err := compress(raw, c)
	if err != nil {
		return fmt.Errorf("persistence: compress: %w", err)
	}

	header := FileHeader{
		Magic:       Magic,
		Version:     Version,
		Compression: used,
		RawSize:     uint64(len(raw)),
		StoredSize:  uint64(len(stored)),
		Checksum:    CalculateChecksum(raw),
	}
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}
	_, err = w.Write(stored)
	return err
}

// Read decodes a snapshot from r and verifies its checksum.
func Read(r io.Reader) (*FieldSnapshot, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if header.Magic != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, header.Magic[:])
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVersion, header.Version)
	}
	if header.RawSize > math.MaxInt32 || header.StoredSize > math.MaxInt32 {
		return nil, fmt.Errorf("%w: body too large", ErrCorrupt)
	}

	stored := make([]byte, header.StoredSize)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrCorrupt, err)
	}

	raw, err := decompress(stored, header.Compression, int(header.RawSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sum := CalculateChecksum(raw); sum != header.Checksum {
		return nil, &ChecksumMismatchError{Expected: header.Checksum, Actual: sum}
	}

	return decodeBody(raw)
}

func encodeBody(snap *FieldSnapshot) ([]byte, error) {
	if snap == nil {
		return nil, errors.New("persistence: nil snapshot")
	}
	if snap.Dimension < 0 || (snap.Dimension > 0 && len(snap.Vectors)%snap.Dimension != 0) {
		return nil, fmt.Errorf("persistence: %d components do not fit dimension %d", len(snap.Vectors), snap.Dimension)
	}

	cfg := snap.Config
	b := make([]byte, 0, 64+len(snap.Field)+4*len(snap.Vectors))
	b = appendString(b, snap.Field)
	b = append(b, byte(cfg.Metric))
	b = binary.LittleEndian.AppendUint32(b, uint32(cfg.M))
	b = binary.LittleEndian.AppendUint32(b, uint32(cfg.EFConstruction))
	b = binary.LittleEndian.AppendUint32(b, uint32(cfg.EFSearch))
	b = binary.LittleEndian.AppendUint32(b, uint32(cfg.MaxLevel))
	b = binary.LittleEndian.AppendUint32(b, uint32(cfg.Dimension))

	b = binary.LittleEndian.AppendUint32(b, uint32(snap.Dimension))
	b = binary.LittleEndian.AppendUint32(b, uint32(snap.Count()))
	for _, f := range snap.Vectors {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}

	g := snap.Graph
	if g == nil {
		g = &hnsw.GraphState{}
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(g.Levels)))
	b = binary.LittleEndian.AppendUint32(b, uint32(g.EntryPoint))
	for i, level := range g.Levels {
		b = append(b, byte(level))
		for _, list := range g.Links[i] {
			b = binary.LittleEndian.AppendUint32(b, uint32(len(list)))
			for _, id := range list {
				b = binary.LittleEndian.AppendUint32(b, uint32(id))
			}
		}
	}
	return b, nil
}

type bodyReader struct {
	b   []byte
	err error
}

func (r *bodyReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.b) {
		r.err = fmt.Errorf("%w: truncated body", ErrCorrupt)
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *bodyReader) u8() uint8 {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *bodyReader) u32() uint32 {
	if p := r.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

// count reads a length prefix and checks that at least n*unit bytes remain.
func (r *bodyReader) count(unit int) int {
	n := int(r.u32())
	if r.err == nil && n*unit > len(r.b) {
		r.err = fmt.Errorf("%w: length %d exceeds body", ErrCorrupt, n)
		return 0
	}
	return n
}

func decodeBody(raw []byte) (*FieldSnapshot, error) {
	r := &bodyReader{b: raw}
	snap := &FieldSnapshot{}

	snap.Field = string(r.take(r.count(1)))
	snap.Config = registry.FieldConfig{
		Metric:         distance.Metric(r.u8()),
		M:              int(r.u32()),
		EFConstruction: int(r.u32()),
		EFSearch:       int(r.u32()),
		MaxLevel:       int(r.u32()),
		Dimension:      int(r.u32()),
	}

	snap.Dimension = int(r.u32())
	count := r.count(4 * max(snap.Dimension, 1))
	snap.Vectors = make([]float32, count*snap.Dimension)
	for i := range snap.Vectors {
		snap.Vectors[i] = math.Float32frombits(r.u32())
	}

	nodes := r.count(1)
	g := &hnsw.GraphState{
		EntryPoint: model.ID(r.u32()),
		Levels:     make([]int, nodes),
		Links:      make([][][]model.ID, nodes),
	}
	for i := 0; i < nodes && r.err == nil; i++ {
		level := int(r.u8())
		g.Levels[i] = level
		g.Links[i] = make([][]model.ID, level+1)
		for layer := 0; layer <= level && r.err == nil; layer++ {
			list := make([]model.ID, r.count(4))
			for j := range list {
				list[j] = model.ID(r.u32())
			}
			g.Links[i][layer] = list
		}
	}
	snap.Graph = g

	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(r.b))
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snap, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}
