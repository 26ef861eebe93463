package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hnswfield/distance"
	"github.com/hupe1980/hnswfield/index/hnsw"
	"github.com/hupe1980/hnswfield/registry"
	"github.com/hupe1980/hnswfield/testutil"
	"github.com/hupe1980/hnswfield/vectorstore"
)

func buildSnapshot(t *testing.T, n, dim int) (*FieldSnapshot, *hnsw.HNSW) {
	t.Helper()
	cfg := registry.FieldConfig{
		Metric:         distance.MetricCosine,
		M:              8,
		EFConstruction: 64,
		EFSearch:       32,
	}
	store := vectorstore.New(dim)
	g, err := hnsw.New(store, cfg.HNSWOptions())
	require.NoError(t, err)

	ctx := context.Background()
	for _, v := range testutil.NewRNG(11).UniformVectors(n, dim) {
		id, err := store.Insert(v)
		require.NoError(t, err)
		require.NoError(t, g.Insert(ctx, id, v))
	}

	return &FieldSnapshot{
		Field:     "description_vector",
		Config:    cfg,
		Dimension: dim,
		Vectors:   slices.Clone(store.Raw()),
		Graph:     g.Export(),
	}, g
}

func TestSnapshot_RoundTrip(t *testing.T) {
	snap, g := buildSnapshot(t, 300, 16)
	require.Equal(t, 300, snap.Count())

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			data, err := Marshal(snap, c)
			require.NoError(t, err)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			assert.Equal(t, snap, got)

			store, err := vectorstore.Load(got.Dimension, got.Vectors)
			require.NoError(t, err)
			restored, err := hnsw.Restore(store, got.Graph, got.Config.HNSWOptions())
			require.NoError(t, err)

			q := testutil.NewRNG(5).UniformVectors(1, 16)[0]
			want, _, err := g.KNNSearch(context.Background(), q, 10, nil)
			require.NoError(t, err)
			have, _, err := restored.KNNSearch(context.Background(), q, 10, nil)
			require.NoError(t, err)
			assert.Equal(t, want, have)
		})
	}
}

func TestSnapshot_Empty(t *testing.T) {
	snap := &FieldSnapshot{Field: "empty", Config: registry.DefaultFieldConfig()}
	data, err := Marshal(snap, CompressionZSTD)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "empty", got.Field)
	assert.Zero(t, got.Count())
	assert.Empty(t, got.Graph.Levels)
}

func TestSnapshot_Header(t *testing.T) {
	snap, _ := buildSnapshot(t, 50, 8)
	data, err := Marshal(snap, CompressionNone)
	require.NoError(t, err)

	var h FileHeader
	require.NoError(t, binary.Read(bytes.NewReader(data), binary.LittleEndian, &h))
	assert.Equal(t, Magic, h.Magic)
	assert.Equal(t, Version, h.Version)
	assert.Equal(t, CompressionNone, h.Compression)
	assert.Equal(t, h.RawSize, h.StoredSize)
	assert.Equal(t, uint64(len(data)-headerSize), h.StoredSize)
	assert.Equal(t, CalculateChecksum(data[headerSize:]), h.Checksum)
}

func TestSnapshot_Corruption(t *testing.T) {
	snap, _ := buildSnapshot(t, 50, 8)
	data, err := Marshal(snap, CompressionNone)
	require.NoError(t, err)

	t.Run("flipped body byte", func(t *testing.T) {
		bad := slices.Clone(data)
		bad[len(bad)-3] ^= 0xff
		_, err := Unmarshal(bad)
		assert.True(t, IsChecksumMismatch(err))
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := slices.Clone(data)
		bad[0] = 'X'
		_, err := Unmarshal(bad)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("bad version", func(t *testing.T) {
		bad := slices.Clone(data)
		binary.LittleEndian.PutUint32(bad[8:], Version+1)
		_, err := Unmarshal(bad)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Unmarshal(data[:len(data)/2])
		assert.ErrorIs(t, err, ErrCorrupt)
		_, err = Unmarshal(data[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated body with valid checksum", func(t *testing.T) {
		raw, err := encodeBody(snap)
		require.NoError(t, err)
		_, err = decodeBody(raw[:len(raw)-5])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestEncodeBody_Invalid(t *testing.T) {
	_, err := Marshal(nil, CompressionNone)
	assert.Error(t, err)

	_, err = Marshal(&FieldSnapshot{Dimension: 3, Vectors: []float32{1, 2}, Config: registry.DefaultFieldConfig()}, CompressionNone)
	assert.Error(t, err)
}

func TestCompression_Text(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		text, err := c.MarshalText()
		require.NoError(t, err)
		var back Compression
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, c, back)
	}
	_, err := ParseCompression("snappy")
	assert.Error(t, err)
}

func TestCompress_FallsBackOnIncompressible(t *testing.T) {
	raw := make([]byte, 256)
	r := rand.New(rand.NewSource(1))
	for i := range raw {
		raw[i] = byte(r.Intn(256))
	}
	stored, used, err := compress(raw, CompressionLZ4)
	require.NoError(t, err)
	if used == CompressionNone {
		assert.Equal(t, raw, stored)
	}
	back, err := decompress(stored, used, len(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}
