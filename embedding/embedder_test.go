package embedding

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *recorder) Embed(_ context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return []float32{float32(len(text))}, nil
}

func (r *recorder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = r.Embed(ctx, t)
	}
	return out, nil
}

func TestE5Prefixes(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	e := E5(rec)

	_, err := e.Embed(ctx, "Dune")
	require.NoError(t, err)
	_, err = e.EmbedBatch(ctx, []string{"Foundation", "passage: Neuromancer"})
	require.NoError(t, err)
	_, err = Query(ctx, e, "alien invasion")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"passage: Dune",
		"passage: Foundation",
		"passage: Neuromancer",
		"query: alien invasion",
	}, rec.texts)
}

func TestQuery_PlainEmbedder(t *testing.T) {
	rec := &recorder{}
	_, err := Query(context.Background(), rec, "alien invasion")
	require.NoError(t, err)
	assert.Equal(t, []string{"alien invasion"}, rec.texts)
}
