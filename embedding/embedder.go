package embedding

import (
	"context"
	"strings"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by embedders that encode queries differently
// from documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Query embeds text as a query, using EmbedQuery when e supports it.
func Query(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	return e.Embed(ctx, text)
}

const (
	PassagePrefix = "passage: "
	QueryPrefix   = "query: "
)

// Prefixed prepends role prefixes before delegating to an Embedder.
// Embed and EmbedBatch treat their input as passages.
type Prefixed struct {
	Embedder Embedder
	Passage  string
	Query    string
}

// E5 wraps e with the prefixes the e5 family expects.
func E5(e Embedder) *Prefixed {
	return &Prefixed{Embedder: e, Passage: PassagePrefix, Query: QueryPrefix}
}

func prefix(p, text string) string {
	if p == "" || strings.HasPrefix(text, p) {
		return text
	}
	return p + text
}

// Embed implements Embedder.
func (p *Prefixed) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.Embedder.Embed(ctx, prefix(p.Passage, text))
}

// EmbedBatch implements Embedder.
func (p *Prefixed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = prefix(p.Passage, t)
	}
	return p.Embedder.EmbedBatch(ctx, prefixed)
}

// EmbedQuery implements QueryEmbedder.
func (p *Prefixed) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.Embedder.Embed(ctx, prefix(p.Query, text))
}
