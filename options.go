package hnswfield

import (
	"log/slog"

	"github.com/hupe1980/hnswfield/blobstore"
	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/embedding"
	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/persistence"
	"github.com/hupe1980/hnswfield/registry"
)

type options struct {
	registry         *registry.Registry
	blobs            blobstore.BlobStore
	docs             docstore.Store
	embedder         embedding.Embedder
	compression      persistence.Compression
	filterPolicy     []func(*filter.Policy)
	concurrency      int
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithRegistry sets the registry that resolves field configurations.
// Fields without an override use the registry default.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithBlobStore sets where Save writes snapshots and where Open reads them.
// The default is an in-memory store that does not outlive the process.
//
// Example:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("books/"))
//	db, _ := hnswfield.Open(ctx, hnswfield.WithBlobStore(s3Store))
func WithBlobStore(store blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobs = store
	}
}

// WithDocStore sets the store of document records. The database closes it
// on Close. The default is an in-memory store.
func WithDocStore(store docstore.Store) Option {
	return func(o *options) {
		o.docs = store
	}
}

// WithEmbedder enables InsertText and SearchText.
//
// Example:
//
//	client, _ := embedding.NewClient("http://localhost:8000")
//	db, _ := hnswfield.Open(ctx, hnswfield.WithEmbedder(embedding.E5(client)))
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithCompression sets the snapshot compression used by Save.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithFilterPolicy adjusts how filtered searches widen their beam.
func WithFilterPolicy(optFns ...func(p *filter.Policy)) Option {
	return func(o *options) {
		o.filterPolicy = append(o.filterPolicy, optFns...)
	}
}

// WithConcurrency bounds the parallelism of InsertTexts and Save.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &hnswfield.BasicMetricsCollector{}
//	db, _ := hnswfield.Open(ctx, hnswfield.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		compression:      persistence.CompressionZSTD,
		concurrency:      4,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	return o
}
