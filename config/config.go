// Package config loads the YAML configuration of the hnswfield server and CLI.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/blobstore"
	"github.com/hupe1980/hnswfield/blobstore/minio"
	"github.com/hupe1980/hnswfield/blobstore/s3"
	"github.com/hupe1980/hnswfield/codec"
	"github.com/hupe1980/hnswfield/docstore"
	"github.com/hupe1980/hnswfield/embedding"
	"github.com/hupe1980/hnswfield/filter"
	"github.com/hupe1980/hnswfield/persistence"
	"github.com/hupe1980/hnswfield/registry"
)

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	// Registry holds the default field configuration and per-field overrides.
	Registry registry.File `yaml:"registry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EmbeddingConfig configures the vectorization service client.
// An empty Endpoint disables text operations.
type EmbeddingConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	Backoff     time.Duration `yaml:"backoff"`
	RateLimit   float64       `yaml:"rate_limit"`
	Burst       int           `yaml:"burst"`
	Concurrency int           `yaml:"concurrency"`
	// E5 adds the "passage: " and "query: " prefixes.
	E5 bool `yaml:"e5"`
}

// StorageConfig selects where snapshots and records live.
type StorageConfig struct {
	// Backend is one of memory, local, s3 or minio.
	Backend     string                  `yaml:"backend"`
	Path        string                  `yaml:"path"`
	Compression persistence.Compression `yaml:"compression"`
	S3          S3Config                `yaml:"s3"`
	MinIO       minio.Config            `yaml:"minio"`
	Docs        DocsConfig              `yaml:"docs"`
}

// S3Config configures the s3 backend. A non-empty DynamoDBTable commits the
// manifest pointer through DynamoDB conditional writes.
type S3Config struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	DynamoDBTable string `yaml:"dynamodb_table"`
}

// DocsConfig selects the document store. Backend is one of memory, bolt or
// badger. Codec is json or go-json and must not change for an existing store.
type DocsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Codec   string `yaml:"codec"`
}

// SearchConfig tunes filtered searches. Zero values keep the defaults.
type SearchConfig struct {
	GrowthFactor         float64       `yaml:"growth_factor"`
	MaxRounds            int           `yaml:"max_rounds"`
	SelectivityThreshold float64       `yaml:"selectivity_threshold"`
	TimeBudget           time.Duration `yaml:"time_budget"`
	ExactFallback        *bool         `yaml:"exact_fallback"`
}

// LoggingConfig configures the logger. Format is text or json.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration: in-memory storage, no
// embedding service and the registry defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:       embedding.DefaultModel,
			Timeout:     30 * time.Second,
			Retries:     3,
			Backoff:     200 * time.Millisecond,
			Concurrency: 4,
			E5:          true,
		},
		Storage: StorageConfig{
			Backend:     "memory",
			Compression: persistence.CompressionZSTD,
			Docs:        DocsConfig{Backend: "memory"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults, applies HNSWFIELD_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if host := os.Getenv("HNSWFIELD_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("HNSWFIELD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if endpoint := os.Getenv("HNSWFIELD_EMBEDDING_ENDPOINT"); endpoint != "" {
		cfg.Embedding.Endpoint = endpoint
	}
	if backend := os.Getenv("HNSWFIELD_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("HNSWFIELD_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("HNSWFIELD_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Storage.Backend {
	case "", "memory":
	case "local":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the local backend"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			errs = append(errs, errors.New("storage.minio.endpoint and bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Storage.Docs.Backend {
	case "", "memory":
	case "bolt", "badger":
		if c.docsPath() == "" {
			errs = append(errs, fmt.Errorf("storage.docs.path is required for the %s backend", c.Storage.Docs.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.docs.backend %q", c.Storage.Docs.Backend))
	}
	if _, err := codec.ByName(c.Storage.Docs.Codec); err != nil {
		errs = append(errs, fmt.Errorf("storage.docs.codec: %w", err))
	}

	if c.Embedding.Retries < 0 {
		errs = append(errs, fmt.Errorf("embedding.retries must not be negative: %d", c.Embedding.Retries))
	}
	if c.Search.GrowthFactor != 0 && c.Search.GrowthFactor <= 1 {
		errs = append(errs, fmt.Errorf("search.growth_factor must exceed 1: %g", c.Search.GrowthFactor))
	}
	if c.Search.SelectivityThreshold < 0 || c.Search.SelectivityThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.selectivity_threshold must be in [0, 1]: %g", c.Search.SelectivityThreshold))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}
	if _, err := c.Registry.Build(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// docsPath defaults the document store next to local snapshots.
func (c *Config) docsPath() string {
	if c.Storage.Docs.Path != "" {
		return c.Storage.Docs.Path
	}
	if c.Storage.Backend == "local" && c.Storage.Path != "" {
		return filepath.Join(c.Storage.Path, "docs")
	}
	return ""
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q", s)
	}
	return level, nil
}

// Logger returns the configured logger.
func (c *Config) Logger() *hnswfield.Logger {
	level, _ := parseLevel(c.Logging.Level)
	if c.Logging.Format == "json" {
		return hnswfield.NewJSONLogger(level)
	}
	return hnswfield.NewTextLogger(level)
}

// BuildRegistry creates the field registry.
func (c *Config) BuildRegistry() (*registry.Registry, error) {
	return c.Registry.Build()
}

// FilterPolicy returns the filter policy adjustments.
func (c *Config) FilterPolicy() func(p *filter.Policy) {
	s := c.Search
	return func(p *filter.Policy) {
		if s.GrowthFactor > 0 {
			p.GrowthFactor = s.GrowthFactor
		}
		if s.MaxRounds > 0 {
			p.MaxRounds = s.MaxRounds
		}
		if s.SelectivityThreshold > 0 {
			p.SelectivityThreshold = s.SelectivityThreshold
		}
		if s.TimeBudget > 0 {
			p.TimeBudget = s.TimeBudget
		}
		if s.ExactFallback != nil {
			p.ExactFallback = *s.ExactFallback
		}
	}
}

// OpenBlobStore creates the snapshot store.
func (c *Config) OpenBlobStore(ctx context.Context) (blobstore.BlobStore, error) {
	st := c.Storage
	switch st.Backend {
	case "", "memory":
		return blobstore.NewMemoryStore(), nil
	case "local":
		return blobstore.NewLocalStore(filepath.Join(st.Path, "blobs")), nil
	case "minio":
		return minio.Connect(ctx, st.MinIO)
	case "s3":
		var opts []s3.Option
		if st.S3.Prefix != "" {
			opts = append(opts, s3.WithPrefix(st.S3.Prefix))
		}
		if st.S3.Region != "" {
			opts = append(opts, s3.WithRegion(st.S3.Region))
		}
		if st.S3.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(st.S3.Endpoint))
		}
		store, err := s3.New(ctx, st.S3.Bucket, opts...)
		if err != nil {
			return nil, err
		}
		if st.S3.DynamoDBTable == "" {
			return store, nil
		}

		var loadOpts []func(*awsconfig.LoadOptions) error
		if st.S3.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(st.S3.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("config: load aws config: %w", err)
		}
		baseURI := fmt.Sprintf("s3://%s/%s", st.S3.Bucket, st.S3.Prefix)
		return s3.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), st.S3.DynamoDBTable, baseURI), nil
	default:
		return nil, fmt.Errorf("config: unknown storage backend %q", st.Backend)
	}
}

// OpenDocStore creates the document store.
func (c *Config) OpenDocStore() (docstore.Store, error) {
	rc, err := codec.ByName(c.Storage.Docs.Codec)
	if err != nil {
		return nil, err
	}
	switch c.Storage.Docs.Backend {
	case "", "memory":
		return docstore.NewMemoryStore(), nil
	case "bolt":
		return docstore.NewBoltStore(c.docsPath(), docstore.WithCodec(rc))
	case "badger":
		return docstore.NewBadgerStore(c.docsPath(), docstore.WithCodec(rc))
	default:
		return nil, fmt.Errorf("config: unknown docs backend %q", c.Storage.Docs.Backend)
	}
}

// NewEmbedder creates the embedding client, or returns nil when no
// endpoint is configured.
func (c *Config) NewEmbedder(logger *slog.Logger) (embedding.Embedder, error) {
	e := c.Embedding
	if e.Endpoint == "" {
		return nil, nil
	}
	opts := []embedding.Option{
		embedding.WithModel(e.Model),
		embedding.WithTimeout(e.Timeout),
		embedding.WithRetries(e.Retries, e.Backoff),
		embedding.WithLogger(logger),
	}
	if e.RateLimit > 0 {
		opts = append(opts, embedding.WithRateLimit(e.RateLimit, e.Burst))
	}
	if e.Concurrency > 0 {
		opts = append(opts, embedding.WithConcurrency(e.Concurrency))
	}
	client, err := embedding.NewClient(e.Endpoint, opts...)
	if err != nil {
		return nil, err
	}
	if e.E5 {
		return embedding.E5(client), nil
	}
	return client, nil
}

// Options assembles everything needed to open the database.
// The returned options own the document store; DB.Close closes it.
func (c *Config) Options(ctx context.Context) ([]hnswfield.Option, error) {
	logger := c.Logger()

	reg, err := c.BuildRegistry()
	if err != nil {
		return nil, err
	}
	blobs, err := c.OpenBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := c.NewEmbedder(logger.Logger)
	if err != nil {
		return nil, err
	}
	docs, err := c.OpenDocStore()
	if err != nil {
		return nil, err
	}

	opts := []hnswfield.Option{
		hnswfield.WithLogger(logger),
		hnswfield.WithRegistry(reg),
		hnswfield.WithBlobStore(blobs),
		hnswfield.WithDocStore(docs),
		hnswfield.WithCompression(c.Storage.Compression),
		hnswfield.WithFilterPolicy(c.FilterPolicy()),
	}
	if emb != nil {
		opts = append(opts, hnswfield.WithEmbedder(emb))
	}
	return opts, nil
}
