package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/config"
	promcollector "github.com/hupe1980/hnswfield/metrics/prometheus"
)

// RequestIDHeader carries the id of a request.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 16 << 20

type ctxKey struct{}

// RequestID returns the id assigned to the request of ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Server represents the REST API server.
type Server struct {
	db         *hnswfield.DB
	router     *mux.Router
	httpServer *http.Server
	config     config.ServerConfig
	logger     *slog.Logger
	metrics    *promcollector.Collector
	gatherer   prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records HTTP metrics in c and serves g at /metrics.
func WithMetrics(c *promcollector.Collector, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = c
		s.gatherer = g
	}
}

// NewServer creates a new API server.
func NewServer(db *hnswfield.DB, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		db:       db,
		config:   cfg,
		logger:   slog.New(slog.DiscardHandler),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/fields", s.handleListFields).Methods(http.MethodGet)
	s.router.HandleFunc("/fields/{field}/vectors", s.handleInsert).Methods(http.MethodPost)
	s.router.HandleFunc("/fields/{field}/vectors/{id:[0-9]+}", s.handleGetVector).Methods(http.MethodGet)
	s.router.HandleFunc("/fields/{field}/search", s.handleSearch).Methods(http.MethodPost)
	s.router.HandleFunc("/save", s.handleSave).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("api server listening", "addr", s.config.Addr())
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(r.Method, path, rec.status, elapsed)
		}
		s.logger.DebugContext(r.Context(), "http request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"elapsed", elapsed,
		)
	})
}

// statusFor maps database errors to HTTP status codes.
func statusFor(err error) int {
	var dm *hnswfield.ErrDimensionMismatch
	switch {
	case errors.As(err, &dm),
		errors.Is(err, hnswfield.ErrInvalidVector),
		errors.Is(err, hnswfield.ErrInvalidK),
		errors.Is(err, hnswfield.ErrNoEmbedder):
		return http.StatusBadRequest
	case errors.Is(err, hnswfield.ErrUnknownField),
		errors.Is(err, hnswfield.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, hnswfield.ErrConfigFrozen),
		errors.Is(err, hnswfield.ErrConfigMismatch):
		return http.StatusConflict
	case errors.Is(err, hnswfield.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "request_id", RequestID(r.Context()), "error", err)
	}
	s.respondWithJSON(w, code, ErrorResponse{Error: err.Error(), RequestID: RequestID(r.Context())})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"error marshaling JSON"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
