// Package api provides the HTTP surface: upload registration, results lookup,
// the reconcile trigger and the operational endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/idpflow/internal/metrics"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// maxBodyBytes bounds request bodies; both request payloads are tiny.
const maxBodyBytes = 64 << 10

// Ingester registers an upload and returns where to PUT the file.
type Ingester interface {
	Process(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
}

// ResultsGetter returns the public projection of a document.
type ResultsGetter interface {
	Get(ctx context.Context, documentID string) (*models.ResultsResponse, error)
}

// Reconciler runs one stuck-document sweep.
type Reconciler interface {
	Process(ctx context.Context) (*models.ReconcileResponse, error)
}

// Server holds the handlers' dependencies. Any of them may be nil, in which
// case the corresponding routes are not mounted.
type Server struct {
	ingest     Ingester
	results    ResultsGetter
	reconciler Reconciler
	metrics    *metrics.Metrics
	cors       CORSConfig
	timeout    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithReconciler mounts POST /reconcile.
func WithReconciler(r Reconciler) Option {
	return func(s *Server) { s.reconciler = r }
}

// WithMetrics mounts GET /metrics and counts upload results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithCORS replaces the default permissive CORS policy.
func WithCORS(cfg CORSConfig) Option {
	return func(s *Server) { s.cors = cfg }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// NewServer creates a server with the given dependencies.
func NewServer(ingest Ingester, results ResultsGetter, opts ...Option) *Server {
	s := &Server{
		ingest:  ingest,
		results: results,
		cors:    DefaultCORSConfig(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
//
// Route table:
//
//	POST /upload                 → register a document, get an upload URL
//	GET  /results/{documentId}   → current processing state
//	POST /reconcile              → re-drive stuck documents
//	GET  /metrics                → Prometheus scrape
//	GET  /healthz                → liveness
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(CORS(s.cors))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		if s.ingest != nil {
			r.Post("/upload", s.handleUpload)
		}
		if s.results != nil {
			r.Get("/results/{documentId}", s.handleResults)
		}
	})
	// A sweep runs its own per-stage timeouts.
	if s.reconciler != nil {
		r.Post("/reconcile", s.handleReconcile)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
