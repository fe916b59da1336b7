package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Lllllllleong/idpflow/internal/api"
	"github.com/Lllllllleong/idpflow/internal/dispatch"
	"github.com/Lllllllleong/idpflow/internal/gcp"
	"github.com/Lllllllleong/idpflow/internal/metrics"
	"github.com/Lllllllleong/idpflow/internal/services"
)

// Backends are the adapters a function talks to. Tests build them from
// memstore; deployed functions from Connect.
type Backends struct {
	Records    services.RecordStore
	Objects    services.ObjectStore
	Detector   services.TextDetector
	Classifier services.Classifier
	Summarizer services.Summarizer
}

// Connect creates the GCP clients. The Vertex client is only created when
// withModels is set, since the API function never calls a model.
func Connect(ctx context.Context, cfg *Config, withModels bool) (*Backends, error) {
	fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}

	b := &Backends{
		Records: gcp.NewRecordStore(fsClient, cfg.FirestoreCollection),
		Objects: gcp.NewObjectStore(storageClient, cfg.DocumentBucket, cfg.SignerEmail),
	}
	if withModels {
		vertexClient, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		b.Detector = vertexClient
		b.Classifier = vertexClient
		b.Summarizer = vertexClient
	}
	return b, nil
}

// Stages holds the stage handlers built from one set of backends, and the
// metrics they record into.
type Stages struct {
	Ingest     *services.IngestFunction
	Results    *services.ResultsQuery
	OCR        *services.OCRFunction
	Classifier *services.ClassifierFunction
	Summarizer *services.SummarizerFunction
	Reconciler *services.ReconcilerFunction
	Metrics    *metrics.Metrics
}

// NewStages builds every stage handler. Handlers whose backend is nil are
// left nil. A nil m gets a fresh registry.
func NewStages(cfg *Config, b *Backends, m *metrics.Metrics, now services.Clock) *Stages {
	if m == nil {
		m = metrics.New()
	}
	s := &Stages{
		Ingest: services.NewIngest(b.Records, b.Objects, services.IngestConfig{
			UploadPrefix: cfg.UploadPrefix,
			UploadURLTTL: cfg.UploadURLTTL,
		}, now),
		Results: services.NewResultsQuery(b.Records),
		Metrics: m,
	}
	if b.Detector != nil {
		s.OCR = services.NewOCR(b.Records, b.Objects, b.Detector, services.OCRConfig{
			UploadPrefix: cfg.UploadPrefix,
			Timeout:      cfg.OCRTimeout,
			MaxPDFBytes:  int64(cfg.MaxPDFBytes),
		}, now)
	}
	if b.Classifier != nil {
		s.Classifier = services.NewClassifier(b.Records, b.Classifier, services.ClassifierConfig{
			MaxChars: cfg.ClassifyChars,
			Timeout:  cfg.ClassifyTimeout,
		}, now)
	}
	if b.Summarizer != nil {
		s.Summarizer = services.NewSummarizer(b.Records, b.Summarizer, services.SummarizerConfig{
			MaxChars: cfg.SummarizeChars,
			Timeout:  cfg.SummarizeTimeout,
		}, now)
	}
	if s.OCR != nil && s.Classifier != nil && s.Summarizer != nil {
		s.Reconciler = services.NewReconciler(b.Records, b.Objects, s.OCR, s.Classifier, s.Summarizer, m, services.ReconcilerConfig{
			Bucket:      cfg.DocumentBucket,
			StaleAfter:  cfg.StaleAfter,
			GiveUpAfter: cfg.GiveUpAfter,
			Concurrency: cfg.ReconcileWorkers,
			BatchSize:   cfg.ReconcileBatch,
		}, now)
	}
	return s
}

// Dispatcher routes trigger events to the stages. Event functions serve no
// HTTP, so their metrics are pushed when METRICS_PUSH_URL is set.
func (s *Stages) Dispatcher(cfg *Config) *dispatch.Dispatcher {
	d := dispatch.New(cfg.UploadPrefix, s.OCR, s.Classifier, s.Summarizer, s.Metrics)
	if cfg.MetricsPushURL != "" {
		d.Pusher = s.Metrics.NewPusher(cfg.MetricsPushURL, "idpflow_"+cfg.FunctionTarget, uuid.NewString())
	}
	return d
}

// APIHandler serves upload and results.
func (s *Stages) APIHandler(cfg *Config) http.Handler {
	cors := api.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORSOrigins
	return api.NewServer(s.Ingest, s.Results, api.WithMetrics(s.Metrics), api.WithCORS(cors)).Handler()
}

// ReconcileHandler serves POST /reconcile and the metrics of the stages it
// re-drives.
func (s *Stages) ReconcileHandler() (http.Handler, error) {
	if s.Reconciler == nil {
		return nil, fmt.Errorf("reconciler needs the OCR, classification and summarization backends")
	}
	return api.NewServer(nil, nil, api.WithReconciler(s.Reconciler), api.WithMetrics(s.Metrics)).Handler(), nil
}

// NewAPI builds the HandleAPI function.
func NewAPI(ctx context.Context) (http.Handler, error) {
	cfg, b, err := load(ctx, false)
	if err != nil {
		return nil, err
	}
	return NewStages(cfg, b, nil, nil).APIHandler(cfg), nil
}

// NewEventDispatcher builds the dispatcher shared by the three event functions.
func NewEventDispatcher(ctx context.Context) (*dispatch.Dispatcher, error) {
	cfg, b, err := load(ctx, true)
	if err != nil {
		return nil, err
	}
	return NewStages(cfg, b, nil, nil).Dispatcher(cfg), nil
}

// NewReconcileAPI builds the HandleReconcile function.
func NewReconcileAPI(ctx context.Context) (http.Handler, error) {
	cfg, b, err := load(ctx, true)
	if err != nil {
		return nil, err
	}
	return NewStages(cfg, b, nil, nil).ReconcileHandler()
}

func load(ctx context.Context, withModels bool) (*Config, *Backends, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	b, err := Connect(ctx, cfg, withModels)
	if err != nil {
		return nil, nil, err
	}
	return cfg, b, nil
}

var (
	_ services.RecordStore  = (*gcp.RecordStore)(nil)
	_ services.ObjectStore  = (*gcp.ObjectStore)(nil)
	_ services.TextDetector = (*gcp.VertexClient)(nil)
	_ services.Classifier   = (*gcp.VertexClient)(nil)
	_ services.Summarizer   = (*gcp.VertexClient)(nil)
)
