package services

import (
	"context"
	"io"
	"time"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// RecordStore is the document record store. Advance is the only way stages
// mutate a record: it applies fields and the transition atomically, and only if
// the stored status still equals t.From.
type RecordStore interface {
	Create(ctx context.Context, rec *models.DocumentRecord) error
	Get(ctx context.Context, documentID string) (*models.DocumentRecord, error)
	Advance(ctx context.Context, documentID string, t models.Transition, fields models.StageFields) (applied bool, err error)
	ListStale(ctx context.Context, statuses []models.Status, updatedBefore time.Time, limit int) ([]*models.DocumentRecord, error)
}

// ObjectStore is the blob store holding uploaded files.
type ObjectStore interface {
	SignedUploadURL(ctx context.Context, objectKey, contentType string, ttl time.Duration) (string, error)
	Open(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
	Exists(ctx context.Context, bucket, objectKey string) (bool, error)
}

// TextDetector is the OCR service. It analyzes the stored object for text,
// forms and tables and returns the raw block graph.
type TextDetector interface {
	AnalyzeDocument(ctx context.Context, bucket, objectKey, fileType string) (models.BlockGraph, error)
}

// Classifier asks the inference service for one label out of labels.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string) (string, error)
}

// Summarizer asks the inference service for a short synopsis.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// StageObserver records one stage invocation.
type StageObserver interface {
	ObserveStage(stage, outcome string, elapsed time.Duration)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
