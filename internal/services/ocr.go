package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/extractor"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// OCRConfig holds configuration for the OCR stage.
type OCRConfig struct {
	UploadPrefix string
	Timeout      time.Duration
	MaxPDFBytes  int64
}

// OCRFunction extracts text and form fields from a freshly uploaded object.
type OCRFunction struct {
	records  RecordStore
	objects  ObjectStore
	detector TextDetector
	config   OCRConfig
	now      Clock
}

// ObjectCreated is the part of an object-store notification the OCR stage needs.
type ObjectCreated struct {
	Bucket string
	Key    string
}

// NewOCR creates a new OCRFunction instance.
func NewOCR(records RecordStore, objects ObjectStore, detector TextDetector, config OCRConfig, now Clock) *OCRFunction {
	if config.UploadPrefix == "" {
		config.UploadPrefix = DefaultUploadPrefix
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.MaxPDFBytes <= 0 {
		config.MaxPDFBytes = 50 << 20
	}
	if now == nil {
		now = time.Now
	}
	return &OCRFunction{records: records, objects: objects, detector: detector, config: config, now: now}
}

// Process runs OCR for the uploaded object and moves the record from uploaded to
// ocr-complete. A record already past uploaded is left alone.
func (f *OCRFunction) Process(ctx context.Context, e ObjectCreated) (Outcome, error) {
	logCtx := slog.With("stage", "ocr", "gcsBucket", e.Bucket, "gcsObject", e.Key)

	documentID, err := ParseObjectKey(f.config.UploadPrefix, e.Key)
	if err != nil {
		logCtx.Error("Cannot derive document ID from object key", "error", err)
		return OutcomeFailed, err
	}
	logCtx = logCtx.With("documentId", documentID)

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	rec, err := f.records.Get(ctx, documentID)
	if errors.Is(err, apperr.ErrNotFound) {
		err = fmt.Errorf("%w: no record for document %s", apperr.ErrFatalParse, documentID)
		logCtx.Error("Object has no matching document record", "error", err)
		return OutcomeFailed, err
	}
	if err != nil {
		logCtx.Error("Failed to read document record", "error", err)
		return OutcomeFailed, storeError("read record", err)
	}
	if rec.Status != models.StatusUploaded {
		logCtx.Info("Record already past uploaded. Skipping.", "status", rec.Status)
		return OutcomeSkipped, nil
	}
	if rec.ObjectKey != e.Key {
		err := fmt.Errorf("%w: object %q does not match record key %q", apperr.ErrFatalParse, e.Key, rec.ObjectKey)
		logCtx.Error("Object key mismatch", "error", err)
		return OutcomeFailed, err
	}

	var pageCount *int
	if rec.FileType == models.FileTypePDF {
		n, err := f.preflightPDF(ctx, e)
		if errors.Is(err, apperr.ErrInvalidDocument) {
			return f.fail(ctx, logCtx, rec, "PDF preflight failed", err)
		}
		if err != nil {
			logCtx.Error("PDF preflight could not run", "error", err)
			return OutcomeFailed, err
		}
		pageCount = &n
	}

	graph, err := f.detector.AnalyzeDocument(ctx, e.Bucket, e.Key, rec.FileType)
	if err != nil {
		logCtx.Error("Call to OCR service failed", "error", err)
		return OutcomeFailed, apperr.Transient("analyze document", err)
	}

	res := extractor.Extract(graph)
	encoded, err := models.EncodeKeyValues(res.KeyValues)
	if err != nil {
		return OutcomeFailed, err
	}

	applied, err := f.records.Advance(ctx, documentID, models.TransitionOCR, models.StageFields{
		OCRResults:    &encoded,
		ExtractedText: &res.FullText,
		PageCount:     pageCount,
		LastUpdated:   f.now().UTC(),
	})
	if err != nil {
		logCtx.Error("Failed to write OCR results", "error", err)
		return OutcomeFailed, storeError("write ocr results", err)
	}
	if !applied {
		logCtx.Info("Record changed while OCR ran. Skipping write.")
		return OutcomeSkipped, nil
	}

	logCtx.Info("OCR complete.", "keyValueCount", len(res.KeyValues), "textLength", len(res.FullText), "blockCount", len(graph.Blocks))
	return OutcomeApplied, nil
}

func (f *OCRFunction) preflightPDF(ctx context.Context, e ObjectCreated) (int, error) {
	r, err := f.objects.Open(ctx, e.Bucket, e.Key)
	if err != nil {
		return 0, apperr.Transient(fmt.Sprintf("open gs://%s/%s", e.Bucket, e.Key), err)
	}
	defer r.Close()
	return inspectPDF(r, f.config.MaxPDFBytes)
}

// fail moves the record to error. The original error is returned either way so
// the trigger layer sees the failure.
func (f *OCRFunction) fail(ctx context.Context, logCtx *slog.Logger, rec *models.DocumentRecord, message string, cause error) (Outcome, error) {
	return markFailed(ctx, f.records, logCtx, rec, f.now().UTC(), message, cause)
}

func markFailed(ctx context.Context, records RecordStore, logCtx *slog.Logger, rec *models.DocumentRecord, now time.Time, message string, cause error) (Outcome, error) {
	logCtx.Error(message, "error", cause)
	if _, err := moveToError(ctx, records, rec, now, fmt.Sprintf("%s: %v", message, cause)); err != nil {
		logCtx.Error("CRITICAL: Failed to update status to error after a processing error.", "updateError", err)
	}
	return OutcomeFailed, fmt.Errorf("%s: %w", message, cause)
}

// moveToError applies the error transition from rec's status. It reports
// applied=false when the stored record has already left that status.
func moveToError(ctx context.Context, records RecordStore, rec *models.DocumentRecord, now time.Time, details string) (bool, error) {
	return records.Advance(ctx, rec.DocumentID, models.FailTransition(rec.Status), models.StageFields{
		ErrorDetails: &details,
		LastUpdated:  now,
	})
}
