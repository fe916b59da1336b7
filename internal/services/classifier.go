package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// RecordChange is a record-store change notification reduced to what the
// stages route on.
type RecordChange struct {
	DocumentID string
	// OldStatus is empty when the change created the record.
	OldStatus models.Status
	// NewStatus is empty when the change deleted the record.
	NewStatus models.Status
}

// IsUpdate reports whether both images are present.
func (c RecordChange) IsUpdate() bool {
	return c.OldStatus != "" && c.NewStatus != ""
}

// Entered reports whether this change moved the record into s. Re-deliveries
// and writes that leave the status unchanged do not count.
func (c RecordChange) Entered(s models.Status) bool {
	return c.IsUpdate() && c.NewStatus == s && c.OldStatus != s
}

// DefaultClassifyChars bounds the text sent for classification.
const DefaultClassifyChars = 2000

// ClassifierConfig holds configuration for the classification stage.
type ClassifierConfig struct {
	MaxChars int
	Timeout  time.Duration
}

// ClassifierFunction labels a document once OCR is complete.
type ClassifierFunction struct {
	records    RecordStore
	classifier Classifier
	config     ClassifierConfig
	now        Clock
}

// NewClassifier creates a new ClassifierFunction instance.
func NewClassifier(records RecordStore, classifier Classifier, config ClassifierConfig, now Clock) *ClassifierFunction {
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultClassifyChars
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &ClassifierFunction{records: records, classifier: classifier, config: config, now: now}
}

// Process handles a record change. Only the transition into ocr-complete
// triggers classification.
func (f *ClassifierFunction) Process(ctx context.Context, change RecordChange) (Outcome, error) {
	if !change.Entered(models.StatusOCRComplete) {
		return OutcomeSkipped, nil
	}
	return f.Run(ctx, change.DocumentID)
}

// Run classifies the document if its current status is ocr-complete.
func (f *ClassifierFunction) Run(ctx context.Context, documentID string) (Outcome, error) {
	logCtx := slog.With("stage", "classify", "documentId", documentID)

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	// The event image may lag the record, so read the current one.
	rec, err := f.records.Get(ctx, documentID)
	if errors.Is(err, apperr.ErrNotFound) {
		logCtx.Warn("Record disappeared before classification. Skipping.")
		return OutcomeSkipped, nil
	}
	if err != nil {
		logCtx.Error("Failed to read document record", "error", err)
		return OutcomeFailed, storeError("read record", err)
	}
	if rec.Status != models.StatusOCRComplete {
		logCtx.Info("Record not awaiting classification. Skipping.", "status", rec.Status)
		return OutcomeSkipped, nil
	}

	text := truncateRunes(rec.ExtractedText, f.config.MaxChars)
	raw, err := f.classifier.Classify(ctx, text, models.CategoryLabels())
	if err != nil {
		logCtx.Error("Call to classification model failed", "error", err)
		return OutcomeFailed, apperr.Transient("classify", err)
	}

	category, matched := models.CanonicalCategory(raw)
	if !matched {
		logCtx.Warn("Model returned a label outside the category set. Using Other.", "response", raw)
	}

	applied, err := f.records.Advance(ctx, documentID, models.TransitionClassify, models.StageFields{
		Classification: &category,
		LastUpdated:    f.now().UTC(),
	})
	if err != nil {
		logCtx.Error("Failed to write classification", "error", err)
		return OutcomeFailed, storeError("write classification", err)
	}
	if !applied {
		logCtx.Info("Record changed while classifying. Skipping write.")
		return OutcomeSkipped, nil
	}

	logCtx.Info("Classification complete.", "classification", category)
	return OutcomeApplied, nil
}
