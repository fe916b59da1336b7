package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// ReconcilerConfig holds configuration for the stuck-document sweep.
type ReconcilerConfig struct {
	Bucket      string
	StaleAfter  time.Duration
	GiveUpAfter time.Duration
	Concurrency int
	BatchSize   int
}

// ReconcilerFunction re-drives documents whose trigger was lost. It goes
// through the same stage handlers as the live triggers, so running it next to
// them is safe.
type ReconcilerFunction struct {
	records    RecordStore
	objects    ObjectStore
	ocr        *OCRFunction
	classifier *ClassifierFunction
	summarizer *SummarizerFunction
	observer   StageObserver
	config     ReconcilerConfig
	now        Clock
}

// NewReconciler creates a new ReconcilerFunction instance. observer may be nil.
func NewReconciler(records RecordStore, objects ObjectStore, ocr *OCRFunction, classifier *ClassifierFunction, summarizer *SummarizerFunction, observer StageObserver, config ReconcilerConfig, now Clock) *ReconcilerFunction {
	if config.StaleAfter <= 0 {
		config.StaleAfter = 15 * time.Minute
	}
	if config.GiveUpAfter <= 0 {
		config.GiveUpAfter = 24 * time.Hour
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if now == nil {
		now = time.Now
	}
	return &ReconcilerFunction{
		records:    records,
		objects:    objects,
		ocr:        ocr,
		classifier: classifier,
		summarizer: summarizer,
		observer:   observer,
		config:     config,
		now:        now,
	}
}

var pendingStatuses = []models.Status{
	models.StatusUploaded,
	models.StatusOCRComplete,
	models.StatusClassified,
}

// Process runs one sweep over stale, non-terminal records.
func (f *ReconcilerFunction) Process(ctx context.Context) (*models.ReconcileResponse, error) {
	now := f.now().UTC()
	logCtx := slog.With("stage", "reconcile")

	stale, err := f.records.ListStale(ctx, pendingStatuses, now.Add(-f.config.StaleAfter), f.config.BatchSize)
	if err != nil {
		logCtx.Error("Failed to list stale documents", "error", err)
		return nil, fmt.Errorf("failed to list stale documents: %w", err)
	}
	logCtx.Info("Starting reconcile sweep.", "staleCount", len(stale))

	var (
		mu  sync.Mutex
		res = &models.ReconcileResponse{Scanned: len(stale)}
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(f.config.Concurrency)
	for _, rec := range stale {
		eg.Go(func() error {
			docLog := logCtx.With("documentId", rec.DocumentID, "status", rec.Status)

			if now.Sub(rec.LastUpdated) > f.config.GiveUpAfter {
				outcome, err := f.observe(StageReconcile, func() (Outcome, error) {
					return f.abandon(gctx, docLog, rec, now)
				})
				switch {
				case err != nil:
					docLog.Warn("Failed to abandon document; will retry on a later sweep.", "error", err)
					count(&res.Failed)
				case outcome == OutcomeApplied:
					count(&res.Abandoned)
				default:
					count(&res.Skipped)
				}
				return nil
			}

			outcome, err := f.redrive(gctx, rec)
			switch {
			case err != nil:
				docLog.Warn("Re-drive failed; will retry on a later sweep.", "error", err)
				count(&res.Failed)
			case outcome == OutcomeApplied:
				count(&res.Redriven)
			default:
				count(&res.Skipped)
			}
			// One document failing must not stop the rest of the sweep.
			return nil
		})
	}
	_ = eg.Wait()

	logCtx.Info("Reconcile sweep complete.",
		"scanned", res.Scanned, "redriven", res.Redriven, "skipped", res.Skipped,
		"failed", res.Failed, "abandoned", res.Abandoned)
	return res, nil
}

func (f *ReconcilerFunction) redrive(ctx context.Context, rec *models.DocumentRecord) (Outcome, error) {
	switch rec.Status {
	case models.StatusUploaded:
		exists, err := f.objects.Exists(ctx, f.config.Bucket, rec.ObjectKey)
		if err != nil {
			return OutcomeFailed, err
		}
		if !exists {
			// The client never finished the upload.
			return OutcomeSkipped, nil
		}
		return f.observe(StageOCR, func() (Outcome, error) {
			return f.ocr.Process(ctx, ObjectCreated{Bucket: f.config.Bucket, Key: rec.ObjectKey})
		})
	case models.StatusOCRComplete:
		return f.observe(StageClassify, func() (Outcome, error) {
			return f.classifier.Run(ctx, rec.DocumentID)
		})
	case models.StatusClassified:
		return f.observe(StageSummarize, func() (Outcome, error) {
			return f.summarizer.Run(ctx, rec.DocumentID)
		})
	case models.StatusComplete, models.StatusError:
		return OutcomeSkipped, nil
	}
	return OutcomeSkipped, nil
}

// observe runs one stage invocation and records its outcome and latency.
func (f *ReconcilerFunction) observe(stage string, run func() (Outcome, error)) (Outcome, error) {
	start := f.now()
	outcome, err := run()
	if f.observer != nil {
		f.observer.ObserveStage(stage, outcome.String(), f.now().Sub(start))
	}
	return outcome, err
}

// abandon moves a record that made no progress to error. The record may have
// advanced since it was listed, in which case nothing is written.
func (f *ReconcilerFunction) abandon(ctx context.Context, logCtx *slog.Logger, rec *models.DocumentRecord, now time.Time) (Outcome, error) {
	details := fmt.Sprintf("abandoned in status %s: no progress since %s", rec.Status, rec.LastUpdated.Format(time.RFC3339))
	applied, err := moveToError(ctx, f.records, rec, now, details)
	if err != nil {
		return OutcomeFailed, storeError("abandon", err)
	}
	if !applied {
		logCtx.Info("Record moved on since it was listed. Not abandoning.")
		return OutcomeSkipped, nil
	}
	logCtx.Error("Abandoned document with no progress.", "lastUpdated", rec.LastUpdated)
	return OutcomeApplied, nil
}
