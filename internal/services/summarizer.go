package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// DefaultSummarizeChars bounds the text sent for summarization.
const DefaultSummarizeChars = 3000

// SummarizerConfig holds configuration for the summarization stage.
type SummarizerConfig struct {
	MaxChars int
	Timeout  time.Duration
}

// SummarizerFunction writes the final synopsis and completes the pipeline.
type SummarizerFunction struct {
	records    RecordStore
	summarizer Summarizer
	config     SummarizerConfig
	now        Clock
}

// NewSummarizer creates a new SummarizerFunction instance.
func NewSummarizer(records RecordStore, summarizer Summarizer, config SummarizerConfig, now Clock) *SummarizerFunction {
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultSummarizeChars
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &SummarizerFunction{records: records, summarizer: summarizer, config: config, now: now}
}

// Process handles a record change. Only the transition into classified
// triggers summarization.
func (f *SummarizerFunction) Process(ctx context.Context, change RecordChange) (Outcome, error) {
	if !change.Entered(models.StatusClassified) {
		return OutcomeSkipped, nil
	}
	return f.Run(ctx, change.DocumentID)
}

// Run summarizes the document if its current status is classified.
func (f *SummarizerFunction) Run(ctx context.Context, documentID string) (Outcome, error) {
	logCtx := slog.With("stage", "summarize", "documentId", documentID)

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	rec, err := f.records.Get(ctx, documentID)
	if errors.Is(err, apperr.ErrNotFound) {
		logCtx.Warn("Record disappeared before summarization. Skipping.")
		return OutcomeSkipped, nil
	}
	if err != nil {
		logCtx.Error("Failed to read document record", "error", err)
		return OutcomeFailed, storeError("read record", err)
	}
	if rec.Status != models.StatusClassified {
		logCtx.Info("Record not awaiting summarization. Skipping.", "status", rec.Status)
		return OutcomeSkipped, nil
	}

	text := truncateRunes(rec.ExtractedText, f.config.MaxChars)
	summary, err := f.summarizer.Summarize(ctx, text)
	if err != nil {
		logCtx.Error("Call to summarization model failed", "error", err)
		return OutcomeFailed, apperr.Transient("summarize", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		err := fmt.Errorf("%w: model returned an empty summary", apperr.ErrTransient)
		logCtx.Error("Empty summary from model", "error", err)
		return OutcomeFailed, err
	}

	applied, err := f.records.Advance(ctx, documentID, models.TransitionSummarize, models.StageFields{
		Summary:     &summary,
		LastUpdated: f.now().UTC(),
	})
	if err != nil {
		logCtx.Error("Failed to write summary", "error", err)
		return OutcomeFailed, storeError("write summary", err)
	}
	if !applied {
		logCtx.Info("Record changed while summarizing. Skipping write.")
		return OutcomeSkipped, nil
	}

	logCtx.Info("Summarization complete. Document processing finished.")
	return OutcomeApplied, nil
}
