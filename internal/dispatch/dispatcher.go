package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/metrics"
	"github.com/Lllllllleong/idpflow/internal/services"
)

// Stage names used for logging and metric labels.
const (
	StageOCR       = services.StageOCR
	StageClassify  = services.StageClassify
	StageSummarize = services.StageSummarize
	StageReconcile = services.StageReconcile
)

// Dispatcher routes trigger events to stage handlers. Handlers a deployment
// does not host may be left nil.
type Dispatcher struct {
	UploadPrefix string
	OCR          *services.OCRFunction
	Classifier   *services.ClassifierFunction
	Summarizer   *services.SummarizerFunction
	Metrics      *metrics.Metrics
	// Pusher, when set, sends Metrics to a Pushgateway after every invocation.
	Pusher *metrics.Pusher
	now    func() time.Time
}

const pushTimeout = 5 * time.Second

// New returns a Dispatcher. metrics may be nil.
func New(uploadPrefix string, ocr *services.OCRFunction, classifier *services.ClassifierFunction, summarizer *services.SummarizerFunction, m *metrics.Metrics) *Dispatcher {
	if uploadPrefix == "" {
		uploadPrefix = services.DefaultUploadPrefix
	}
	return &Dispatcher{
		UploadPrefix: uploadPrefix,
		OCR:          ocr,
		Classifier:   classifier,
		Summarizer:   summarizer,
		Metrics:      m,
		now:          time.Now,
	}
}

// ProcessUpload handles an object finalize event. Objects outside the upload
// prefix are ignored.
func (d *Dispatcher) ProcessUpload(ctx context.Context, e cloudevents.Event) error {
	gcsEvent, err := DecodeObjectEvent(e)
	if err != nil {
		slog.Error("Failed to decode storage event", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return err
	}
	if !strings.HasPrefix(gcsEvent.Name, d.UploadPrefix) || strings.HasSuffix(gcsEvent.Name, "/") {
		slog.Info("Object is outside the upload prefix. Ignoring.", "gcsObject", gcsEvent.Name, "prefix", d.UploadPrefix)
		return nil
	}
	if d.OCR == nil {
		return fmt.Errorf("dispatcher has no OCR handler")
	}

	start := d.now()
	outcome, err := d.OCR.Process(ctx, services.ObjectCreated{Bucket: gcsEvent.Bucket, Key: gcsEvent.Name})
	return d.finish(ctx, StageOCR, e.ID(), start, outcome, err)
}

// ClassifyDocument handles a record write event for the classification stage.
func (d *Dispatcher) ClassifyDocument(ctx context.Context, e cloudevents.Event) error {
	change, err := DecodeRecordChange(e)
	if err != nil {
		slog.Error("Failed to decode firestore event", "error", err, "eventId", e.ID())
		return err
	}
	if d.Classifier == nil {
		return fmt.Errorf("dispatcher has no classification handler")
	}

	start := d.now()
	outcome, err := d.Classifier.Process(ctx, change)
	return d.finish(ctx, StageClassify, e.ID(), start, outcome, err)
}

// SummarizeDocument handles a record write event for the summarization stage.
func (d *Dispatcher) SummarizeDocument(ctx context.Context, e cloudevents.Event) error {
	change, err := DecodeRecordChange(e)
	if err != nil {
		slog.Error("Failed to decode firestore event", "error", err, "eventId", e.ID())
		return err
	}
	if d.Summarizer == nil {
		return fmt.Errorf("dispatcher has no summarization handler")
	}

	start := d.now()
	outcome, err := d.Summarizer.Process(ctx, change)
	return d.finish(ctx, StageSummarize, e.ID(), start, outcome, err)
}

// finish records the invocation and converts the outcome into the handler's
// return value. Any failure is returned so the runtime redelivers; a record
// already moved to error turns the redelivery into a skip.
func (d *Dispatcher) finish(ctx context.Context, stage, eventID string, start time.Time, outcome services.Outcome, err error) error {
	if d.Metrics != nil {
		d.Metrics.ObserveStage(stage, outcome.String(), d.now().Sub(start))
	}
	d.pushMetrics(ctx, stage)

	if outcome != services.OutcomeFailed {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%s stage failed", stage)
	}
	if apperr.IsPermanent(err) {
		slog.Error("Stage failed permanently", "stage", stage, "eventId", eventID, "error", err)
	} else {
		slog.Warn("Stage failed; returning error for redelivery", "stage", stage, "eventId", eventID, "error", err)
	}
	return err
}

// pushMetrics never fails the invocation; a lost push is caught up by the next.
func (d *Dispatcher) pushMetrics(ctx context.Context, stage string) {
	if d.Pusher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := d.Pusher.Push(ctx); err != nil {
		slog.Warn("Failed to push metrics", "stage", stage, "error", err)
	}
}
