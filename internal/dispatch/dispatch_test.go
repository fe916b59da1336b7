package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/memstore"
	"github.com/Lllllllleong/idpflow/internal/metrics"
	"github.com/Lllllllleong/idpflow/internal/models"
	"github.com/Lllllllleong/idpflow/internal/services"
)

const (
	bucket = "idp-documents"
	docID  = "9d3f1c52-7a4e-4b8e-8c1d-5e6f7a8b9c0d"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func storageEvent(t *testing.T, name string) cloudevents.Event {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("evt-" + name)
	e.SetType("google.cloud.storage.object.v1.finalized")
	e.SetSource("//storage.googleapis.com/projects/_/buckets/" + bucket)
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, GCSEvent{Bucket: bucket, Name: name, ContentType: "image/png"}))
	return e
}

func firestoreDoc(id string, status models.Status) map[string]any {
	return map[string]any{
		"name": "projects/p/databases/(default)/documents/documents/" + id,
		"fields": map[string]any{
			"status":   map[string]any{"stringValue": string(status)},
			"fileName": map[string]any{"stringValue": "invoice.png"},
		},
	}
}

func firestoreEvent(t *testing.T, old, new map[string]any) cloudevents.Event {
	t.Helper()
	payload := map[string]any{}
	if old != nil {
		payload["oldValue"] = old
	}
	if new != nil {
		payload["value"] = new
	}
	e := cloudevents.NewEvent()
	e.SetID("fs-evt")
	e.SetType("google.cloud.firestore.document.v1.written")
	e.SetSource("//firestore.googleapis.com/projects/p/databases/(default)")
	e.SetSubject("documents/documents/" + docID)
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, payload))
	return e
}

func TestDecodeObjectEvent(t *testing.T) {
	got, err := DecodeObjectEvent(storageEvent(t, "documents/"+docID+"/a.png"))
	require.NoError(t, err)
	assert.Equal(t, bucket, got.Bucket)
	assert.Equal(t, "documents/"+docID+"/a.png", got.Name)
	assert.Equal(t, "image/png", got.ContentType)

	e := cloudevents.NewEvent()
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, map[string]string{"bucket": bucket}))
	_, err = DecodeObjectEvent(e)
	assert.ErrorIs(t, err, apperr.ErrFatalParse)
}

func TestDecodeRecordChange(t *testing.T) {
	t.Run("update", func(t *testing.T) {
		change, err := DecodeRecordChange(firestoreEvent(t, firestoreDoc(docID, models.StatusUploaded), firestoreDoc(docID, models.StatusOCRComplete)))
		require.NoError(t, err)
		assert.Equal(t, services.RecordChange{DocumentID: docID, OldStatus: models.StatusUploaded, NewStatus: models.StatusOCRComplete}, change)
		assert.True(t, change.Entered(models.StatusOCRComplete))
	})

	t.Run("create", func(t *testing.T) {
		change, err := DecodeRecordChange(firestoreEvent(t, nil, firestoreDoc(docID, models.StatusUploaded)))
		require.NoError(t, err)
		assert.Equal(t, models.Status(""), change.OldStatus)
		assert.False(t, change.IsUpdate())
	})

	t.Run("delete", func(t *testing.T) {
		change, err := DecodeRecordChange(firestoreEvent(t, firestoreDoc(docID, models.StatusComplete), nil))
		require.NoError(t, err)
		assert.Equal(t, docID, change.DocumentID)
		assert.Equal(t, models.Status(""), change.NewStatus)
	})

	t.Run("falls back to subject", func(t *testing.T) {
		change, err := DecodeRecordChange(firestoreEvent(t, nil, nil))
		require.NoError(t, err)
		assert.Equal(t, docID, change.DocumentID)
	})

	t.Run("protobuf payload is rejected", func(t *testing.T) {
		e := cloudevents.NewEvent()
		require.NoError(t, e.SetData("application/protobuf", []byte{0x0a, 0x01}))
		_, err := DecodeRecordChange(e)
		assert.ErrorIs(t, err, apperr.ErrFatalParse)
	})

	t.Run("garbage", func(t *testing.T) {
		e := cloudevents.NewEvent()
		require.NoError(t, e.SetData(cloudevents.ApplicationJSON, []byte("{")))
		_, err := DecodeRecordChange(e)
		assert.ErrorIs(t, err, apperr.ErrFatalParse)
	})
}

type harness struct {
	records    *memstore.RecordStore
	objects    *memstore.ObjectStore
	detector   *memstore.Detector
	classifier *memstore.Classifier
	metrics    *metrics.Metrics
	d          *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		records:    memstore.NewRecordStore(),
		objects:    memstore.NewObjectStore(bucket),
		detector:   memstore.NewDetector(memstore.InvoiceGraph()),
		classifier: memstore.NewClassifier("W2"),
		metrics:    metrics.New(),
	}
	ocr := services.NewOCR(h.records, h.objects, h.detector, services.OCRConfig{}, nil)
	cls := services.NewClassifier(h.records, h.classifier, services.ClassifierConfig{}, nil)
	sum := services.NewSummarizer(h.records, memstore.NewSummarizer("A W2 form."), services.SummarizerConfig{}, nil)
	h.d = New("", ocr, cls, sum, h.metrics)
	return h
}

func (h *harness) seed(t *testing.T, status models.Status) string {
	t.Helper()
	key := services.ObjectKey(services.DefaultUploadPrefix, docID, "w2.png")
	require.NoError(t, h.records.Create(context.Background(), &models.DocumentRecord{
		DocumentID:      docID,
		FileName:        "w2.png",
		FileType:        models.FileTypePNG,
		ObjectKey:       key,
		Status:          status,
		ExtractedText:   "Form W-2 Wage and Tax Statement",
		UploadTimestamp: t0,
		LastUpdated:     t0,
	}))
	h.objects.Put(key, []byte("png"))
	return key
}

func (h *harness) outcomes(stage, outcome string) float64 {
	return testutil.ToFloat64(h.metrics.StageOutcomesTotal.WithLabelValues(stage, outcome))
}

func TestProcessUpload(t *testing.T) {
	h := newHarness(t)
	key := h.seed(t, models.StatusUploaded)

	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, key)))
	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, key)))

	rec, err := h.records.Get(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOCRComplete, rec.Status)
	assert.Equal(t, 1.0, h.outcomes(StageOCR, "applied"))
	assert.Equal(t, 1.0, h.outcomes(StageOCR, "skipped"))
}

func TestProcessUploadIgnoresForeignObjects(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, "exports/report.csv")))
	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, "documents/")))
	assert.Zero(t, h.detector.Calls())
	assert.Equal(t, 0.0, h.outcomes(StageOCR, "failed"))
}

func TestProcessUploadReturnsFailures(t *testing.T) {
	h := newHarness(t)

	// No record for this key.
	err := h.d.ProcessUpload(context.Background(), storageEvent(t, "documents/"+docID+"/orphan.png"))
	assert.ErrorIs(t, err, apperr.ErrFatalParse)
	assert.Equal(t, 1.0, h.outcomes(StageOCR, "failed"))

	key := h.seed(t, models.StatusUploaded)
	h.detector.FailWith(errors.New("unavailable"))
	err = h.d.ProcessUpload(context.Background(), storageEvent(t, key))
	assert.ErrorIs(t, err, apperr.ErrTransient)
	assert.Equal(t, 2.0, h.outcomes(StageOCR, "failed"))
}

func TestClassifyAndSummarizeDocument(t *testing.T) {
	h := newHarness(t)
	h.seed(t, models.StatusOCRComplete)
	ctx := context.Background()

	toOCR := firestoreEvent(t, firestoreDoc(docID, models.StatusUploaded), firestoreDoc(docID, models.StatusOCRComplete))
	toClassified := firestoreEvent(t, firestoreDoc(docID, models.StatusOCRComplete), firestoreDoc(docID, models.StatusClassified))

	// The summarizer ignores the ocr-complete event.
	require.NoError(t, h.d.SummarizeDocument(ctx, toOCR))
	require.NoError(t, h.d.ClassifyDocument(ctx, toOCR))
	require.NoError(t, h.d.SummarizeDocument(ctx, toClassified))
	// Classification ignores the classified event.
	require.NoError(t, h.d.ClassifyDocument(ctx, toClassified))

	rec, err := h.records.Get(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, rec.Status)
	assert.Equal(t, models.CategoryW2, rec.Classification)
	assert.Equal(t, "A W2 form.", rec.Summary)

	assert.Equal(t, 1.0, h.outcomes(StageClassify, "applied"))
	assert.Equal(t, 1.0, h.outcomes(StageClassify, "skipped"))
	assert.Equal(t, 1.0, h.outcomes(StageSummarize, "applied"))
	assert.Equal(t, 1.0, h.outcomes(StageSummarize, "skipped"))
}

func TestClassifyDocumentFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.seed(t, models.StatusOCRComplete)
	h.classifier.FailWith(errors.New("quota"))

	err := h.d.ClassifyDocument(context.Background(), firestoreEvent(t, firestoreDoc(docID, models.StatusUploaded), firestoreDoc(docID, models.StatusOCRComplete)))
	assert.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))
	assert.Equal(t, 1.0, h.outcomes(StageClassify, "failed"))
}

func TestDispatcherWithoutHandler(t *testing.T) {
	d := New("", nil, nil, nil, nil)

	assert.Error(t, d.ProcessUpload(context.Background(), storageEvent(t, "documents/"+docID+"/a.png")))
	assert.Error(t, d.ClassifyDocument(context.Background(), firestoreEvent(t, nil, firestoreDoc(docID, models.StatusUploaded))))
	assert.Error(t, d.SummarizeDocument(context.Background(), firestoreEvent(t, nil, firestoreDoc(docID, models.StatusUploaded))))
}

func TestDispatcherPushesMetricsAfterEachInvocation(t *testing.T) {
	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			pushes.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	h := newHarness(t)
	h.d.Pusher = h.metrics.NewPusher(gateway.URL, "idpflow_ProcessUpload", "test")
	key := h.seed(t, models.StatusUploaded)

	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, key)))
	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, key)))
	assert.Equal(t, int32(2), pushes.Load())
}

func TestDispatcherIgnoresPushFailures(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer gateway.Close()

	h := newHarness(t)
	h.d.Pusher = h.metrics.NewPusher(gateway.URL, "idpflow_ProcessUpload", "test")
	key := h.seed(t, models.StatusUploaded)

	require.NoError(t, h.d.ProcessUpload(context.Background(), storageEvent(t, key)))
	assert.Equal(t, 1.0, h.outcomes(StageOCR, "applied"))
}
