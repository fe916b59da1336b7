package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/idpflow/internal/memstore"
	"github.com/Lllllllleong/idpflow/internal/models"
)

const (
	testBucket = "idp-documents"
	testID     = "0b6a3c1e-4f3d-4c6b-9a51-2f7f0d0e9a11"
)

var testNow = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

// fixedClock returns a clock that advances by one second on every read.
func fixedClock() Clock {
	var mu sync.Mutex
	now := testNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type pipeline struct {
	records    *memstore.RecordStore
	objects    *memstore.ObjectStore
	detector   *memstore.Detector
	classifier *memstore.Classifier
	summarizer *memstore.Summarizer

	ingest *IngestFunction
	ocr    *OCRFunction
	cls    *ClassifierFunction
	sum    *SummarizerFunction
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		records:    memstore.NewRecordStore(),
		objects:    memstore.NewObjectStore(testBucket),
		detector:   memstore.NewDetector(memstore.InvoiceGraph()),
		classifier: memstore.NewClassifier("Invoice"),
		summarizer: memstore.NewSummarizer("Invoice INV-001 for a total of $1,250.00."),
	}
	clock := fixedClock()
	p.ingest = NewIngest(p.records, p.objects, IngestConfig{}, clock)
	p.ingest.newID = func() string { return testID }
	p.ocr = NewOCR(p.records, p.objects, p.detector, OCRConfig{}, clock)
	p.cls = NewClassifier(p.records, p.classifier, ClassifierConfig{}, clock)
	p.sum = NewSummarizer(p.records, p.summarizer, SummarizerConfig{}, clock)
	return p
}

// seed inserts a record in the given status with its object uploaded.
func (p *pipeline) seed(t *testing.T, id string, status models.Status, fileType string, data []byte) *models.DocumentRecord {
	t.Helper()
	return p.seedAt(t, id, status, fileType, data, testNow)
}

// seedAt is seed with an explicit lastUpdated.
func (p *pipeline) seedAt(t *testing.T, id string, status models.Status, fileType string, data []byte, updated time.Time) *models.DocumentRecord {
	t.Helper()
	rec := &models.DocumentRecord{
		DocumentID:      id,
		FileName:        "invoice",
		FileType:        fileType,
		ObjectKey:       ObjectKey(DefaultUploadPrefix, id, "invoice"),
		Status:          status,
		UploadTimestamp: updated,
		LastUpdated:     updated,
	}
	if status == models.StatusOCRComplete || status == models.StatusClassified {
		rec.ExtractedText = "Invoice Number: INV-001 Total: $1,250.00"
	}
	if status == models.StatusClassified {
		rec.Classification = models.CategoryInvoice
	}
	require.NoError(t, p.records.Create(context.Background(), rec))
	if data != nil {
		p.objects.Put(rec.ObjectKey, data)
	}
	return rec
}

func (p *pipeline) get(t *testing.T, id string) *models.DocumentRecord {
	t.Helper()
	rec, err := p.records.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}
