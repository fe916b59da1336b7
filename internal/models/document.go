package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Accepted upload content types.
const (
	FileTypeJPEG = "image/jpeg"
	FileTypePNG  = "image/png"
	FileTypePDF  = "application/pdf"
)

var acceptedFileTypes = map[string]struct{}{
	FileTypeJPEG: {},
	FileTypePNG:  {},
	FileTypePDF:  {},
}

// IsAcceptedFileType reports whether uploads of this content type are processed.
func IsAcceptedFileType(fileType string) bool {
	_, ok := acceptedFileTypes[fileType]
	return ok
}

// DocumentRecord is the per-document record in Firestore. The document ID is
// DocumentID; every stage reads and conditionally updates it.
type DocumentRecord struct {
	DocumentID      string    `firestore:"documentId"`
	FileName        string    `firestore:"fileName"`
	FileType        string    `firestore:"fileType"`
	ObjectKey       string    `firestore:"objectKey"`
	Status          Status    `firestore:"status"`
	OCRResults      string    `firestore:"ocrResults,omitempty"` // JSON-encoded key/value mapping
	ExtractedText   string    `firestore:"extractedText,omitempty"`
	PageCount       int       `firestore:"pageCount,omitempty"`
	Classification  Category  `firestore:"classification,omitempty"`
	Summary         string    `firestore:"summary,omitempty"`
	ErrorDetails    string    `firestore:"errorDetails,omitempty"`
	UploadTimestamp time.Time `firestore:"uploadTimestamp"`
	LastUpdated     time.Time `firestore:"lastUpdated"`
}

// Clone returns a copy safe to hand to another goroutine.
func (d *DocumentRecord) Clone() *DocumentRecord {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// StageFields are the fields a stage writes together with its status transition.
// Nil pointers are left untouched; LastUpdated is always written.
type StageFields struct {
	OCRResults     *string
	ExtractedText  *string
	PageCount      *int
	Classification *Category
	Summary        *string
	ErrorDetails   *string
	LastUpdated    time.Time
}

// Apply writes the set fields and the new status onto rec. LastUpdated never
// moves backwards.
func (f StageFields) Apply(rec *DocumentRecord, to Status) {
	rec.Status = to
	if f.OCRResults != nil {
		rec.OCRResults = *f.OCRResults
	}
	if f.ExtractedText != nil {
		rec.ExtractedText = *f.ExtractedText
	}
	if f.PageCount != nil {
		rec.PageCount = *f.PageCount
	}
	if f.Classification != nil {
		rec.Classification = *f.Classification
	}
	if f.Summary != nil {
		rec.Summary = *f.Summary
	}
	if f.ErrorDetails != nil {
		rec.ErrorDetails = *f.ErrorDetails
	}
	rec.LastUpdated = MonotonicTime(rec.LastUpdated, f.LastUpdated)
}

// MonotonicTime returns next unless it is before prev.
func MonotonicTime(prev, next time.Time) time.Time {
	if next.Before(prev) {
		return prev
	}
	return next
}

// EncodeKeyValues serializes the OCR key/value mapping for storage.
func EncodeKeyValues(kv map[string]string) (string, error) {
	if kv == nil {
		kv = map[string]string{}
	}
	b, err := json.Marshal(kv)
	if err != nil {
		return "", fmt.Errorf("failed to encode key/value pairs: %w", err)
	}
	return string(b), nil
}

// DecodeKeyValues parses a stored mapping. An empty string means no OCR results yet.
func DecodeKeyValues(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	kv := map[string]string{}
	if err := json.Unmarshal([]byte(s), &kv); err != nil {
		return nil, fmt.Errorf("failed to decode key/value pairs: %w", err)
	}
	return kv, nil
}
