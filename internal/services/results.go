package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// ResultsQuery projects a document record into the public response shape.
type ResultsQuery struct {
	records RecordStore
}

// NewResultsQuery creates a new ResultsQuery.
func NewResultsQuery(records RecordStore) *ResultsQuery {
	return &ResultsQuery{records: records}
}

// Get returns the current state of a document. apperr.ErrNotFound is passed
// through unchanged when the record does not exist.
func (q *ResultsQuery) Get(ctx context.Context, documentID string) (*models.ResultsResponse, error) {
	rec, err := q.records.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return Project(rec)
}

// Project converts a stored record into the API response.
func Project(rec *models.DocumentRecord) (*models.ResultsResponse, error) {
	kv, err := models.DecodeKeyValues(rec.OCRResults)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", rec.DocumentID, err)
	}
	res := &models.ResultsResponse{
		DocumentID:      rec.DocumentID,
		FileName:        rec.FileName,
		FileType:        rec.FileType,
		Status:          rec.Status,
		UploadTimestamp: rec.UploadTimestamp.UTC().Format(time.RFC3339Nano),
		LastUpdated:     rec.LastUpdated.UTC().Format(time.RFC3339Nano),
		OCRResults:      kv,
		ExtractedText:   nonEmpty(rec.ExtractedText),
		Classification:  nonEmpty(string(rec.Classification)),
		Summary:         nonEmpty(rec.Summary),
		ErrorDetails:    nonEmpty(rec.ErrorDetails),
	}
	if rec.PageCount > 0 {
		res.PageCount = ptr(rec.PageCount)
	}
	return res, nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
