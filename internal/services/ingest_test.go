package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

func TestIngestCreatesRecord(t *testing.T) {
	p := newPipeline(t)

	resp, err := p.ingest.Process(context.Background(), &models.UploadRequest{FileName: "invoice.pdf", FileType: "application/pdf"})
	require.NoError(t, err)
	assert.Equal(t, testID, resp.DocumentID)
	assert.Contains(t, resp.UploadURL, "documents%2F"+testID)

	rec := p.get(t, testID)
	assert.Equal(t, models.StatusUploaded, rec.Status)
	assert.Equal(t, "invoice.pdf", rec.FileName)
	assert.Equal(t, "application/pdf", rec.FileType)
	assert.Equal(t, "documents/"+testID+"/invoice.pdf", rec.ObjectKey)
	assert.Equal(t, rec.UploadTimestamp, rec.LastUpdated)
	assert.Equal(t, time.UTC, rec.UploadTimestamp.Location())
	assert.Empty(t, rec.ExtractedText)
}

func TestIngestRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     models.UploadRequest
		message string
	}{
		{"unsupported type", models.UploadRequest{FileName: "notes.txt", FileType: "text/plain"}, "Unsupported file type"},
		{"missing type", models.UploadRequest{FileName: "notes.pdf"}, "Unsupported file type"},
		{"missing name", models.UploadRequest{FileType: "image/png"}, "fileName is required"},
		{"blank name", models.UploadRequest{FileName: "   ", FileType: "image/png"}, "fileName is required"},
		{"path separator", models.UploadRequest{FileName: "../etc/passwd", FileType: "image/png"}, "fileName must not contain path separators"},
		{"dot dot", models.UploadRequest{FileName: "..", FileType: "image/png"}, "fileName must not contain path separators"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t)
			_, err := p.ingest.Process(context.Background(), &tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, 400, apperr.HTTPStatusCode(err))
			assert.Equal(t, tt.message, apperr.PublicMessage(err))

			_, err = p.records.Get(context.Background(), testID)
			assert.ErrorIs(t, err, apperr.ErrNotFound, "no record must be created")
		})
	}
}

func TestIngestSigningFailureCreatesNoRecord(t *testing.T) {
	p := newPipeline(t)
	p.ingest.objects = brokenObjects{}

	_, err := p.ingest.Process(context.Background(), &models.UploadRequest{FileName: "a.png", FileType: "image/png"})
	require.Error(t, err)
	assert.Equal(t, 500, apperr.HTTPStatusCode(err))

	_, err = p.records.Get(context.Background(), testID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIngestIDsAreUnique(t *testing.T) {
	p := newPipeline(t)
	p.ingest.newID = NewIngest(nil, nil, IngestConfig{}, nil).newID

	seen := map[string]bool{}
	for range 20 {
		resp, err := p.ingest.Process(context.Background(), &models.UploadRequest{FileName: "a.png", FileType: "image/png"})
		require.NoError(t, err)
		assert.False(t, seen[resp.DocumentID])
		seen[resp.DocumentID] = true
	}
}

func TestObjectKeyRoundTrip(t *testing.T) {
	key := ObjectKey(DefaultUploadPrefix, testID, "scan-2024-01.pdf")
	assert.Equal(t, "documents/"+testID+"/scan-2024-01.pdf", key)

	id, err := ParseObjectKey(DefaultUploadPrefix, key)
	require.NoError(t, err)
	assert.Equal(t, testID, id)
}

func TestParseObjectKeyRejectsForeignKeys(t *testing.T) {
	for _, key := range []string{
		"other/" + testID + "/a.pdf",
		"documents/" + testID,
		"documents/" + testID + "/",
		"documents/not-a-uuid/a.pdf",
	} {
		_, err := ParseObjectKey(DefaultUploadPrefix, key)
		assert.ErrorIs(t, err, apperr.ErrFatalParse, key)
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "", truncateRunes("abc", 0))
}

var errBroken = errors.New("broken")

type brokenObjects struct{}

func (brokenObjects) SignedUploadURL(context.Context, string, string, time.Duration) (string, error) {
	return "", errBroken
}

func (brokenObjects) Open(context.Context, string, string) (io.ReadCloser, error) {
	return nil, errBroken
}

func (brokenObjects) Exists(context.Context, string, string) (bool, error) {
	return false, errBroken
}
