package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// IngestConfig holds configuration for the upload stage.
type IngestConfig struct {
	UploadPrefix string
	UploadURLTTL time.Duration
}

// IngestFunction creates document records and issues upload URLs.
type IngestFunction struct {
	records RecordStore
	objects ObjectStore
	config  IngestConfig
	now     Clock
	newID   func() string
}

// NewIngest creates a new IngestFunction instance.
func NewIngest(records RecordStore, objects ObjectStore, config IngestConfig, now Clock) *IngestFunction {
	if config.UploadPrefix == "" {
		config.UploadPrefix = DefaultUploadPrefix
	}
	if config.UploadURLTTL <= 0 {
		config.UploadURLTTL = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &IngestFunction{
		records: records,
		objects: objects,
		config:  config,
		now:     now,
		newID:   uuid.NewString,
	}
}

// Process validates the request, issues a signed upload URL and creates the
// record in status uploaded. Nothing is written when validation fails.
func (f *IngestFunction) Process(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	if !models.IsAcceptedFileType(req.FileType) {
		return nil, apperr.Validation("Unsupported file type")
	}
	if err := validateFileName(req.FileName); err != nil {
		return nil, err
	}

	documentID := f.newID()
	objectKey := ObjectKey(f.config.UploadPrefix, documentID, req.FileName)
	logCtx := slog.With("documentId", documentID, "stage", "ingest", "fileType", req.FileType)

	uploadURL, err := f.objects.SignedUploadURL(ctx, objectKey, req.FileType, f.config.UploadURLTTL)
	if err != nil {
		logCtx.Error("Failed to sign upload URL", "error", err, "objectKey", objectKey)
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}

	now := f.now().UTC()
	rec := &models.DocumentRecord{
		DocumentID:      documentID,
		FileName:        req.FileName,
		FileType:        req.FileType,
		ObjectKey:       objectKey,
		Status:          models.StatusUploaded,
		UploadTimestamp: now,
		LastUpdated:     now,
	}
	if err := f.records.Create(ctx, rec); err != nil {
		logCtx.Error("Failed to create document record", "error", err)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	logCtx.Info("Document registered, awaiting upload.", "objectKey", objectKey)
	return &models.UploadResponse{DocumentID: documentID, UploadURL: uploadURL}, nil
}
