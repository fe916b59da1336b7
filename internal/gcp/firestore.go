package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all functions.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RecordStore keeps document records in a Firestore collection keyed by document ID.
type RecordStore struct {
	client     *firestore.Client
	collection string
}

// NewRecordStore returns a store over the named collection.
func NewRecordStore(client *firestore.Client, collection string) *RecordStore {
	return &RecordStore{client: client, collection: collection}
}

func (s *RecordStore) doc(documentID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(documentID)
}

// Create writes a new record and fails if the ID is taken.
func (s *RecordStore) Create(ctx context.Context, rec *models.DocumentRecord) error {
	_, err := s.doc(rec.DocumentID).Create(ctx, rec)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, rec.DocumentID)
	}
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", rec.DocumentID, err)
	}
	return nil
}

// Get reads the current record.
func (s *RecordStore) Get(ctx context.Context, documentID string) (*models.DocumentRecord, error) {
	snap, err := s.doc(documentID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", documentID, err)
	}
	return decodeRecord(snap)
}

// Advance applies the transition inside a transaction so the status check and
// the field writes are one atomic step. It reports applied=false, without
// error, when the stored status is not t.From.
func (s *RecordStore) Advance(ctx context.Context, documentID string, t models.Transition, fields models.StageFields) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("%w: %s", apperr.ErrInvalidTransition, t)
	}
	ref := s.doc(documentID)

	var applied bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// The function may run more than once when the transaction is retried.
		applied = false
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, documentID)
		}
		if err != nil {
			return err
		}
		current, err := decodeRecord(snap)
		if err != nil {
			return err
		}
		if current.Status != t.From {
			return nil
		}
		applied = true
		return tx.Update(ref, stageUpdates(t.To, fields, current.LastUpdated))
	})
	if err != nil {
		return false, fmt.Errorf("transition %s for %s: %w", t, documentID, err)
	}
	return applied, nil
}

// ListStale returns records in any of statuses whose lastUpdated is before
// updatedBefore, oldest first. The query needs a composite index on
// (status, lastUpdated).
func (s *RecordStore) ListStale(ctx context.Context, statuses []models.Status, updatedBefore time.Time, limit int) ([]*models.DocumentRecord, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	q := s.client.Collection(s.collection).
		Where("status", "in", values).
		Where("lastUpdated", "<", updatedBefore).
		OrderBy("lastUpdated", firestore.Asc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	it := q.Documents(ctx)
	defer it.Stop()
	var out []*models.DocumentRecord
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query stale documents: %w", err)
		}
		rec, err := decodeRecord(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeRecord(snap *firestore.DocumentSnapshot) (*models.DocumentRecord, error) {
	var rec models.DocumentRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
	}
	if rec.DocumentID == "" {
		rec.DocumentID = snap.Ref.ID
	}
	if _, err := models.ParseStatus(string(rec.Status)); err != nil {
		return nil, errors.Join(fmt.Errorf("document %s has a corrupt status", snap.Ref.ID), err)
	}
	return &rec, nil
}

// stageUpdates lists the Firestore field updates for one transition. Fields
// that the stage does not own are left untouched.
func stageUpdates(to models.Status, fields models.StageFields, prevUpdated time.Time) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: string(to)},
		{Path: "lastUpdated", Value: models.MonotonicTime(prevUpdated, fields.LastUpdated)},
	}
	if fields.OCRResults != nil {
		updates = append(updates, firestore.Update{Path: "ocrResults", Value: *fields.OCRResults})
	}
	if fields.ExtractedText != nil {
		updates = append(updates, firestore.Update{Path: "extractedText", Value: *fields.ExtractedText})
	}
	if fields.PageCount != nil {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: *fields.PageCount})
	}
	if fields.Classification != nil {
		updates = append(updates, firestore.Update{Path: "classification", Value: string(*fields.Classification)})
	}
	if fields.Summary != nil {
		updates = append(updates, firestore.Update{Path: "summary", Value: *fields.Summary})
	}
	if fields.ErrorDetails != nil {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: *fields.ErrorDetails})
	}
	return updates
}
