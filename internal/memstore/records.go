// Package memstore provides in-memory record and object stores with the same
// guard semantics as the Firestore and Cloud Storage adapters. Change
// listeners stand in for the Firestore and bucket triggers.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/idpflow/internal/apperr"
	"github.com/Lllllllleong/idpflow/internal/models"
)

// ChangeFunc receives the old and new image of a record after each write.
// old is nil for creates.
type ChangeFunc func(old, new *models.DocumentRecord)

// RecordStore is an in-memory document record store.
type RecordStore struct {
	mu        sync.Mutex
	records   map[string]*models.DocumentRecord
	history   map[string][]models.Status
	listeners []ChangeFunc
}

// NewRecordStore returns an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]*models.DocumentRecord),
		history: make(map[string][]models.Status),
	}
}

// Subscribe registers fn for every subsequent write. Listeners run on the
// writing goroutine after the store lock is released.
func (s *RecordStore) Subscribe(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *RecordStore) Create(ctx context.Context, rec *models.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.records[rec.DocumentID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, rec.DocumentID)
	}
	stored := rec.Clone()
	s.records[rec.DocumentID] = stored
	s.history[rec.DocumentID] = append(s.history[rec.DocumentID], stored.Status)
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.notify(listeners, nil, stored.Clone())
	return nil
}

func (s *RecordStore) Get(ctx context.Context, documentID string) (*models.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, documentID)
	}
	return rec.Clone(), nil
}

func (s *RecordStore) Advance(ctx context.Context, documentID string, t models.Transition, fields models.StageFields) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("%w: %s", apperr.ErrInvalidTransition, t)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	rec, ok := s.records[documentID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s", apperr.ErrNotFound, documentID)
	}
	if rec.Status != t.From {
		s.mu.Unlock()
		return false, nil
	}
	old := rec.Clone()
	fields.Apply(rec, t.To)
	s.history[documentID] = append(s.history[documentID], rec.Status)
	updated := rec.Clone()
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	s.notify(listeners, old, updated)
	return true, nil
}

func (s *RecordStore) ListStale(ctx context.Context, statuses []models.Status, updatedBefore time.Time, limit int) ([]*models.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[models.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	s.mu.Lock()
	var out []*models.DocumentRecord
	for _, rec := range s.records {
		if wanted[rec.Status] && rec.LastUpdated.Before(updatedBefore) {
			out = append(out, rec.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].LastUpdated.Before(out[j].LastUpdated)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// History returns every status the record has been written with, in order.
func (s *RecordStore) History(documentID string) []models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Status(nil), s.history[documentID]...)
}

// Writes returns how many writes a record has seen, including its creation.
func (s *RecordStore) Writes(documentID string) int {
	return len(s.History(documentID))
}

func (s *RecordStore) snapshotListeners() []ChangeFunc {
	return append([]ChangeFunc(nil), s.listeners...)
}

func (s *RecordStore) notify(listeners []ChangeFunc, old, updated *models.DocumentRecord) {
	for _, fn := range listeners {
		fn(old.Clone(), updated.Clone())
	}
}
