// Package memory provides an in-process Result Store for tests and dependency-free runs.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"example.com/formcoach/internal/domain"
	"example.com/formcoach/internal/observability"
)

const driverName = "memory"

type entry struct {
	seq    int64
	record domain.WorkoutAnalysisRecord
}

// Store keeps records in memory. Records are copied on the way in and out.
type Store struct {
	mu      sync.RWMutex
	nextSeq int64
	entries []entry
}

var _ domain.ResultStore = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Insert implements domain.ResultStore.
func (s *Store) Insert(ctx context.Context, record domain.WorkoutAnalysisRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		observability.RecordAnalysisInsertFailed(driverName)
		return "", err
	}

	record.ID = uuid.NewString()
	record.AnalysisResult = record.AnalysisResult.Clone()

	s.mu.Lock()
	s.nextSeq++
	s.entries = append(s.entries, entry{seq: s.nextSeq, record: record})
	s.mu.Unlock()

	observability.RecordAnalysisPersisted(driverName, record.CreatedAt)
	return record.ID, nil
}

// ListRecent implements domain.ResultStore.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.WorkoutAnalysisRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.WorkoutAnalysisRecord{}, nil
	}

	s.mu.RLock()
	snapshot := slices.Clone(s.entries)
	s.mu.RUnlock()

	slices.SortFunc(snapshot, func(a, b entry) int {
		if c := b.record.CreatedAt.Compare(a.record.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	if len(snapshot) > limit {
		snapshot = snapshot[:limit]
	}
	out := make([]domain.WorkoutAnalysisRecord, 0, len(snapshot))
	for _, e := range snapshot {
		rec := e.record
		rec.AnalysisResult = rec.AnalysisResult.Clone()
		out = append(out, rec)
	}
	return out, nil
}

// Len reports how many records have been inserted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
