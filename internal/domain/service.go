// Package domain defines the business logic for the form-coach service.
package domain

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRecentLimit is used when callers do not request a page size.
	DefaultRecentLimit = 10
	// MaxRecentLimit caps listRecent page sizes.
	MaxRecentLimit = 100
)

// Analyzer inspects a stored video and always yields a schema-valid result.
type Analyzer interface {
	Analyze(ctx context.Context, videoPath string) (AnalysisResult, Outcome)
}

// ResultStore captures persistence operations for completed analyses.
type ResultStore interface {
	Insert(ctx context.Context, record WorkoutAnalysisRecord) (string, error)
	ListRecent(ctx context.Context, limit int) ([]WorkoutAnalysisRecord, error)
}

// Completer sends a composed prompt to a text-generation provider.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ComposeFunc builds the completion prompt for a chat turn.
type ComposeFunc func(message string, analysis *AnalysisResult) string

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service orchestrates analysis jobs and chat turns.
type Service struct {
	analyzer  Analyzer
	store     ResultStore
	completer Completer
	compose   ComposeFunc
	now       func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

// NewService constructs a Service.
func NewService(analyzer Analyzer, store ResultStore, completer Completer, compose ComposeFunc, opts ...Option) *Service {
	s := &Service{
		analyzer:  analyzer,
		store:     store,
		completer: completer,
		compose:   compose,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunJob analyzes one stored video, persists the outcome and returns the record.
// When the insert fails the returned record still carries the analysis and the
// error is a *PersistenceError.
func (s *Service) RunJob(ctx context.Context, videoPath, originalName string) (WorkoutAnalysisRecord, error) {
	if strings.TrimSpace(videoPath) == "" {
		return WorkoutAnalysisRecord{}, validationError("video path is required")
	}

	result, outcome := s.analyzer.Analyze(ctx, videoPath)

	record := WorkoutAnalysisRecord{
		VideoPath:      videoPath,
		OriginalName:   originalName,
		AnalysisResult: result.Clone(),
		Outcome:        outcome,
		CreatedAt:      s.stamp(),
	}

	id, err := s.store.Insert(ctx, record)
	if err != nil {
		return record, &PersistenceError{Err: err}
	}
	record.ID = id
	return record, nil
}

// ListRecent returns the newest analyses first.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]WorkoutAnalysisRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	return s.store.ListRecent(ctx, limit)
}

// Latest returns the most recent analysis, or nil when none exist.
func (s *Service) Latest(ctx context.Context) (*WorkoutAnalysisRecord, error) {
	records, err := s.store.ListRecent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// Chat composes the prompt for the turn and returns the provider's raw text.
func (s *Service) Chat(ctx context.Context, turn ChatTurn) (string, error) {
	if strings.TrimSpace(turn.Message) == "" {
		return "", validationError("message is required")
	}
	prompt := s.compose(turn.Message, turn.AnalysisContext)
	return s.completer.Complete(ctx, prompt)
}

// stamp returns a creation time that never goes backwards across records.
func (s *Service) stamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()

	now := s.now().UTC()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}
