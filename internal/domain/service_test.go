package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunJobPersistsAnalyzerResult(t *testing.T) {
	analyzer := &stubAnalyzer{result: AnalysisResult{
		ExerciseName: "bench press",
		RepCount:     5,
		Feedback:     []string{"lower bar slower"},
		FormScore:    9.1,
	}, outcome: OutcomeOK}
	store := &stubStore{id: "rec-1"}
	service := NewService(analyzer, store, nil, nil)

	record, err := service.RunJob(context.Background(), "/uploads/a.mp4", "bench.mp4")
	require.NoError(t, err)

	require.Equal(t, "rec-1", record.ID)
	require.Equal(t, analyzer.result, record.AnalysisResult)
	require.Equal(t, []string{"/uploads/a.mp4"}, analyzer.paths)
	require.Len(t, store.inserted, 1)
	require.Equal(t, "bench.mp4", store.inserted[0].OriginalName)
	require.Equal(t, OutcomeOK, store.inserted[0].Outcome)
	require.Nil(t, store.inserted[0].UserID)
	require.False(t, store.inserted[0].CreatedAt.IsZero())
}

func TestRunJobRejectsMissingPathBeforeAnalysis(t *testing.T) {
	analyzer := &stubAnalyzer{}
	store := &stubStore{}
	service := NewService(analyzer, store, nil, nil)

	_, err := service.RunJob(context.Background(), "  ", "clip.mp4")
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, analyzer.paths)
	require.Empty(t, store.inserted)
}

func TestRunJobSurfacesPersistenceErrorWithResult(t *testing.T) {
	analyzer := &stubAnalyzer{result: AnalysisResult{ExerciseName: "squat", RepCount: 12, FormScore: 7.5}, outcome: OutcomeProcessFailed}
	store := &stubStore{err: errors.New("connection refused")}
	service := NewService(analyzer, store, nil, nil)

	record, err := service.RunJob(context.Background(), "/uploads/b.mp4", "b.mp4")
	require.ErrorIs(t, err, ErrPersistence)

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.EqualError(t, persistErr.Err, "connection refused")
	require.Equal(t, "squat", record.ExerciseName)
	require.Equal(t, 12, record.RepCount)
	require.Empty(t, record.ID)
}

func TestRunJobStampsAreNonDecreasing(t *testing.T) {
	base := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	call := 0
	clock := func() time.Time {
		ts := ticks[call]
		call++
		return ts
	}

	store := &stubStore{}
	service := NewService(&stubAnalyzer{outcome: OutcomeOK}, store, nil, nil, WithClock(clock))

	for i := 0; i < len(ticks); i++ {
		_, err := service.RunJob(context.Background(), "/uploads/c.mp4", "c.mp4")
		require.NoError(t, err)
	}

	require.Equal(t, base, store.inserted[0].CreatedAt)
	require.Equal(t, base, store.inserted[1].CreatedAt)
	require.Equal(t, base.Add(time.Second), store.inserted[2].CreatedAt)
}

func TestListRecentClampsLimit(t *testing.T) {
	store := &stubStore{}
	service := NewService(nil, store, nil, nil)

	_, err := service.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	_, err = service.ListRecent(context.Background(), 5000)
	require.NoError(t, err)

	require.Equal(t, []int{DefaultRecentLimit, MaxRecentLimit}, store.limits)
}

func TestChatPassesComposedPrompt(t *testing.T) {
	completer := &stubCompleter{reply: "Push your knees out."}
	var gotMessage string
	var gotContext *AnalysisResult
	compose := func(message string, analysis *AnalysisResult) string {
		gotMessage = message
		gotContext = analysis
		return "PROMPT:" + message
	}
	service := NewService(nil, nil, completer, compose)

	ctxResult := &AnalysisResult{ExerciseName: "squat", RepCount: 12, FormScore: 7.5}
	reply, err := service.Chat(context.Background(), ChatTurn{Message: "how do I fix my knees?", AnalysisContext: ctxResult})
	require.NoError(t, err)

	require.Equal(t, "Push your knees out.", reply)
	require.Equal(t, "how do I fix my knees?", gotMessage)
	require.Same(t, ctxResult, gotContext)
	require.Equal(t, []string{"PROMPT:how do I fix my knees?"}, completer.prompts)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	completer := &stubCompleter{}
	service := NewService(nil, nil, completer, func(string, *AnalysisResult) string { return "" })

	_, err := service.Chat(context.Background(), ChatTurn{Message: "   "})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, completer.prompts)
}

func TestChatPropagatesCompletionErrors(t *testing.T) {
	completer := &stubCompleter{err: ErrInvalidCompletionResponse}
	service := NewService(nil, nil, completer, func(m string, _ *AnalysisResult) string { return m })

	_, err := service.Chat(context.Background(), ChatTurn{Message: "hi"})
	require.ErrorIs(t, err, ErrInvalidCompletionResponse)
}

type stubAnalyzer struct {
	result  AnalysisResult
	outcome Outcome
	paths   []string
}

func (s *stubAnalyzer) Analyze(ctx context.Context, videoPath string) (AnalysisResult, Outcome) {
	s.paths = append(s.paths, videoPath)
	return s.result.Clone(), s.outcome
}

type stubStore struct {
	id       string
	err      error
	inserted []WorkoutAnalysisRecord
	limits   []int
}

func (s *stubStore) Insert(ctx context.Context, record WorkoutAnalysisRecord) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.inserted = append(s.inserted, record)
	return s.id, nil
}

func (s *stubStore) ListRecent(ctx context.Context, limit int) ([]WorkoutAnalysisRecord, error) {
	s.limits = append(s.limits, limit)
	return nil, nil
}

type stubCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}
