// Package postgres provides the pgx-backed Result Store.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/formcoach/internal/domain"
	"example.com/formcoach/internal/events"
	"example.com/formcoach/internal/observability"
)

const driverName = "postgres"

// Option configures optional behaviour for the Repository.
type Option func(*Repository)

// WithOutbox makes every insert also record an analysis.completed outbox row
// in the same transaction.
func WithOutbox(enabled bool) Option {
	return func(r *Repository) {
		r.outbox = enabled
	}
}

// Repository persists analysis records and, optionally, their outbox events.
type Repository struct {
	pool   *pgxpool.Pool
	outbox bool
}

var _ domain.ResultStore = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// insertLockKey is the advisory lock taken by every analysis insert.
const insertLockKey int64 = 0x666f726d636f6163

// Insert writes the record and returns its generated id. Nothing is written when any statement fails.
func (r *Repository) Insert(ctx context.Context, record domain.WorkoutAnalysisRecord) (id string, err error) {
	defer func() {
		if err != nil {
			observability.RecordAnalysisInsertFailed(driverName)
		}
	}()

	feedback, err := json.Marshal(feedbackOrEmpty(record.Feedback))
	if err != nil {
		return "", fmt.Errorf("encode feedback: %w", err)
	}

	id = uuid.NewString()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	// Writers in other processes stamp with their own clocks; serialise inserts and
	// never store a created_at older than the newest row.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, insertLockKey); err != nil {
		return "", err
	}

	const insertAnalysis = `INSERT INTO workout_analyses (analysis_id, video_path, original_name, exercise_name, rep_count, feedback, form_score, analysis_quality, analysis_outcome, user_id, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
            GREATEST($11::timestamptz, COALESCE((SELECT MAX(created_at) FROM workout_analyses), $11::timestamptz)))
        RETURNING created_at`

	err = tx.QueryRow(ctx, insertAnalysis,
		id,
		record.VideoPath,
		record.OriginalName,
		record.ExerciseName,
		record.RepCount,
		feedback,
		record.FormScore,
		nullIfEmpty(record.AnalysisQuality),
		string(record.Outcome),
		record.UserID,
		record.CreatedAt,
	).Scan(&record.CreatedAt)
	if err != nil {
		return "", err
	}

	if r.outbox {
		if err = insertOutbox(ctx, tx, id, record); err != nil {
			return "", err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return "", err
	}
	observability.RecordAnalysisPersisted(driverName, record.CreatedAt)
	return id, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, id string, record domain.WorkoutAnalysisRecord) error {
	body, err := json.Marshal(events.AnalysisCompleted{
		AnalysisID:   id,
		ExerciseName: record.ExerciseName,
		RepCount:     record.RepCount,
		FormScore:    record.FormScore,
		Outcome:      string(record.Outcome),
		Fallback:     record.Outcome.Fallback(),
		CreatedAt:    record.CreatedAt,
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"workout_analysis",
		id,
		events.AnalysisCompletedType,
		events.AnalysisTopic,
		events.AnalysisSubject,
		id,
		body,
		fmt.Sprintf("%s:%s", id, events.AnalysisCompletedType),
	)
	return err
}

// ListRecent returns up to limit records, newest first.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.WorkoutAnalysisRecord, error) {
	if limit <= 0 {
		return []domain.WorkoutAnalysisRecord{}, nil
	}

	const query = `SELECT analysis_id::text, video_path, original_name, exercise_name, rep_count, feedback, form_score, COALESCE(analysis_quality, ''), analysis_outcome, user_id, created_at
        FROM workout_analyses
        ORDER BY created_at DESC, seq DESC
        LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.WorkoutAnalysisRecord, 0, limit)
	for rows.Next() {
		var (
			rec      domain.WorkoutAnalysisRecord
			feedback []byte
			outcome  string
		)
		if err := rows.Scan(&rec.ID, &rec.VideoPath, &rec.OriginalName, &rec.ExerciseName, &rec.RepCount, &feedback, &rec.FormScore, &rec.AnalysisQuality, &outcome, &rec.UserID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(feedback, &rec.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback for %s: %w", rec.ID, err)
		}
		rec.Outcome = domain.Outcome(outcome)
		rec.CreatedAt = rec.CreatedAt.UTC()
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func feedbackOrEmpty(feedback []string) []string {
	if feedback == nil {
		return []string{}
	}
	return feedback
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
