// Package sqlite provides a single-file Result Store for local runs and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"example.com/formcoach/internal/domain"
	"example.com/formcoach/internal/observability"
)

const driverName = "sqlite"

//go:embed schema.sql
var schemaSQL string

// Store persists analysis records in a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ domain.ResultStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers; WAL still lets readers proceed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes the record and returns its generated id.
func (s *Store) Insert(ctx context.Context, record domain.WorkoutAnalysisRecord) (string, error) {
	feedback := record.Feedback
	if feedback == nil {
		feedback = []string{}
	}
	encoded, err := json.Marshal(feedback)
	if err != nil {
		observability.RecordAnalysisInsertFailed(driverName)
		return "", fmt.Errorf("encode feedback: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workout_analyses (analysis_id, video_path, original_name, exercise_name, rep_count, feedback, form_score, analysis_quality, analysis_outcome, user_id, created_at)
         VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		id,
		record.VideoPath,
		record.OriginalName,
		record.ExerciseName,
		record.RepCount,
		string(encoded),
		record.FormScore,
		nullString(record.AnalysisQuality),
		string(record.Outcome),
		record.UserID,
		record.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		observability.RecordAnalysisInsertFailed(driverName)
		return "", err
	}

	observability.RecordAnalysisPersisted(driverName, record.CreatedAt)
	return id, nil
}

// ListRecent returns up to limit records, newest first. Ties keep reverse insertion order.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]domain.WorkoutAnalysisRecord, error) {
	if limit <= 0 {
		return []domain.WorkoutAnalysisRecord{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, video_path, original_name, exercise_name, rep_count, feedback, form_score, COALESCE(analysis_quality, ''), analysis_outcome, user_id, created_at
         FROM workout_analyses
         ORDER BY created_at DESC, rowid DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.WorkoutAnalysisRecord, 0, limit)
	for rows.Next() {
		var (
			rec       domain.WorkoutAnalysisRecord
			feedback  string
			outcome   string
			userID    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.VideoPath, &rec.OriginalName, &rec.ExerciseName, &rec.RepCount, &feedback, &rec.FormScore, &rec.AnalysisQuality, &outcome, &userID, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(feedback), &rec.Feedback); err != nil {
			return nil, fmt.Errorf("decode feedback for %s: %w", rec.ID, err)
		}
		rec.Outcome = domain.Outcome(outcome)
		if userID.Valid {
			rec.UserID = &userID.String
		}
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		results = append(results, rec)
	}
	return results, rows.Err()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
