//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/formcoach/internal/events"
	"example.com/formcoach/internal/testsupport"
)

func TestPersistenceHandlerAppendsEventsOnce(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)
	handler := NewPersistenceHandler(pool)

	msg := Message{
		Topic:         events.AnalysisTopic,
		Partition:     0,
		Offset:        7,
		Timestamp:     time.Now().UTC(),
		EventType:     events.AnalysisCompletedType,
		SchemaSubject: events.AnalysisSubject,
		SchemaID:      3,
		Payload:       []byte(`{"analysis_id":"a1","exercise_name":"squat"}`),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	var (
		count    int
		exercise string
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(payload->>'exercise_name') FROM analysis_event_log WHERE topic = $1 AND record_offset = $2`,
		events.AnalysisTopic, int64(7),
	).Scan(&count, &exercise))
	require.Equal(t, 1, count)
	require.Equal(t, "squat", exercise)
}
