//go:build integration

package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/formcoach/internal/domain"
	"example.com/formcoach/internal/events"
	"example.com/formcoach/internal/persistence/postgres"
	"example.com/formcoach/internal/testsupport"
)

func TestDispatcherPublishesAnalysisEvents(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	id := seedAnalysis(t, ctx, pool)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, events.AnalysisTopic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	msg := producer.writes[0].messages[0]
	require.Equal(t, id, string(msg.Key))
	require.Equal(t, byte(0), msg.Value[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(msg.Value[1:5]))
	require.Contains(t, msg.Headers, kafka.Header{Key: HeaderEventType, Value: []byte(events.AnalysisCompletedType)})
	require.Contains(t, msg.Headers, kafka.Header{Key: HeaderSchemaSubject, Value: []byte(events.AnalysisSubject)})

	var event events.AnalysisCompleted
	require.NoError(t, json.Unmarshal(msg.Value[5:], &event))
	require.Equal(t, id, event.AnalysisID)
	require.Equal(t, "squat", event.ExerciseName)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published rows are not delivered twice")
}

func TestDispatcherCachesSchemaIDsAcrossBatch(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	seedAnalysis(t, ctx, pool)
	seedAnalysis(t, ctx, pool)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
}

func TestDispatcherRoutesFailedBatchToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	id := seedAnalysis(t, ctx, pool)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(events.AnalysisTopic))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(events.AnalysisTopic)), 0.0001)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE aggregate_id = $1`, id).Scan(&reason))
	require.Contains(t, reason, "kafka write failed")
}

func TestDispatcherUnknownEventTypeMovesToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	var eventID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ('workout_analysis', 'x', 'analysis.unknown', $1, $2, 'x', '{}') RETURNING event_id`,
		events.AnalysisTopic, events.AnalysisSubject,
	).Scan(&eventID))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=analysis.unknown")
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	seedAnalysis(t, ctx, pool)
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 3}, 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))

	manager := NewDLQManager(pool, 1, time.Minute)
	processed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	var dlqRows, pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqRows))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Zero(t, dlqRows)
	require.Equal(t, 1, pending)

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, producer, &stubRegistry{id: 3}, 10*time.Millisecond, 5).processBatch(ctx))
	require.Len(t, producer.writes, 1)

	_, err = pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
         VALUES (1, $1, $2, '{}', 'exhausted', 'workout_analysis', 'y', $3, 'y', 1, NOW())`,
		events.AnalysisCompletedType, events.AnalysisTopic, events.AnalysisSubject,
	)
	require.NoError(t, err)

	processed, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, processed)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
	require.Zero(t, testutil.CollectAndCount(dlqBacklogGauge))
	require.Zero(t, testutil.CollectAndCount(dlqOldestGauge))
}

func TestDLQManagerReportsPendingBacklogPerTopic(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	_, err := pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at, created_at)
         VALUES (7, $1, $2, '{}', 'broker down', 'workout_analysis', 'z', $3, 'z', 1, NOW() + INTERVAL '1 hour', NOW() - INTERVAL '10 minutes')`,
		events.AnalysisCompletedType, events.AnalysisTopic, events.AnalysisSubject,
	)
	require.NoError(t, err)

	processed, err := NewDLQManager(pool, 5, time.Minute).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, processed)

	require.Equal(t, 1.0, testutil.ToFloat64(dlqBacklogGauge.WithLabelValues(events.AnalysisTopic)))
	require.GreaterOrEqual(t, testutil.ToFloat64(dlqOldestGauge.WithLabelValues(events.AnalysisTopic)), 600.0)
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	calls []string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, subject)
	return s.id, nil
}

func seedAnalysis(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()

	repo := postgres.NewRepository(pool, postgres.WithOutbox(true))
	id, err := repo.Insert(ctx, domain.WorkoutAnalysisRecord{
		VideoPath:    "/uploads/seed.mp4",
		OriginalName: "seed.mp4",
		AnalysisResult: domain.AnalysisResult{
			ExerciseName: "squat",
			RepCount:     12,
			Feedback:     []string{"Keep your back straight", "Don't let knees go inward"},
			FormScore:    7.5,
		},
		Outcome:   domain.OutcomeProcessFailed,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	return metric.GetHistogram().GetSampleCount()
}
