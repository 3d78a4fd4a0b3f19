package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/formcoach/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(42, []byte(`{"a":1}`))

	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(42), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestAnalysisSchemaMatchesPayload(t *testing.T) {
	entry, ok := schemaCatalog[events.AnalysisCompletedType]
	require.True(t, ok)

	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal([]byte(entry.Schema), &schema))

	body, err := json.Marshal(events.AnalysisCompleted{AnalysisID: "id", CreatedAt: time.Now()})
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
		require.Contains(t, schema.Properties, key)
	}
	sort.Strings(keys)
	required := append([]string(nil), schema.Required...)
	sort.Strings(required)
	require.Equal(t, required, keys)
}

func TestBackoffDelayIsExponentialAndCapped(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)

	require.Equal(t, time.Minute, m.backoffDelay(1))
	require.Equal(t, 2*time.Minute, m.backoffDelay(2))
	require.Equal(t, 8*time.Minute, m.backoffDelay(4))
	require.Equal(t, time.Hour, m.backoffDelay(10))
	require.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestSchemaRegistryReturnsExistingID(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/subjects/workout_analysis_events-value/versions/latest", r.URL.Path)
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		_, _ = w.Write([]byte(`{"id":7,"version":1}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), events.AnalysisSubject, analysisCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Zero(t, posts.Load())
}

func TestSchemaRegistryRegistersMissingSubject(t *testing.T) {
	var registered map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":40401}`))
		case http.MethodPost:
			require.Equal(t, "/subjects/workout_analysis_events-value/versions", r.URL.Path)
			require.Equal(t, "application/vnd.schemaregistry.v1+json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
			_, _ = w.Write([]byte(`{"id":11}`))
		}
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), events.AnalysisSubject, analysisCompletedSchema)
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.Equal(t, "JSON", registered["schemaType"])
	require.Equal(t, analysisCompletedSchema, registered["schema"])
}

func TestSchemaRegistryDoesNotRegisterOnServerError(t *testing.T) {
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), events.AnalysisSubject, analysisCompletedSchema)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
	require.Zero(t, posts.Load())
}
