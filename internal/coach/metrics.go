package coach

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/formcoach/internal/domain"
)

var (
	chatRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "chat",
		Name:      "requests_total",
		Help:      "Completion requests grouped by provider and result.",
	}, []string{"provider", "result"})

	chatDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "formcoach",
		Subsystem: "chat",
		Name:      "request_duration_seconds",
		Help:      "Round-trip time of completion requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
)

func init() {
	prometheus.MustRegister(chatRequests, chatDuration)
}

func recordRequest(provider string, start time.Time, err error) {
	chatDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	chatRequests.WithLabelValues(provider, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &statusErr):
		return "status_error"
	case errors.Is(err, domain.ErrInvalidCompletionResponse):
		return "invalid_response"
	default:
		return "transport_error"
	}
}
