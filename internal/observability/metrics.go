// Package observability holds process-wide metrics and logger construction.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	analysisPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "formcoach",
		Subsystem: "persistence",
		Name:      "last_insert_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout analysis persisted.",
	})
	analysisInsertCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcoach",
		Subsystem: "persistence",
		Name:      "inserts_total",
		Help:      "Workout analysis inserts grouped by store driver and result.",
	}, []string{"driver", "result"})
)

func init() {
	prometheus.MustRegister(analysisPersistGauge, analysisInsertCounter)
}

// RecordAnalysisPersisted updates the persistence watermark gauge.
func RecordAnalysisPersisted(driver string, ts time.Time) {
	analysisInsertCounter.WithLabelValues(driver, "ok").Inc()
	if ts.IsZero() {
		return
	}
	analysisPersistGauge.Set(float64(ts.Unix()))
}

// RecordAnalysisInsertFailed counts a failed insert for the driver.
func RecordAnalysisInsertFailed(driver string) {
	analysisInsertCounter.WithLabelValues(driver, "error").Inc()
}
