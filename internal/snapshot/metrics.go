package snapshot

import (
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/bissquit/incident-radar/internal/sources"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Duration of a full refresh cycle",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	sourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "refresh",
			Name:      "source_failures_total",
			Help:      "Feed sources that failed to fetch or parse",
		},
		[]string{"provider", "source"},
	)

	sideEffectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "refresh",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort notify/persist steps that failed",
		},
		[]string{"step"},
	)

	snapshotIncidents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "snapshot",
			Name:      "incidents",
			Help:      "Incidents in the latest snapshot by provider and severity",
		},
		[]string{"provider", "severity"},
	)

	snapshotUpdated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "snapshot",
			Name:      "updated_timestamp_seconds",
			Help:      "Unix time of the latest merged snapshot",
		},
	)
)

func recordRefresh(snap *domain.Snapshot, d time.Duration) {
	refreshDuration.Observe(d.Seconds())
	snapshotUpdated.Set(float64(snap.UpdatedAt.Unix()))

	snapshotIncidents.Reset()
	for _, p := range snap.Providers {
		for _, inc := range p.Incidents {
			snapshotIncidents.WithLabelValues(p.Provider, string(inc.Severity)).Inc()
		}
	}
}

func recordSourceFailure(src sources.Source) {
	sourceFailures.WithLabelValues(src.Provider, src.Name).Inc()
}

func recordSideEffectFailure(step string) {
	sideEffectFailures.WithLabelValues(step).Inc()
}
