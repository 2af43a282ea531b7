package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/perfstack/nmon-insight/internal/models"
)

const (
	// OutcomeSuccess labels analyses that produced a verdict.
	OutcomeSuccess = "success"
	// OutcomeError labels captures that failed to decode.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nmon_insight",
			Name:      "analyses_total",
			Help:      "Total number of capture analyses, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nmon_insight",
			Name:      "analysis_seconds",
			Help:      "Per-capture analysis latency in seconds.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	captureLevelTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nmon_insight",
			Name:      "capture_level_total",
			Help:      "Analyzed captures partitioned by overall level.",
		},
		[]string{"level"},
	)
)

// Register attaches nmon-insight collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		captureLevelTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one capture analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveLevel counts one analyzed capture at its overall level.
func ObserveLevel(level models.Level) {
	captureLevelTotal.WithLabelValues(string(level)).Inc()
}
