package syncqueue

import (
	"time"

	"github.com/bissquit/inspection-sync/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "queue_size",
			Help:      "Number of items in the sync queue at the start of the last pass",
		},
	)

	itemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "items_processed_total",
			Help:      "Queue items handled by outcome",
		},
		[]string{"outcome"},
	)

	itemsDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "items_deferred_total",
			Help:      "Queue items skipped in a pass without an attempt, by reason",
		},
		[]string{"reason"},
	)

	submitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "submit_phase_duration_seconds",
			Help:      "Duration of each remote submission phase",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"phase", "result"},
	)

	passes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Queue processing passes by result",
		},
		[]string{"result"},
	)

	engineRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "sync",
			Name:      "engine_running",
			Help:      "1 while the periodic sync timer is active",
		},
	)
)

func recordItemOutcome(outcome string) {
	itemsProcessed.WithLabelValues(outcome).Inc()
}

func recordDeferred(reason DeferReason) {
	itemsDeferred.WithLabelValues(string(reason)).Inc()
}

func recordPhase(phase string, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	submitDuration.WithLabelValues(phase, result).Observe(d.Seconds())
}

func recordPass(result string) {
	passes.WithLabelValues(result).Inc()
}

func recordRunning(running bool) {
	if running {
		engineRunning.Set(1)
		return
	}
	engineRunning.Set(0)
}
