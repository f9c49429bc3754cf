package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trading",
		Subsystem: "orchestrator",
		Name:      "cycles_total",
		Help:      "Completed trading cycles.",
	})
	cyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trading",
		Subsystem: "orchestrator",
		Name:      "cycles_skipped_total",
		Help:      "Ticks dropped because a previous cycle was still running.",
	})
	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trading",
		Subsystem: "orchestrator",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one trading cycle.",
		Buckets:   prometheus.DefBuckets,
	})
	signalsScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trading",
		Subsystem: "orchestrator",
		Name:      "signals_generated_total",
		Help:      "Non-HOLD signals produced across all cycles.",
	})
	tradesPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trading",
		Subsystem: "orchestrator",
		Name:      "trades_placed_total",
		Help:      "Bracket orders accepted by the broker.",
	})
)
