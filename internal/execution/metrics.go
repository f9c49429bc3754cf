package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

var (
	riskRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "trading",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Trades rejected by the pre-trade gate.",
	})
	circuitLevelGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "trading",
		Subsystem: "risk",
		Name:      "circuit_level",
		Help:      "Circuit breaker level: 0 NONE, 1 YELLOW, 2 ORANGE, 3 RED.",
	})
)

func circuitLevelValue(level types.CircuitLevel) float64 {
	switch level {
	case types.CircuitYellow:
		return 1
	case types.CircuitOrange:
		return 2
	case types.CircuitRed:
		return 3
	default:
		return 0
	}
}
