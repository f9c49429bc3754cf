package signals

import (
	"math"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// Heuristic scores a feature set with a weighted combination of technical
// readings. Used whenever no trained classifier is on disk.
func Heuristic(f map[string]float64) (types.Action, float64) {
	score := 0.0
	weightsTotal := 0.0

	get := func(name string, def float64) float64 {
		if v, ok := f[name]; ok {
			return v
		}
		return def
	}

	rsi := get("rsi_14", 50)
	switch {
	case rsi < 30:
		score += 2.0 // oversold
	case rsi > 70:
		score -= 2.0 // overbought
	case rsi < 45:
		score += 0.5
	case rsi > 55:
		score -= 0.5
	}
	weightsTotal += 2.0

	if get("macd_histogram", 0) > 0 {
		score += 1.0
	} else {
		score -= 1.0
	}
	weightsTotal += 1.0

	score += get("trend_alignment_score", 0) * 2.0
	weightsTotal += 2.0

	score += get("volume_price_confirmation", 0) * 1.0
	weightsTotal += 1.0

	bbPos := get("bb_position", 0.5)
	switch {
	case bbPos < 0.2:
		score += 1.5 // near lower band
	case bbPos > 0.8:
		score -= 1.5 // near upper band
	}
	weightsTotal += 1.5

	normalized := 0.0
	if weightsTotal > 0 {
		normalized = score / weightsTotal
	}

	switch {
	case normalized > 0.3:
		return types.ActionBuy, math.Min(0.5+normalized*0.3, 0.85)
	case normalized < -0.3:
		return types.ActionSell, math.Min(0.5+math.Abs(normalized)*0.3, 0.85)
	default:
		return types.ActionHold, 0.5 + (1-math.Abs(normalized))*0.2
	}
}
