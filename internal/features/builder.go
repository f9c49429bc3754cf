// Package features projects indicators and market context into the fixed
// feature vector consumed by the signal scorer.
package features

import (
	"math"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// Names is the fixed, ordered feature set the classifier was trained on.
var Names = []string{
	// Price-based (10)
	"return_1d", "return_5d", "return_10d", "return_20d",
	"high_low_ratio", "close_open_ratio",
	"price_vs_sma20", "price_vs_sma50", "price_vs_sma200",
	"gap_percentage",
	// Technical indicators (20)
	"rsi_14", "macd_signal_diff", "macd_histogram",
	"bb_position", "adx_14", "cci_20", "stoch_k", "stoch_d",
	"obv_slope", "vwap_diff", "atr_14", "atr_ratio",
	"williams_r", "parabolic_sar_signal",
	"ema12_ema26_cross", "sma20_sma50_cross",
	"volume_vs_sma20", "volume_ratio_5d",
	"keltner_position", "roc_10",
	// Multi-timeframe (5)
	"trend_alignment_score", "bb_squeeze",
	"volume_breakout_score", "momentum_divergence",
	"rsi_macd_agreement",
	// Market context (3)
	"spy_return_1d", "vix_level", "vix_change",
	// Derived (5)
	"volume_price_confirmation",
	"trend_strength_composite",
	"mean_reversion_score",
	"breakout_probability",
	"support_resistance_proximity",
}

// Build projects indicator values and market context into the feature set.
// Missing inputs receive typed defaults so the vector is always complete.
// Returns nil when no indicators are available.
func Build(indicators map[string]float64, ctx *types.MarketContext) map[string]float64 {
	if len(indicators) == 0 {
		return nil
	}

	get := func(name string, def float64) float64 {
		if v, ok := indicators[name]; ok && !math.IsNaN(v) {
			return v
		}
		return def
	}
	// Zero reads as missing for ratios the indicator engine omits entirely
	// when the window is too short.
	getNonZero := func(name string, def float64) float64 {
		if v, ok := indicators[name]; ok && !math.IsNaN(v) && v != 0 {
			return v
		}
		return def
	}

	f := make(map[string]float64, len(Names))

	// Price-based
	f["return_1d"] = get("return_1d", 0)
	f["return_5d"] = get("return_5d", 0)
	f["return_10d"] = get("return_10d", 0)
	f["return_20d"] = get("return_20d", 0)
	f["high_low_ratio"] = get("high_low_ratio", 1)
	f["close_open_ratio"] = get("close_open_ratio", 1)
	f["price_vs_sma20"] = get("price_vs_sma20", 1)
	f["price_vs_sma50"] = getNonZero("price_vs_sma50", 1)
	f["price_vs_sma200"] = getNonZero("price_vs_sma200", 1)
	f["gap_percentage"] = get("gap_percentage", 0)

	// Technical
	f["rsi_14"] = get("rsi_14", 50)
	macd := get("macd", 0)
	macdSignal := get("macd_signal", 0)
	if macd != 0 && macdSignal != 0 {
		f["macd_signal_diff"] = macd - macdSignal
	} else {
		f["macd_signal_diff"] = 0
	}
	f["macd_histogram"] = get("macd_histogram", 0)
	f["bb_position"] = get("bb_position", 0.5)
	f["adx_14"] = get("adx_14", 20)
	f["cci_20"] = get("cci_20", 0)
	f["stoch_k"] = get("stoch_k", 50)
	f["stoch_d"] = get("stoch_d", 50)
	f["obv_slope"] = get("obv_slope", 0)
	f["vwap_diff"] = get("vwap_diff", 0)
	f["atr_14"] = get("atr_14", 0)
	f["atr_ratio"] = get("atr_ratio", 0.02)
	f["williams_r"] = get("williams_r", -50)
	f["parabolic_sar_signal"] = get("parabolic_sar_signal", 0)
	f["ema12_ema26_cross"] = get("ema12_ema26_cross", 0)
	f["sma20_sma50_cross"] = get("sma20_sma50_cross", 0)
	f["volume_vs_sma20"] = get("volume_vs_sma20", 1)
	f["volume_ratio_5d"] = get("volume_ratio_5d", 1)
	f["keltner_position"] = get("keltner_position", 0.5)
	f["roc_10"] = get("roc_10", 0)

	// Multi-timeframe / composite
	f["rsi_macd_agreement"] = get("rsi_macd_agreement", 0)
	f["volume_price_confirmation"] = get("volume_price_confirmation", 0)
	f["bb_squeeze"] = get("bb_squeeze", 0)

	f["trend_alignment_score"] = (sign(f["ema12_ema26_cross"]) +
		sign(f["sma20_sma50_cross"]) +
		sign(f["macd_histogram"]) +
		sign(f["parabolic_sar_signal"])) / 4

	f["volume_breakout_score"] = math.Min(f["volume_vs_sma20"]/2, 1)

	rsiBull := f["rsi_14"] > 50
	priceBull := f["return_5d"] > 0
	if rsiBull == priceBull {
		f["momentum_divergence"] = 0
	} else {
		f["momentum_divergence"] = 1
	}

	// Market context
	if ctx != nil {
		f["spy_return_1d"] = ctx.SPYReturn
		if ctx.VIX != 0 {
			f["vix_level"] = ctx.VIX
		} else {
			f["vix_level"] = 20
		}
		f["vix_change"] = ctx.VIXChange
	} else {
		f["spy_return_1d"] = 0
		f["vix_level"] = 20
		f["vix_change"] = 0
	}

	// Derived
	f["trend_strength_composite"] = math.Abs(f["adx_14"]/50) * f["trend_alignment_score"]
	f["mean_reversion_score"] = math.Abs(1 - f["price_vs_sma20"])
	f["breakout_probability"] = math.Min(f["volume_breakout_score"]*math.Abs(f["bb_position"]-0.5)*2, 1)
	f["support_resistance_proximity"] = math.Min(f["bb_position"], 1-f["bb_position"])

	for k, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			f[k] = 0
		}
	}
	return f
}

// Vector orders the feature map by Names for model input.
func Vector(f map[string]float64) []float64 {
	out := make([]float64, len(Names))
	for i, name := range Names {
		out[i] = f[name]
	}
	return out
}

// positive counts as +1, everything else as -1.
func sign(v float64) float64 {
	if v > 0 {
		return 1
	}
	return -1
}
