// Package indicators derives the technical indicator set from bar history.
package indicators

import (
	"math"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// MinBars is the minimum history needed for a full computation.
const MinBars = 50

// Window is the bar history window the engine feeds into Compute.
const Window = 250

// Compute derives all indicator values for the latest bar from bars ordered
// oldest first. Returns nil when fewer than MinBars are available. Values
// that are undefined for the window (NaN, Inf, or insufficient history) are
// absent from the result.
func Compute(bars []types.Bar) map[string]float64 {
	n := len(bars)
	if n < MinBars {
		return nil
	}

	closes := make([]float64, n)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		opens[i] = b.Open
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = float64(b.Volume)
	}

	out := map[string]float64{}
	set := func(name string, v float64) {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[name] = v
		}
	}

	last := n - 1
	close := closes[last]

	// Trend
	sma20, hasSMA20 := sma(closes, 20)
	set("sma_20", sma20)
	sma50, hasSMA50 := sma(closes, 50)
	if hasSMA50 {
		set("sma_50", sma50)
	}
	sma200, hasSMA200 := sma(closes, 200)
	if hasSMA200 {
		set("sma_200", sma200)
	}

	ema12 := emaSeries(closes, 12)
	ema26 := emaSeries(closes, 26)
	set("ema_12", ema12[last])
	set("ema_26", ema26[last])

	macdSeries := make([]float64, n)
	for i := range macdSeries {
		macdSeries[i] = ema12[i] - ema26[i]
	}
	signalSeries := emaSeries(macdSeries, 9)
	macd := macdSeries[last]
	macdSignal := signalSeries[last]
	set("macd", macd)
	set("macd_signal", macdSignal)
	set("macd_histogram", macd-macdSignal)

	set("adx_14", adx(highs, lows, closes, 14))

	sar := parabolicSAR(highs, lows)
	set("parabolic_sar", sar)
	if close > sar {
		set("parabolic_sar_signal", 1)
	} else {
		set("parabolic_sar_signal", -1)
	}

	// Momentum
	rsi := wilderRSI(closes, 14)
	set("rsi_14", rsi)

	stochK, stochD := stochastic(highs, lows, closes, 14, 3)
	set("stoch_k", stochK)
	set("stoch_d", stochD)
	set("williams_r", williamsR(highs, lows, closes, 14))
	set("cci_20", cci(highs, lows, closes, 20))
	set("roc_10", roc(closes, 10))

	// Volatility
	bbMid, bbHigh, bbLow := bollinger(closes, 20, 2)
	set("bb_high", bbHigh)
	set("bb_low", bbLow)
	set("bb_mid", bbMid)
	set("bb_position", bandPosition(close, bbLow, bbHigh))
	if hasSMA20 && sma20 != 0 {
		set("bb_squeeze", (bbHigh-bbLow)/sma20)
	} else {
		set("bb_squeeze", 0)
	}

	atr := wilderATR(highs, lows, closes, 14)
	set("atr_14", atr)
	if close != 0 {
		set("atr_ratio", atr/close)
	} else {
		set("atr_ratio", 0)
	}

	typical := make([]float64, n)
	for i := range typical {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	kcMid := emaSeries(typical, 20)[last]
	set("keltner_position", bandPosition(close, kcMid-2*atr, kcMid+2*atr))

	// Volume
	obvSeries := obv(closes, volumes)
	set("obv", obvSeries[last])
	if n >= 6 {
		set("obv_slope", obvSeries[last]-obvSeries[last-5])
	} else {
		set("obv_slope", 0)
	}

	vwap := cumulativeVWAP(typical, volumes)
	if math.IsNaN(vwap) {
		vwap = close
	}
	set("vwap", vwap)
	set("vwap_diff", close-vwap)

	set("volume_vs_sma20", volumeRatio(volumes, 20))
	set("volume_ratio_5d", volumeRatio(volumes, 5))

	// Raw latest bar
	set("open", opens[last])
	set("high", highs[last])
	set("low", lows[last])
	set("close", close)
	set("volume", volumes[last])

	// Returns and ratios
	set("return_1d", pctChange(closes, 1))
	set("return_5d", pctChange(closes, 5))
	set("return_10d", pctChange(closes, 10))
	set("return_20d", pctChange(closes, 20))
	if lows[last] > 0 {
		set("high_low_ratio", highs[last]/lows[last])
	} else {
		set("high_low_ratio", 1)
	}
	if opens[last] > 0 {
		set("close_open_ratio", close/opens[last])
	} else {
		set("close_open_ratio", 1)
	}
	if hasSMA20 && sma20 != 0 {
		set("price_vs_sma20", close/sma20)
	} else {
		set("price_vs_sma20", 1)
	}
	if hasSMA50 && sma50 != 0 {
		set("price_vs_sma50", close/sma50)
	}
	if hasSMA200 && sma200 != 0 {
		set("price_vs_sma200", close/sma200)
	}
	if n >= 2 && closes[last-1] != 0 {
		set("gap_percentage", (opens[last]-closes[last-1])/closes[last-1])
	} else {
		set("gap_percentage", 0)
	}

	// Cross flags
	if ema12[last] > ema26[last] {
		set("ema12_ema26_cross", 1)
	} else {
		set("ema12_ema26_cross", -1)
	}
	crossSMA50 := sma50
	if !hasSMA50 {
		crossSMA50 = sma20
	}
	if sma20 > crossSMA50 {
		set("sma20_sma50_cross", 1)
	} else {
		set("sma20_sma50_cross", -1)
	}

	// Composites
	hist := macd - macdSignal
	if (rsi > 50 && hist > 0) || (rsi < 50 && hist < 0) {
		set("rsi_macd_agreement", 1)
	} else {
		set("rsi_macd_agreement", 0)
	}
	if out["return_1d"] > 0 && out["volume_vs_sma20"] > 1.2 {
		set("volume_price_confirmation", 1)
	} else {
		set("volume_price_confirmation", 0)
	}

	return out
}

// bandPosition places close inside [low, high], clamped to [0, 1].
// A degenerate band reads as the midpoint.
func bandPosition(close, low, high float64) float64 {
	r := high - low
	if r <= 0 {
		return 0.5
	}
	pos := (close - low) / r
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}
