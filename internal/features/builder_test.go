package features

import (
	"math"
	"testing"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

func TestBuildReturnsNilWithoutIndicators(t *testing.T) {
	if got := Build(nil, nil); got != nil {
		t.Errorf("expected nil for nil indicators, got %d features", len(got))
	}
	if got := Build(map[string]float64{}, nil); got != nil {
		t.Errorf("expected nil for empty indicators, got %d features", len(got))
	}
}

func TestBuildCoversEveryFeature(t *testing.T) {
	f := Build(map[string]float64{"close": 100}, nil)
	if len(f) != len(Names) {
		t.Fatalf("expected %d features, got %d", len(Names), len(f))
	}
	for _, name := range Names {
		if _, ok := f[name]; !ok {
			t.Errorf("missing feature %s", name)
		}
	}
}

func TestBuildTypedDefaults(t *testing.T) {
	f := Build(map[string]float64{"close": 100}, nil)
	defaults := map[string]float64{
		"rsi_14":          50,
		"stoch_k":         50,
		"stoch_d":         50,
		"williams_r":      -50,
		"bb_position":     0.5,
		"keltner_position": 0.5,
		"adx_14":          20,
		"atr_ratio":       0.02,
		"vix_level":       20,
		"high_low_ratio":  1,
		"close_open_ratio": 1,
		"price_vs_sma20":  1,
		"price_vs_sma50":  1,
		"price_vs_sma200": 1,
		"volume_vs_sma20": 1,
		"volume_ratio_5d": 1,
		"return_1d":       0,
		"macd_signal_diff": 0,
	}
	for name, want := range defaults {
		if got := f[name]; got != want {
			t.Errorf("%s default = %v, want %v", name, got, want)
		}
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	in := map[string]float64{
		"rsi_14": 28, "macd": 0.4, "macd_signal": 0.3, "macd_histogram": 0.1,
		"bb_position": 0.15, "adx_14": 32, "volume_vs_sma20": 1.8,
		"return_5d": -0.03, "price_vs_sma20": 0.95,
		"ema12_ema26_cross": -1, "sma20_sma50_cross": -1, "parabolic_sar_signal": -1,
	}
	ctx := &types.MarketContext{SPYReturn: -0.01, VIX: 24, VIXChange: 0.1}

	a := Build(in, ctx)
	b := Build(in, ctx)
	if len(a) != len(b) {
		t.Fatalf("key sets differ: %d vs %d", len(a), len(b))
	}
	for k, v := range a {
		if b[k] != v {
			t.Errorf("feature %s differs across builds: %v vs %v", k, v, b[k])
		}
	}
	// Input map must not be mutated.
	if len(in) != 12 {
		t.Errorf("input indicators mutated, now %d entries", len(in))
	}
}

func TestMACDSignalDiffRequiresBothComponents(t *testing.T) {
	f := Build(map[string]float64{"macd": 0.5, "macd_signal": 0.2}, nil)
	if got := f["macd_signal_diff"]; math.Abs(got-0.3) > 1e-12 {
		t.Errorf("macd_signal_diff = %v, want 0.3", got)
	}
	f = Build(map[string]float64{"macd": 0.5}, nil)
	if got := f["macd_signal_diff"]; got != 0 {
		t.Errorf("macd_signal_diff with missing signal = %v, want 0", got)
	}
}

func TestTrendAlignmentScore(t *testing.T) {
	allBull := map[string]float64{
		"ema12_ema26_cross": 1, "sma20_sma50_cross": 1,
		"macd_histogram": 0.2, "parabolic_sar_signal": 1,
	}
	if got := Build(allBull, nil)["trend_alignment_score"]; got != 1 {
		t.Errorf("all-bullish alignment = %v, want 1", got)
	}
	allBear := map[string]float64{
		"ema12_ema26_cross": -1, "sma20_sma50_cross": -1,
		"macd_histogram": -0.2, "parabolic_sar_signal": -1,
	}
	if got := Build(allBear, nil)["trend_alignment_score"]; got != -1 {
		t.Errorf("all-bearish alignment = %v, want -1", got)
	}
	mixed := map[string]float64{
		"ema12_ema26_cross": 1, "sma20_sma50_cross": 1,
		"macd_histogram": -0.2, "parabolic_sar_signal": -1,
	}
	if got := Build(mixed, nil)["trend_alignment_score"]; got != 0 {
		t.Errorf("split alignment = %v, want 0", got)
	}
}

func TestDerivedFeatures(t *testing.T) {
	in := map[string]float64{
		"adx_14":            40,
		"ema12_ema26_cross": 1, "sma20_sma50_cross": 1,
		"macd_histogram": 0.2, "parabolic_sar_signal": 1,
		"price_vs_sma20":  0.92,
		"volume_vs_sma20": 3.0,
		"bb_position":     0.9,
		"rsi_14":          62,
		"return_5d":       -0.02,
	}
	f := Build(in, nil)

	if got := f["volume_breakout_score"]; got != 1 {
		t.Errorf("volume_breakout_score = %v, want capped at 1", got)
	}
	// adx/50 * alignment = 0.8 * 1
	if got := f["trend_strength_composite"]; math.Abs(got-0.8) > 1e-12 {
		t.Errorf("trend_strength_composite = %v, want 0.8", got)
	}
	if got := f["mean_reversion_score"]; math.Abs(got-0.08) > 1e-12 {
		t.Errorf("mean_reversion_score = %v, want 0.08", got)
	}
	// min(1 * |0.9-0.5| * 2, 1) = 0.8
	if got := f["breakout_probability"]; math.Abs(got-0.8) > 1e-12 {
		t.Errorf("breakout_probability = %v, want 0.8", got)
	}
	// min(0.9, 0.1)
	if got := f["support_resistance_proximity"]; math.Abs(got-0.1) > 1e-12 {
		t.Errorf("support_resistance_proximity = %v, want 0.1", got)
	}
	// rsi bullish, 5d return bearish
	if got := f["momentum_divergence"]; got != 1 {
		t.Errorf("momentum_divergence = %v, want 1", got)
	}
}

func TestMarketContextFeatures(t *testing.T) {
	ctx := &types.MarketContext{SPYReturn: 0.012, VIX: 31.5, VIXChange: 0.08}
	f := Build(map[string]float64{"close": 100}, ctx)
	if f["spy_return_1d"] != 0.012 || f["vix_level"] != 31.5 || f["vix_change"] != 0.08 {
		t.Errorf("market context features wrong: spy=%v vix=%v change=%v",
			f["spy_return_1d"], f["vix_level"], f["vix_change"])
	}
	// Zero VIX falls back to the long-run default.
	f = Build(map[string]float64{"close": 100}, &types.MarketContext{})
	if f["vix_level"] != 20 {
		t.Errorf("vix_level with zero VIX = %v, want 20", f["vix_level"])
	}
}

func TestNaNInputsAreZeroed(t *testing.T) {
	f := Build(map[string]float64{"return_1d": math.NaN(), "close": 100}, nil)
	if got := f["return_1d"]; got != 0 {
		t.Errorf("NaN input should become 0, got %v", got)
	}
}

func TestVectorOrdering(t *testing.T) {
	f := Build(map[string]float64{"rsi_14": 33, "close": 100}, nil)
	vec := Vector(f)
	if len(vec) != len(Names) {
		t.Fatalf("vector length %d, want %d", len(vec), len(Names))
	}
	for i, name := range Names {
		if vec[i] != f[name] {
			t.Errorf("vector[%d] = %v, want %s = %v", i, vec[i], name, f[name])
		}
	}
}
