package analyst

import (
	"fmt"
	"strings"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

const reviewSystemPrompt = `You are a senior financial analyst. An autonomous trading system
is presenting you with an ML-generated signal and full market context.

YOUR ROLE: Act as the final human-quality gate before capital is deployed. You are
the last line of defense between a mathematical model and real money.

ANALYTICAL FRAMEWORK, evaluated in this order:

1. TREND STRUCTURE
   - Is the signal aligned with the dominant trend (price vs SMA20/50/200)?
   - Higher highs & higher lows (uptrend) or lower highs & lower lows (downtrend)?
   - Is this a trend-following or mean-reversion signal? Which is appropriate given volatility?

2. MOMENTUM & DIVERGENCE
   - RSI: Is it overbought (>70) or oversold (<30)? Any divergence from price?
   - MACD: Is the histogram expanding or contracting? Recent crossover?
   - Stochastic: Confirm momentum direction from %K/%D

3. VOLATILITY REGIME
   - VIX level: <15 = complacent, 15-25 = normal, 25-35 = elevated, >35 = crisis
   - Bollinger Band squeeze? If BB width is contracting, expect a breakout
   - ATR ratio: High ATR = wider stops needed, reduced position size
   - Keltner Channel position confirms BB signal

4. VOLUME CONFIRMATION
   - Is volume confirming the move? (price up + volume up = strong)
   - Volume vs 20-day average: >1.5x is significant
   - OBV slope: diverging from price = warning sign

5. SUPPORT & RESISTANCE
   - Where is price relative to key moving averages?
   - 52-week high/low proximity: within 5% of either = caution
   - VWAP position: above = bullish intraday bias, below = bearish

6. RISK ASSESSMENT
   - Earnings within 5 trading days: REJECT (binary event risk)
   - Major news with uncertain outcome: reduce sizing or reject
   - Sector rotation: is money flowing into or out of this sector?
   - Correlation risk: too many positions in same sector?
   - Gap percentage: large gap = potential exhaustion

7. POSITION SIZING LOGIC
   - conservative: Signal is marginal, elevated risk, or uncertain context
   - normal: Signal aligns with trend, adequate volume, acceptable risk
   - aggressive: Strong multi-indicator confluence, low risk, high conviction setup

CONFIDENCE ADJUSTMENT GUIDE:
   +15 to +20: Exceptional multi-indicator confluence, strong trend, volume confirms
   +5 to +14: Good alignment, minor concerns
   0: Neutral, signal is fair as-is
   -1 to -14: Some concerns (divergences, low volume, mixed signals)
   -15 to -30: Significant issues (counter-trend, high VIX, earnings risk, weak volume)

CRITICAL RULES:
- Capital preservation ALWAYS takes priority over opportunity
- When indicators conflict, side with caution
- A rejected trade costs nothing; a bad trade costs real money
- Flag ANY risk the ML model could have missed
- Be specific in your reasoning and cite the indicators that inform your decision

Respond ONLY in this JSON format (no markdown, no extra text):
{
    "adjusted_confidence": <float 0.0-1.0>,
    "confidence_adjustment": <int -30 to +20>,
    "position_sizing": "conservative" | "normal" | "aggressive",
    "reasoning": "<2-3 sentence explanation citing specific indicators>",
    "risk_flags": ["<specific_flag>"],
    "approve": true | false
}`

const analysisSystemPrompt = `You are a senior financial analyst performing a comprehensive
market analysis for a single stock. Provide an institutional-quality assessment.

Analyze the data provided and produce a thorough report covering:

1. TECHNICAL OUTLOOK
   - Current trend direction and strength (reference specific MAs, ADX)
   - Key support and resistance zones (from Bollinger Bands, moving averages, 52w range)
   - Momentum status (RSI, MACD, Stochastic: are they confirming or diverging?)
   - Volume analysis (OBV trend, volume vs average, any accumulation/distribution signals)

2. VOLATILITY ASSESSMENT
   - Current volatility regime (ATR ratio, BB width)
   - Is a volatility expansion or contraction likely?
   - Implied vs realized volatility context (from VIX if available)

3. RISK FACTORS
   - Upcoming catalysts (earnings, news, macro events)
   - Sector headwinds or tailwinds
   - Correlation exposure (if heavily correlated with market)
   - Proximity to key levels that could trigger stop runs

4. TRADE OPPORTUNITIES
   - Best entry zones (price levels with confluence of support)
   - Stop-loss placement (ATR-based with key level awareness)
   - Take-profit targets (resistance levels, measured moves)
   - Preferred direction (long/short/neutral)

5. CONVICTION SCORE
   - Overall score 1-10 (10 = highest conviction)
   - Timeframe: scalp (minutes), intraday, swing (days), position (weeks)
   - Risk/reward ratio estimate

Respond ONLY in this JSON format (no markdown, no extra text):
{
    "symbol": "<symbol>",
    "direction": "bullish" | "bearish" | "neutral",
    "conviction": <int 1-10>,
    "timeframe": "scalp" | "intraday" | "swing" | "position",
    "technical_outlook": "<3-5 sentences on trend, momentum, key levels>",
    "volatility_assessment": "<2-3 sentences on vol regime and expectations>",
    "risk_factors": ["<specific risk 1>", "<specific risk 2>"],
    "entry_zone": {"low": <float>, "high": <float>},
    "stop_loss": <float>,
    "take_profit_1": <float>,
    "take_profit_2": <float>,
    "risk_reward_ratio": <float>,
    "key_levels": {"support": [<float>, <float>], "resistance": [<float>, <float>]},
    "summary": "<2-3 sentence executive summary>"
}`

// buildReviewPrompt renders the full signal context the reviewer sees.
func buildReviewPrompt(sig *types.Signal, ctx *types.SymbolContext) string {
	f := sig.Features
	sector := Sector(sig.Symbol)

	var trend strings.Builder
	for _, ma := range []struct {
		label string
		key   string
	}{{"SMA20", "sma_20"}, {"SMA50", "sma_50"}, {"SMA200", "sma_200"}} {
		if v, ok := f[ma.key]; ok && v != 0 && ctx.Price != 0 {
			fmt.Fprintf(&trend, "  Price vs %s: %+.2f%%\n", ma.label, (ctx.Price/v-1)*100)
		}
	}
	trendStr := strings.TrimRight(trend.String(), "\n")
	if trendStr == "" {
		trendStr = "  Moving averages unavailable"
	}

	relStrength := ctx.ChangePct - ctx.SPYChange

	return fmt.Sprintf(`SIGNAL REVIEW REQUEST
%s
Symbol: %s (%s)
Action: %s
ML Confidence: %.1f%%
Model: %s

PRICE & TREND
  Current Price: $%.2f
  Change Today: %.2f%%
  52-Week Range: $%.2f - $%.2f
  ADX(14): %s
  Parabolic SAR Signal: %s
%s

MOMENTUM
  RSI(14): %s
  MACD Histogram: %s
  MACD Signal Cross: %s
  Stochastic %%K/%%D: %s/%s
  Williams %%R: %s
  CCI(20): %s
  ROC(10): %s

VOLATILITY
  ATR(14): %s
  ATR Ratio: %s
  BB Position: %s (0=low band, 1=high band)
  BB Squeeze: %s
  Keltner Position: %s

VOLUME
  Volume vs 20d Avg: %sx
  Volume vs 5d Avg: %sx
  OBV Slope (5d): %s
  Volume-Price Confirm: %s

MARKET CONTEXT
  SPY Today: %.2f%%
  VIX: %.1f
  VIX Change: %.2f%%
  Sector: %s - %s
  Relative Strength vs SPY: %+.2f%%

PRICE STRUCTURE
  Gap Today: %s
  VWAP Diff: $%s
  Return 5d: %.2f%%
  Return 10d: %.2f%%
  Return 20d: %.2f%%
  RSI-MACD Agreement: %s
  SMA20/50 Cross: %s

NEWS & EVENTS
%s

UPCOMING EVENTS:
%s

Provide your assessment.`,
		strings.Repeat("=", 50),
		sig.Symbol, sector,
		sig.Action,
		sig.Confidence*100,
		sig.ModelVersion,
		ctx.Price,
		ctx.ChangePct*100,
		ctx.Low52W, ctx.High52W,
		fmtVal(f, "adx_14", 1),
		sarLabel(f["parabolic_sar_signal"]),
		trendStr,
		fmtVal(f, "rsi_14", 1),
		fmtVal(f, "macd_histogram", 4),
		crossLabel(f["ema12_ema26_cross"]),
		fmtVal(f, "stoch_k", 1), fmtVal(f, "stoch_d", 1),
		fmtVal(f, "williams_r", 1),
		fmtVal(f, "cci_20", 1),
		fmtVal(f, "roc_10", 1),
		fmtVal(f, "atr_14", 3),
		fmtVal(f, "atr_ratio", 4),
		fmtVal(f, "bb_position", 3),
		fmtVal(f, "bb_squeeze", 4),
		fmtVal(f, "keltner_position", 3),
		fmtFloat(ctx.VolumeRatio, 1),
		fmtVal(f, "volume_ratio_5d", 1),
		fmtVal(f, "obv_slope", 1),
		yesNo(f["volume_price_confirmation"] == 1),
		ctx.SPYChange*100,
		ctx.VIX,
		ctx.VIXChange*100,
		sector, orDefault(ctx.SectorPerf, "N/A"),
		relStrength*100,
		fmtVal(f, "gap_percentage", 3),
		fmtVal(f, "vwap_diff", 2),
		f["return_5d"]*100,
		f["return_10d"]*100,
		f["return_20d"]*100,
		yesNo(f["rsi_macd_agreement"] == 1),
		crossLabel(f["sma20_sma50_cross"]),
		orDefault(ctx.RecentNews, "No recent news available."),
		orDefault(ctx.UpcomingEvents, "None known."),
	)
}

// buildAnalysisPrompt renders the deep-analysis request body.
func buildAnalysisPrompt(symbol string, indicators map[string]float64, ctx *types.SymbolContext) string {
	sector := Sector(symbol)

	var trend strings.Builder
	for _, ma := range []struct {
		label string
		key   string
	}{{"SMA20", "sma_20"}, {"SMA50", "sma_50"}, {"SMA200", "sma_200"}} {
		if v, ok := indicators[ma.key]; ok && v != 0 && ctx.Price != 0 {
			fmt.Fprintf(&trend, "  %s: $%.2f (%+.2f%%)\n", ma.label, v, (ctx.Price/v-1)*100)
		}
	}
	trendStr := strings.TrimRight(trend.String(), "\n")
	if trendStr == "" {
		trendStr = "  Unavailable"
	}

	return fmt.Sprintf(`DEEP ANALYSIS REQUEST - %s
%s
Symbol: %s (%s)

PRICE DATA
  Current Price: $%.2f
  52-Week High: $%.2f
  52-Week Low: $%.2f
  Change Today: %.2f%%

MOVING AVERAGES
%s

TREND INDICATORS
  ADX(14): %s
  Parabolic SAR: %s
  EMA12/26 Cross: %s
  SMA20/50 Cross: %s

MOMENTUM
  RSI(14): %s
  MACD: %s
  MACD Signal: %s
  MACD Histogram: %s
  Stochastic %%K: %s
  Stochastic %%D: %s
  Williams %%R: %s
  CCI(20): %s
  ROC(10): %s

VOLATILITY
  ATR(14): $%s
  ATR Ratio: %s
  BB High: $%s
  BB Low: $%s
  BB Position: %s
  BB Squeeze: %s
  Keltner Position: %s

VOLUME
  Volume vs 20d Avg: %sx
  Volume vs 5d Avg: %sx
  OBV Slope (5d): %s
  VWAP: $%s
  VWAP Diff: $%s

RETURNS
  1-Day: %s
  5-Day: %s
  10-Day: %s
  20-Day: %s

MARKET CONTEXT
  SPY Today: %.2f%%
  VIX: %.1f
  VIX Change: %.2f%%
  Sector: %s

NEWS & CATALYSTS
%s

UPCOMING EVENTS:
%s

Provide your comprehensive analysis.`,
		symbol,
		strings.Repeat("=", 50),
		symbol, sector,
		ctx.Price,
		ctx.High52W,
		ctx.Low52W,
		ctx.ChangePct*100,
		trendStr,
		fmtVal(indicators, "adx_14", 1),
		sarLabel(indicators["parabolic_sar_signal"]),
		crossLabel(indicators["ema12_ema26_cross"]),
		crossLabel(indicators["sma20_sma50_cross"]),
		fmtVal(indicators, "rsi_14", 1),
		fmtVal(indicators, "macd", 4),
		fmtVal(indicators, "macd_signal", 4),
		fmtVal(indicators, "macd_histogram", 4),
		fmtVal(indicators, "stoch_k", 1),
		fmtVal(indicators, "stoch_d", 1),
		fmtVal(indicators, "williams_r", 1),
		fmtVal(indicators, "cci_20", 1),
		fmtVal(indicators, "roc_10", 1),
		fmtVal(indicators, "atr_14", 3),
		fmtVal(indicators, "atr_ratio", 4),
		fmtVal(indicators, "bb_high", 2),
		fmtVal(indicators, "bb_low", 2),
		fmtVal(indicators, "bb_position", 3),
		fmtVal(indicators, "bb_squeeze", 4),
		fmtVal(indicators, "keltner_position", 3),
		fmtVal(indicators, "volume_vs_sma20", 1),
		fmtVal(indicators, "volume_ratio_5d", 1),
		fmtVal(indicators, "obv_slope", 1),
		fmtVal(indicators, "vwap", 2),
		fmtVal(indicators, "vwap_diff", 2),
		pctVal(indicators, "return_1d"),
		pctVal(indicators, "return_5d"),
		pctVal(indicators, "return_10d"),
		pctVal(indicators, "return_20d"),
		ctx.SPYChange*100,
		ctx.VIX,
		ctx.VIXChange*100,
		sector,
		orDefault(ctx.RecentNews, "No recent news available."),
		orDefault(ctx.UpcomingEvents, "None known."),
	)
}

func fmtVal(m map[string]float64, key string, decimals int) string {
	v, ok := m[key]
	if !ok {
		return "N/A"
	}
	return fmtFloat(v, decimals)
}

func fmtFloat(v float64, decimals int) string {
	return fmt.Sprintf("%.*f", decimals, v)
}

func pctVal(m map[string]float64, key string) string {
	v, ok := m[key]
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func crossLabel(v float64) string {
	switch v {
	case 1:
		return "BULLISH"
	case -1:
		return "BEARISH"
	}
	return "N/A"
}

func sarLabel(v float64) string {
	switch v {
	case 1:
		return "BULLISH (price above SAR)"
	case -1:
		return "BEARISH (price below SAR)"
	}
	return "N/A"
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
