package analyst

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

type reviewPayload struct {
	AdjustedConfidence   *float64 `json:"adjusted_confidence"`
	ConfidenceAdjustment float64  `json:"confidence_adjustment"`
	PositionSizing       string   `json:"position_sizing"`
	Reasoning            string   `json:"reasoning"`
	RiskFlags            []string `json:"risk_flags"`
	Approve              *bool    `json:"approve"`
}

type analysisPayload struct {
	Symbol           string   `json:"symbol"`
	Direction        string   `json:"direction"`
	Conviction       float64  `json:"conviction"`
	Timeframe        string   `json:"timeframe"`
	TechnicalOutlook string   `json:"technical_outlook"`
	Volatility       string   `json:"volatility_assessment"`
	RiskFactors      []string `json:"risk_factors"`
	EntryZone        struct {
		Low  float64 `json:"low"`
		High float64 `json:"high"`
	} `json:"entry_zone"`
	StopLoss    *float64 `json:"stop_loss"`
	TakeProfit1 *float64 `json:"take_profit_1"`
	TakeProfit2 *float64 `json:"take_profit_2"`
	RiskReward  *float64 `json:"risk_reward_ratio"`
	KeyLevels   struct {
		Support    []float64 `json:"support"`
		Resistance []float64 `json:"resistance"`
	} `json:"key_levels"`
	Summary string `json:"summary"`
}

// parseReview decodes a review response, falling back to a conservative
// verdict when the body cannot be parsed.
func parseReview(text string, sig *types.Signal) types.Verdict {
	var data reviewPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &data); err != nil {
		return types.Verdict{
			AdjustedConfidence:   sig.Confidence * 0.9,
			ConfidenceAdjustment: -10,
			PositionSizing:       types.SizingConservative,
			Reasoning:            fmt.Sprintf("Parse error. Applying conservative defaults. Raw: %s", truncate(text, 200)),
			RiskFlags:            []string{"parse_error"},
			Approve:              sig.Confidence > 0.70,
		}
	}

	verdict := types.Verdict{
		AdjustedConfidence:   sig.Confidence,
		ConfidenceAdjustment: data.ConfidenceAdjustment,
		PositionSizing:       sizing(data.PositionSizing),
		Reasoning:            data.Reasoning,
		RiskFlags:            data.RiskFlags,
		Approve:              true,
	}
	if data.AdjustedConfidence != nil {
		verdict.AdjustedConfidence = *data.AdjustedConfidence
	}
	if data.Approve != nil {
		verdict.Approve = *data.Approve
	}
	if verdict.Reasoning == "" {
		verdict.Reasoning = "No reasoning provided."
	}
	return verdict
}

// parseAnalysis decodes a deep analysis response, defaulting price levels
// from ATR when a field is missing or the body cannot be parsed.
func parseAnalysis(text, symbol string, price, atr float64) types.SymbolAnalysis {
	if atr == 0 {
		atr = price * 0.02
	}

	var data analysisPayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &data); err != nil {
		return fallbackAnalysis(symbol, price, atr,
			fmt.Sprintf("Parse error. Review raw response. Raw: %s", truncate(text, 300)),
			"parse_error",
			fmt.Sprintf("Analysis parse failed for %s.", symbol))
	}

	out := types.SymbolAnalysis{
		Symbol:           data.Symbol,
		Direction:        data.Direction,
		Conviction:       int(data.Conviction),
		Timeframe:        data.Timeframe,
		TechnicalOutlook: data.TechnicalOutlook,
		Volatility:       data.Volatility,
		RiskFactors:      data.RiskFactors,
		EntryLow:         data.EntryZone.Low,
		EntryHigh:        data.EntryZone.High,
		SupportLevels:    data.KeyLevels.Support,
		ResistanceLevels: data.KeyLevels.Resistance,
		Summary:          data.Summary,
	}
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	if out.Direction == "" {
		out.Direction = "neutral"
	}
	if out.Conviction == 0 {
		out.Conviction = 5
	}
	if out.Timeframe == "" {
		out.Timeframe = "swing"
	}
	if out.EntryLow == 0 && out.EntryHigh == 0 {
		out.EntryLow = price * 0.99
		out.EntryHigh = price * 1.01
	}
	if data.StopLoss != nil {
		out.StopLoss = *data.StopLoss
	} else {
		out.StopLoss = price - 2*atr
	}
	if data.TakeProfit1 != nil {
		out.Target1 = *data.TakeProfit1
	} else {
		out.Target1 = price + 3*atr
	}
	if data.TakeProfit2 != nil {
		out.Target2 = *data.TakeProfit2
	}
	if data.RiskReward != nil {
		out.RiskReward = *data.RiskReward
	} else {
		out.RiskReward = 1.5
	}
	if out.Summary == "" {
		out.Summary = "Analysis completed."
	}
	return out
}

func fallbackAnalysis(symbol string, price, atr float64, outlook, flag, summary string) types.SymbolAnalysis {
	if atr == 0 {
		atr = price * 0.02
	}
	stop, target := 0.0, 0.0
	if price != 0 {
		stop = round2(price - 2*atr)
		target = round2(price + 3*atr)
	}
	return types.SymbolAnalysis{
		Symbol:           symbol,
		Direction:        "neutral",
		Conviction:       3,
		Timeframe:        "swing",
		TechnicalOutlook: outlook,
		Volatility:       "Unable to assess. Check ATR and VIX manually.",
		RiskFactors:      []string{flag},
		EntryLow:         price * 0.99,
		EntryHigh:        price * 1.01,
		StopLoss:         stop,
		Target1:          target,
		RiskReward:       1.5,
		Summary:          summary,
	}
}

// extractJSON strips a markdown code fence when the response is wrapped in
// one.
func extractJSON(text string) string {
	clean := strings.TrimSpace(text)
	if strings.HasPrefix(clean, "```") {
		if i := strings.Index(clean, "\n"); i >= 0 {
			clean = clean[i+1:]
		}
		if i := strings.LastIndex(clean, "```"); i >= 0 {
			clean = clean[:i]
		}
	}
	return strings.TrimSpace(clean)
}

func sizing(s string) types.PositionSizing {
	switch types.PositionSizing(s) {
	case types.SizingNormal, types.SizingAggressive:
		return types.PositionSizing(s)
	}
	return types.SizingConservative
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
