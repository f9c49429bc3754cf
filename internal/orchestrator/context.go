package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/analyst"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// VolatilityEstimator derives a VIX-like volatility level and its recent
// change from a daily close series, oldest first.
type VolatilityEstimator func(closes []float64) (vix, vixChange float64)

// SetVolatilityEstimator replaces the default realized-volatility proxy,
// for deployments with a direct VIX feed.
func (o *Orchestrator) SetVolatilityEstimator(fn VolatilityEstimator) {
	if fn != nil {
		o.volEstimator = fn
	}
}

// RealizedVolatility is the default estimator: the standard deviation of
// daily returns annualized and scaled to index points, with the change
// between the last five days and the five before that.
func RealizedVolatility(closes []float64) (vix, vixChange float64) {
	returns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}
	if len(returns) == 0 {
		return 20, 0
	}

	vix = math.Round(stddev(returns)*math.Sqrt(252)*100*10) / 10
	if len(returns) >= 10 {
		recent := stddev(returns[len(returns)-5:]) * math.Sqrt(252) * 100
		prior := stddev(returns[len(returns)-10:len(returns)-5]) * math.Sqrt(252) * 100
		if prior > 0 {
			vixChange = (recent - prior) / prior
		}
	}
	return vix, vixChange
}

// MarketContext builds the per-cycle broad-market backdrop from SPY: last
// price, one-day return, and the volatility proxy. Missing data degrades to
// neutral defaults.
func (o *Orchestrator) MarketContext(ctx context.Context) *types.MarketContext {
	mc := &types.MarketContext{VIX: 20}

	if price, err := o.data.LatestPrice(ctx, "SPY"); err == nil && price > 0 {
		mc.SPYPrice = price
	}

	bars, err := o.store.RecentBars(ctx, "SPY", "1Day", 20)
	if err != nil {
		o.logger.Debug("market context bars unavailable", zap.Error(err))
		return mc
	}
	if len(bars) < 2 {
		return mc
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	prev, cur := closes[len(closes)-2], closes[len(closes)-1]
	if prev > 0 {
		ret := (cur - prev) / prev
		mc.SPYReturn = ret
		mc.SPYChange = ret
	}

	if len(bars) >= 10 {
		mc.VIX, mc.VIXChange = o.volEstimator(closes)
	}
	return mc
}

// SymbolContext builds the per-symbol context handed to the analyst during
// signal review.
func (o *Orchestrator) SymbolContext(ctx context.Context, symbol string, indicators map[string]float64, mc *types.MarketContext) *types.SymbolContext {
	return o.buildSymbolContext(ctx, symbol, indicators, mc, 5, 120)
}

// AnalysisContext assembles the indicators and richer context for an
// on-demand deep analysis of one symbol.
func (o *Orchestrator) AnalysisContext(ctx context.Context, symbol string) (map[string]float64, *types.SymbolContext, error) {
	indicators, err := o.ind.ComputeForSymbol(ctx, symbol, "1Day")
	if err != nil {
		return nil, nil, err
	}
	if indicators == nil {
		indicators = map[string]float64{}
	}
	mc := o.MarketContext(ctx)
	symCtx := o.buildSymbolContext(ctx, symbol, indicators, mc, 8, 150)
	return indicators, symCtx, nil
}

func (o *Orchestrator) buildSymbolContext(
	ctx context.Context,
	symbol string,
	indicators map[string]float64,
	mc *types.MarketContext,
	newsLimit, summaryLen int,
) *types.SymbolContext {
	price := indicators["close"]
	if price == 0 {
		if p, err := o.data.LatestPrice(ctx, symbol); err == nil {
			price = p
		}
	}

	high52, low52, err := o.store.Range52W(ctx, symbol)
	if err != nil {
		o.logger.Debug("52-week range unavailable",
			zap.String("symbol", symbol), zap.Error(err))
	}

	volumeRatio := indicators["volume_vs_sma20"]
	if volumeRatio == 0 {
		volumeRatio = 1
	}

	news := o.data.FetchNews(ctx, []string{symbol}, newsLimit)

	return &types.SymbolContext{
		Price:          price,
		ChangePct:      indicators["return_1d"],
		VolumeRatio:    volumeRatio,
		VIX:            mc.VIX,
		VIXChange:      mc.VIXChange,
		SPYChange:      mc.SPYChange,
		SectorPerf:     fmt.Sprintf("%s - %s", analyst.Sector(symbol), sectorLabel(mc)),
		RecentNews:     newsDigest(news, newsLimit, summaryLen),
		UpcomingEvents: "None known.",
		High52W:        high52,
		Low52W:         low52,
	}
}

// newsDigest renders news items as prompt bullet lines.
func newsDigest(items []types.NewsItem, limit, summaryLen int) string {
	if len(items) == 0 {
		return "No recent news available."
	}
	if len(items) > limit {
		items = items[:limit]
	}
	lines := make([]string, 0, len(items))
	for _, n := range items {
		line := fmt.Sprintf("- [%s] %s", n.Source, n.Headline)
		if n.Summary != "" {
			line += " - " + clip(n.Summary, summaryLen)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// sectorLabel gives a coarse sector backdrop from broad-market direction.
func sectorLabel(mc *types.MarketContext) string {
	ret := mc.SPYChange
	switch {
	case math.Abs(ret) < 0.001:
		return "Flat"
	case ret > 0.01:
		return "Broad market positive"
	case ret < -0.01:
		return "Broad market negative"
	case ret > 0:
		return "Slightly positive"
	default:
		return "Slightly negative"
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
