package indicators

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// Store is the persistence surface the engine reads bars from and writes
// snapshots to.
type Store interface {
	RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error)
	UpsertIndicators(ctx context.Context, snap types.IndicatorSnapshot) error
}

// Engine loads bar history, computes the indicator set, and upserts the
// latest snapshot. Computation itself is pure; only the wrapper persists.
type Engine struct {
	store  Store
	logger *zap.Logger
}

// NewEngine creates an indicator engine.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger.Named("indicators")}
}

// ComputeForSymbol computes and stores indicators for one symbol. Returns
// (nil, nil) when there is not enough history.
func (e *Engine) ComputeForSymbol(ctx context.Context, symbol, timeframe string) (map[string]float64, error) {
	bars, err := e.store.RecentBars(ctx, symbol, timeframe, Window)
	if err != nil {
		return nil, fmt.Errorf("indicators: load bars for %s: %w", symbol, err)
	}
	if len(bars) < MinBars {
		e.logger.Warn("not enough bars",
			zap.String("symbol", symbol),
			zap.Int("bars", len(bars)),
			zap.Int("required", MinBars))
		return nil, nil
	}

	values := Compute(bars)
	if values == nil {
		return nil, nil
	}

	snap := types.IndicatorSnapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: bars[len(bars)-1].Timestamp,
		Values:    values,
	}
	if err := e.store.UpsertIndicators(ctx, snap); err != nil {
		return nil, fmt.Errorf("indicators: persist snapshot for %s: %w", symbol, err)
	}

	e.logger.Debug("computed indicators",
		zap.String("symbol", symbol),
		zap.Int("count", len(values)))
	return values, nil
}

// ComputeForWatchlist computes indicators for every symbol that has enough
// history. Symbols that fail are skipped.
func (e *Engine) ComputeForWatchlist(ctx context.Context, symbols []string, timeframe string) map[string]map[string]float64 {
	results := make(map[string]map[string]float64, len(symbols))
	for _, symbol := range symbols {
		values, err := e.ComputeForSymbol(ctx, symbol, timeframe)
		if err != nil {
			e.logger.Error("indicator computation failed",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		if values != nil {
			results[symbol] = values
		}
	}
	return results
}
