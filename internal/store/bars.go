package store

import (
	"context"
	"fmt"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

const upsertBarSQL = `
	INSERT INTO market_data (symbol, timeframe, timestamp, open, high, low, close, volume, vwap, trade_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, 0), NULLIF($10, 0))
	ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		vwap = EXCLUDED.vwap,
		trade_count = EXCLUDED.trade_count`

// UpsertBars writes bars, replacing any existing row with the same
// (symbol, timeframe, timestamp) key. Returns the number of bars written.
func (s *Store) UpsertBars(ctx context.Context, bars []types.Bar) (int, error) {
	written := 0
	for _, b := range bars {
		_, err := s.db.Exec(ctx, upsertBarSQL,
			b.Symbol, b.Timeframe, b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP, b.TradeCount)
		if err != nil {
			return written, fmt.Errorf("store: upsert bar %s/%s: %w", b.Symbol, b.Timeframe, err)
		}
		written++
	}
	return written, nil
}

// RecentBars returns up to limit bars for (symbol, timeframe), oldest first.
func (s *Store) RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume,
		       COALESCE(vwap, 0), COALESCE(trade_count, 0)
		FROM market_data
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT $3`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent bars %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []types.Bar
	for rows.Next() {
		var b types.Bar
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VWAP, &b.TradeCount); err != nil {
			return nil, fmt.Errorf("store: scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent bars %s: %w", symbol, err)
	}
	// Reverse into ascending order for the indicator engine.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// Range52W returns the highest high and lowest low across stored daily bars.
// Zero values mean no daily history exists.
func (s *Store) Range52W(ctx context.Context, symbol string) (high, low float64, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(high), 0), COALESCE(MIN(low), 0)
		FROM market_data
		WHERE symbol = $1 AND timeframe = '1Day'
		  AND timestamp > now() - INTERVAL '52 weeks'`, symbol).Scan(&high, &low)
	if err != nil {
		return 0, 0, fmt.Errorf("store: 52w range %s: %w", symbol, err)
	}
	return high, low, nil
}
