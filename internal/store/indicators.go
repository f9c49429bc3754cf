package store

import (
	"context"
	"fmt"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// UpsertIndicators writes an indicator snapshot, replacing any existing row
// with the same (symbol, timeframe, timestamp) key.
func (s *Store) UpsertIndicators(ctx context.Context, snap types.IndicatorSnapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO indicators (symbol, timeframe, timestamp, "values")
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			"values" = EXCLUDED."values"`,
		snap.Symbol, snap.Timeframe, snap.Timestamp, snap.Values)
	if err != nil {
		return fmt.Errorf("store: upsert indicators %s: %w", snap.Symbol, err)
	}
	return nil
}

// LatestIndicators returns the most recent indicator snapshot for a symbol.
func (s *Store) LatestIndicators(ctx context.Context, symbol, timeframe string) (*types.IndicatorSnapshot, error) {
	snap := types.IndicatorSnapshot{Symbol: symbol, Timeframe: timeframe}
	err := s.db.QueryRow(ctx, `
		SELECT timestamp, "values"
		FROM indicators
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT 1`, symbol, timeframe).Scan(&snap.Timestamp, &snap.Values)
	if err != nil {
		return nil, fmt.Errorf("store: latest indicators %s: %w", symbol, err)
	}
	return &snap, nil
}
