package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// InsertSnapshot persists a portfolio snapshot and fills in its row id.
func (s *Store) InsertSnapshot(ctx context.Context, snap *types.PortfolioSnapshot) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO portfolio_snapshots (timestamp, total_equity, cash, market_value,
			daily_pnl, daily_pnl_pct, weekly_pnl, weekly_pnl_pct, monthly_pnl, monthly_pnl_pct,
			peak_equity, current_drawdown_pct, total_exposure_pct, open_positions_count,
			positions, sector_exposure, trades_today)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		snap.Timestamp, snap.TotalEquity, snap.Cash, snap.MarketValue,
		snap.DailyPnL, snap.DailyPnLPct, snap.WeeklyPnL, snap.WeeklyPnLPct,
		snap.MonthlyPnL, snap.MonthlyPnLPct, snap.PeakEquity, snap.CurrentDrawdownPct,
		snap.TotalExposurePct, snap.OpenPositionsCount, snap.Positions,
		snap.SectorExposure, snap.TradesToday).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("store: insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent portfolio snapshot, or nil when none
// has been recorded yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*types.PortfolioSnapshot, error) {
	snap, err := s.scanSnapshot(s.db.QueryRow(ctx, snapshotSelect+` ORDER BY timestamp DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// SnapshotBefore returns the newest snapshot taken at or before the cutoff,
// or nil when history does not reach that far back.
func (s *Store) SnapshotBefore(ctx context.Context, cutoff time.Time) (*types.PortfolioSnapshot, error) {
	snap, err := s.scanSnapshot(s.db.QueryRow(ctx,
		snapshotSelect+` WHERE timestamp <= $1 ORDER BY timestamp DESC LIMIT 1`, cutoff))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

// PeakEquity returns the highest equity across all snapshots.
func (s *Store) PeakEquity(ctx context.Context) (float64, error) {
	var peak float64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(peak_equity), 0) FROM portfolio_snapshots`).Scan(&peak)
	if err != nil {
		return 0, fmt.Errorf("store: peak equity: %w", err)
	}
	return peak, nil
}

const snapshotSelect = `
	SELECT id, timestamp, total_equity, cash, market_value,
	       daily_pnl, daily_pnl_pct, weekly_pnl, weekly_pnl_pct, monthly_pnl, monthly_pnl_pct,
	       peak_equity, current_drawdown_pct, total_exposure_pct, open_positions_count,
	       COALESCE(positions, '{}'::jsonb), COALESCE(sector_exposure, '{}'::jsonb), trades_today
	FROM portfolio_snapshots`

func (s *Store) scanSnapshot(row pgx.Row) (*types.PortfolioSnapshot, error) {
	var snap types.PortfolioSnapshot
	err := row.Scan(&snap.ID, &snap.Timestamp, &snap.TotalEquity, &snap.Cash, &snap.MarketValue,
		&snap.DailyPnL, &snap.DailyPnLPct, &snap.WeeklyPnL, &snap.WeeklyPnLPct,
		&snap.MonthlyPnL, &snap.MonthlyPnLPct, &snap.PeakEquity, &snap.CurrentDrawdownPct,
		&snap.TotalExposurePct, &snap.OpenPositionsCount, &snap.Positions,
		&snap.SectorExposure, &snap.TradesToday)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan snapshot: %w", err)
	}
	return &snap, nil
}
