package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// InsertTrade persists a freshly placed trade and fills in its row id.
// Money columns travel as text and are cast to numeric server-side.
func (s *Store) InsertTrade(ctx context.Context, t *types.Trade) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO trades (decision_chain_id, signal_id, broker_order_id, symbol, side, shares,
			entry_price, stop_price, target_price, ml_confidence, analyst_confidence,
			allocation_pct, dollar_amount, status, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12, $13::numeric, $14, $15)
		RETURNING id`,
		t.DecisionChainID, t.SignalID, t.BrokerOrderID, t.Symbol, t.Side, t.Shares,
		t.EntryPrice.String(), t.StopPrice.String(), t.TargetPrice.String(),
		t.MLConfidence, t.AnalystConfidence, t.AllocationPct, t.DollarAmount.String(),
		string(t.Status), t.PlacedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("store: insert trade %s: %w", t.Symbol, err)
	}
	return nil
}

// TradesSince counts trades placed at or after the cutoff.
func (s *Store) TradesSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE placed_at >= $1`, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: trades since: %w", err)
	}
	return n, nil
}

// RecentTrades returns the newest trades, most recent first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]types.Trade, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, decision_chain_id, COALESCE(signal_id, 0), COALESCE(broker_order_id, ''),
		       symbol, side, shares, entry_price::text, stop_price::text, target_price::text,
		       COALESCE(ml_confidence, 0), COALESCE(analyst_confidence, 0),
		       COALESCE(allocation_pct, 0), COALESCE(dollar_amount, 0)::text,
		       status, COALESCE(exit_reason, ''), placed_at, filled_at, closed_at
		FROM trades
		ORDER BY placed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent trades: %w", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var t types.Trade
		var status string
		var entry, stop, target, dollars string
		if err := rows.Scan(&t.ID, &t.DecisionChainID, &t.SignalID, &t.BrokerOrderID,
			&t.Symbol, &t.Side, &t.Shares, &entry, &stop, &target,
			&t.MLConfidence, &t.AnalystConfidence, &t.AllocationPct, &dollars,
			&status, &t.ExitReason, &t.PlacedAt, &t.FilledAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("store: scan trade: %w", err)
		}
		t.Status = types.TradeStatus(status)
		if t.EntryPrice, err = decimal.NewFromString(entry); err != nil {
			return nil, fmt.Errorf("store: parse entry price: %w", err)
		}
		if t.StopPrice, err = decimal.NewFromString(stop); err != nil {
			return nil, fmt.Errorf("store: parse stop price: %w", err)
		}
		if t.TargetPrice, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("store: parse target price: %w", err)
		}
		if t.DollarAmount, err = decimal.NewFromString(dollars); err != nil {
			return nil, fmt.Errorf("store: parse dollar amount: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
