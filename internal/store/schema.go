package store

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS market_data (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume BIGINT NOT NULL,
		vwap DOUBLE PRECISION,
		trade_count BIGINT,
		UNIQUE (symbol, timeframe, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS indicators (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		"values" JSONB NOT NULL,
		UNIQUE (symbol, timeframe, timestamp)
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		decision_chain_id UUID NOT NULL,
		symbol TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		model_version TEXT NOT NULL,
		features_snapshot JSONB,
		status TEXT NOT NULL DEFAULT 'pending',
		analyst_approved BOOLEAN,
		analyst_adjusted_confidence DOUBLE PRECISION,
		analyst_reasoning TEXT,
		analyst_risk_flags JSONB,
		analyst_position_sizing TEXT,
		risk_approved BOOLEAN,
		risk_rejection_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		reviewed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_chain ON signals (decision_chain_id)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		decision_chain_id UUID NOT NULL,
		signal_id BIGINT,
		broker_order_id TEXT UNIQUE,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		shares BIGINT NOT NULL,
		entry_price NUMERIC(12,2) NOT NULL,
		stop_price NUMERIC(12,2) NOT NULL,
		target_price NUMERIC(12,2) NOT NULL,
		fill_price NUMERIC(12,2),
		exit_price NUMERIC(12,2),
		realized_pnl NUMERIC(14,2),
		ml_confidence DOUBLE PRECISION,
		analyst_confidence DOUBLE PRECISION,
		allocation_pct DOUBLE PRECISION,
		dollar_amount NUMERIC(14,2),
		status TEXT NOT NULL DEFAULT 'pending',
		exit_reason TEXT,
		placed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		filled_at TIMESTAMPTZ,
		closed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_chain ON trades (decision_chain_id)`,
	`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		total_equity DOUBLE PRECISION NOT NULL,
		cash DOUBLE PRECISION NOT NULL,
		market_value DOUBLE PRECISION NOT NULL,
		daily_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		daily_pnl_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		weekly_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		weekly_pnl_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		monthly_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
		monthly_pnl_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		peak_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
		current_drawdown_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_exposure_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
		open_positions_count INT NOT NULL DEFAULT 0,
		positions JSONB,
		sector_exposure JSONB,
		trades_today INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		level TEXT NOT NULL,
		trigger_reason TEXT NOT NULL,
		trigger_value DOUBLE PRECISION,
		threshold_value DOUBLE PRECISION,
		action_taken TEXT,
		resolved BOOLEAN NOT NULL DEFAULT false,
		resolved_by TEXT,
		details JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_events_ts ON risk_events (timestamp)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'INFO',
		component TEXT NOT NULL,
		symbol TEXT,
		details JSONB,
		decision_chain_id UUID
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_chain ON audit_log (decision_chain_id)`,
}

// EnsureSchema creates the engine tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}
