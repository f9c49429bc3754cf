package store

import (
	"context"
	"fmt"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// InsertSignal persists a new signal and fills in its row id.
func (s *Store) InsertSignal(ctx context.Context, sig *types.Signal) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO signals (decision_chain_id, symbol, action, confidence, model_version, features_snapshot, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		sig.DecisionChainID, sig.Symbol, string(sig.Action), sig.Confidence,
		sig.ModelVersion, sig.Features, string(sig.Status), sig.CreatedAt).Scan(&sig.ID)
	if err != nil {
		return fmt.Errorf("store: insert signal %s: %w", sig.Symbol, err)
	}
	return nil
}

// UpdateSignalReview writes the analyst verdict and status back to a signal.
func (s *Store) UpdateSignalReview(ctx context.Context, sig *types.Signal) error {
	_, err := s.db.Exec(ctx, `
		UPDATE signals SET
			status = $2,
			analyst_approved = $3,
			analyst_adjusted_confidence = $4,
			analyst_reasoning = $5,
			analyst_risk_flags = $6,
			analyst_position_sizing = $7,
			risk_approved = $8,
			risk_rejection_reason = $9,
			reviewed_at = $10
		WHERE id = $1`,
		sig.ID, string(sig.Status), sig.AnalystApproved, sig.AnalystConfidence,
		sig.AnalystReasoning, sig.AnalystRiskFlags, string(sig.AnalystSizing),
		sig.RiskApproved, sig.RiskRejectionReason, sig.ReviewedAt)
	if err != nil {
		return fmt.Errorf("store: update signal %d: %w", sig.ID, err)
	}
	return nil
}

// RecentSignals returns the newest signals, most recent first.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]types.Signal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, decision_chain_id, symbol, action, confidence, model_version,
		       COALESCE(features_snapshot, '{}'::jsonb), status,
		       analyst_approved, analyst_adjusted_confidence,
		       COALESCE(analyst_reasoning, ''), COALESCE(analyst_position_sizing, ''),
		       COALESCE(risk_rejection_reason, ''), created_at, reviewed_at
		FROM signals
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent signals: %w", err)
	}
	defer rows.Close()

	var signals []types.Signal
	for rows.Next() {
		var sig types.Signal
		var action, status, sizing string
		if err := rows.Scan(&sig.ID, &sig.DecisionChainID, &sig.Symbol, &action,
			&sig.Confidence, &sig.ModelVersion, &sig.Features, &status,
			&sig.AnalystApproved, &sig.AnalystConfidence, &sig.AnalystReasoning,
			&sizing, &sig.RiskRejectionReason, &sig.CreatedAt, &sig.ReviewedAt); err != nil {
			return nil, fmt.Errorf("store: scan signal: %w", err)
		}
		sig.Action = types.Action(action)
		sig.Status = types.SignalStatus(status)
		sig.AnalystSizing = types.PositionSizing(sizing)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
