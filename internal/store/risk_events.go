package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// InsertRiskEvent records a circuit-breaker transition or manual stop.
func (s *Store) InsertRiskEvent(ctx context.Context, ev *types.RiskEvent) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO risk_events (timestamp, level, trigger_reason, trigger_value, threshold_value, action_taken, resolved, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		ev.Timestamp, string(ev.Level), ev.TriggerReason, ev.TriggerValue,
		ev.ThresholdValue, ev.ActionTaken, ev.Resolved, ev.Details).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("store: insert risk event: %w", err)
	}
	return nil
}

// LatestCircuitLevel returns the level of the newest unresolved risk event.
// Used on startup to reconcile in-memory breaker state with persisted events.
func (s *Store) LatestCircuitLevel(ctx context.Context) (types.CircuitLevel, error) {
	var level string
	err := s.db.QueryRow(ctx, `
		SELECT level FROM risk_events
		WHERE NOT resolved
		ORDER BY timestamp DESC
		LIMIT 1`).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.CircuitNone, nil
	}
	if err != nil {
		return types.CircuitNone, fmt.Errorf("store: latest circuit level: %w", err)
	}
	return types.CircuitLevel(level), nil
}

// ResolveRiskEvents marks all unresolved risk events as resolved.
func (s *Store) ResolveRiskEvents(ctx context.Context, resolvedBy string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE risk_events SET resolved = true, resolved_by = $1 WHERE NOT resolved`, resolvedBy)
	if err != nil {
		return fmt.Errorf("store: resolve risk events: %w", err)
	}
	return nil
}
