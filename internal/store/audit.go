package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// InsertAuditEntry appends one audit row. Entries are never updated.
func (s *Store) InsertAuditEntry(ctx context.Context, e types.AuditEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_log (timestamp, event_type, severity, component, symbol, details, decision_chain_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		e.Timestamp, e.EventType, string(e.Severity), e.Component, e.Symbol,
		e.Details, e.DecisionChainID)
	if err != nil {
		return fmt.Errorf("store: insert audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns the newest audit entries, most recent first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, timestamp, event_type, severity, component, COALESCE(symbol, ''), details, decision_chain_id
		FROM audit_log
		ORDER BY timestamp DESC
		LIMIT $1`, limit)
}

// AuditByChain returns every audit entry on one decision chain, oldest first.
func (s *Store) AuditByChain(ctx context.Context, chainID uuid.UUID) ([]types.AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, timestamp, event_type, severity, component, COALESCE(symbol, ''), details, decision_chain_id
		FROM audit_log
		WHERE decision_chain_id = $1
		ORDER BY timestamp ASC`, chainID)
}

func (s *Store) queryAudit(ctx context.Context, sql string, args ...any) ([]types.AuditEntry, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit: %w", err)
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var severity string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &severity,
			&e.Component, &e.Symbol, &e.Details, &e.DecisionChainID); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.Severity = types.Severity(severity)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
