// Package audit appends decision-chain events to the audit log.
package audit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// Redacted replaces the value of any sensitive key in audit details.
const Redacted = "***REDACTED***"

var sensitiveFragments = []string{"password", "token", "secret", "key", "jwt"}

// Recorder is the persistence surface the journal writes through.
type Recorder interface {
	InsertAuditEntry(ctx context.Context, e types.AuditEntry) error
}

// Journal writes append-only audit entries. Writes are best-effort: a failed
// insert is logged and dropped so audit can never take down the pipeline.
type Journal struct {
	store  Recorder
	logger *zap.Logger
}

// New creates an audit journal.
func New(store Recorder, logger *zap.Logger) *Journal {
	return &Journal{store: store, logger: logger.Named("audit")}
}

// Record appends one entry. Missing timestamp and severity get defaults and
// details are redacted before the write.
func (j *Journal) Record(ctx context.Context, e types.AuditEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = types.SeverityInfo
	}
	e.Details = Redact(e.Details)

	if err := j.store.InsertAuditEntry(ctx, e); err != nil {
		j.logger.Error("audit write failed",
			zap.String("event_type", e.EventType),
			zap.Error(err))
	}
}

// Redact returns a copy of details with every sensitive value replaced.
// A key is sensitive if its lowercased name contains password, token,
// secret, key, or jwt. Redaction recurses through nested maps and lists.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		if isSensitive(k) {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Redact(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
