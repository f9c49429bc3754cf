// Package execution holds the risk gate and the order executor. The risk
// manager has absolute authority: every trade passes through it and it can
// veto anything.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/internal/config"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// Hard maximums. Settings are clamped to these and can never exceed them.
const (
	HardMaxPositionPct    = 10.0
	HardMaxDailyLossPct   = 5.0
	HardMaxWeeklyLossPct  = 10.0
	HardMaxMonthlyLossPct = 15.0
	HardMaxDrawdownPct    = 20.0
	HardMaxOpenPositions  = 15
	HardMaxTradesPerDay   = 20
)

// Pre-trade gate thresholds.
const (
	minTradeConfidence = 0.60
	maxVIX             = 35.0
	highVIX            = 25.0
	maxExposurePct     = 80.0
	maxSectorPct       = 30.0
	maxSingleStockPct  = 15.0
)

// CheckResult is the outcome of a pre-trade validation.
type CheckResult struct {
	Approved        bool     `json:"approved"`
	Reason          string   `json:"reason,omitempty"`
	AdjustedSizePct float64  `json:"adjusted_size_pct,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// RiskEventStore persists circuit-breaker transitions.
type RiskEventStore interface {
	InsertRiskEvent(ctx context.Context, ev *types.RiskEvent) error
}

// RiskManager evaluates circuit breakers and runs the pre-trade gate.
// It is driven by the trading loop goroutine; level is not guarded.
type RiskManager struct {
	settings *config.Settings
	store    RiskEventStore
	journal  *audit.Journal
	logger   *zap.Logger
	level    types.CircuitLevel
	now      func() time.Time
	market   *time.Location
}

// NewRiskManager creates a risk manager starting at the given breaker level.
// Pass the level persisted in risk_events so restarts do not silently clear
// an active breaker.
func NewRiskManager(settings *config.Settings, store RiskEventStore, journal *audit.Journal, level types.CircuitLevel, logger *zap.Logger) *RiskManager {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	if level == "" {
		level = types.CircuitNone
	}
	circuitLevelGauge.Set(circuitLevelValue(level))
	return &RiskManager{
		settings: settings,
		store:    store,
		journal:  journal,
		logger:   logger.Named("risk"),
		level:    level,
		now:      time.Now,
		market:   loc,
	}
}

// Level returns the current circuit breaker level.
func (r *RiskManager) Level() types.CircuitLevel { return r.level }

// Effective limits, clamped to the hard maximums.

func (r *RiskManager) MaxPositionPct() float64 {
	return min(r.settings.MaxPositionPct, HardMaxPositionPct)
}

func (r *RiskManager) MaxDailyLossPct() float64 {
	return min(r.settings.MaxDailyLossPct, HardMaxDailyLossPct)
}

func (r *RiskManager) MaxWeeklyLossPct() float64 {
	return min(r.settings.MaxWeeklyLossPct, HardMaxWeeklyLossPct)
}

func (r *RiskManager) MaxMonthlyLossPct() float64 {
	return min(r.settings.MaxMonthlyLossPct, HardMaxMonthlyLossPct)
}

func (r *RiskManager) MaxDrawdownPct() float64 {
	return min(r.settings.MaxDrawdownPct, HardMaxDrawdownPct)
}

func (r *RiskManager) MaxOpenPositions() int {
	return min(r.settings.MaxOpenPositions, HardMaxOpenPositions)
}

func (r *RiskManager) MaxTradesPerDay() int {
	return min(r.settings.MaxTradesPerDay, HardMaxTradesPerDay)
}

// PreTradeCheck runs the full ten-step gate. Any failed step rejects the
// trade; size-reducing steps accumulate warnings instead.
func (r *RiskManager) PreTradeCheck(ctx context.Context, symbol string, action types.Action, confidence, positionPct float64, portfolio *types.PortfolioSnapshot, mc *types.MarketContext, chainID uuid.UUID) CheckResult {
	result := r.runGate(ctx, symbol, action, confidence, positionPct, portfolio, mc, chainID)
	if !result.Approved {
		riskRejections.Inc()
	}
	return result
}

func (r *RiskManager) runGate(ctx context.Context, symbol string, action types.Action, confidence, positionPct float64, portfolio *types.PortfolioSnapshot, mc *types.MarketContext, chainID uuid.UUID) CheckResult {
	var warnings []string

	// 1. Circuit breaker status
	if r.level == types.CircuitRed {
		return CheckResult{Reason: "RED circuit breaker active - system halted"}
	}
	if r.level == types.CircuitOrange && action != types.ActionSell {
		return CheckResult{Reason: "ORANGE circuit breaker - only exits allowed"}
	}

	// 2. Minimum confidence
	if confidence < minTradeConfidence {
		return CheckResult{Reason: fmt.Sprintf("Confidence %.1f%% below minimum %.1f%%",
			confidence*100, minTradeConfidence*100)}
	}

	// 3. Daily trade limit
	if portfolio.TradesToday >= r.MaxTradesPerDay() {
		return CheckResult{Reason: fmt.Sprintf("Daily trade limit reached (%d/%d)",
			portfolio.TradesToday, r.MaxTradesPerDay())}
	}

	// 4. Position size cap, halved under YELLOW
	adjustedPct := min(positionPct, r.MaxPositionPct())
	if r.level == types.CircuitYellow {
		adjustedPct *= 0.5
		warnings = append(warnings, "YELLOW circuit breaker - position size halved")
	}

	// 5. VIX regime
	if mc.VIX > maxVIX {
		return CheckResult{Reason: fmt.Sprintf("VIX (%.1f) exceeds max threshold (%.1f)", mc.VIX, maxVIX)}
	}
	if mc.VIX > highVIX {
		adjustedPct *= 0.5
		warnings = append(warnings, fmt.Sprintf("High VIX (%.1f) - position size halved", mc.VIX))
	}

	// 6. Portfolio exposure
	if portfolio.TotalExposurePct+adjustedPct > maxExposurePct {
		return CheckResult{Reason: fmt.Sprintf("Total exposure (%.1f%%) would exceed %.1f%%",
			portfolio.TotalExposurePct+adjustedPct, maxExposurePct)}
	}

	// 7. Open position count (entries only)
	if action == types.ActionBuy && portfolio.OpenPositionsCount >= r.MaxOpenPositions() {
		return CheckResult{Reason: fmt.Sprintf("Max open positions reached (%d/%d)",
			portfolio.OpenPositionsCount, r.MaxOpenPositions())}
	}

	// 8. Sector concentration warns but does not block
	for sector, pct := range portfolio.SectorExposure {
		if pct > maxSectorPct {
			warnings = append(warnings, fmt.Sprintf("Sector %s exposure (%.1f%%) exceeds recommended %.1f%%",
				sector, pct, maxSectorPct))
		}
	}

	// 9. Single stock cap
	if adjustedPct > maxSingleStockPct {
		adjustedPct = maxSingleStockPct
		warnings = append(warnings, fmt.Sprintf("Position capped to %.1f%% single stock limit", maxSingleStockPct))
	}

	// 10. Market timing: skip the open rush and the closing auction window
	now := r.now().In(r.market)
	sinceOpen := now.Hour()*60 + now.Minute() - (9*60 + 30)
	toClose := 16*60 - (now.Hour()*60 + now.Minute())
	if sinceOpen > 0 && sinceOpen < 15 {
		return CheckResult{Reason: "No trades in first 15 minutes after open"}
	}
	if toClose > 0 && toClose < 10 {
		return CheckResult{Reason: "No trades in last 10 minutes before close"}
	}

	r.journal.Record(ctx, types.AuditEntry{
		EventType: "risk_check_passed",
		Component: "risk_manager",
		Symbol:    symbol,
		Details: map[string]any{
			"symbol":            symbol,
			"action":            string(action),
			"confidence":        confidence,
			"original_size_pct": positionPct,
			"adjusted_size_pct": adjustedPct,
			"warnings":          warnings,
			"circuit_breaker":   string(r.level),
		},
		DecisionChainID: &chainID,
	})

	return CheckResult{Approved: true, AdjustedSizePct: adjustedPct, Warnings: warnings}
}

// Evaluate compares portfolio losses against the breaker thresholds, most
// severe level first, and records any transition.
func (r *RiskManager) Evaluate(ctx context.Context, portfolio *types.PortfolioSnapshot) (types.CircuitLevel, error) {
	dailyLoss := lossPct(portfolio.DailyPnLPct)
	weeklyLoss := lossPct(portfolio.WeeklyPnLPct)
	monthlyLoss := lossPct(portfolio.MonthlyPnLPct)
	drawdown := portfolio.CurrentDrawdownPct

	oldLevel := r.level
	switch {
	case monthlyLoss > r.MaxMonthlyLossPct() || drawdown > r.MaxDrawdownPct():
		r.level = types.CircuitRed
	case dailyLoss > r.MaxDailyLossPct() || weeklyLoss > r.MaxWeeklyLossPct():
		r.level = types.CircuitOrange
	case dailyLoss > r.MaxDailyLossPct()*0.5:
		r.level = types.CircuitYellow
	default:
		r.level = types.CircuitNone
	}

	circuitLevelGauge.Set(circuitLevelValue(r.level))
	if r.level == oldLevel {
		return r.level, nil
	}

	r.logger.Warn("circuit breaker changed",
		zap.String("old", string(oldLevel)),
		zap.String("new", string(r.level)))

	details := map[string]any{
		"daily_loss_pct":   dailyLoss,
		"weekly_loss_pct":  weeklyLoss,
		"monthly_loss_pct": monthlyLoss,
		"drawdown_pct":     drawdown,
		"old_level":        string(oldLevel),
		"new_level":        string(r.level),
	}
	event := &types.RiskEvent{
		Level: r.level,
		TriggerReason: fmt.Sprintf("daily=%.2f%% weekly=%.2f%% monthly=%.2f%% drawdown=%.2f%%",
			dailyLoss, weeklyLoss, monthlyLoss, drawdown),
		TriggerValue:   max(max(dailyLoss, weeklyLoss), max(monthlyLoss, drawdown)),
		ThresholdValue: r.MaxDailyLossPct(),
		ActionTaken:    breakerAction(r.level),
		Details:        details,
	}
	if err := r.store.InsertRiskEvent(ctx, event); err != nil {
		return r.level, fmt.Errorf("risk: persist breaker event: %w", err)
	}

	severity := types.SeverityWarning
	if r.level == types.CircuitRed {
		severity = types.SeverityCritical
	}
	r.journal.Record(ctx, types.AuditEntry{
		EventType: "circuit_breaker_activated",
		Severity:  severity,
		Component: "risk_manager",
		Details:   details,
	})

	return r.level, nil
}

// EmergencyStop forces the RED breaker immediately.
func (r *RiskManager) EmergencyStop(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "Manual emergency stop"
	}
	r.level = types.CircuitRed
	circuitLevelGauge.Set(circuitLevelValue(r.level))
	r.logger.Error("EMERGENCY STOP ACTIVATED", zap.String("reason", reason))

	event := &types.RiskEvent{
		Level:         types.CircuitRed,
		TriggerReason: reason,
		ActionTaken:   "emergency_close_all_halt_system",
		Details:       map[string]any{"manual": true, "reason": reason},
	}
	if err := r.store.InsertRiskEvent(ctx, event); err != nil {
		return fmt.Errorf("risk: persist emergency stop: %w", err)
	}

	r.journal.Record(ctx, types.AuditEntry{
		EventType: "emergency_stop_activated",
		Severity:  types.SeverityCritical,
		Component: "risk_manager",
		Details:   map[string]any{"reason": reason},
	})
	return nil
}

// Resume clears the breaker back to NONE after manual intervention.
func (r *RiskManager) Resume(resolvedBy string) {
	r.logger.Warn("circuit breaker manually cleared", zap.String("resolved_by", resolvedBy))
	r.level = types.CircuitNone
	circuitLevelGauge.Set(0)
}

func breakerAction(level types.CircuitLevel) string {
	switch level {
	case types.CircuitYellow:
		return "reduce_position_sizes_50pct"
	case types.CircuitOrange:
		return "halt_new_trades_allow_exits"
	case types.CircuitRed:
		return "close_all_positions_halt_system"
	}
	return "normal_trading"
}

func lossPct(pnlPct float64) float64 {
	if pnlPct < 0 {
		return -pnlPct
	}
	return 0
}
