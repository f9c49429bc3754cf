package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/internal/config"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

type fakeRiskStore struct {
	events []*types.RiskEvent
}

func (f *fakeRiskStore) InsertRiskEvent(_ context.Context, ev *types.RiskEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeRecorder struct {
	entries []types.AuditEntry
}

func (f *fakeRecorder) InsertAuditEntry(_ context.Context, entry types.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func testSettings() *config.Settings {
	return &config.Settings{
		MaxPositionPct:    5,
		MaxDailyLossPct:   3,
		MaxWeeklyLossPct:  5,
		MaxMonthlyLossPct: 8,
		MaxDrawdownPct:    12,
		MaxOpenPositions:  8,
		MaxTradesPerDay:   10,
	}
}

func newTestRisk(t *testing.T, settings *config.Settings) (*RiskManager, *fakeRiskStore, *fakeRecorder) {
	t.Helper()
	store := &fakeRiskStore{}
	rec := &fakeRecorder{}
	journal := audit.New(rec, zap.NewNop())
	rm := NewRiskManager(settings, store, journal, types.CircuitNone, zap.NewNop())
	// Pin the clock to mid-session so timing checks stay out of the way.
	rm.now = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, rm.market)
	}
	return rm, store, rec
}

func healthyPortfolio() *types.PortfolioSnapshot {
	return &types.PortfolioSnapshot{
		TotalEquity:        100000,
		TotalExposurePct:   20,
		OpenPositionsCount: 3,
		TradesToday:        2,
	}
}

func calmMarket() *types.MarketContext {
	return &types.MarketContext{VIX: 18}
}

func TestLimitsClampToHardMaximums(t *testing.T) {
	settings := &config.Settings{
		MaxPositionPct:    50,
		MaxDailyLossPct:   50,
		MaxWeeklyLossPct:  50,
		MaxMonthlyLossPct: 50,
		MaxDrawdownPct:    50,
		MaxOpenPositions:  100,
		MaxTradesPerDay:   100,
	}
	rm, _, _ := newTestRisk(t, settings)

	if rm.MaxPositionPct() != HardMaxPositionPct {
		t.Errorf("position pct = %v", rm.MaxPositionPct())
	}
	if rm.MaxDailyLossPct() != HardMaxDailyLossPct {
		t.Errorf("daily loss = %v", rm.MaxDailyLossPct())
	}
	if rm.MaxDrawdownPct() != HardMaxDrawdownPct {
		t.Errorf("drawdown = %v", rm.MaxDrawdownPct())
	}
	if rm.MaxOpenPositions() != HardMaxOpenPositions {
		t.Errorf("open positions = %v", rm.MaxOpenPositions())
	}
	if rm.MaxTradesPerDay() != HardMaxTradesPerDay {
		t.Errorf("trades per day = %v", rm.MaxTradesPerDay())
	}
}

func TestEvaluateBreakerLevels(t *testing.T) {
	cases := []struct {
		name     string
		daily    float64
		weekly   float64
		monthly  float64
		drawdown float64
		want     types.CircuitLevel
	}{
		{"healthy", 0.5, 1, 1, 2, types.CircuitNone},
		{"yellow at half daily limit", -1.6, 0, 0, 0, types.CircuitYellow},
		{"orange on daily breach", -3.5, 0, 0, 0, types.CircuitOrange},
		{"orange on weekly breach", 0, -5.5, 0, 0, types.CircuitOrange},
		{"red on monthly breach", 0, 0, -9, 0, types.CircuitRed},
		{"red on drawdown breach", 0, 0, 0, 13, types.CircuitRed},
		{"red wins over orange", -4, 0, -9, 0, types.CircuitRed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rm, _, _ := newTestRisk(t, testSettings())
			level, err := rm.Evaluate(context.Background(), &types.PortfolioSnapshot{
				DailyPnLPct:        tc.daily,
				WeeklyPnLPct:       tc.weekly,
				MonthlyPnLPct:      tc.monthly,
				CurrentDrawdownPct: tc.drawdown,
			})
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if level != tc.want {
				t.Errorf("level = %s, want %s", level, tc.want)
			}
		})
	}
}

func TestEvaluateRecordsTransition(t *testing.T) {
	rm, store, rec := newTestRisk(t, testSettings())

	level, err := rm.Evaluate(context.Background(), &types.PortfolioSnapshot{
		MonthlyPnLPct: -9,
	})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if level != types.CircuitRed {
		t.Fatalf("level = %s, want RED", level)
	}

	if len(store.events) != 1 {
		t.Fatalf("expected 1 risk event, got %d", len(store.events))
	}
	ev := store.events[0]
	if ev.Level != types.CircuitRed {
		t.Errorf("event level = %s", ev.Level)
	}
	if ev.TriggerReason != "daily=0.00% weekly=0.00% monthly=9.00% drawdown=0.00%" {
		t.Errorf("trigger reason = %q", ev.TriggerReason)
	}
	if ev.ActionTaken != "close_all_positions_halt_system" {
		t.Errorf("action = %q", ev.ActionTaken)
	}
	if ev.TriggerValue != 9 {
		t.Errorf("trigger value = %v", ev.TriggerValue)
	}

	if len(rec.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(rec.entries))
	}
	entry := rec.entries[0]
	if entry.EventType != "circuit_breaker_activated" || entry.Severity != types.SeverityCritical {
		t.Errorf("audit = %s/%s", entry.EventType, entry.Severity)
	}

	// Re-evaluating at the same level writes nothing new.
	if _, err := rm.Evaluate(context.Background(), &types.PortfolioSnapshot{MonthlyPnLPct: -9}); err != nil {
		t.Fatal(err)
	}
	if len(store.events) != 1 {
		t.Error("unchanged level must not write another event")
	}
}

func TestEvaluateNonRedIsWarningSeverity(t *testing.T) {
	rm, _, rec := newTestRisk(t, testSettings())
	if _, err := rm.Evaluate(context.Background(), &types.PortfolioSnapshot{DailyPnLPct: -3.5}); err != nil {
		t.Fatal(err)
	}
	if len(rec.entries) != 1 || rec.entries[0].Severity != types.SeverityWarning {
		t.Errorf("ORANGE transition should audit at WARNING, got %+v", rec.entries)
	}
}

func TestPreTradeCheckApprovesCleanTrade(t *testing.T) {
	rm, _, rec := newTestRisk(t, testSettings())

	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if !result.Approved {
		t.Fatalf("rejected: %s", result.Reason)
	}
	if result.AdjustedSizePct != 5 {
		t.Errorf("adjusted size = %v, want 5", result.AdjustedSizePct)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	if len(rec.entries) != 1 || rec.entries[0].EventType != "risk_check_passed" {
		t.Errorf("expected risk_check_passed audit, got %+v", rec.entries)
	}
}

func TestPreTradeCheckCircuitBreakers(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())

	rm.level = types.CircuitRed
	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if result.Approved || result.Reason != "RED circuit breaker active - system halted" {
		t.Errorf("RED result = %+v", result)
	}

	rm.level = types.CircuitOrange
	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if result.Approved {
		t.Error("ORANGE must reject entries")
	}
	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionSell, 0.78, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if !result.Approved {
		t.Errorf("ORANGE must allow exits: %s", result.Reason)
	}

	rm.level = types.CircuitYellow
	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if !result.Approved {
		t.Fatalf("YELLOW must still approve: %s", result.Reason)
	}
	if result.AdjustedSizePct != 2.5 {
		t.Errorf("YELLOW size = %v, want halved 2.5", result.AdjustedSizePct)
	}
}

func TestPreTradeCheckConfidenceFloor(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())
	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.55, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if result.Approved {
		t.Fatal("0.55 must be rejected")
	}
	if !strings.Contains(result.Reason, "below minimum") {
		t.Errorf("reason = %q", result.Reason)
	}
	// Exactly at the floor passes.
	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.60, 5,
		healthyPortfolio(), calmMarket(), uuid.New())
	if !result.Approved {
		t.Errorf("0.60 should pass: %s", result.Reason)
	}
}

func TestPreTradeCheckDailyTradeLimit(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())
	p := healthyPortfolio()
	p.TradesToday = 10
	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		p, calmMarket(), uuid.New())
	if result.Approved || result.Reason != "Daily trade limit reached (10/10)" {
		t.Errorf("result = %+v", result)
	}
}

func TestPreTradeCheckVIX(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())

	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), &types.MarketContext{VIX: 36}, uuid.New())
	if result.Approved {
		t.Fatal("VIX 36 must be rejected")
	}
	if result.Reason != "VIX (36.0) exceeds max threshold (35.0)" {
		t.Errorf("reason = %q", result.Reason)
	}

	// 35 exactly is allowed but halves size through the elevated band.
	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), &types.MarketContext{VIX: 35}, uuid.New())
	if !result.Approved {
		t.Fatalf("VIX 35 should pass: %s", result.Reason)
	}
	if result.AdjustedSizePct != 2.5 || len(result.Warnings) != 1 {
		t.Errorf("elevated VIX result = %+v", result)
	}

	// 25 exactly is the calm side of the elevated band.
	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		healthyPortfolio(), &types.MarketContext{VIX: 25}, uuid.New())
	if result.AdjustedSizePct != 5 || len(result.Warnings) != 0 {
		t.Errorf("VIX 25 result = %+v", result)
	}
}

func TestPreTradeCheckExposureCap(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())
	p := healthyPortfolio()
	p.TotalExposurePct = 78
	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		p, calmMarket(), uuid.New())
	if result.Approved {
		t.Fatal("exposure beyond 80% must be rejected")
	}
	if !strings.Contains(result.Reason, "would exceed 80.0%") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestPreTradeCheckOpenPositionsOnlyGatesBuys(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())
	p := healthyPortfolio()
	p.OpenPositionsCount = 8

	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		p, calmMarket(), uuid.New())
	if result.Approved || result.Reason != "Max open positions reached (8/8)" {
		t.Errorf("BUY result = %+v", result)
	}

	result = rm.PreTradeCheck(context.Background(), "AAPL", types.ActionSell, 0.78, 5,
		p, calmMarket(), uuid.New())
	if !result.Approved {
		t.Errorf("SELL must bypass position count: %s", result.Reason)
	}
}

func TestPreTradeCheckSectorWarning(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())
	p := healthyPortfolio()
	p.SectorExposure = map[string]float64{"Technology": 34.2}

	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
		p, calmMarket(), uuid.New())
	if !result.Approved {
		t.Fatalf("sector concentration must warn, not reject: %s", result.Reason)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "Technology") {
		t.Errorf("warnings = %v", result.Warnings)
	}
}

func TestPreTradeCheckSingleStockCap(t *testing.T) {
	settings := testSettings()
	settings.MaxPositionPct = 10
	rm, _, _ := newTestRisk(t, settings)

	// Request 20%: clamps to max 10 first, below the 15% single stock cap.
	result := rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 20,
		healthyPortfolio(), calmMarket(), uuid.New())
	if !result.Approved || result.AdjustedSizePct != 10 {
		t.Errorf("result = %+v", result)
	}
}

func TestPreTradeCheckMarketTiming(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())

	atET := func(hour, minute int) func() time.Time {
		return func() time.Time {
			return time.Date(2026, 8, 24, hour, minute, 0, 0, rm.market)
		}
	}
	check := func() CheckResult {
		return rm.PreTradeCheck(context.Background(), "AAPL", types.ActionBuy, 0.78, 5,
			healthyPortfolio(), calmMarket(), uuid.New())
	}

	rm.now = atET(9, 44) // 14 minutes after open
	if result := check(); result.Approved || result.Reason != "No trades in first 15 minutes after open" {
		t.Errorf("9:44 result = %+v", result)
	}

	rm.now = atET(9, 45) // 15 minutes after open
	if result := check(); !result.Approved {
		t.Errorf("9:45 should pass: %s", result.Reason)
	}

	rm.now = atET(15, 51) // 9 minutes before close
	if result := check(); result.Approved || result.Reason != "No trades in last 10 minutes before close" {
		t.Errorf("15:51 result = %+v", result)
	}

	rm.now = atET(15, 50) // 10 minutes before close
	if result := check(); !result.Approved {
		t.Errorf("15:50 should pass: %s", result.Reason)
	}
}

func TestEmergencyStop(t *testing.T) {
	rm, store, rec := newTestRisk(t, testSettings())

	if err := rm.EmergencyStop(context.Background(), "operator intervention"); err != nil {
		t.Fatalf("EmergencyStop failed: %v", err)
	}
	if rm.Level() != types.CircuitRed {
		t.Errorf("level = %s, want RED", rm.Level())
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 risk event")
	}
	ev := store.events[0]
	if ev.ActionTaken != "emergency_close_all_halt_system" {
		t.Errorf("action = %q", ev.ActionTaken)
	}
	if manual, _ := ev.Details["manual"].(bool); !manual {
		t.Errorf("details = %v", ev.Details)
	}
	if len(rec.entries) != 1 || rec.entries[0].EventType != "emergency_stop_activated" ||
		rec.entries[0].Severity != types.SeverityCritical {
		t.Errorf("audit = %+v", rec.entries)
	}
}

func TestResumeClearsBreaker(t *testing.T) {
	rm, _, _ := newTestRisk(t, testSettings())
	rm.level = types.CircuitRed
	rm.Resume("operator")
	if rm.Level() != types.CircuitNone {
		t.Errorf("level = %s, want NONE", rm.Level())
	}
}

func TestStartupLevelRestored(t *testing.T) {
	store := &fakeRiskStore{}
	journal := audit.New(&fakeRecorder{}, zap.NewNop())
	rm := NewRiskManager(testSettings(), store, journal, types.CircuitOrange, zap.NewNop())
	if rm.Level() != types.CircuitOrange {
		t.Errorf("restored level = %s, want ORANGE", rm.Level())
	}
}
