package portfolio

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/alpaca"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

type fakeFeed struct {
	account   *alpaca.Account
	positions []alpaca.Position
}

func (f *fakeFeed) GetAccount(context.Context) (*alpaca.Account, error) { return f.account, nil }
func (f *fakeFeed) GetPositions(context.Context) ([]alpaca.Position, error) {
	return f.positions, nil
}

type fakeSnapshotStore struct {
	saved       []*types.PortfolioSnapshot
	weekBase    *types.PortfolioSnapshot
	monthBase   *types.PortfolioSnapshot
	peak        float64
	tradesToday int
}

func (f *fakeSnapshotStore) InsertSnapshot(_ context.Context, snap *types.PortfolioSnapshot) error {
	snap.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeSnapshotStore) SnapshotBefore(_ context.Context, cutoff time.Time) (*types.PortfolioSnapshot, error) {
	// The week cutoff is within the last 8 days, the month cutoff earlier.
	if time.Since(cutoff) < 8*24*time.Hour {
		return f.weekBase, nil
	}
	return f.monthBase, nil
}

func (f *fakeSnapshotStore) PeakEquity(context.Context) (float64, error) { return f.peak, nil }

func (f *fakeSnapshotStore) TradesSince(context.Context, time.Time) (int, error) {
	return f.tradesToday, nil
}

func testFeed() *fakeFeed {
	return &fakeFeed{
		account: &alpaca.Account{
			Equity:          105000,
			LastEquity:      100000,
			Cash:            55000,
			LongMarketValue: 50000,
		},
		positions: []alpaca.Position{
			{
				Symbol: "AAPL", Qty: 100, Side: "long",
				AvgEntryPrice: 180, CurrentPrice: 200,
				MarketValue: 20000, UnrealizedPL: 2000, UnrealizedPLPC: 0.111,
			},
			{
				Symbol: "JPM", Qty: 150, Side: "long",
				AvgEntryPrice: 190, CurrentPrice: 200,
				MarketValue: 30000, UnrealizedPL: 1500, UnrealizedPLPC: 0.052,
			},
		},
	}
}

func TestSnapshotComputesPnLAndExposure(t *testing.T) {
	store := &fakeSnapshotStore{
		weekBase:    &types.PortfolioSnapshot{TotalEquity: 100000},
		monthBase:   &types.PortfolioSnapshot{TotalEquity: 90000},
		peak:        110000,
		tradesToday: 3,
	}
	tracker := NewTracker(testFeed(), store, zap.NewNop())

	snap, err := tracker.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	if snap.TotalEquity != 105000 || snap.Cash != 55000 {
		t.Errorf("equity/cash = %v/%v", snap.TotalEquity, snap.Cash)
	}
	if snap.DailyPnL != 5000 || snap.DailyPnLPct != 5 {
		t.Errorf("daily pnl = %v (%v%%)", snap.DailyPnL, snap.DailyPnLPct)
	}
	if snap.WeeklyPnL != 5000 || snap.WeeklyPnLPct != 5 {
		t.Errorf("weekly pnl = %v (%v%%)", snap.WeeklyPnL, snap.WeeklyPnLPct)
	}
	if snap.MonthlyPnL != 15000 || math.Abs(snap.MonthlyPnLPct-16.6666) > 0.01 {
		t.Errorf("monthly pnl = %v (%v%%)", snap.MonthlyPnL, snap.MonthlyPnLPct)
	}
	// 50000 market value over 105000 equity.
	if math.Abs(snap.TotalExposurePct-47.619) > 0.01 {
		t.Errorf("exposure = %v%%", snap.TotalExposurePct)
	}
	if snap.OpenPositionsCount != 2 || snap.TradesToday != 3 {
		t.Errorf("counts = %d/%d", snap.OpenPositionsCount, snap.TradesToday)
	}
	if len(store.saved) != 1 {
		t.Error("snapshot not persisted")
	}
}

func TestSnapshotPeakEquityIsMonotonic(t *testing.T) {
	// Historical peak above current equity holds, drawdown is positive.
	store := &fakeSnapshotStore{peak: 120000}
	tracker := NewTracker(testFeed(), store, zap.NewNop())

	snap, err := tracker.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.PeakEquity != 120000 {
		t.Errorf("peak = %v, want 120000", snap.PeakEquity)
	}
	if math.Abs(snap.CurrentDrawdownPct-12.5) > 1e-9 {
		t.Errorf("drawdown = %v%%, want 12.5", snap.CurrentDrawdownPct)
	}

	// New equity high ratchets the peak up and zeroes the drawdown.
	store.peak = 100000
	snap, err = tracker.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.PeakEquity != 105000 || snap.CurrentDrawdownPct != 0 {
		t.Errorf("peak/drawdown = %v/%v", snap.PeakEquity, snap.CurrentDrawdownPct)
	}
}

func TestSnapshotSectorExposure(t *testing.T) {
	store := &fakeSnapshotStore{}
	tracker := NewTracker(testFeed(), store, zap.NewNop())

	snap, err := tracker.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	// AAPL 20000 -> Technology, JPM 30000 -> Financials, over 105000 equity.
	if math.Abs(snap.SectorExposure["Technology"]-19.0476) > 0.01 {
		t.Errorf("tech exposure = %v", snap.SectorExposure["Technology"])
	}
	if math.Abs(snap.SectorExposure["Financials"]-28.5714) > 0.01 {
		t.Errorf("financials exposure = %v", snap.SectorExposure["Financials"])
	}
}

func TestSnapshotPositionDetails(t *testing.T) {
	tracker := NewTracker(testFeed(), &fakeSnapshotStore{}, zap.NewNop())
	snap, err := tracker.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	aapl, ok := snap.Positions["AAPL"]
	if !ok {
		t.Fatal("AAPL position missing")
	}
	if aapl.Shares != 100 || aapl.EntryPrice != 180 || aapl.CurrentPrice != 200 {
		t.Errorf("position = %+v", aapl)
	}
	if math.Abs(aapl.UnrealizedPnLPct-11.1) > 1e-9 {
		t.Errorf("pnl pct = %v", aapl.UnrealizedPnLPct)
	}
}

func TestSnapshotNoHistoryMeansNoRollingWindows(t *testing.T) {
	tracker := NewTracker(testFeed(), &fakeSnapshotStore{}, zap.NewNop())
	snap, err := tracker.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.WeeklyPnL != 0 || snap.MonthlyPnLPct != 0 {
		t.Errorf("rolling pnl without history = %v/%v", snap.WeeklyPnL, snap.MonthlyPnLPct)
	}
}
