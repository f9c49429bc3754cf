// Package portfolio builds point-in-time account snapshots: positions,
// rolling P&L, exposure, and the equity curve used by the circuit breakers.
package portfolio

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/alpaca"
	"github.com/halcyon-desk/trading-engine/internal/analyst"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// AccountFeed is the broker surface the tracker reads from.
type AccountFeed interface {
	GetAccount(ctx context.Context) (*alpaca.Account, error)
	GetPositions(ctx context.Context) ([]alpaca.Position, error)
}

// SnapshotStore persists snapshots and answers the historical queries the
// rolling P&L windows need.
type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, snap *types.PortfolioSnapshot) error
	SnapshotBefore(ctx context.Context, cutoff time.Time) (*types.PortfolioSnapshot, error)
	PeakEquity(ctx context.Context) (float64, error)
	TradesSince(ctx context.Context, cutoff time.Time) (int, error)
}

// Tracker assembles and persists portfolio snapshots.
type Tracker struct {
	feed   AccountFeed
	store  SnapshotStore
	logger *zap.Logger
	now    func() time.Time
	market *time.Location
}

// NewTracker creates a portfolio tracker.
func NewTracker(feed AccountFeed, store SnapshotStore, logger *zap.Logger) *Tracker {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	return &Tracker{
		feed:   feed,
		store:  store,
		logger: logger.Named("portfolio"),
		now:    time.Now,
		market: loc,
	}
}

// Snapshot fetches the live account picture, derives rolling P&L from
// stored history, and persists the result.
func (t *Tracker) Snapshot(ctx context.Context) (*types.PortfolioSnapshot, error) {
	account, err := t.feed.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: fetch account: %w", err)
	}
	positions, err := t.feed.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: fetch positions: %w", err)
	}

	equity := account.Equity.Float()
	cash := account.Cash.Float()
	marketValue := account.LongMarketValue.Float() + math.Abs(account.ShortMarketValue.Float())

	lastEquity := account.LastEquity.Float()
	if lastEquity == 0 {
		lastEquity = equity
	}
	dailyPnL := equity - lastEquity
	dailyPnLPct := 0.0
	if lastEquity > 0 {
		dailyPnLPct = dailyPnL / lastEquity * 100
	}

	positionDetails := make(map[string]types.PositionDetail, len(positions))
	sectorExposure := make(map[string]float64)
	for _, pos := range positions {
		mv := math.Abs(pos.MarketValue.Float())
		positionDetails[pos.Symbol] = types.PositionDetail{
			Shares:           int64(pos.Qty.Float()),
			Side:             pos.Side,
			EntryPrice:       pos.AvgEntryPrice.Float(),
			CurrentPrice:     pos.CurrentPrice.Float(),
			MarketValue:      mv,
			UnrealizedPnL:    pos.UnrealizedPL.Float(),
			UnrealizedPnLPct: pos.UnrealizedPLPC.Float() * 100,
		}
		if equity > 0 {
			sectorExposure[analyst.Sector(pos.Symbol)] += mv / equity * 100
		}
	}

	totalExposurePct := 0.0
	if equity > 0 {
		totalExposurePct = marketValue / equity * 100
	}

	now := t.now().UTC()
	weeklyPnL, weeklyPnLPct := t.pnlSince(ctx, now.AddDate(0, 0, -7), equity)
	monthlyPnL, monthlyPnLPct := t.pnlSince(ctx, now.AddDate(0, -1, 0), equity)

	// Peak equity only ratchets upward across the snapshot history.
	peak, err := t.store.PeakEquity(ctx)
	if err != nil {
		t.logger.Warn("peak equity lookup failed", zap.Error(err))
	}
	peak = math.Max(peak, equity)
	drawdown := 0.0
	if peak > 0 {
		drawdown = math.Max(0, (peak-equity)/peak*100)
	}

	tradesToday, err := t.store.TradesSince(ctx, t.marketMidnight())
	if err != nil {
		t.logger.Warn("trade count lookup failed", zap.Error(err))
	}

	snap := &types.PortfolioSnapshot{
		Timestamp:          now,
		TotalEquity:        equity,
		Cash:               cash,
		MarketValue:        marketValue,
		DailyPnL:           dailyPnL,
		DailyPnLPct:        dailyPnLPct,
		WeeklyPnL:          weeklyPnL,
		WeeklyPnLPct:       weeklyPnLPct,
		MonthlyPnL:         monthlyPnL,
		MonthlyPnLPct:      monthlyPnLPct,
		PeakEquity:         peak,
		CurrentDrawdownPct: drawdown,
		TotalExposurePct:   totalExposurePct,
		OpenPositionsCount: len(positions),
		Positions:          positionDetails,
		SectorExposure:     sectorExposure,
		TradesToday:        tradesToday,
	}
	if err := t.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	t.logger.Info("portfolio snapshot",
		zap.Float64("equity", equity),
		zap.Int("positions", len(positions)),
		zap.Float64("exposure_pct", totalExposurePct),
		zap.Float64("daily_pnl", dailyPnL))

	return snap, nil
}

// pnlSince derives a rolling P&L window from the closest snapshot at or
// before the cutoff. No baseline means no window yet.
func (t *Tracker) pnlSince(ctx context.Context, cutoff time.Time, equity float64) (pnl, pct float64) {
	base, err := t.store.SnapshotBefore(ctx, cutoff)
	if err != nil {
		t.logger.Warn("baseline snapshot lookup failed",
			zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, 0
	}
	if base == nil || base.TotalEquity <= 0 {
		return 0, 0
	}
	pnl = equity - base.TotalEquity
	return pnl, pnl / base.TotalEquity * 100
}

// marketMidnight is the start of the current trading day in New York.
func (t *Tracker) marketMidnight() time.Time {
	now := t.now().In(t.market)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, t.market)
}
