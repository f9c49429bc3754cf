package execution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/alpaca"
	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// PositionSize is the sized order plan before placement.
type PositionSize struct {
	Shares        int64   `json:"shares"`
	DollarAmount  float64 `json:"dollar_amount"`
	AllocationPct float64 `json:"allocation_pct"`
	LimitPrice    float64 `json:"limit_price"`
	StopPrice     float64 `json:"stop_price"`
	TargetPrice   float64 `json:"target_price"`
	RiskReward    float64 `json:"risk_reward_ratio"`
}

// Broker is the order surface the executor needs.
type Broker interface {
	PlaceBracketOrder(ctx context.Context, order alpaca.BracketOrder) (*alpaca.Order, error)
	CancelAllOrders(ctx context.Context) (int, error)
	CloseAllPositions(ctx context.Context) (int, error)
}

// TradeStore persists placed trades.
type TradeStore interface {
	InsertTrade(ctx context.Context, t *types.Trade) error
}

// Executor runs the full placement pipeline: risk gate, sizing, bracket
// order, trade record.
type Executor struct {
	broker  Broker
	store   TradeStore
	risk    *RiskManager
	journal *audit.Journal
	logger  *zap.Logger
}

// NewExecutor creates a trade executor.
func NewExecutor(broker Broker, store TradeStore, risk *RiskManager, journal *audit.Journal, logger *zap.Logger) *Executor {
	return &Executor{
		broker:  broker,
		store:   store,
		risk:    risk,
		journal: journal,
		logger:  logger.Named("executor"),
	}
}

// CalculatePosition sizes a trade from the approved allocation, the analyst
// sizing recommendation, and an ATR-derived bracket.
func CalculatePosition(price, atr, equity, allocationPct float64, sizing types.PositionSizing) PositionSize {
	if atr <= 0 {
		atr = price * 0.02
	}

	multiplier := 0.5
	switch sizing {
	case types.SizingNormal:
		multiplier = 1.0
	case types.SizingAggressive:
		multiplier = 1.25
	}
	finalPct := allocationPct * multiplier

	dollar := equity * (finalPct / 100)
	shares := int64(0)
	if price > 0 {
		shares = int64(dollar / price)
	}
	if shares <= 0 {
		shares = 1
	}

	stop := round2(price - 2*atr)
	target := round2(price + 3*atr)
	limit := round2(price * 1.001)

	risk := price - stop
	rr := 0.0
	if risk > 0 {
		rr = round2((target - price) / risk)
	}

	return PositionSize{
		Shares:        shares,
		DollarAmount:  round2(float64(shares) * price),
		AllocationPct: round2(finalPct),
		LimitPrice:    limit,
		StopPrice:     stop,
		TargetPrice:   target,
		RiskReward:    rr,
	}
}

// Execute sizes, gates, and places one bracket order for an approved signal.
// Returns (nil, nil) when the risk gate rejects or placement fails; both
// paths leave an audit trail instead of an error.
func (e *Executor) Execute(ctx context.Context, sig *types.Signal, verdict types.Verdict, price float64, portfolio *types.PortfolioSnapshot, mc *types.MarketContext) (*types.Trade, error) {
	result := e.risk.PreTradeCheck(ctx, sig.Symbol, sig.Action, verdict.AdjustedConfidence,
		e.risk.MaxPositionPct(), portfolio, mc, sig.DecisionChainID)
	if !result.Approved {
		e.journal.Record(ctx, types.AuditEntry{
			EventType: "trade_rejected_risk",
			Component: "trade_executor",
			Symbol:    sig.Symbol,
			Details: map[string]any{
				"symbol": sig.Symbol,
				"reason": result.Reason,
			},
			DecisionChainID: &sig.DecisionChainID,
		})
		e.logger.Info("trade rejected by risk manager",
			zap.String("symbol", sig.Symbol),
			zap.String("reason", result.Reason))
		return nil, nil
	}

	allocationPct := result.AdjustedSizePct
	if allocationPct == 0 {
		allocationPct = e.risk.MaxPositionPct()
	}
	position := CalculatePosition(price, sig.Features["atr_14"], portfolio.TotalEquity,
		allocationPct, verdict.PositionSizing)
	if position.Shares <= 0 {
		e.logger.Warn("position sizing produced no shares", zap.String("symbol", sig.Symbol))
		return nil, nil
	}

	side := "sell"
	if sig.Action == types.ActionBuy {
		side = "buy"
	}

	order, err := e.broker.PlaceBracketOrder(ctx, alpaca.BracketOrder{
		Symbol:      sig.Symbol,
		Qty:         strconv.FormatInt(position.Shares, 10),
		Side:        side,
		Type:        "limit",
		LimitPrice:  formatPrice(position.LimitPrice),
		TimeInForce: "day",
		OrderClass:  "bracket",
		StopLoss:    alpaca.StopLoss{StopPrice: formatPrice(position.StopPrice)},
		TakeProfit:  alpaca.TakeProfit{LimitPrice: formatPrice(position.TargetPrice)},
	})
	if err != nil {
		e.logger.Error("order placement failed",
			zap.String("symbol", sig.Symbol), zap.Error(err))
		e.journal.Record(ctx, types.AuditEntry{
			EventType: "trade_placement_failed",
			Severity:  types.SeverityWarning,
			Component: "trade_executor",
			Symbol:    sig.Symbol,
			Details: map[string]any{
				"symbol": sig.Symbol,
				"error":  err.Error(),
			},
			DecisionChainID: &sig.DecisionChainID,
		})
		return nil, nil
	}

	trade := &types.Trade{
		DecisionChainID:   sig.DecisionChainID,
		SignalID:          sig.ID,
		BrokerOrderID:     order.ID,
		Symbol:            sig.Symbol,
		Side:              side,
		Shares:            position.Shares,
		EntryPrice:        decimal.NewFromFloat(position.LimitPrice),
		StopPrice:         decimal.NewFromFloat(position.StopPrice),
		TargetPrice:       decimal.NewFromFloat(position.TargetPrice),
		MLConfidence:      sig.Confidence,
		AnalystConfidence: verdict.AdjustedConfidence,
		AllocationPct:     position.AllocationPct,
		DollarAmount:      decimal.NewFromFloat(position.DollarAmount),
		Status:            types.TradeStatusPending,
		PlacedAt:          time.Now().UTC(),
	}
	if err := e.store.InsertTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("executor: persist trade for %s: %w", sig.Symbol, err)
	}

	e.journal.Record(ctx, types.AuditEntry{
		EventType: "trade_placed",
		Component: "trade_executor",
		Symbol:    sig.Symbol,
		Details: map[string]any{
			"symbol":         sig.Symbol,
			"side":           side,
			"shares":         position.Shares,
			"entry_price":    position.LimitPrice,
			"stop_price":     position.StopPrice,
			"target_price":   position.TargetPrice,
			"allocation_pct": position.AllocationPct,
			"risk_reward":    position.RiskReward,
			"order_id":       order.ID,
		},
		DecisionChainID: &sig.DecisionChainID,
	})

	e.logger.Info("trade placed",
		zap.String("action", string(sig.Action)),
		zap.String("symbol", sig.Symbol),
		zap.Int64("shares", position.Shares),
		zap.Float64("limit", position.LimitPrice),
		zap.Float64("stop", position.StopPrice),
		zap.Float64("target", position.TargetPrice))

	return trade, nil
}

// CancelAllOrders cancels every open order at the broker.
func (e *Executor) CancelAllOrders(ctx context.Context) (int, error) {
	count, err := e.broker.CancelAllOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: cancel all orders: %w", err)
	}
	e.journal.Record(ctx, types.AuditEntry{
		EventType: "all_orders_cancelled",
		Severity:  types.SeverityWarning,
		Component: "trade_executor",
		Details:   map[string]any{"count": count},
	})
	return count, nil
}

// CloseAllPositions liquidates every open position at market.
func (e *Executor) CloseAllPositions(ctx context.Context) (int, error) {
	count, err := e.broker.CloseAllPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("executor: close all positions: %w", err)
	}
	e.journal.Record(ctx, types.AuditEntry{
		EventType: "all_positions_closed",
		Severity:  types.SeverityCritical,
		Component: "trade_executor",
		Details:   map[string]any{"count": count},
	})
	return count, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
