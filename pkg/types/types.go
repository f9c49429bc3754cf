// Package types provides shared type definitions for the trading engine.
package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the direction of a trading signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// SignalStatus tracks a signal through the decision pipeline.
type SignalStatus string

const (
	SignalStatusPending  SignalStatus = "pending"
	SignalStatusApproved SignalStatus = "approved"
	SignalStatusRejected SignalStatus = "rejected"
	SignalStatusExecuted SignalStatus = "executed"
)

// TradeStatus tracks a trade against broker-side order state.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusFilled    TradeStatus = "filled"
	TradeStatusPartial   TradeStatus = "partial"
	TradeStatusClosed    TradeStatus = "closed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusExpired   TradeStatus = "expired"
)

// Severity levels for audit entries.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// CircuitLevel is the risk-posture state gating trade admission.
type CircuitLevel string

const (
	CircuitNone   CircuitLevel = "NONE"
	CircuitYellow CircuitLevel = "YELLOW" // position sizes halved
	CircuitOrange CircuitLevel = "ORANGE" // exits only
	CircuitRed    CircuitLevel = "RED"    // system halted
)

// PositionSizing is the analyst's sizing recommendation.
type PositionSizing string

const (
	SizingConservative PositionSizing = "conservative"
	SizingNormal       PositionSizing = "normal"
	SizingAggressive   PositionSizing = "aggressive"
)

// Bar is a single OHLCV candle keyed by (symbol, timeframe, timestamp).
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	VWAP       float64   `json:"vwap,omitempty"`
	TradeCount int64     `json:"trade_count,omitempty"`
}

// IndicatorSnapshot holds the named indicator values derived from the most
// recent bar history of one (symbol, timeframe). Indicators that are
// undefined for the available window are absent from Values.
type IndicatorSnapshot struct {
	Symbol    string             `json:"symbol"`
	Timeframe string             `json:"timeframe"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// MarketContext is the per-cycle broad-market backdrop.
type MarketContext struct {
	SPYPrice  float64 `json:"spy_price,omitempty"`
	SPYReturn float64 `json:"spy_return_1d"`
	SPYChange float64 `json:"spy_change"`
	VIX       float64 `json:"vix"`
	VIXChange float64 `json:"vix_change"`
}

// SymbolContext is the rich per-symbol context handed to the analyst.
type SymbolContext struct {
	Price          float64 `json:"price"`
	ChangePct      float64 `json:"change_pct"`
	VolumeRatio    float64 `json:"volume_ratio"`
	VIX            float64 `json:"vix"`
	VIXChange      float64 `json:"vix_change"`
	SPYChange      float64 `json:"spy_change"`
	SectorPerf     string  `json:"sector_perf"`
	RecentNews     string  `json:"recent_news"`
	UpcomingEvents string  `json:"upcoming_events"`
	High52W        float64 `json:"high_52w"`
	Low52W         float64 `json:"low_52w"`
}

// Signal is one scored trading decision. The decision chain id is minted at
// signal creation and threads through every downstream audit event and any
// resulting trade.
type Signal struct {
	ID                  int64              `json:"id"`
	DecisionChainID     uuid.UUID          `json:"decision_chain_id"`
	Symbol              string             `json:"symbol"`
	Action              Action             `json:"action"`
	Confidence          float64            `json:"confidence"`
	ModelVersion        string             `json:"model_version"`
	Features            map[string]float64 `json:"features_snapshot"`
	Status              SignalStatus       `json:"status"`
	AnalystApproved     *bool              `json:"analyst_approved,omitempty"`
	AnalystConfidence   *float64           `json:"analyst_adjusted_confidence,omitempty"`
	AnalystReasoning    string             `json:"analyst_reasoning,omitempty"`
	AnalystRiskFlags    []string           `json:"analyst_risk_flags,omitempty"`
	AnalystSizing       PositionSizing     `json:"analyst_position_sizing,omitempty"`
	RiskApproved        *bool              `json:"risk_approved,omitempty"`
	RiskRejectionReason string             `json:"risk_rejection_reason,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	ReviewedAt          *time.Time         `json:"reviewed_at,omitempty"`
}

// Verdict is the analyst's structured review of a signal.
type Verdict struct {
	AdjustedConfidence   float64        `json:"adjusted_confidence"`
	ConfidenceAdjustment float64        `json:"confidence_adjustment"`
	PositionSizing       PositionSizing `json:"position_sizing"`
	Reasoning            string         `json:"reasoning"`
	RiskFlags            []string       `json:"risk_flags"`
	Approve              bool           `json:"approve"`
	InputTokens          int            `json:"input_tokens"`
	OutputTokens         int            `json:"output_tokens"`
}

// SymbolAnalysis is the on-demand deep-analysis result.
type SymbolAnalysis struct {
	Symbol           string    `json:"symbol"`
	Direction        string    `json:"direction"` // bullish, bearish, neutral
	Conviction       int       `json:"conviction"`
	Timeframe        string    `json:"timeframe"` // scalp, intraday, swing, position
	TechnicalOutlook string    `json:"technical_outlook"`
	Volatility       string    `json:"volatility_assessment"`
	RiskFactors      []string  `json:"risk_factors"`
	EntryLow         float64   `json:"entry_zone_low"`
	EntryHigh        float64   `json:"entry_zone_high"`
	StopLoss         float64   `json:"stop_loss"`
	Target1          float64   `json:"target_1"`
	Target2          float64   `json:"target_2"`
	RiskReward       float64   `json:"risk_reward_ratio"`
	SupportLevels    []float64 `json:"key_support_levels"`
	ResistanceLevels []float64 `json:"key_resistance_levels"`
	Summary          string    `json:"summary"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	AnalyzedAt       time.Time `json:"analyzed_at"`
}

// Trade is the local projection of a broker-side bracket order.
type Trade struct {
	ID                int64            `json:"id"`
	DecisionChainID   uuid.UUID        `json:"decision_chain_id"`
	SignalID          int64            `json:"signal_id"`
	BrokerOrderID     string           `json:"broker_order_id"`
	Symbol            string           `json:"symbol"`
	Side              string           `json:"side"` // buy or sell
	Shares            int64            `json:"shares"`
	EntryPrice        decimal.Decimal  `json:"entry_price"`
	StopPrice         decimal.Decimal  `json:"stop_price"`
	TargetPrice       decimal.Decimal  `json:"target_price"`
	FillPrice         *decimal.Decimal `json:"fill_price,omitempty"`
	ExitPrice         *decimal.Decimal `json:"exit_price,omitempty"`
	RealizedPnL       *decimal.Decimal `json:"realized_pnl,omitempty"`
	MLConfidence      float64          `json:"ml_confidence"`
	AnalystConfidence float64          `json:"analyst_confidence"`
	AllocationPct     float64          `json:"allocation_pct"`
	DollarAmount      decimal.Decimal  `json:"dollar_amount"`
	Status            TradeStatus      `json:"status"`
	ExitReason        string           `json:"exit_reason,omitempty"`
	PlacedAt          time.Time        `json:"placed_at"`
	FilledAt          *time.Time       `json:"filled_at,omitempty"`
	ClosedAt          *time.Time       `json:"closed_at,omitempty"`
}

// PositionDetail is one open position inside a portfolio snapshot.
type PositionDetail struct {
	Shares           int64   `json:"shares"`
	Side             string  `json:"side"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	MarketValue      float64 `json:"market_value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
}

// PortfolioSnapshot is a point-in-time account picture. PeakEquity is
// monotonic non-decreasing across successive snapshots.
type PortfolioSnapshot struct {
	ID                 int64                     `json:"id"`
	Timestamp          time.Time                 `json:"timestamp"`
	TotalEquity        float64                   `json:"total_equity"`
	Cash               float64                   `json:"cash"`
	MarketValue        float64                   `json:"market_value"`
	DailyPnL           float64                   `json:"daily_pnl"`
	DailyPnLPct        float64                   `json:"daily_pnl_pct"`
	WeeklyPnL          float64                   `json:"weekly_pnl"`
	WeeklyPnLPct       float64                   `json:"weekly_pnl_pct"`
	MonthlyPnL         float64                   `json:"monthly_pnl"`
	MonthlyPnLPct      float64                   `json:"monthly_pnl_pct"`
	PeakEquity         float64                   `json:"peak_equity"`
	CurrentDrawdownPct float64                   `json:"current_drawdown_pct"`
	TotalExposurePct   float64                   `json:"total_exposure_pct"`
	OpenPositionsCount int                       `json:"open_positions_count"`
	Positions          map[string]PositionDetail `json:"positions"`
	SectorExposure     map[string]float64        `json:"sector_exposure"`
	TradesToday        int                       `json:"trades_today"`
}

// RiskEvent records a circuit-breaker transition or manual intervention.
type RiskEvent struct {
	ID             int64          `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Level          CircuitLevel   `json:"level"`
	TriggerReason  string         `json:"trigger_reason"`
	TriggerValue   float64        `json:"trigger_value"`
	ThresholdValue float64        `json:"threshold_value"`
	ActionTaken    string         `json:"action_taken"`
	Resolved       bool           `json:"resolved"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	Details        map[string]any `json:"details"`
}

// AuditEntry is one append-only decision-chain event.
type AuditEntry struct {
	ID              int64          `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	EventType       string         `json:"event_type"`
	Severity        Severity       `json:"severity"`
	Component       string         `json:"component"`
	Symbol          string         `json:"symbol,omitempty"`
	Details         map[string]any `json:"details"`
	DecisionChainID *uuid.UUID     `json:"decision_chain_id,omitempty"`
}

// NewsItem is one news article from the market-data feed.
type NewsItem struct {
	Headline  string    `json:"headline"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CycleResult summarizes one orchestrator cycle.
type CycleResult struct {
	CycleID          string   `json:"cycle_id"`
	SymbolsProcessed int      `json:"symbols_processed"`
	SignalsGenerated int      `json:"signals_generated"`
	SignalsApproved  int      `json:"signals_approved"`
	TradesPlaced     int      `json:"trades_placed"`
	Errors           []string `json:"errors"`
}
