// Package orchestrator runs the periodic trading cycle, wiring ingestion,
// indicators, signal scoring, analyst review, risk, and execution together.
// At most one cycle is in flight at any instant; overlapping ticks are
// dropped.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/internal/config"
	"github.com/halcyon-desk/trading-engine/internal/events"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// DataService is the ingestion surface the cycle pulls market data through.
type DataService interface {
	IngestBars(ctx context.Context, symbols []string, timeframe string, limit int) (int, error)
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	FetchNews(ctx context.Context, symbols []string, limit int) []types.NewsItem
}

// IndicatorEngine computes indicator snapshots from stored bars.
type IndicatorEngine interface {
	ComputeForSymbol(ctx context.Context, symbol, timeframe string) (map[string]float64, error)
	ComputeForWatchlist(ctx context.Context, symbols []string, timeframe string) map[string]map[string]float64
}

// SignalEngine scores indicators into signals. A nil signal means no
// actionable score for this symbol this cycle.
type SignalEngine interface {
	Generate(ctx context.Context, symbol string, indicators map[string]float64, mc *types.MarketContext) (*types.Signal, error)
}

// Analyst reviews signals and runs on-demand deep analysis.
type Analyst interface {
	ReviewSignal(ctx context.Context, sig *types.Signal, symCtx *types.SymbolContext) types.Verdict
	AnalyzeSymbol(ctx context.Context, symbol string, indicators map[string]float64, symCtx *types.SymbolContext) types.SymbolAnalysis
}

// RiskGate evaluates the circuit breaker and handles manual interventions.
type RiskGate interface {
	Evaluate(ctx context.Context, portfolio *types.PortfolioSnapshot) (types.CircuitLevel, error)
	Level() types.CircuitLevel
	EmergencyStop(ctx context.Context, reason string) error
	Resume(resolvedBy string)
}

// Trader places and unwinds positions.
type Trader interface {
	Execute(ctx context.Context, sig *types.Signal, verdict types.Verdict, price float64, portfolio *types.PortfolioSnapshot, mc *types.MarketContext) (*types.Trade, error)
	CancelAllOrders(ctx context.Context) (int, error)
	CloseAllPositions(ctx context.Context) (int, error)
}

// PortfolioSource produces account snapshots.
type PortfolioSource interface {
	Snapshot(ctx context.Context) (*types.PortfolioSnapshot, error)
}

// HistoryStore is the persistence surface the cycle reads context from and
// writes review outcomes to.
type HistoryStore interface {
	RecentBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error)
	Range52W(ctx context.Context, symbol string) (high, low float64, err error)
	UpdateSignalReview(ctx context.Context, sig *types.Signal) error
}

// Deps bundles the pipeline components the orchestrator coordinates.
type Deps struct {
	Data       DataService
	Indicators IndicatorEngine
	Signals    SignalEngine
	Analyst    Analyst
	Risk       RiskGate
	Executor   Trader
	Portfolio  PortfolioSource
	Store      HistoryStore
	Journal    *audit.Journal
	Bus        *events.Bus
}

// Orchestrator owns the trading loop and the process-wide halt flag. The
// HTTP surface receives a handle to it for manual control.
type Orchestrator struct {
	settings *config.Settings
	data     DataService
	ind      IndicatorEngine
	signals  SignalEngine
	analyst  Analyst
	risk     RiskGate
	executor Trader
	pf       PortfolioSource
	store    HistoryStore
	journal  *audit.Journal
	bus      *events.Bus
	logger   *zap.Logger

	// Volatility estimation is pluggable; the default derives a VIX-like
	// level from SPY realized volatility.
	volEstimator VolatilityEstimator

	now    func() time.Time
	market *time.Location

	halted   atomic.Bool
	inFlight atomic.Bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates the orchestrator.
func New(settings *config.Settings, deps Deps, logger *zap.Logger) *Orchestrator {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("ET", -5*3600)
	}
	return &Orchestrator{
		settings:     settings,
		data:         deps.Data,
		ind:          deps.Indicators,
		signals:      deps.Signals,
		analyst:      deps.Analyst,
		risk:         deps.Risk,
		executor:     deps.Executor,
		pf:           deps.Portfolio,
		store:        deps.Store,
		journal:      deps.Journal,
		bus:          deps.Bus,
		logger:       logger.Named("orchestrator"),
		volEstimator: RealizedVolatility,
		now:          time.Now,
		market:       loc,
	}
}

// Start launches the cycle ticker. Cycles only run inside the weekday
// trading window.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	o.logger.Info("trading loop starting",
		zap.Int("interval_minutes", o.settings.SignalIntervalMinutes),
		zap.Int("watchlist", len(o.settings.WatchlistSymbols())),
		zap.String("mode", o.settings.Mode))

	go o.loop(ctx)
	return nil
}

// Stop halts the cycle ticker. An in-flight cycle runs to completion.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.running = false
	close(o.stopCh)
	o.logger.Info("trading loop stopped")
}

func (o *Orchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(o.settings.SignalIntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			if !o.InTradingWindow(o.now()) {
				continue
			}
			if !o.inFlight.CompareAndSwap(false, true) {
				o.logger.Warn("previous cycle still running, skipping tick")
				cyclesSkipped.Inc()
				continue
			}
			o.RunCycle(ctx)
			o.inFlight.Store(false)
		}
	}
}

// InTradingWindow reports whether cycles may run at t: US-Eastern weekdays,
// opening 35 minutes into the start hour and closing 5 minutes before the
// end hour, clear of the open and close auctions.
func (o *Orchestrator) InTradingWindow(t time.Time) bool {
	et := t.In(o.market)
	if et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	open := o.settings.TradingStartHour*60 + 35
	last := o.settings.TradingEndHour*60 - 5
	return minutes >= open && minutes <= last
}

// Halted reports the process-wide emergency halt flag.
func (o *Orchestrator) Halted() bool { return o.halted.Load() }

// CircuitLevel reports the current circuit-breaker level.
func (o *Orchestrator) CircuitLevel() types.CircuitLevel { return o.risk.Level() }

// RunCycle executes one full trading cycle across the watchlist. Per-symbol
// failures are recorded in the result but never abort the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) *types.CycleResult {
	cycleID := uuid.New().String()[:8]
	result := &types.CycleResult{CycleID: cycleID, Errors: []string{}}
	log := o.logger.With(zap.String("cycle_id", cycleID))

	if o.halted.Load() {
		log.Warn("emergency halt set, skipping cycle")
		return result
	}

	start := time.Now()
	defer func() { cycleDuration.Observe(time.Since(start).Seconds()) }()

	log.Info("trading cycle starting")
	symbols := o.settings.WatchlistSymbols()

	snap, err := o.pf.Snapshot(ctx)
	if err != nil {
		log.Error("portfolio snapshot failed", zap.Error(err))
		result.Errors = append(result.Errors, "portfolio_snapshot_failed")
		o.finishCycle(ctx, result)
		return result
	}
	o.bus.Publish(events.TypePortfolioUpdate, snap)

	level, err := o.risk.Evaluate(ctx, snap)
	if err != nil {
		log.Error("circuit breaker evaluation failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("circuit_breaker: %v", err))
		o.finishCycle(ctx, result)
		return result
	}
	if level == types.CircuitRed {
		log.Error("RED circuit breaker, aborting cycle")
		o.journal.Record(ctx, types.AuditEntry{
			EventType: "cycle_aborted",
			Severity:  types.SeverityCritical,
			Component: "orchestrator",
			Details:   map[string]any{"reason": "RED circuit breaker", "cycle_id": cycleID},
		})
		o.bus.Publish(events.TypeCircuitBreaker, map[string]any{
			"level":    string(level),
			"cycle_id": cycleID,
		})
		o.finishCycle(ctx, result)
		return result
	}

	if _, err := o.data.IngestBars(ctx, symbols, "1Min", 1); err != nil {
		log.Warn("bar ingestion failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("ingest: %v", err))
	}

	allIndicators := o.ind.ComputeForWatchlist(ctx, symbols, "1Day")
	mc := o.MarketContext(ctx)

	for _, symbol := range symbols {
		indicators, ok := allIndicators[symbol]
		if !ok {
			continue
		}
		result.SymbolsProcessed++

		if err := o.processSymbol(ctx, symbol, indicators, mc, snap, result); err != nil {
			log.Error("symbol processing failed",
				zap.String("symbol", symbol), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", symbol, err))
		}
	}

	o.finishCycle(ctx, result)
	log.Info("trading cycle complete",
		zap.Int("symbols", result.SymbolsProcessed),
		zap.Int("signals", result.SignalsGenerated),
		zap.Int("approved", result.SignalsApproved),
		zap.Int("trades", result.TradesPlaced),
		zap.Int("errors", len(result.Errors)))
	return result
}

// processSymbol runs score, review, and execution for one symbol. The strict
// order signal, review, risk check, execute is causal: each step reads what
// the previous one wrote.
func (o *Orchestrator) processSymbol(
	ctx context.Context,
	symbol string,
	indicators map[string]float64,
	mc *types.MarketContext,
	snap *types.PortfolioSnapshot,
	result *types.CycleResult,
) error {
	sig, err := o.signals.Generate(ctx, symbol, indicators, mc)
	if err != nil {
		return err
	}
	if sig == nil || sig.Action == types.ActionHold {
		return nil
	}

	result.SignalsGenerated++
	signalsScored.Inc()
	o.bus.Publish(events.TypeNewSignal, sig)

	symCtx := o.SymbolContext(ctx, symbol, indicators, mc)
	verdict := o.analyst.ReviewSignal(ctx, sig, symCtx)

	reviewedAt := o.now().UTC()
	sig.AnalystApproved = &verdict.Approve
	sig.AnalystConfidence = &verdict.AdjustedConfidence
	sig.AnalystReasoning = verdict.Reasoning
	sig.AnalystRiskFlags = verdict.RiskFlags
	sig.AnalystSizing = verdict.PositionSizing
	sig.ReviewedAt = &reviewedAt

	if !verdict.Approve {
		sig.Status = types.SignalStatusRejected
		return o.store.UpdateSignalReview(ctx, sig)
	}

	result.SignalsApproved++
	sig.Status = types.SignalStatusApproved
	if err := o.store.UpdateSignalReview(ctx, sig); err != nil {
		return err
	}

	trade, err := o.executor.Execute(ctx, sig, verdict, symCtx.Price, snap, mc)
	if err != nil {
		return err
	}
	if trade != nil {
		sig.Status = types.SignalStatusExecuted
		if err := o.store.UpdateSignalReview(ctx, sig); err != nil {
			return err
		}
		result.TradesPlaced++
		tradesPlaced.Inc()
		o.bus.Publish(events.TypeTradeExecuted, trade)
	}
	return nil
}

// finishCycle writes the cycle summary. Audit is best-effort at this
// boundary; the summary is always attempted.
func (o *Orchestrator) finishCycle(ctx context.Context, result *types.CycleResult) {
	o.journal.Record(ctx, types.AuditEntry{
		EventType: "cycle_completed",
		Component: "orchestrator",
		Details: map[string]any{
			"cycle_id":          result.CycleID,
			"symbols_processed": result.SymbolsProcessed,
			"signals_generated": result.SignalsGenerated,
			"signals_approved":  result.SignalsApproved,
			"trades_placed":     result.TradesPlaced,
			"errors":            result.Errors,
		},
	})
	o.bus.Publish(events.TypeCycleCompleted, result)
	cyclesTotal.Inc()
}

// Analyze runs an on-demand deep analysis for one symbol. Called from the
// operator API.
func (o *Orchestrator) Analyze(ctx context.Context, symbol string) (types.SymbolAnalysis, error) {
	indicators, symCtx, err := o.AnalysisContext(ctx, symbol)
	if err != nil {
		return types.SymbolAnalysis{}, err
	}
	return o.analyst.AnalyzeSymbol(ctx, symbol, indicators, symCtx), nil
}

// EmergencyStop sets the halt flag, forces the circuit breaker to RED, and
// best-effort cancels all open orders and closes all positions. In-flight
// cycles run to completion; the next cycle observes the flag and skips.
func (o *Orchestrator) EmergencyStop(ctx context.Context, reason string) (cancelled, closed int, err error) {
	o.halted.Store(true)
	o.logger.Error("emergency stop triggered", zap.String("reason", reason))

	if err = o.risk.EmergencyStop(ctx, reason); err != nil {
		o.logger.Error("emergency stop risk event failed", zap.Error(err))
	}

	cancelled, cancelErr := o.executor.CancelAllOrders(ctx)
	if cancelErr != nil {
		o.logger.Error("cancel all orders failed", zap.Error(cancelErr))
	}
	closed, closeErr := o.executor.CloseAllPositions(ctx)
	if closeErr != nil {
		o.logger.Error("close all positions failed", zap.Error(closeErr))
	}

	o.bus.Publish(events.TypeRiskAlert, map[string]any{
		"event":            "emergency_stop",
		"reason":           reason,
		"orders_cancelled": cancelled,
		"positions_closed": closed,
	})
	return cancelled, closed, err
}

// ResumeTrading clears the halt flag and resets the circuit breaker.
func (o *Orchestrator) ResumeTrading(resolvedBy string) {
	o.risk.Resume(resolvedBy)
	o.halted.Store(false)
	o.logger.Warn("trading resumed", zap.String("resolved_by", resolvedBy))
}
