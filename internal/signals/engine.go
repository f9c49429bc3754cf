// Package signals turns feature vectors into actionable BUY/SELL/HOLD
// signals, persisting only those above the confidence floor.
package signals

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyon-desk/trading-engine/internal/audit"
	"github.com/halcyon-desk/trading-engine/internal/features"
	"github.com/halcyon-desk/trading-engine/pkg/types"
)

// MinConfidence is the floor below which no signal record is created.
const MinConfidence = 0.65

// SignalStore persists generated signals.
type SignalStore interface {
	InsertSignal(ctx context.Context, sig *types.Signal) error
}

// Engine scores feature vectors with the trained classifier when one is
// available, otherwise with a weighted technical heuristic.
type Engine struct {
	store   SignalStore
	journal *audit.Journal
	model   *Model
	version string
	logger  *zap.Logger
}

// NewEngine creates a signal engine. model may be nil.
func NewEngine(store SignalStore, journal *audit.Journal, model *Model, logger *zap.Logger) *Engine {
	version := "v0.0.0"
	if model != nil {
		version = model.Version
	}
	return &Engine{
		store:   store,
		journal: journal,
		model:   model,
		version: version,
		logger:  logger.Named("signals"),
	}
}

// ModelVersion reports the loaded classifier version, v0.0.0 for the
// heuristic fallback.
func (e *Engine) ModelVersion() string { return e.version }

// Generate scores one symbol and persists the signal when confidence
// reaches the floor. Returns (nil, nil) for sub-threshold predictions and
// for symbols with no features.
func (e *Engine) Generate(ctx context.Context, symbol string, indicators map[string]float64, mc *types.MarketContext) (*types.Signal, error) {
	featureSet := features.Build(indicators, mc)
	if featureSet == nil {
		e.logger.Warn("no features computed", zap.String("symbol", symbol))
		return nil, nil
	}

	action, confidence := e.predict(featureSet)
	if confidence < MinConfidence {
		e.logger.Debug("signal below threshold",
			zap.String("symbol", symbol),
			zap.String("action", string(action)),
			zap.Float64("confidence", confidence))
		return nil, nil
	}

	now := time.Now().UTC()
	sig := &types.Signal{
		DecisionChainID: uuid.New(),
		Symbol:          symbol,
		Action:          action,
		Confidence:      confidence,
		ModelVersion:    e.version,
		Features:        featureSet,
		Status:          types.SignalStatusPending,
		CreatedAt:       now,
	}
	if err := e.store.InsertSignal(ctx, sig); err != nil {
		return nil, err
	}

	e.journal.Record(ctx, types.AuditEntry{
		EventType: "signal_generated",
		Component: "signal_engine",
		Symbol:    symbol,
		Details: map[string]any{
			"symbol":        symbol,
			"action":        string(action),
			"confidence":    confidence,
			"model_version": e.version,
			"top_features":  topFeatures(featureSet, 5),
		},
		DecisionChainID: &sig.DecisionChainID,
	})

	e.logger.Info("signal generated",
		zap.String("symbol", symbol),
		zap.String("action", string(action)),
		zap.Float64("confidence", confidence))
	return sig, nil
}

func (e *Engine) predict(featureSet map[string]float64) (types.Action, float64) {
	if e.model != nil {
		return e.predictModel(featureSet)
	}
	return Heuristic(featureSet)
}

// predictModel applies a per-class confidence gate; only a class probability
// above the floor selects a directional action.
func (e *Engine) predictModel(featureSet map[string]float64) (types.Action, float64) {
	probs := e.model.Probabilities(features.Vector(featureSet))
	if p := probs[string(types.ActionBuy)]; p > MinConfidence {
		return types.ActionBuy, p
	}
	if p := probs[string(types.ActionSell)]; p > MinConfidence {
		return types.ActionSell, p
	}
	return types.ActionHold, probs[string(types.ActionHold)]
}

// topFeatures returns the n features with the largest absolute value.
func topFeatures(featureSet map[string]float64, n int) map[string]float64 {
	type kv struct {
		name  string
		value float64
	}
	sorted := make([]kv, 0, len(featureSet))
	for k, v := range featureSet {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].value) > math.Abs(sorted[j].value)
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make(map[string]float64, n)
	for _, e := range sorted[:n] {
		out[e.name] = e.value
	}
	return out
}
