// Package events fans trading-loop events out to interested consumers,
// primarily the websocket hub behind the operator dashboard.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Type is the category of a published event.
type Type string

const (
	TypePortfolioUpdate Type = "portfolio_update"
	TypeNewSignal       Type = "new_signal"
	TypeTradeExecuted   Type = "trade_executed"
	TypeRiskAlert       Type = "risk_alert"
	TypeCircuitBreaker  Type = "circuit_breaker"
	TypeCycleCompleted  Type = "cycle_completed"
)

// Event is one published notification. Payload must be JSON-serializable;
// consumers forward it verbatim.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Handler consumes events. Handlers must not block; slow consumers should
// buffer on their side.
type Handler func(Event)

// Bus is a small fan-out of trading events. Publishing never blocks the
// trading loop.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[Type][]Handler
	all       []Handler
	published atomic.Int64
	logger    *zap.Logger
}

// NewBus creates an event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		logger:   logger.Named("events"),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers an event to all matching handlers. Handler panics are
// contained so one bad consumer cannot take down the trading loop.
func (b *Bus) Publish(t Type, payload any) {
	event := Event{Type: t, Timestamp: time.Now().UTC(), Payload: payload}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[t]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, event)
	}
	b.published.Add(1)
}

// Published reports the number of events published since startup.
func (b *Bus) Published() int64 { return b.published.Load() }

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()
	h(event)
}
