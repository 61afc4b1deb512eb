package events

import (
	"sync"
	"time"

	"coinPilot/internal/domain"
)

// EventType enumerates the closed set of events the engine publishes.
type EventType string

const (
	EventPriceUpdate    EventType = "price_update"
	EventTradeExecuted  EventType = "trade_executed"
	EventTradeError     EventType = "trade_error"
	EventAIDecision     EventType = "ai_decision"
	EventCircuitBreaker EventType = "circuit_breaker"
	EventEngineStarted  EventType = "engine_started"
	EventEngineStopped  EventType = "engine_stopped"
)

// Event is a published notification. Payload is one of the typed payload
// structs below, keyed by Type.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// PriceUpdatePayload carries the refreshed price map for one tick.
type PriceUpdatePayload struct {
	Prices map[string]float64 `json:"prices"`
}

// TradeExecutedPayload carries the executed trade record.
type TradeExecutedPayload struct {
	Trade *domain.Trade `json:"trade"`
}

// TradeErrorPayload reports a failed trade attempt.
type TradeErrorPayload struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Reason string `json:"reason"`
}

// AIDecisionPayload carries a completed strategy-review decision.
type AIDecisionPayload struct {
	Decision *domain.AIDecision `json:"decision"`
}

// CircuitBreakerPayload reports a protective halt.
type CircuitBreakerPayload struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}

// EnginePayload reports a lifecycle transition.
type EnginePayload struct {
	StrategyID domain.StrategyID `json:"strategyId"`
	Mode       domain.TradeMode  `json:"mode"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// Bus manages event publishing and subscriptions. Subscribers run on their
// own goroutines so a slow observer never blocks a trading tick.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for every event type.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish sends an event to all matching subscribers.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}
