package ports

import "coinPilot/internal/events"

// EventPublisher is the outbound notification channel to observers
// (websocket clients, log sinks). Publishing must never block trading.
type EventPublisher interface {
	Publish(event events.Event)
}
