package broker

import (
	"time"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// EventKind names a request lifecycle transition.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventMerged    EventKind = "merged"
	EventTriggered EventKind = "triggered"
	EventResolved  EventKind = "resolved"
	EventFailed    EventKind = "failed"
	EventRejected  EventKind = "rejected"
)

// Event describes one lifecycle transition of a pending request.
type Event struct {
	Kind      EventKind
	RequestID string
	Provider  Provider
	Scopes    scope.Scopes
	Waiters   int
	// Err is set for EventFailed and EventRejected.
	Err error
	At  time.Time
}

// Observer receives lifecycle events. It is called synchronously, outside
// the registry lock, on the goroutine that caused the transition.
type Observer interface {
	ObserveAuthRequest(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// ObserveAuthRequest calls fn(event).
func (fn ObserverFunc) ObserveAuthRequest(event Event) {
	fn(event)
}
