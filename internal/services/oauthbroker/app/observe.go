package server

import (
	"log"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
)

// observers fans a lifecycle event out to every observer in order.
type observers []broker.Observer

func (o observers) ObserveAuthRequest(event broker.Event) {
	for _, observer := range o {
		observer.ObserveAuthRequest(event)
	}
}

func logEvent(event broker.Event) {
	if event.Err != nil {
		log.Printf("auth request %s %s: provider=%s scopes=%q waiters=%d err=%v",
			event.RequestID, event.Kind, event.Provider.ID, event.Scopes.String(), event.Waiters, event.Err)
		return
	}
	log.Printf("auth request %s %s: provider=%s scopes=%q waiters=%d",
		event.RequestID, event.Kind, event.Provider.ID, event.Scopes.String(), event.Waiters)
}
