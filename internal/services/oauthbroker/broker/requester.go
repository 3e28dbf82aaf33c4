package broker

import (
	"context"
	"fmt"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// Provider describes the login provider a request is shown under.
//
// Provider is display metadata only. Requests are merged per Requester, so
// two requesters with the same provider title keep separate entries.
type Provider struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

// AuthFunc runs the login flow for the merged scopes of a request.
type AuthFunc[T any] func(ctx context.Context, scopes scope.Scopes) (T, error)

// RequesterOptions describes how requests for one provider are shown and
// executed.
type RequesterOptions[T any] struct {
	// Provider is forwarded to every pending request of the requester.
	Provider Provider

	// OnAuthRequest is called synchronously when a pending request is
	// triggered, with all scopes merged into it.
	OnAuthRequest AuthFunc[T]
}

// Requester asks for logins against one provider.
type Requester[T any] struct {
	broker *Broker
	key    *requesterKey
	run    func(context.Context, scope.Scopes) (any, error)
}

// CreateRequester registers a new requester with the broker.
func CreateRequester[T any](b *Broker, opts RequesterOptions[T]) (*Requester[T], error) {
	if b == nil {
		return nil, invalidRequester("broker is required")
	}
	if opts.OnAuthRequest == nil {
		return nil, invalidRequester("auth function is required")
	}
	auth := opts.OnAuthRequest
	return &Requester[T]{
		broker: b,
		key:    &requesterKey{provider: opts.Provider},
		run: func(ctx context.Context, scopes scope.Scopes) (any, error) {
			return auth(ctx, scopes)
		},
	}, nil
}

// Provider returns the requester's provider metadata.
func (r *Requester[T]) Provider() Provider {
	return r.key.provider
}

// Request asks for a login covering scopes. It never blocks: the request is
// merged into the requester's pending entry, or a new entry is created, and
// the returned Waiter settles when that entry is triggered or rejected.
// An empty scope is allowed and still joins or creates an entry.
func (r *Requester[T]) Request(scopes scope.Like) *Waiter[T] {
	e, event := r.broker.join(r.key, r.run, scopes)
	r.broker.observe(event)
	r.broker.stream.publish()
	return &Waiter[T]{requestID: e.id, outcome: e.outcome}
}

// Waiter is the pending result of one Request call.
type Waiter[T any] struct {
	requestID string
	outcome   *outcome
}

// RequestID returns the id of the pending request this waiter joined.
func (w *Waiter[T]) RequestID() string {
	return w.requestID
}

// Done is closed once the request has been settled.
func (w *Waiter[T]) Done() <-chan struct{} {
	return w.outcome.done
}

// Wait blocks until the request settles or ctx ends. Ending ctx only stops
// waiting; the request itself stays pending.
func (w *Waiter[T]) Wait(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-w.outcome.done:
		return w.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (w *Waiter[T]) result() (T, error) {
	var zero T
	if w.outcome.err != nil {
		return zero, w.outcome.err
	}
	if w.outcome.value == nil {
		return zero, nil
	}
	value, ok := w.outcome.value.(T)
	if !ok {
		return zero, fmt.Errorf("auth request %s: result is %T, want %T", w.requestID, w.outcome.value, zero)
	}
	return value, nil
}
