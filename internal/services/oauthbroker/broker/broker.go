package broker

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/louisbranch/oauthbroker/internal/platform/id"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// Broker is the registry of pending auth requests, at most one per Requester.
type Broker struct {
	mu      sync.Mutex
	entries map[*requesterKey]*entry
	byID    map[string]*entry
	seq     uint64
	// version increases on every registry mutation.
	version uint64

	clock    func() time.Time
	newID    func() (string, error)
	observer Observer
	onPanic  func(*PanicError)
	stream   *PendingStream
}

// Option configures a Broker.
type Option func(*Broker)

// WithObserver registers an observer for request lifecycle events.
func WithObserver(observer Observer) Option {
	return func(b *Broker) {
		b.observer = observer
	}
}

// WithClock overrides the time source used for event and creation times.
func WithClock(clock func() time.Time) Option {
	return func(b *Broker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithSubscriberPanicHandler replaces the default handler, which logs the
// panic, for subscribers of the pending stream that panic.
func WithSubscriberPanicHandler(handle func(*PanicError)) Option {
	return func(b *Broker) {
		if handle != nil {
			b.onPanic = handle
		}
	}
}

// WithIDGenerator overrides how pending request ids are generated.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(b *Broker) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		entries: make(map[*requesterKey]*entry),
		byID:    make(map[string]*entry),
		version: 1,
		clock:   time.Now,
		newID:   id.NewID,
		onPanic: logSubscriberPanic,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.stream = newPendingStream(b, b.onPanic)
	return b
}

func logSubscriberPanic(err *PanicError) {
	log.Printf("pending stream subscriber removed: %v", err)
}

// Pending returns the stream of pending request snapshots.
func (b *Broker) Pending() *PendingStream {
	return b.stream
}

// requesterKey identifies one Requester in the registry. It is never zero
// sized, so distinct keys always have distinct addresses.
type requesterKey struct {
	provider Provider
}

// entry is the registry record for one pending request.
type entry struct {
	id        string
	seq       uint64
	key       *requesterKey
	provider  Provider
	scopes    scope.Scopes
	waiters   int
	createdAt time.Time
	run       func(ctx context.Context, scopes scope.Scopes) (any, error)
	outcome   *outcome
}

// outcome is shared by every waiter of an entry. It is settled exactly once,
// by whichever caller removed the entry from the registry.
type outcome struct {
	done  chan struct{}
	value any
	err   error
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

func (o *outcome) settle(value any, err error) {
	o.value = value
	o.err = err
	close(o.done)
}

func (e *entry) execute(ctx context.Context) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = newPanicError(r)
		}
	}()
	return e.run(ctx, e.scopes)
}

// join merges a request into the requester's live entry, creating one when
// none exists.
func (b *Broker) join(key *requesterKey, run func(context.Context, scope.Scopes) (any, error), scopes scope.Like) (*entry, Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	kind := EventMerged
	e := b.entries[key]
	if e == nil {
		kind = EventCreated
		b.seq++
		e = &entry{
			id:        b.nextID(),
			seq:       b.seq,
			key:       key,
			provider:  key.provider,
			scopes:    scope.Scopes{},
			createdAt: now,
			run:       run,
			outcome:   newOutcome(),
		}
		b.entries[key] = e
		b.byID[e.id] = e
	}
	e.scopes = e.scopes.Extend(scopes)
	e.waiters++
	b.version++

	return e, Event{
		Kind:      kind,
		RequestID: e.id,
		Provider:  e.provider,
		Scopes:    e.scopes,
		Waiters:   e.waiters,
		At:        now,
	}
}

func (b *Broker) nextID() string {
	value, err := b.newID()
	if err != nil || value == "" {
		return fmt.Sprintf("req-%d", b.seq)
	}
	if _, taken := b.byID[value]; taken {
		return fmt.Sprintf("%s-%d", value, b.seq)
	}
	return value
}

// take removes the entry with the given id from the registry.
func (b *Broker) take(requestID string) (*entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byID[requestID]
	if !ok {
		return nil, false
	}
	delete(b.byID, requestID)
	delete(b.entries, e.key)
	b.version++
	return e, true
}

// Trigger runs the auth function of the pending request with the given id
// and settles all of its waiters with the result.
//
// The request is removed from the registry before the auth function is
// called, and the auth function runs on the caller's goroutine. The returned
// error is the auth function's error. ErrRequestNotPending is returned when
// the id does not name a pending request.
func (b *Broker) Trigger(ctx context.Context, requestID string) error {
	_, err := b.trigger(ctx, requestID)
	return err
}

func (b *Broker) trigger(ctx context.Context, requestID string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e, ok := b.take(requestID)
	if !ok {
		return false, notPending(requestID)
	}
	settled := false
	defer func() {
		if settled {
			return
		}
		r := recover()
		e.outcome.settle(nil, newPanicError(r))
		if r != nil {
			panic(r)
		}
	}()
	b.emit(e, EventTriggered, nil)
	b.stream.publish()

	value, err := e.execute(ctx)
	e.outcome.settle(value, err)
	settled = true
	if err != nil {
		b.emit(e, EventFailed, err)
	} else {
		b.emit(e, EventResolved, nil)
	}
	return true, err
}

// Reject removes the pending request with the given id and fails all of its
// waiters with ErrRejected. ErrRequestNotPending is returned when the id does
// not name a pending request, so waiters are never settled twice.
func (b *Broker) Reject(requestID string) error {
	e, ok := b.take(requestID)
	if !ok {
		return notPending(requestID)
	}
	e.outcome.settle(nil, ErrRejected)
	b.emit(e, EventRejected, ErrRejected)
	b.stream.publish()
	return nil
}

func (b *Broker) emit(e *entry, kind EventKind, err error) {
	if b.observer == nil {
		return
	}
	b.observer.ObserveAuthRequest(Event{
		Kind:      kind,
		RequestID: e.id,
		Provider:  e.provider,
		Scopes:    e.scopes,
		Waiters:   e.waiters,
		Err:       err,
		At:        b.clock(),
	})
}

func (b *Broker) observe(event Event) {
	if b.observer != nil {
		b.observer.ObserveAuthRequest(event)
	}
}

// snapshot returns the pending requests in creation order and the registry
// version they reflect.
func (b *Broker) snapshot() ([]PendingRequest, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ordered := make([]*entry, 0, len(b.byID))
	for _, e := range b.byID {
		ordered = append(ordered, e)
	}
	slices.SortFunc(ordered, func(a, c *entry) int {
		switch {
		case a.seq < c.seq:
			return -1
		case a.seq > c.seq:
			return 1
		default:
			return 0
		}
	})

	views := make([]PendingRequest, 0, len(ordered))
	for _, e := range ordered {
		views = append(views, PendingRequest{
			ID:        e.id,
			Provider:  e.provider,
			Scopes:    e.scopes,
			Waiters:   e.waiters,
			CreatedAt: e.createdAt,
			broker:    b,
		})
	}
	return views, b.version
}

// PendingRequest is a read-only view of one pending request.
type PendingRequest struct {
	ID        string       `json:"id"`
	Provider  Provider     `json:"provider"`
	Scopes    scope.Scopes `json:"scopes"`
	Waiters   int          `json:"waiters"`
	CreatedAt time.Time    `json:"created_at"`

	broker *Broker
}

// Trigger runs the request's auth function, settling every merged waiter.
// It is a no-op returning nil when the request is no longer pending.
func (p PendingRequest) Trigger(ctx context.Context) error {
	if p.broker == nil {
		return nil
	}
	ran, err := p.broker.trigger(ctx, p.ID)
	if !ran {
		return nil
	}
	return err
}

// Reject fails every merged waiter with ErrRejected. It is a no-op when the
// request is no longer pending.
func (p PendingRequest) Reject() {
	if p.broker == nil {
		return
	}
	_ = p.broker.Reject(p.ID)
}
