package broker

import (
	"bytes"
	"context"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
)

// PendingStream multicasts snapshots of the pending requests.
//
// Delivery is synchronous. Subscribe returns after the new subscriber has
// seen the current snapshot, and a Request, Trigger or Reject returns after
// every subscriber has seen a snapshot at least as new as its change.
// Deliveries are serialized: a caller on another goroutine waits for the
// round in progress to finish and then runs its own.
//
// Calls made from inside a subscriber callback do not wait. Their change is
// delivered by the round already running, after the current callback
// returns, so subscribers never observe an older snapshot after a newer one.
// A callback must not block on another goroutine that changes the registry.
//
// A subscriber that panics is recovered, reported to the panic handler and
// unsubscribed; the other subscribers still get the snapshot.
type PendingStream struct {
	broker  *Broker
	onPanic func(*PanicError)

	mu   sync.Mutex
	idle *sync.Cond
	subs []*subscription
	// owner is the goroutine running the current round, 0 when idle.
	owner uint64
	again bool
}

func newPendingStream(b *Broker, onPanic func(*PanicError)) *PendingStream {
	s := &PendingStream{broker: b, onPanic: onPanic}
	s.idle = sync.NewCond(&s.mu)
	return s
}

type subscription struct {
	fn     func([]PendingRequest)
	active atomic.Bool
	// seen is the last registry version delivered. Only the dispatching
	// goroutine touches it.
	seen uint64
}

// Snapshot returns the pending requests in creation order.
func (s *PendingStream) Snapshot() []PendingRequest {
	views, _ := s.broker.snapshot()
	return views
}

// Subscribe registers fn to receive the current snapshot and every later
// change. Called from inside another subscriber's callback, the first
// snapshot arrives once that callback returns. The returned function
// unsubscribes; it is safe to call more than once.
func (s *PendingStream) Subscribe(fn func([]PendingRequest)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.publish()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(sub) })
	}
}

// Watch adapts the stream to a channel that always holds the latest
// snapshot. A snapshot not yet received is replaced by a newer one rather
// than queued. The channel is closed when ctx ends.
func (s *PendingStream) Watch(ctx context.Context) <-chan []PendingRequest {
	ch := make(chan []PendingRequest, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubscribe := s.Subscribe(func(views []PendingRequest) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- views
	})
	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Len returns the number of active subscribers.
func (s *PendingStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// publish delivers the newest snapshot to every subscriber that has not
// seen it yet.
func (s *PendingStream) publish() {
	me := goroutineID()
	s.mu.Lock()
	if s.owner == me {
		s.again = true
		s.mu.Unlock()
		return
	}
	for s.owner != 0 {
		s.idle.Wait()
	}
	s.owner = me
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.owner = 0
		s.again = false
		s.idle.Broadcast()
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		s.again = false
		subs := slices.Clone(s.subs)
		s.mu.Unlock()

		views, version := s.broker.snapshot()
		for _, sub := range subs {
			if !sub.active.Load() || sub.seen >= version {
				continue
			}
			sub.seen = version
			if perr := sub.deliver(slices.Clone(views)); perr != nil {
				s.remove(sub)
				s.onPanic(perr)
			}
		}

		s.mu.Lock()
		again := s.again
		s.mu.Unlock()
		if !again {
			return
		}
	}
}

func (sub *subscription) deliver(views []PendingRequest) (perr *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			perr = newPanicError(r)
		}
	}()
	sub.fn(views)
	return nil
}

func (s *PendingStream) remove(sub *subscription) {
	sub.active.Store(false)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = slices.DeleteFunc(s.subs, func(candidate *subscription) bool {
		return candidate == sub
	})
}

// goroutineID reads the calling goroutine's id from its stack header,
// "goroutine 18 [running]:". It tells a call made from inside a callback
// apart from a concurrent one.
func goroutineID() uint64 {
	var buf [64]byte
	header := buf[:runtime.Stack(buf[:], false)]
	header = bytes.TrimPrefix(header, []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		panic("broker: cannot read goroutine id from " + strconv.Quote(string(buf[:])))
	}
	return id
}
