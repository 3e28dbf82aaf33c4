package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// snapshotLog collects delivered snapshots as their lengths and scope strings.
type snapshotLog struct {
	mu        sync.Mutex
	snapshots [][]PendingRequest
}

func (l *snapshotLog) record(views []PendingRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, views)
}

func (l *snapshotLog) lens() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.snapshots))
	for _, views := range l.snapshots {
		out = append(out, len(views))
	}
	return out
}

func (l *snapshotLog) last() []PendingRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.snapshots) == 0 {
		return nil
	}
	return l.snapshots[len(l.snapshots)-1]
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSubscribeDeliversCurrentSnapshotImmediately(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{value: "tok"}).run)
	r.Request(scope.String("repo"))

	var log snapshotLog
	unsubscribe := b.Pending().Subscribe(log.record)
	defer unsubscribe()

	if got := log.lens(); !equalInts(got, []int{1}) {
		t.Fatalf("deliveries = %v, want [1]", got)
	}
	if log.last()[0].Scopes.String() != "repo" {
		t.Fatalf("scopes = %q", log.last()[0].Scopes)
	}
}

func TestSubscribeOnEmptyBrokerDeliversEmptySnapshot(t *testing.T) {
	b := New()
	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	if got := log.lens(); !equalInts(got, []int{0}) {
		t.Fatalf("deliveries = %v, want [0]", got)
	}
}

func TestStreamFollowsEveryRegistryChange(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{value: "tok"}).run)

	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	w := r.Request(scope.String("repo"))
	if last := log.last(); len(last) != 1 || last[0].Waiters != 1 {
		t.Fatalf("after create = %+v", last)
	}
	r.Request(scope.String("gist"))
	if last := log.last(); len(last) != 1 || last[0].Scopes.String() != "gist repo" || last[0].Waiters != 2 {
		t.Fatalf("after merge = %+v", last)
	}
	if err := b.Trigger(context.Background(), w.RequestID()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := log.lens(); !equalInts(got, []int{0, 1, 1, 0}) {
		t.Fatalf("deliveries = %v, want [0 1 1 0]", got)
	}
}

func TestStreamPublishesRemovalBeforeAuthRuns(t *testing.T) {
	b := New()
	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	var seenDuringAuth []int
	r := newRequester(t, b, github, func(context.Context, scope.Scopes) (string, error) {
		seenDuringAuth = log.lens()
		return "tok", nil
	})
	w := r.Request(scope.String("repo"))
	if err := b.Trigger(context.Background(), w.RequestID()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !equalInts(seenDuringAuth, []int{0, 1, 0}) {
		t.Fatalf("deliveries seen by auth = %v, want [0 1 0]", seenDuringAuth)
	}
}

func TestStreamKeepsCreationOrder(t *testing.T) {
	b := New()
	providers := []Provider{
		{ID: "c", Title: "C"},
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
	}
	for _, provider := range providers {
		newRequester(t, b, provider, (&recordingAuth{}).run).Request(scope.String("x"))
	}

	views := b.Pending().Snapshot()
	for i, provider := range providers {
		if views[i].Provider != provider {
			t.Fatalf("views[%d] = %s, want %s", i, views[i].Provider.ID, provider.ID)
		}
	}

	views[1].Reject()
	views = b.Pending().Snapshot()
	if len(views) != 2 || views[0].Provider.ID != "c" || views[1].Provider.ID != "b" {
		t.Fatalf("after reject = %+v", views)
	}
}

func TestLateSubscriberSeesOnlyCurrentState(t *testing.T) {
	b := New()
	gh := newRequester(t, b, github, (&recordingAuth{}).run)
	gl := newRequester(t, b, gitlab, (&recordingAuth{}).run)

	gh.Request(scope.String("repo"))
	rejected := gl.Request(scope.String("api"))
	if err := b.Reject(rejected.RequestID()); err != nil {
		t.Fatalf("reject: %v", err)
	}

	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	if got := log.lens(); !equalInts(got, []int{1}) {
		t.Fatalf("deliveries = %v, want [1]", got)
	}
	if log.last()[0].Provider != github {
		t.Fatalf("provider = %s", log.last()[0].Provider.ID)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{}).run)

	var log snapshotLog
	unsubscribe := b.Pending().Subscribe(log.record)
	if b.Pending().Len() != 1 {
		t.Fatalf("subscribers = %d, want 1", b.Pending().Len())
	}
	unsubscribe()
	unsubscribe()
	if b.Pending().Len() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.Pending().Len())
	}

	r.Request(scope.String("repo"))
	if got := log.lens(); !equalInts(got, []int{0}) {
		t.Fatalf("deliveries = %v, want [0]", got)
	}
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{}).run)
	r.Request(scope.String("repo"))

	var first, second []PendingRequest
	defer b.Pending().Subscribe(func(views []PendingRequest) {
		if first == nil {
			first = views
			views[0].Waiters = 99
		}
	})()
	defer b.Pending().Subscribe(func(views []PendingRequest) {
		if second == nil {
			second = views
		}
	})()

	if second[0].Waiters != 1 {
		t.Fatalf("mutation leaked between subscribers: %d", second[0].Waiters)
	}
	if b.Pending().Snapshot()[0].Waiters != 1 {
		t.Fatal("mutation leaked into the registry")
	}
}

func TestSubscriberCanTriggerFromCallback(t *testing.T) {
	b := New()
	auth := &recordingAuth{value: "tok"}
	r := newRequester(t, b, github, auth.run)

	var log snapshotLog
	defer b.Pending().Subscribe(func(views []PendingRequest) {
		log.record(views)
		for _, view := range views {
			if err := view.Trigger(context.Background()); err != nil {
				t.Errorf("trigger from subscriber: %v", err)
			}
		}
	})()

	w := r.Request(scope.String("repo"))
	select {
	case <-w.Done():
	default:
		t.Fatal("waiter should settle before Request returns")
	}
	if value, err := waitResult(t, w); err != nil || value != "tok" {
		t.Fatalf("waiter = (%q, %v)", value, err)
	}
	if auth.callCount() != 1 {
		t.Fatalf("auth calls = %d", auth.callCount())
	}
	if got := log.lens(); !equalInts(got, []int{0, 1, 0}) {
		t.Fatalf("deliveries = %v, want [0 1 0]", got)
	}
}

func TestSubscribersNeverSeeOlderSnapshotAfterNewer(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{value: "tok"}).run)

	// The first subscriber rejects whatever shows up. The second subscriber
	// is still in the middle of the round that announced the entry, and must
	// see the removal afterwards, never the other way round.
	defer b.Pending().Subscribe(func(views []PendingRequest) {
		for _, view := range views {
			view.Reject()
		}
	})()
	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	w := r.Request(scope.String("repo"))
	if _, err := waitResult(t, w); err == nil {
		t.Fatal("expected rejection")
	}
	got := log.lens()
	if len(got) == 0 || got[len(got)-1] != 0 {
		t.Fatalf("deliveries = %v, want to end empty", got)
	}
}

// panicLog collects subscriber panics reported by the broker.
type panicLog struct {
	mu     sync.Mutex
	values []any
}

func (l *panicLog) handle(err *PanicError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values = append(l.values, err.Value)
}

func (l *panicLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

func TestSubscriberPanicDoesNotWedgeStream(t *testing.T) {
	var panics panicLog
	b := New(WithSubscriberPanicHandler(panics.handle))
	r := newRequester(t, b, github, (&recordingAuth{}).run)

	b.Pending().Subscribe(func([]PendingRequest) {
		panic("boom")
	})
	if panics.count() != 1 {
		t.Fatalf("panics = %d, want 1", panics.count())
	}
	if n := b.Pending().Len(); n != 0 {
		t.Fatalf("subscribers = %d, want the panicking one removed", n)
	}

	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Request(scope.String("repo"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed locked after a subscriber panic")
	}
	if got := log.lens(); !equalInts(got, []int{0, 1}) {
		t.Fatalf("deliveries = %v, want [0 1]", got)
	}
}

func TestSubscriberPanicDuringTriggerStillSettlesWaiters(t *testing.T) {
	var panics panicLog
	b := New(WithSubscriberPanicHandler(panics.handle))
	auth := &recordingAuth{value: "tok"}
	r := newRequester(t, b, github, auth.run)

	first := r.Request(scope.String("repo"))
	second := r.Request(scope.String("gist"))

	seenEntry := false
	b.Pending().Subscribe(func(views []PendingRequest) {
		if len(views) > 0 {
			seenEntry = true
			return
		}
		if seenEntry {
			panic("removal")
		}
	})
	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	if err := b.Trigger(context.Background(), first.RequestID()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	for _, w := range []*Waiter[string]{first, second} {
		if value, err := waitResult(t, w); err != nil || value != "tok" {
			t.Fatalf("waiter = (%q, %v), want tok", value, err)
		}
	}
	if panics.count() != 1 {
		t.Fatalf("panics = %d, want 1", panics.count())
	}
	if got := log.last(); len(got) != 0 {
		t.Fatalf("other subscriber last saw %d requests, want 0", len(got))
	}
}

func TestSubscriberPanicDuringRequestReturnsWaiter(t *testing.T) {
	var panics panicLog
	b := New(WithSubscriberPanicHandler(panics.handle))
	r := newRequester(t, b, github, (&recordingAuth{value: "tok"}).run)

	b.Pending().Subscribe(func(views []PendingRequest) {
		if len(views) > 0 {
			panic("announce")
		}
	})

	w := r.Request(scope.String("repo"))
	if w == nil {
		t.Fatal("expected a waiter")
	}
	if err := b.Trigger(context.Background(), w.RequestID()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if value, err := waitResult(t, w); err != nil || value != "tok" {
		t.Fatalf("waiter = (%q, %v)", value, err)
	}
	if panics.count() != 1 {
		t.Fatalf("panics = %d, want 1", panics.count())
	}
}

// blockingSubscriber parks inside its first non-empty delivery until
// released.
func blockingSubscriber(entered, release chan struct{}) func([]PendingRequest) {
	var once sync.Once
	return func(views []PendingRequest) {
		if len(views) == 0 {
			return
		}
		once.Do(func() {
			close(entered)
			<-release
		})
	}
}

func TestSubscribeWaitsForRoundInProgress(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{}).run)

	entered := make(chan struct{})
	release := make(chan struct{})
	defer b.Pending().Subscribe(blockingSubscriber(entered, release))()

	go r.Request(scope.String("repo"))
	<-entered

	var deliveries atomic.Int32
	subscribed := make(chan int32, 1)
	go func() {
		b.Pending().Subscribe(func([]PendingRequest) { deliveries.Add(1) })
		subscribed <- deliveries.Load()
	}()

	select {
	case <-subscribed:
		t.Fatal("Subscribe returned while another round was still delivering")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case got := <-subscribed:
		if got < 1 {
			t.Fatalf("deliveries when Subscribe returned = %d, want at least 1", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe never returned")
	}
}

func TestConcurrentRequestReturnsAfterSubscribersSawIt(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{}).run)
	other := newRequester(t, b, gitlab, (&recordingAuth{}).run)

	entered := make(chan struct{})
	release := make(chan struct{})
	defer b.Pending().Subscribe(blockingSubscriber(entered, release))()
	var log snapshotLog
	defer b.Pending().Subscribe(log.record)()

	go r.Request(scope.String("repo"))
	<-entered

	requested := make(chan struct{})
	go func() {
		defer close(requested)
		other.Request(scope.String("api"))
	}()
	select {
	case <-requested:
		t.Fatal("Request returned while another round was still delivering")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("Request never returned")
	}
	if got := log.last(); len(got) != 2 {
		t.Fatalf("subscriber last saw %d requests when Request returned, want 2", len(got))
	}
}

func TestGoroutineIDDistinguishesGoroutines(t *testing.T) {
	mine := goroutineID()
	if mine == 0 {
		t.Fatal("expected a goroutine id")
	}
	if again := goroutineID(); again != mine {
		t.Fatalf("id changed within a goroutine: %d then %d", mine, again)
	}
	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	if got := <-other; got == mine {
		t.Fatalf("two goroutines share id %d", got)
	}
}

func TestWatchDeliversLatestSnapshot(t *testing.T) {
	b := New()
	r := newRequester(t, b, github, (&recordingAuth{}).run)

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Pending().Watch(ctx)

	if views := <-ch; len(views) != 0 {
		t.Fatalf("initial = %d, want 0", len(views))
	}

	r.Request(scope.String("repo"))
	r.Request(scope.String("gist"))
	views := <-ch
	if len(views) != 1 || views[0].Waiters != 2 {
		t.Fatalf("latest = %+v, want one entry with two waiters", views)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if n := b.Pending().Len(); n != 0 {
					t.Fatalf("subscribers after close = %d", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("watch channel not closed after cancel")
		}
	}
}
