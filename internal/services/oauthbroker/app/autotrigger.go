package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
)

// AutoTrigger triggers every request that appears on stream, each on its
// own goroutine under ctx. It stops when ctx ends or the returned stop
// function is called, then waits for the logins it started.
func AutoTrigger(ctx context.Context, stream *broker.PendingStream) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var (
		mu      sync.Mutex
		started = make(map[string]struct{})
		running sync.WaitGroup
		stopped bool
	)

	unsubscribe := stream.Subscribe(func(views []broker.PendingRequest) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		present := make(map[string]struct{}, len(views))
		for _, view := range views {
			present[view.ID] = struct{}{}
			if _, ok := started[view.ID]; ok {
				continue
			}
			started[view.ID] = struct{}{}
			running.Add(1)
			go func(view broker.PendingRequest) {
				defer running.Done()
				runTrigger(ctx, view)
			}(view)
		}
		// Removed ids never come back.
		for id := range started {
			if _, ok := present[id]; !ok {
				delete(started, id)
			}
		}
	})

	var once sync.Once
	stop = func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			stopped = true
			mu.Unlock()
			cancel()
			running.Wait()
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop
}

func runTrigger(ctx context.Context, view broker.PendingRequest) {
	err := view.Trigger(ctx)
	switch {
	case err == nil:
		log.Printf("auto-trigger: %s request %s done", view.Provider.ID, view.ID)
	case errors.Is(err, context.Canceled):
		log.Printf("auto-trigger: %s request %s canceled", view.Provider.ID, view.ID)
	default:
		log.Printf("auto-trigger: %s request %s failed: %v", view.Provider.ID, view.ID, err)
	}
}
