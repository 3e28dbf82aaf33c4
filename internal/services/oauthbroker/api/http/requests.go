package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
)

type indexResponse struct {
	Ref       broker.APIRef `json:"ref"`
	Providers []string      `json:"providers"`
}

type requestsResponse struct {
	Requests []broker.PendingRequest `json:"requests"`
}

type triggerResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) handleUp(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleIndex(w http.ResponseWriter, _ *http.Request) {
	response := indexResponse{Ref: broker.Ref, Providers: []string{}}
	if h.tokens != nil {
		response.Providers = h.tokens.Providers()
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, requestsResponse{Requests: h.broker.Pending().Snapshot()})
}

// handleStream sends the pending list as server-sent events, starting with
// the current snapshot. Snapshots the client is too slow to read are
// replaced by newer ones.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	snapshots := h.broker.Pending().Watch(ctx)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case views, ok := <-snapshots:
			if !ok {
				return
			}
			data, err := json.Marshal(requestsResponse{Requests: views})
			if err != nil {
				log.Printf("marshal pending snapshot: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: pending\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleTrigger starts the login of a pending request. The login usually
// waits on the user, so by default it runs in the background and the
// handler answers 202. With ?wait=true the handler blocks until it ends.
// Either way the login runs under the server context: a caller that goes
// away stops waiting but does not cancel the login of the other waiters.
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if wantsWait(r) {
		loginCtx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		stop := context.AfterFunc(h.ctx, cancel)
		result := make(chan error, 1)
		go func() {
			defer cancel()
			defer stop()
			result <- h.broker.Trigger(loginCtx, requestID)
		}()
		select {
		case err := <-result:
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, triggerResponse{ID: requestID, Status: "resolved"})
		case <-r.Context().Done():
			log.Printf("auth request %s: caller left, login continues", requestID)
		}
		return
	}

	if !h.isPending(requestID) {
		writeError(w, r, broker.ErrRequestNotPending.With("RequestID", requestID))
		return
	}
	go h.triggerDetached(requestID)
	writeJSON(w, http.StatusAccepted, triggerResponse{ID: requestID, Status: "triggered"})
}

func (h *Handler) triggerDetached(requestID string) {
	err := h.broker.Trigger(h.ctx, requestID)
	switch {
	case err == nil:
		log.Printf("auth request %s resolved", requestID)
	case errors.Is(err, broker.ErrRequestNotPending):
		log.Printf("auth request %s settled before trigger", requestID)
	case errors.Is(err, context.Canceled):
		log.Printf("auth request %s canceled", requestID)
	default:
		log.Printf("auth request %s failed: %v", requestID, err)
	}
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	if err := h.broker.Reject(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) isPending(requestID string) bool {
	for _, view := range h.broker.Pending().Snapshot() {
		if view.ID == requestID {
			return true
		}
	}
	return false
}

func wantsWait(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("wait"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
