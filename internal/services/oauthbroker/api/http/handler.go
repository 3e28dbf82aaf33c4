package http

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/louisbranch/oauthbroker/internal/platform/timeouts"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/popup"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/provider"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/storage"
)

// Broker is the request registry the handlers act on.
type Broker interface {
	Pending() *broker.PendingStream
	Trigger(ctx context.Context, requestID string) error
	Reject(requestID string) error
}

// Tokens hands out provider tokens, starting logins when needed.
type Tokens interface {
	Token(ctx context.Context, providerID string, requested scope.Like) (*oauth2.Token, error)
	Clear(providerID string) error
	Providers() []string
}

// Popups receives provider redirects for waiting login windows.
type Popups interface {
	Deliver(origin, name string, msg popup.Message) error
	Close(name string) error
}

// States verifies the OAuth state carried by a provider redirect.
type States interface {
	Verify(state string) (provider.State, error)
}

// Options configures a Handler. Broker is required; routes whose
// collaborator is nil answer 404.
type Options struct {
	Broker  Broker
	Tokens  Tokens
	Popups  Popups
	States  States
	History storage.EventStore
	// Context bounds triggers that outlive the HTTP request.
	Context context.Context
	// Heartbeat is the keep-alive interval of event streams.
	Heartbeat time.Duration
}

// Handler serves the broker HTTP API.
type Handler struct {
	broker    Broker
	tokens    Tokens
	popups    Popups
	states    States
	history   storage.EventStore
	ctx       context.Context
	heartbeat time.Duration
}

// NewHandler creates the API handler.
func NewHandler(opts Options) *Handler {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = timeouts.SSEHeartbeat
	}
	return &Handler{
		broker:    opts.Broker,
		tokens:    opts.Tokens,
		popups:    opts.Popups,
		states:    opts.States,
		history:   opts.History,
		ctx:       opts.Context,
		heartbeat: opts.Heartbeat,
	}
}

// RegisterRoutes adds the API routes to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /up", h.handleUp)
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /requests", h.handleListRequests)
	mux.HandleFunc("GET /requests/stream", h.handleStream)
	mux.HandleFunc("POST /requests/{id}/trigger", h.handleTrigger)
	mux.HandleFunc("POST /requests/{id}/reject", h.handleReject)
	mux.HandleFunc("POST /providers/{provider}/token", h.handleToken)
	mux.HandleFunc("DELETE /providers/{provider}/token", h.handleClearToken)
	mux.HandleFunc("GET /history", h.handleHistory)
	mux.HandleFunc("GET /oauth/providers/{provider}/callback", h.handleCallback)
	mux.HandleFunc("POST /popups/{name}/close", h.handleClosePopup)
}

// Routes returns a mux serving the API.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}
