package server

import (
	"net/http"
	"time"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/popup"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/provider"
)

// Config holds the server settings resolved by the command.
type Config struct {
	// HTTPAddr is the API listen address. Required.
	HTTPAddr string
	// GRPCAddr is the gRPC listen address. Empty disables gRPC.
	GRPCAddr string
	// PublicURL is the base URL providers redirect back to. Empty derives
	// http://localhost:<port> from the HTTP listener.
	PublicURL string
	// DBPath is the SQLite history file. Empty disables history.
	DBPath string
	// StateSecret signs OAuth state. Empty uses a random per-process key.
	StateSecret string
	// AutoTrigger starts every new pending request without a user click.
	AutoTrigger bool
	// OpenBrowser opens login popups in the system browser instead of
	// logging their URL.
	OpenBrowser bool
	// PopupTimeout bounds how long a login waits for the provider redirect.
	PopupTimeout time.Duration
	// StateTTL bounds how long a signed state stays valid.
	StateTTL time.Duration

	// Providers overrides the built-in provider definitions.
	Providers []provider.Definition
	// Opener overrides the popup opener chosen by OpenBrowser.
	Opener popup.Opener
	// HTTPClient is used for token exchanges.
	HTTPClient *http.Client
}

func (c Config) opener() popup.Opener {
	switch {
	case c.Opener != nil:
		return c.Opener
	case c.OpenBrowser:
		return popup.BrowserOpener()
	default:
		return popup.LogOpener()
	}
}

func (c Config) providers() []provider.Definition {
	if c.Providers != nil {
		return c.Providers
	}
	return provider.Builtin()
}
