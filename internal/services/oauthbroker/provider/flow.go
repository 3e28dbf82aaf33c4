package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/platform/timeouts"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/popup"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

const tracerName = "github.com/louisbranch/oauthbroker/internal/services/oauthbroker/provider"

// Popups shows login windows.
type Popups interface {
	Show(ctx context.Context, opts popup.Options) (popup.Message, error)
}

// FlowOptions are the collaborators shared by every flow.
type FlowOptions struct {
	Popups Popups
	States *StateSigner
	// PublicURL is the base URL the provider redirects back to.
	PublicURL string
	// HTTPClient is used for the token exchange. Nil uses the default.
	HTTPClient *http.Client
	// PopupTimeout bounds the wait for the provider redirect. Zero uses
	// the popup default.
	PopupTimeout time.Duration
}

// Flow runs the authorization-code flow for one provider.
type Flow struct {
	def      Definition
	oauth    oauth2.Config
	defaults scope.Scopes
	popups   Popups
	states   *StateSigner
	origin   string
	client   *http.Client
	wait     time.Duration
	tracer   trace.Tracer
}

// NewFlow builds a flow from a definition and its loaded config.
func NewFlow(def Definition, cfg Config, opts FlowOptions) (*Flow, error) {
	providerID := strings.TrimSpace(def.Provider.ID)
	if providerID == "" {
		return nil, errors.New("provider id is required")
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("provider %s: client id is required", providerID)
	}
	if opts.Popups == nil {
		return nil, fmt.Errorf("provider %s: popups are required", providerID)
	}
	if opts.States == nil {
		return nil, fmt.Errorf("provider %s: state signer is required", providerID)
	}
	origin := popup.Origin(opts.PublicURL)
	if origin == "" {
		return nil, fmt.Errorf("provider %s: public url %q is not absolute", providerID, opts.PublicURL)
	}

	endpoint := def.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	defaults := def.DefaultScopes
	if len(cfg.Scopes) > 0 {
		defaults = cfg.Scopes
	}

	return &Flow{
		def: def,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  CallbackURL(opts.PublicURL, providerID),
		},
		defaults: scope.New(defaults...),
		popups:   opts.Popups,
		states:   opts.States,
		origin:   origin,
		client:   opts.HTTPClient,
		wait:     opts.PopupTimeout,
		tracer:   otel.Tracer(tracerName),
	}, nil
}

// CallbackURL is where providerID redirects after consent.
func CallbackURL(publicURL, providerID string) string {
	return strings.TrimRight(strings.TrimSpace(publicURL), "/") + "/oauth/providers/" + providerID + "/callback"
}

// Provider returns the display metadata of the flow's provider.
func (f *Flow) Provider() broker.Provider {
	return f.def.Provider
}

// DefaultScopes returns the scopes requested on every login.
func (f *Flow) DefaultScopes() scope.Scopes {
	return f.defaults
}

// PopupName is the window name used for this provider's consent page.
func (f *Flow) PopupName() string {
	return "oauth-" + f.def.Provider.ID
}

// Canonical rewrites scopes into the provider's form.
func (f *Flow) Canonical(scopes scope.Scopes) scope.Scopes {
	if f.def.CanonicalScope == nil {
		return scopes
	}
	return scopes.Map(f.def.CanonicalScope)
}

// Granted returns the scopes a token was issued for. Providers that do not
// report them are assumed to have granted what was requested.
func (f *Flow) Granted(token *oauth2.Token, requested scope.Scopes) scope.Scopes {
	if token != nil {
		if raw, ok := token.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
			// GitHub separates granted scopes with commas.
			return f.Canonical(scope.Parse(strings.ReplaceAll(raw, ",", " ")))
		}
	}
	return f.Canonical(requested)
}

// Authorize asks the user to sign in for scopes and returns the issued token.
// It has the shape of a broker auth function.
func (f *Flow) Authorize(ctx context.Context, scopes scope.Scopes) (*oauth2.Token, error) {
	providerID := f.def.Provider.ID
	requested := f.Canonical(scopes)
	ctx, span := f.tracer.Start(ctx, "oauthbroker.provider.authorize", trace.WithAttributes(
		attribute.String("oauth.provider", providerID),
		attribute.String("oauth.scopes", requested.String()),
	))
	defer span.End()

	token, err := f.authorize(ctx, requested)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.GetCode(err)))
		return nil, err
	}
	return token, nil
}

func (f *Flow) authorize(ctx context.Context, requested scope.Scopes) (*oauth2.Token, error) {
	providerID := f.def.Provider.ID
	name := f.PopupName()

	verifier := oauth2.GenerateVerifier()
	state, err := f.states.Sign(providerID, name)
	if err != nil {
		return nil, flowFailed(providerID, err)
	}

	cfg := f.oauth
	cfg.Scopes = requested.Slice()
	authOptions := append([]oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}, f.def.AuthOptions...)
	msg, err := f.popups.Show(ctx, popup.Options{
		URL:     cfg.AuthCodeURL(state, authOptions...),
		Name:    name,
		Origin:  f.origin,
		Timeout: f.wait,
	})
	if err != nil {
		return nil, err
	}

	if denied := msg.Get("error"); denied != "" {
		reason := denied
		if description := msg.Get("error_description"); description != "" {
			reason += ": " + description
		}
		return nil, flowFailed(providerID, errors.New(reason))
	}
	verified, err := f.states.Verify(msg.Get("state"))
	if err != nil {
		return nil, err
	}
	if verified.Provider != providerID || verified.Popup != name {
		return nil, stateInvalid("state belongs to another login", "sub")
	}
	code := msg.Get("code")
	if code == "" {
		return nil, flowFailed(providerID, errors.New("redirect carried no code"))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, timeouts.ProviderExchange)
	defer cancel()
	if f.client != nil {
		exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient, f.client)
	}
	token, err := cfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, flowFailed(providerID, err)
	}
	return token, nil
}

func flowFailed(providerID string, cause error) error {
	return &apperrors.Error{
		Code:     apperrors.CodeAuthFlowFailed,
		Message:  "authorize " + providerID,
		Metadata: map[string]string{"Provider": providerID},
		Cause:    cause,
	}
}
