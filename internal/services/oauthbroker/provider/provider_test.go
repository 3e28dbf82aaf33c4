package provider

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/popup"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

const testPublicURL = "http://127.0.0.1:8787"

// consentPopups plays the provider consent page: it reads the consent URL
// and answers with a redirect message built by respond.
type consentPopups struct {
	shown   []popup.Options
	respond func(consent *url.URL) (popup.Message, error)
}

func (p *consentPopups) Show(_ context.Context, opts popup.Options) (popup.Message, error) {
	p.shown = append(p.shown, opts)
	consent, err := url.Parse(opts.URL)
	if err != nil {
		return popup.Message{}, err
	}
	return p.respond(consent)
}

func approve(code string) func(*url.URL) (popup.Message, error) {
	return func(consent *url.URL) (popup.Message, error) {
		return popup.Message{Params: url.Values{
			"code":  {code + ":" + consent.Query().Get("code_challenge")},
			"state": {consent.Query().Get("state")},
		}}, nil
	}
}

// newTokenServer checks the PKCE verifier against the challenge carried in
// the code and answers with a token.
func newTokenServer(t *testing.T, grantedScope string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		code := r.PostForm.Get("code")
		parts := strings.SplitN(code, ":", 2)
		if len(parts) != 2 {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != parts[1] {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-" + parts[0],
			"token_type":   "bearer",
			"scope":        grantedScope,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestFlow(t *testing.T, def Definition, tokenURL string, popups Popups) *Flow {
	t.Helper()
	signer, err := NewStateSigner([]byte("test-key"), time.Minute)
	if err != nil {
		t.Fatalf("state signer: %v", err)
	}
	flow, err := NewFlow(def, Config{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      "https://provider.test/authorize",
		TokenURL:     tokenURL,
	}, FlowOptions{Popups: popups, States: signer, PublicURL: testPublicURL + "/"})
	if err != nil {
		t.Fatalf("new flow: %v", err)
	}
	return flow
}

func TestAuthorizeExchangesCodeWithPKCE(t *testing.T) {
	server := newTokenServer(t, "repo,gist")
	popups := &consentPopups{respond: approve("abc")}
	flow := newTestFlow(t, GitHub(), server.URL, popups)

	token, err := flow.Authorize(context.Background(), scope.Parse("repo gist"))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if token.AccessToken != "tok-abc" {
		t.Fatalf("access token = %q", token.AccessToken)
	}
	if got := flow.Granted(token, scope.Scopes{}).String(); got != "gist repo" {
		t.Fatalf("granted = %q", got)
	}

	if len(popups.shown) != 1 {
		t.Fatalf("popups shown = %d", len(popups.shown))
	}
	shown := popups.shown[0]
	if shown.Name != "oauth-github" || shown.Origin != testPublicURL {
		t.Fatalf("popup options = %+v", shown)
	}
	consent, _ := url.Parse(shown.URL)
	query := consent.Query()
	if query.Get("scope") != "gist repo" {
		t.Fatalf("consent scope = %q", query.Get("scope"))
	}
	if query.Get("code_challenge_method") != "S256" {
		t.Fatalf("challenge method = %q", query.Get("code_challenge_method"))
	}
	if query.Get("redirect_uri") != testPublicURL+"/oauth/providers/github/callback" {
		t.Fatalf("redirect uri = %q", query.Get("redirect_uri"))
	}
}

func TestAuthorizeCanonicalizesGoogleScopes(t *testing.T) {
	server := newTokenServer(t, "")
	popups := &consentPopups{respond: approve("g")}
	flow := newTestFlow(t, Google(), server.URL, popups)

	requested := scope.Parse("openid drive.readonly")
	token, err := flow.Authorize(context.Background(), requested)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	consent, _ := url.Parse(popups.shown[0].URL)
	want := "https://www.googleapis.com/auth/drive.readonly openid"
	if got := consent.Query().Get("scope"); got != want {
		t.Fatalf("consent scope = %q, want %q", got, want)
	}
	if consent.Query().Get("access_type") != "offline" {
		t.Fatal("expected offline access for google")
	}
	if got := flow.Granted(token, requested).String(); got != want {
		t.Fatalf("granted fallback = %q, want %q", got, want)
	}
}

func TestAuthorizeReportsProviderDenial(t *testing.T) {
	popups := &consentPopups{respond: func(*url.URL) (popup.Message, error) {
		return popup.Message{Params: url.Values{
			"error":             {"access_denied"},
			"error_description": {"user said no"},
		}}, nil
	}}
	flow := newTestFlow(t, GitHub(), "http://unused.test/token", popups)

	_, err := flow.Authorize(context.Background(), scope.Parse("repo"))
	if !apperrors.IsCode(err, apperrors.CodeAuthFlowFailed) {
		t.Fatalf("authorize = %v, want AUTH_FLOW_FAILED", err)
	}
	if !strings.Contains(err.Error(), "user said no") {
		t.Fatalf("error = %v", err)
	}
	if apperrors.GetMetadata(err)["Provider"] != "github" {
		t.Fatalf("metadata = %v", apperrors.GetMetadata(err))
	}
}

func TestAuthorizeRejectsForeignState(t *testing.T) {
	other, err := NewStateSigner([]byte("other-key"), time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	forged, err := other.Sign("github", "oauth-github")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	popups := &consentPopups{respond: func(*url.URL) (popup.Message, error) {
		return popup.Message{Params: url.Values{"code": {"x"}, "state": {forged}}}, nil
	}}
	flow := newTestFlow(t, GitHub(), "http://unused.test/token", popups)

	_, err = flow.Authorize(context.Background(), scope.Parse("repo"))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("authorize = %v, want ErrInvalidState", err)
	}
}

func TestAuthorizeRejectsStateFromAnotherProvider(t *testing.T) {
	server := newTokenServer(t, "")
	var flow *Flow
	popups := &consentPopups{respond: func(consent *url.URL) (popup.Message, error) {
		state, err := flow.states.Sign("gitlab", "oauth-gitlab")
		if err != nil {
			return popup.Message{}, err
		}
		return popup.Message{Params: url.Values{"code": {"x"}, "state": {state}}}, nil
	}}
	flow = newTestFlow(t, GitHub(), server.URL, popups)

	if _, err := flow.Authorize(context.Background(), scope.Parse("repo")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("authorize = %v, want ErrInvalidState", err)
	}
}

func TestAuthorizePropagatesPopupErrors(t *testing.T) {
	popups := &consentPopups{respond: func(*url.URL) (popup.Message, error) {
		return popup.Message{}, popup.ErrPopupClosed
	}}
	flow := newTestFlow(t, GitHub(), "http://unused.test/token", popups)

	if _, err := flow.Authorize(context.Background(), scope.Parse("repo")); err != popup.ErrPopupClosed {
		t.Fatalf("authorize = %v, want popup closed", err)
	}
}

func TestAuthorizeWrapsExchangeFailure(t *testing.T) {
	server := newTokenServer(t, "")
	popups := &consentPopups{respond: func(consent *url.URL) (popup.Message, error) {
		return popup.Message{Params: url.Values{
			"code":  {"abc:wrong-challenge"},
			"state": {consent.Query().Get("state")},
		}}, nil
	}}
	flow := newTestFlow(t, GitHub(), server.URL, popups)

	_, err := flow.Authorize(context.Background(), scope.Parse("repo"))
	if !apperrors.IsCode(err, apperrors.CodeAuthFlowFailed) {
		t.Fatalf("authorize = %v, want AUTH_FLOW_FAILED", err)
	}
	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		t.Fatalf("expected the oauth2 exchange error as cause, got %v", err)
	}
}

func TestNewFlowValidation(t *testing.T) {
	signer, _ := NewStateSigner(nil, 0)
	popups := &consentPopups{}
	tests := []struct {
		name string
		def  Definition
		cfg  Config
		opts FlowOptions
	}{
		{name: "missing client id", def: GitHub(), opts: FlowOptions{Popups: popups, States: signer, PublicURL: testPublicURL}},
		{name: "missing popups", def: GitHub(), cfg: Config{ClientID: "c"}, opts: FlowOptions{States: signer, PublicURL: testPublicURL}},
		{name: "missing signer", def: GitHub(), cfg: Config{ClientID: "c"}, opts: FlowOptions{Popups: popups, PublicURL: testPublicURL}},
		{name: "relative public url", def: GitHub(), cfg: Config{ClientID: "c"}, opts: FlowOptions{Popups: popups, States: signer, PublicURL: "/callback"}},
		{name: "missing provider id", def: Definition{}, cfg: Config{ClientID: "c"}, opts: FlowOptions{Popups: popups, States: signer, PublicURL: testPublicURL}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFlow(tc.def, tc.cfg, tc.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfigReadsPrefixedEnv(t *testing.T) {
	t.Setenv("OAUTHBROKER_GITHUB_CLIENT_ID", " gh-client ")
	t.Setenv("OAUTHBROKER_GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("OAUTHBROKER_GITHUB_SCOPES", "repo, ,gist")

	cfg, err := LoadConfig(GitHub())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ClientID != "gh-client" || cfg.ClientSecret != "gh-secret" {
		t.Fatalf("config = %+v", cfg)
	}
	if strings.Join(cfg.Scopes, " ") != "repo gist" {
		t.Fatalf("scopes = %v", cfg.Scopes)
	}
	if !cfg.Enabled() {
		t.Fatal("expected provider to be enabled")
	}
}

func TestLoadSkipsProvidersWithoutCredentials(t *testing.T) {
	t.Setenv("OAUTHBROKER_GITHUB_CLIENT_ID", "gh-client")
	t.Setenv("OAUTHBROKER_GOOGLE_CLIENT_ID", "")
	t.Setenv("OAUTHBROKER_GITLAB_CLIENT_ID", "")
	signer, _ := NewStateSigner(nil, 0)

	registry, err := Load(Builtin(), FlowOptions{Popups: &consentPopups{}, States: signer, PublicURL: testPublicURL})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	flows := registry.Flows()
	if len(flows) != 1 || flows[0].Provider().ID != "github" {
		t.Fatalf("flows = %d", len(flows))
	}
	if flows[0].DefaultScopes().String() != "read:user" {
		t.Fatalf("default scopes = %q", flows[0].DefaultScopes())
	}
	if _, err := registry.Lookup("google"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("lookup google = %v, want ErrUnknownProvider", err)
	}
}

func TestCallbackURL(t *testing.T) {
	if got := CallbackURL("http://localhost:8787/", "gitlab"); got != "http://localhost:8787/oauth/providers/gitlab/callback" {
		t.Fatalf("callback url = %q", got)
	}
}
