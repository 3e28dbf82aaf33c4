package provider

import (
	"strings"

	"github.com/louisbranch/oauthbroker/internal/platform/config"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleScopePrefix = "https://www.googleapis.com/auth/"

// Definition describes a supported login provider.
type Definition struct {
	Provider broker.Provider
	Endpoint oauth2.Endpoint
	// EnvPrefix is prepended to the Config env tags.
	EnvPrefix string
	// DefaultScopes are requested on every login unless overridden by env.
	DefaultScopes []string
	// CanonicalScope rewrites a requested scope into the provider's form.
	CanonicalScope func(string) string
	// AuthOptions are added to every consent URL.
	AuthOptions []oauth2.AuthCodeOption
}

// Config holds per-provider credentials, loaded with the definition's prefix.
type Config struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	AuthURL      string   `env:"AUTH_URL"`
	TokenURL     string   `env:"TOKEN_URL"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

// Enabled reports whether the provider has credentials.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// LoadConfig reads the provider's env, e.g. OAUTHBROKER_GITHUB_CLIENT_ID.
func LoadConfig(def Definition) (Config, error) {
	var cfg Config
	if err := config.ParseEnvWithPrefix(&cfg, def.EnvPrefix); err != nil {
		return Config{}, err
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.Scopes = config.TrimList(cfg.Scopes)
	return cfg, nil
}

// GitHub returns the GitHub definition.
func GitHub() Definition {
	return Definition{
		Provider:      broker.Provider{ID: "github", Title: "GitHub", Icon: "github"},
		Endpoint:      endpoints.GitHub,
		EnvPrefix:     "OAUTHBROKER_GITHUB_",
		DefaultScopes: []string{"read:user"},
	}
}

// Google returns the Google definition. Short scope names such as
// "drive.readonly" are expanded to their googleapis.com URLs.
func Google() Definition {
	return Definition{
		Provider:       broker.Provider{ID: "google", Title: "Google", Icon: "google"},
		Endpoint:       endpoints.Google,
		EnvPrefix:      "OAUTHBROKER_GOOGLE_",
		DefaultScopes:  []string{"openid", "email", "profile"},
		CanonicalScope: googleScope,
		AuthOptions:    []oauth2.AuthCodeOption{oauth2.AccessTypeOffline},
	}
}

// GitLab returns the GitLab definition.
func GitLab() Definition {
	return Definition{
		Provider:      broker.Provider{ID: "gitlab", Title: "GitLab", Icon: "gitlab"},
		Endpoint:      endpoints.GitLab,
		EnvPrefix:     "OAUTHBROKER_GITLAB_",
		DefaultScopes: []string{"read_user"},
	}
}

// Builtin returns every supported definition.
func Builtin() []Definition {
	return []Definition{GitHub(), Google(), GitLab()}
}

func googleScope(value string) string {
	switch value {
	case "openid", "email", "profile":
		return value
	}
	if strings.HasPrefix(value, "https://") {
		return value
	}
	return googleScopePrefix + value
}
