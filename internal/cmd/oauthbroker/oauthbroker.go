// Package oauthbroker parses broker command flags and launches the server.
package oauthbroker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/louisbranch/oauthbroker/internal/platform/cmd"
	server "github.com/louisbranch/oauthbroker/internal/services/oauthbroker/app"
)

// Config holds broker command configuration.
type Config struct {
	HTTPAddr     string        `env:"OAUTHBROKER_HTTP_ADDR" envDefault:"localhost:8787"`
	GRPCAddr     string        `env:"OAUTHBROKER_GRPC_ADDR" envDefault:"localhost:8788"`
	PublicURL    string        `env:"OAUTHBROKER_PUBLIC_URL"`
	DBPath       string        `env:"OAUTHBROKER_DB_PATH" envDefault:"data/oauthbroker.db"`
	StateSecret  string        `env:"OAUTHBROKER_STATE_SECRET"`
	StateTTL     time.Duration `env:"OAUTHBROKER_STATE_TTL" envDefault:"10m"`
	PopupTimeout time.Duration `env:"OAUTHBROKER_POPUP_TIMEOUT" envDefault:"5m"`
	AutoTrigger  bool          `env:"OAUTHBROKER_AUTO_TRIGGER"`
	OpenBrowser  bool          `env:"OAUTHBROKER_OPEN_BROWSER"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The broker HTTP API address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The broker gRPC address (empty disables gRPC)")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "Base URL providers redirect back to")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The request history SQLite path (empty disables history)")
	fs.DurationVar(&cfg.PopupTimeout, "popup-timeout", cfg.PopupTimeout, "How long a login waits for the provider redirect")
	fs.BoolVar(&cfg.AutoTrigger, "auto-trigger", cfg.AutoTrigger, "Start logins as soon as they are requested")
	fs.BoolVar(&cfg.OpenBrowser, "open-browser", cfg.OpenBrowser, "Open login windows in the system browser")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the broker server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOAuthBroker, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			HTTPAddr:     cfg.HTTPAddr,
			GRPCAddr:     cfg.GRPCAddr,
			PublicURL:    cfg.PublicURL,
			DBPath:       cfg.DBPath,
			StateSecret:  cfg.StateSecret,
			StateTTL:     cfg.StateTTL,
			PopupTimeout: cfg.PopupTimeout,
			AutoTrigger:  cfg.AutoTrigger,
			OpenBrowser:  cfg.OpenBrowser,
		})
	})
}
