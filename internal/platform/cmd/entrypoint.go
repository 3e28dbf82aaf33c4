// Package cmd holds the startup steps shared by the broker commands: env
// then flag configuration, and running a service under tracing.
package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/oauthbroker/internal/platform/config"
	"github.com/louisbranch/oauthbroker/internal/platform/otel"
)

// ServiceOAuthBroker is the telemetry service name of the broker server.
const ServiceOAuthBroker = "oauthbroker"

// telemetryFlushTimeout bounds the final span flush on exit.
const telemetryFlushTimeout = 5 * time.Second

// ParseConfig fills cfg from its env tags.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses args into fs. Nil args parse as empty.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	return fs.Parse(append([]string{}, args...))
}

// ParseConfigFromArgs fills cfg from env, then lets flags already bound to
// cfg's fields override it. Flags that are not passed keep the env value.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	return ParseArgs(fs, args)
}

// RunWithTelemetry sets up tracing for service, calls run, and flushes
// spans once run returns.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	switch {
	case service == "":
		return errors.New("service name is required")
	case run == nil:
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := otel.Setup(ctx, service)
	if err != nil {
		return err
	}
	defer flush(service, shutdown)

	log.Printf("%s starting", service)
	return run(ctx)
}

func flush(service string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Printf("%s telemetry shutdown: %v", service, err)
	}
}
