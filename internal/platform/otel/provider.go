// Package otel configures OpenTelemetry tracing for oauthbroker processes.
package otel

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/oauthbroker/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config is read from the environment on every Setup call.
type Config struct {
	Endpoint    string  `env:"OAUTHBROKER_OTEL_ENDPOINT"`
	Enabled     string  `env:"OAUTHBROKER_OTEL_ENABLED"`
	SampleRatio float64 `env:"OAUTHBROKER_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// endpoint returns the collector URL, or "" when tracing is off.
func (c Config) endpoint() string {
	if strings.EqualFold(strings.TrimSpace(c.Enabled), "false") {
		return ""
	}
	return strings.TrimSpace(c.Endpoint)
}

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider for serviceName and returns its
// shutdown func, which flushes buffered spans.
//
// Without OAUTHBROKER_OTEL_ENDPOINT, or with OAUTHBROKER_OTEL_ENABLED=false,
// nothing is installed and the shutdown func does nothing. The broker's
// otelgrpc handlers then record into the global no-op provider.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return noop, err
	}
	endpoint := cfg.endpoint()
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
