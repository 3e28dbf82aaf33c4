package grpc

import (
	"context"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthBackoffStart = 100 * time.Millisecond
	healthBackoffMax   = time.Second
	healthCallTimeout  = time.Second
)

// RegisterHealth adds a health server to registrar with every named service,
// and the overall "" service, reporting SERVING.
func RegisterHealth(registrar gogrpc.ServiceRegistrar, services ...string) *health.Server {
	server := health.NewServer()
	grpc_health_v1.RegisterHealthServer(registrar, server)
	server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, service := range services {
		server.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return server
}

// WaitServing polls the health service until service reports SERVING or ctx
// ends. Polls back off from 100ms up to one second.
func WaitServing(ctx context.Context, conn gogrpc.ClientConnInterface, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}

	client := grpc_health_v1.NewHealthClient(conn)
	delay := healthBackoffStart
	for {
		callCtx, cancel := context.WithTimeout(ctx, healthCallTimeout)
		resp, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		switch {
		case err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING:
			return nil
		case err != nil:
			logf("health %q: %v", service, err)
		default:
			logf("health %q: %s", service, resp.GetStatus())
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for %q to serve: %w", service, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, healthBackoffMax)
	}
}
