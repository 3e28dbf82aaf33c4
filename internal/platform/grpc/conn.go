package grpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ServerOptions returns the options every gRPC server is created with.
func ServerOptions() []gogrpc.ServerOption {
	return []gogrpc.ServerOption{
		gogrpc.StatsHandler(otelgrpc.NewServerHandler()),
	}
}

// ClientOptions returns the default dial options for local clients: plaintext
// transport with trace propagation.
func ClientOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// ConnectStage names the step at which Connect failed.
type ConnectStage string

const (
	// ConnectStageDial means the client could not be created.
	ConnectStageDial ConnectStage = "dial"
	// ConnectStageHealth means the service never reported SERVING.
	ConnectStageHealth ConnectStage = "health"
)

// ConnectError reports a Connect failure and its stage.
type ConnectError struct {
	Target string
	Stage  ConnectStage
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.Target, e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// Service is the health service name to wait for. Empty waits for the
	// server as a whole.
	Service string
	// Timeout bounds the wait for SERVING. Zero waits until ctx ends.
	Timeout time.Duration
	// DialOptions replace ClientOptions when set.
	DialOptions []gogrpc.DialOption
	Logf        func(string, ...any)
}

// Connect creates a client for target and waits until the requested health
// service is SERVING. The connection is closed when the wait fails.
func Connect(ctx context.Context, target string, opts ConnectOptions) (*gogrpc.ClientConn, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, &ConnectError{Stage: ConnectStageDial, Err: fmt.Errorf("target is required")}
	}
	dialOptions := opts.DialOptions
	if len(dialOptions) == 0 {
		dialOptions = ClientOptions()
	}
	conn, err := gogrpc.NewClient(target, dialOptions...)
	if err != nil {
		return nil, &ConnectError{Target: target, Stage: ConnectStageDial, Err: err}
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if err := WaitServing(waitCtx, conn, opts.Service, opts.Logf); err != nil {
		_ = conn.Close()
		return nil, &ConnectError{Target: target, Stage: ConnectStageHealth, Err: err}
	}
	return conn, nil
}
