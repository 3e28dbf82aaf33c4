package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func startHealth(t *testing.T, services ...string) (dial []gogrpc.DialOption, setStatus func(string, grpc_health_v1.HealthCheckResponse_ServingStatus)) {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := gogrpc.NewServer(ServerOptions()...)
	healthServer := RegisterHealth(server, services...)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	dial = []gogrpc.DialOption{
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	return dial, healthServer.SetServingStatus
}

func TestConnectWaitsForService(t *testing.T) {
	dial, _ := startHealth(t, "core.oauthrequest")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := Connect(ctx, "passthrough:///bufnet", ConnectOptions{Service: "core.oauthrequest", DialOptions: dial})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = conn.Close()
}

func TestWaitServingAfterTransition(t *testing.T) {
	dial, setStatus := startHealth(t)
	setStatus("late", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	conn, err := gogrpc.NewClient("passthrough:///bufnet", dial...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer conn.Close()

	go func() {
		time.Sleep(150 * time.Millisecond)
		setStatus("late", grpc_health_v1.HealthCheckResponse_SERVING)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := WaitServing(ctx, conn, "late", nil); err != nil {
		t.Fatalf("wait serving: %v", err)
	}
}

func TestConnectUnknownServiceTimesOut(t *testing.T) {
	dial, _ := startHealth(t)
	var logged int
	_, err := Connect(context.Background(), "passthrough:///bufnet", ConnectOptions{
		Service:     "missing",
		Timeout:     250 * time.Millisecond,
		DialOptions: dial,
		Logf:        func(string, ...any) { logged++ },
	})
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) || connectErr.Stage != ConnectStageHealth {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if logged == 0 {
		t.Fatal("expected progress logs")
	}
}

func TestConnectRequiresTarget(t *testing.T) {
	_, err := Connect(context.Background(), " ", ConnectOptions{})
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) || connectErr.Stage != ConnectStageDial {
		t.Fatalf("err = %v", err)
	}
}

func TestWaitServingRequiresConn(t *testing.T) {
	if err := WaitServing(context.Background(), nil, "", nil); err == nil {
		t.Fatal("expected error")
	}
}
