package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"

	platformgrpc "github.com/louisbranch/oauthbroker/internal/platform/grpc"
	"github.com/louisbranch/oauthbroker/internal/platform/timeouts"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/api/grpc/authrequest"
	brokerhttp "github.com/louisbranch/oauthbroker/internal/services/oauthbroker/api/http"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/popup"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/provider"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/session"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/storage"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/storage/sqlite"
)

// Server hosts the broker APIs.
type Server struct {
	broker   *broker.Broker
	popups   *popup.Registry
	sessions *session.Set
	store    *sqlite.Store

	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	grpcServer   *gogrpc.Server
	health       *health.Server

	publicURL   string
	autoTrigger bool

	// baseCtx bounds logins that outlive the HTTP request that started them.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// New creates a server with its listeners bound.
func New(cfg Config) (*Server, error) {
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}

	s := &Server{autoTrigger: cfg.AutoTrigger}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	var err error
	s.httpListener, err = net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on http addr %s: %w", httpAddr, err)
	}
	s.publicURL = strings.TrimSpace(cfg.PublicURL)
	if s.publicURL == "" {
		s.publicURL = localURL(s.httpListener.Addr())
	}

	if cfg.DBPath != "" {
		s.store, err = openStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
	}

	watchers := observers{broker.ObserverFunc(logEvent)}
	if s.store != nil {
		watchers = append(watchers, s.store)
	}
	s.broker = broker.New(broker.WithObserver(watchers))
	s.popups = popup.NewRegistry(cfg.opener())

	states, err := provider.NewStateSigner([]byte(cfg.StateSecret), cfg.StateTTL)
	if err != nil {
		return nil, fmt.Errorf("create state signer: %w", err)
	}
	flows, err := provider.Load(cfg.providers(), provider.FlowOptions{
		Popups:       s.popups,
		States:       states,
		PublicURL:    s.publicURL,
		HTTPClient:   cfg.HTTPClient,
		PopupTimeout: cfg.PopupTimeout,
	})
	if err != nil {
		return nil, err
	}
	s.sessions, err = newSessions(s.broker, flows.Flows())
	if err != nil {
		return nil, err
	}

	options := brokerhttp.Options{
		Broker:  s.broker,
		Tokens:  s.sessions,
		Popups:  s.popups,
		States:  states,
		Context: s.baseCtx,
	}
	if s.store != nil {
		options.History = s.store
	}
	s.httpServer = &http.Server{
		Handler:           brokerhttp.NewHandler(options).Routes(),
		ReadHeaderTimeout: timeouts.ReadHeader,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}

	if grpcAddr := strings.TrimSpace(cfg.GRPCAddr); grpcAddr != "" {
		s.grpcListener, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			return nil, fmt.Errorf("listen on grpc addr %s: %w", grpcAddr, err)
		}
		s.grpcServer = gogrpc.NewServer(platformgrpc.ServerOptions()...)
		authrequest.Register(s.grpcServer, authrequest.NewService(s.broker, authrequest.WithLoginContext(s.baseCtx)))
		s.health = platformgrpc.RegisterHealth(s.grpcServer, broker.Ref.ID, authrequest.ServiceName)
	}

	ok = true
	return s, nil
}

// newSessions creates one broker requester and token session per flow.
func newSessions(b *broker.Broker, flows []*provider.Flow) (*session.Set, error) {
	sessions := session.NewSet()
	for _, flow := range flows {
		requester, err := broker.CreateRequester(b, broker.RequesterOptions[*oauth2.Token]{
			Provider:      flow.Provider(),
			OnAuthRequest: flow.Authorize,
		})
		if err != nil {
			return nil, fmt.Errorf("create requester %s: %w", flow.Provider().ID, err)
		}
		sessions.Add(flow.Provider().ID, session.NewManager(requester, flow))
		log.Printf("provider %s enabled", flow.Provider().ID)
	}
	return sessions, nil
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	s, err := New(cfg)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Broker returns the request broker.
func (s *Server) Broker() *broker.Broker {
	return s.broker
}

// Sessions returns the per-provider token sessions.
func (s *Server) Sessions() *session.Set {
	return s.sessions
}

// History returns the lifecycle store, or nil when history is disabled.
func (s *Server) History() storage.EventStore {
	if s.store == nil {
		return nil
	}
	return s.store
}

// HTTPAddr returns the bound HTTP address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// PublicURL returns the base URL providers redirect to.
func (s *Server) PublicURL() string {
	return s.publicURL
}

// Serve runs the listeners and blocks until one fails or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.close()

	if s.autoTrigger {
		stop := AutoTrigger(s.baseCtx, s.broker.Pending())
		defer stop()
		log.Printf("auto-trigger enabled")
	}

	log.Printf("oauthbroker HTTP server listening at %v (public %s)", s.httpListener.Addr(), s.publicURL)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	grpcErr := make(chan error, 1)
	if s.grpcServer != nil {
		log.Printf("oauthbroker gRPC server listening at %v", s.grpcListener.Addr())
		go func() {
			grpcErr <- s.grpcServer.Serve(s.grpcListener)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-httpErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		} else {
			err = fmt.Errorf("serve HTTP: %w", err)
		}
	case err = <-grpcErr:
		if errors.Is(err, gogrpc.ErrServerStopped) {
			err = nil
		} else if err != nil {
			err = fmt.Errorf("serve gRPC: %w", err)
		}
	}

	// Detached work stops before the listeners drain.
	s.cancelBase()
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	if s.grpcServer != nil {
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown HTTP server: %v", err)
		_ = s.httpServer.Close()
	}
}

func (s *Server) close() {
	s.cancelBase()
	if s.httpListener != nil {
		_ = s.httpListener.Close()
	}
	if s.grpcListener != nil {
		_ = s.grpcListener.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close history store: %v", err)
		}
		s.store = nil
	}
}

func openStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return store, nil
}

// localURL is the loopback URL of a listener address.
func localURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
