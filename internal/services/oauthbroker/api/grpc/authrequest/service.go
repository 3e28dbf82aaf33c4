package authrequest

import (
	"context"
	"errors"
	"strings"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "oauthbroker.v1.OAuthRequestService"

const (
	listPendingMethod  = "/" + ServiceName + "/ListPending"
	watchPendingMethod = "/" + ServiceName + "/WatchPending"
	triggerMethod      = "/" + ServiceName + "/Trigger"
	rejectMethod       = "/" + ServiceName + "/Reject"
)

// LocaleHeader selects the language of error messages.
const LocaleHeader = "accept-language"

// Broker is the request registry served by the service.
type Broker interface {
	Pending() *broker.PendingStream
	Trigger(ctx context.Context, requestID string) error
	Reject(requestID string) error
}

type authRequestServer interface {
	ListPending(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchPending(*emptypb.Empty, gogrpc.ServerStream) error
	Trigger(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Reject(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// Service implements the OAuthRequestService.
type Service struct {
	broker Broker
	// ctx bounds the logins started by Trigger.
	ctx context.Context
}

// Option configures a Service.
type Option func(*Service)

// WithLoginContext sets the context whose end cancels triggered logins.
// It defaults to context.Background.
func WithLoginContext(ctx context.Context) Option {
	return func(s *Service) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// NewService creates the service over b.
func NewService(b Broker, opts ...Option) *Service {
	s := &Service{broker: b, ctx: context.Background()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the service to a gRPC server.
func Register(registrar gogrpc.ServiceRegistrar, svc *Service) {
	registrar.RegisterService(&serviceDesc, svc)
}

// ListPending returns the current pending requests.
func (s *Service) ListPending(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := pendingToStruct(s.broker.Pending().Snapshot())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode pending requests: %v", err)
	}
	return out, nil
}

// WatchPending streams the pending list, starting with the current snapshot.
// Intermediate snapshots are skipped when the client reads slowly.
func (s *Service) WatchPending(_ *emptypb.Empty, stream gogrpc.ServerStream) error {
	ctx := stream.Context()
	for views := range s.broker.Pending().Watch(ctx) {
		out, err := pendingToStruct(views)
		if err != nil {
			return status.Errorf(codes.Internal, "encode pending requests: %v", err)
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
	return nil
}

// Trigger runs the login of a pending request and returns once it ended.
// The login keeps the call's values but not its cancellation, and ends
// only with the service context: a caller that cancels or times out stops
// waiting while the login carries on for the other waiters.
func (s *Service) Trigger(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	requestID := strings.TrimSpace(in.GetValue())
	if requestID == "" {
		return nil, status.Error(codes.InvalidArgument, "request id is required")
	}
	loginCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.ctx, cancel)
	result := make(chan error, 1)
	go func() {
		defer cancel()
		defer stop()
		result <- s.broker.Trigger(loginCtx, requestID)
	}()
	select {
	case err := <-result:
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &emptypb.Empty{}, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// Reject fails every waiter of a pending request.
func (s *Service) Reject(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	requestID := strings.TrimSpace(in.GetValue())
	if requestID == "" {
		return nil, status.Error(codes.InvalidArgument, "request id is required")
	}
	if err := s.broker.Reject(requestID); err != nil {
		return nil, handleError(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func handleError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if apperrors.GetCode(err) == apperrors.CodeUnknown {
			return status.FromContextError(err).Err()
		}
	}
	return apperrors.HandleError(err, localeFromContext(ctx))
}

func localeFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(LocaleHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

var serviceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*authRequestServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "ListPending", Handler: listPendingHandler},
		{MethodName: "Trigger", Handler: triggerHandler},
		{MethodName: "Reject", Handler: rejectHandler},
	},
	Streams: []gogrpc.StreamDesc{
		{StreamName: "WatchPending", Handler: watchPendingHandler, ServerStreams: true},
	},
	Metadata: "oauthbroker/v1/auth_request.proto",
}

func listPendingHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authRequestServer).ListPending(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: listPendingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(authRequestServer).ListPending(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func triggerHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authRequestServer).Trigger(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: triggerMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(authRequestServer).Trigger(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func rejectHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(authRequestServer).Reject(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: rejectMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(authRequestServer).Reject(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func watchPendingHandler(srv any, stream gogrpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(authRequestServer).WatchPending(in, stream)
}
