package authrequest

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls a remote OAuthRequestService.
type Client struct {
	conn gogrpc.ClientConnInterface
}

// NewClient creates a client over conn.
func NewClient(conn gogrpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithLocale asks the server for error messages in locale.
func WithLocale(ctx context.Context, locale string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, LocaleHeader, locale)
}

// ListPending returns the pending requests.
func (c *Client) ListPending(ctx context.Context, opts ...gogrpc.CallOption) ([]Request, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listPendingMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return pendingFromStruct(out)
}

// Trigger runs the login of a pending request and waits for it to end.
func (c *Client) Trigger(ctx context.Context, requestID string, opts ...gogrpc.CallOption) error {
	return c.conn.Invoke(ctx, triggerMethod, wrapperspb.String(requestID), &emptypb.Empty{}, opts...)
}

// Reject rejects a pending request.
func (c *Client) Reject(ctx context.Context, requestID string, opts ...gogrpc.CallOption) error {
	return c.conn.Invoke(ctx, rejectMethod, wrapperspb.String(requestID), &emptypb.Empty{}, opts...)
}

// WatchPending opens a stream of pending snapshots. The first snapshot is
// the current list.
func (c *Client) WatchPending(ctx context.Context, opts ...gogrpc.CallOption) (*PendingWatcher, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], watchPendingMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &PendingWatcher{stream: stream}, nil
}

// PendingWatcher reads snapshots from a WatchPending stream.
type PendingWatcher struct {
	stream gogrpc.ClientStream
}

// Recv blocks for the next snapshot.
func (w *PendingWatcher) Recv() ([]Request, error) {
	out := new(structpb.Struct)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return pendingFromStruct(out)
}
