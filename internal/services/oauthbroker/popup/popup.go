package popup

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/platform/timeouts"
)

const (
	// DefaultWidth is the window width used when Options.Width is unset.
	DefaultWidth = 500
	// DefaultHeight is the window height used when Options.Height is unset.
	DefaultHeight = 700
)

var (
	// ErrPopupClosed is returned when a window is closed, replaced, or times
	// out before a message arrives.
	ErrPopupClosed = apperrors.New(apperrors.CodePopupClosed, "popup closed")

	// ErrPopupNotFound is returned when no window is waiting under a name.
	ErrPopupNotFound = apperrors.New(apperrors.CodePopupNotFound, "popup not found")

	// ErrOriginMismatch is returned when a message comes from an unexpected origin.
	ErrOriginMismatch = apperrors.New(apperrors.CodePopupOriginMismatch, "popup origin mismatch")

	// ErrInvalidOptions is returned by Show for incomplete options.
	ErrInvalidOptions = apperrors.New(apperrors.CodePopupOptionsInvalid, "invalid popup options")
)

// Options describes one login window.
type Options struct {
	// URL is the page the window starts on.
	URL string
	// Name identifies the window. Messages are routed to it by name.
	Name string
	// Origin is the only origin allowed to deliver the result.
	Origin string
	Width  int
	Height int
	// Timeout bounds how long Show waits. Zero means timeouts.PopupDefault.
	Timeout time.Duration
}

// Message is the payload a window resolves with, typically the query of the
// redirect that closed it.
type Message struct {
	Origin string
	Params url.Values
}

// Get returns the first value of a message parameter.
func (m Message) Get(key string) string {
	return m.Params.Get(key)
}

// Window is what an Opener is asked to show.
type Window struct {
	URL    string
	Name   string
	Width  int
	Height int
}

// Opener shows a window to the user.
type Opener interface {
	Open(ctx context.Context, window Window) error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, window Window) error

// Open calls fn(ctx, window).
func (fn OpenerFunc) Open(ctx context.Context, window Window) error {
	return fn(ctx, window)
}

// Registry holds the windows waiting for a message.
type Registry struct {
	opener Opener

	mu      sync.Mutex
	windows map[string]*waiting
}

type waiting struct {
	origin string
	done   chan struct{}
	once   sync.Once
	msg    Message
	err    error
}

func (w *waiting) settle(msg Message, err error) {
	w.once.Do(func() {
		w.msg = msg
		w.err = err
		close(w.done)
	})
}

// NewRegistry creates a registry that shows windows through opener. A nil
// opener logs the URL instead.
func NewRegistry(opener Opener) *Registry {
	if opener == nil {
		opener = LogOpener()
	}
	return &Registry{
		opener:  opener,
		windows: make(map[string]*waiting),
	}
}

// Show opens a window and waits for its message.
func (r *Registry) Show(ctx context.Context, opts Options) (Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts, err := normalize(opts)
	if err != nil {
		return Message{}, err
	}

	w := &waiting{origin: opts.Origin, done: make(chan struct{})}
	r.mu.Lock()
	previous := r.windows[opts.Name]
	r.windows[opts.Name] = w
	r.mu.Unlock()
	if previous != nil {
		previous.settle(Message{}, closed(opts.Name, "replaced"))
	}
	defer r.forget(opts.Name, w)

	window := Window{URL: opts.URL, Name: opts.Name, Width: opts.Width, Height: opts.Height}
	if err := r.opener.Open(ctx, window); err != nil {
		return Message{}, fmt.Errorf("open popup %s: %w", opts.Name, err)
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return w.msg, w.err
	case <-ctx.Done():
		return Message{}, apperrors.Wrap(apperrors.CodePopupClosed, "popup "+opts.Name+" abandoned", ctx.Err())
	case <-timer.C:
		return Message{}, closed(opts.Name, "timed out")
	}
}

// Deliver resolves the window waiting under name. The window keeps waiting
// when origin does not match.
func (r *Registry) Deliver(origin, name string, msg Message) error {
	origin = Origin(origin)
	r.mu.Lock()
	w := r.windows[name]
	if w == nil {
		r.mu.Unlock()
		return notFound(name)
	}
	if w.origin != origin {
		r.mu.Unlock()
		return apperrors.Errorf(apperrors.CodePopupOriginMismatch, "popup %s expects origin %s, got %s", name, w.origin, origin).
			With("Name", name).
			With("Origin", origin)
	}
	delete(r.windows, name)
	r.mu.Unlock()

	msg.Origin = origin
	w.settle(msg, nil)
	return nil
}

// Close abandons the window waiting under name.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	w := r.windows[name]
	delete(r.windows, name)
	r.mu.Unlock()
	if w == nil {
		return notFound(name)
	}
	w.settle(Message{}, closed(name, "closed"))
	return nil
}

// Waiting returns the number of open windows.
func (r *Registry) Waiting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

func (r *Registry) forget(name string, w *waiting) {
	r.mu.Lock()
	if r.windows[name] == w {
		delete(r.windows, name)
	}
	r.mu.Unlock()
}

func normalize(opts Options) (Options, error) {
	opts.URL = strings.TrimSpace(opts.URL)
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.URL == "" {
		return opts, invalid("url is required")
	}
	if opts.Name == "" {
		return opts, invalid("name is required")
	}
	opts.Origin = Origin(opts.Origin)
	if opts.Origin == "" {
		return opts, invalid("origin is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = timeouts.PopupDefault
	}
	return opts, nil
}

// Origin reduces a URL to its lowercase scheme://host[:port] origin. It
// returns "" when raw has no scheme or host.
func Origin(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
}

func closed(name, reason string) error {
	return apperrors.Errorf(apperrors.CodePopupClosed, "popup %s %s", name, reason).With("Name", name)
}

func notFound(name string) error {
	return apperrors.Errorf(apperrors.CodePopupNotFound, "popup %s not found", name).With("Name", name)
}

func invalid(reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodePopupOptionsInvalid,
		"invalid popup options: "+reason,
		map[string]string{"Reason": reason},
	)
}
