package broker

import (
	"fmt"
	"runtime"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
)

var (
	// ErrRejected is delivered to every waiter of a rejected request.
	ErrRejected = apperrors.New(apperrors.CodeAuthRequestRejected, "auth request rejected")

	// ErrRequestNotPending is returned when an id does not name a pending request.
	ErrRequestNotPending = apperrors.New(apperrors.CodeAuthRequestNotPending, "auth request is not pending")

	// ErrInvalidRequester is returned by CreateRequester for incomplete options.
	ErrInvalidRequester = apperrors.New(apperrors.CodeAuthRequesterInvalid, "invalid auth requester")
)

func notPending(id string) error {
	return apperrors.Errorf(apperrors.CodeAuthRequestNotPending, "auth request %q is not pending", id).
		With("RequestID", id)
}

func invalidRequester(reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeAuthRequesterInvalid,
		"invalid auth requester: "+reason,
		map[string]string{"Reason": reason},
	)
}

// PanicError wraps a panic raised by an auth function together with the
// goroutine stack at the point of the panic. It is delivered to every
// waiter of the request in place of a result.
type PanicError struct {
	// Value is the original value passed to panic().
	Value any

	// Stack is the goroutine stack trace at the point of panic.
	Stack string
}

// Error returns the panic value and the captured stack.
func (e *PanicError) Error() string {
	return fmt.Sprintf("auth function panicked: %v\n\n%s", e.Value, e.Stack)
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}
