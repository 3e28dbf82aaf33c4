package errors

import (
	"fmt"
	"maps"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain names the broker in gRPC ErrorInfo details.
const Domain = "oauthbroker"

// Error is a coded error. Message is for logs; users see the catalog
// message for Code rendered with Metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so sentinel errors compare
// equal to their metadata-carrying variants.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

// With returns a copy of e carrying key=value in its metadata.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Metadata = make(map[string]string, len(e.Metadata)+1)
	maps.Copy(out.Metadata, e.Metadata)
	out.Metadata[key] = value
	return &out
}

// New creates an error with a code and log message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates an error whose log message is formatted from args.
// %w verbs are not unwrapped; use Wrap for causes.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates an error with template metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates an error around cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// ToGRPCStatus renders e as a gRPC status. The status message keeps the log
// message; the ErrorInfo detail carries the code and metadata, and the
// LocalizedMessage detail carries userMessage.
func (e *Error) ToGRPCStatus(locale string, userMessage string) error {
	code := e.Code.GRPCCode()
	withDetails, err := status.New(code, e.Error()).WithDetails(
		&errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain, Metadata: e.Metadata},
		&errdetails.LocalizedMessage{Locale: locale, Message: userMessage},
	)
	if err != nil {
		return status.Error(code, e.Error())
	}
	return withDetails.Err()
}
