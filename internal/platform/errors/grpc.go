package errors

import (
	"errors"

	"github.com/louisbranch/oauthbroker/internal/platform/errors/i18n"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultLocale is used when a caller sends no usable locale.
const DefaultLocale = i18n.BaseLocale

// errInternal is what callers see for errors that carry no code.
var errInternal = status.Error(codes.Internal, "an unexpected error occurred")

// HandleError turns err into a gRPC status whose message is localized for
// locale. Plain status errors pass through untouched.
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	appErr, ok := asError(err)
	if !ok {
		if _, isStatus := status.FromError(err); isStatus {
			return err
		}
		return errInternal
	}
	catalog := i18n.GetCatalog(locale)
	return appErr.ToGRPCStatus(catalog.Locale(), catalog.Format(string(appErr.Code), appErr.Metadata))
}

// UserMessage formats the localized message for err. Errors without a code
// read as the UNKNOWN message.
func UserMessage(err error, locale string) string {
	return i18n.GetCatalog(locale).Format(string(GetCode(err)), GetMetadata(err))
}

// GetCode returns the code carried by err, or CodeUnknown.
func GetCode(err error) Code {
	if e, ok := asError(err); ok {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries code.
func IsCode(err error, code Code) bool { return GetCode(err) == code }

// GetMetadata returns the message arguments carried by err, if any.
func GetMetadata(err error) map[string]string {
	if e, ok := asError(err); ok {
		return e.Metadata
	}
	return nil
}

func asError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
