// Package errors provides structured error handling with i18n support.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Auth request errors
	CodeAuthRequestRejected   Code = "AUTH_REQUEST_REJECTED"
	CodeAuthRequestNotPending Code = "AUTH_REQUEST_NOT_PENDING"
	CodeAuthRequesterInvalid  Code = "AUTH_REQUESTER_INVALID"
	CodeAuthFlowFailed        Code = "AUTH_FLOW_FAILED"

	// Scope errors
	CodeScopeMalformed Code = "SCOPE_MALFORMED"

	// Provider errors
	CodeProviderUnknown      Code = "PROVIDER_UNKNOWN"
	CodeProviderStateInvalid Code = "PROVIDER_STATE_INVALID"

	// Popup errors
	CodePopupClosed         Code = "POPUP_CLOSED"
	CodePopupNotFound       Code = "POPUP_NOT_FOUND"
	CodePopupOriginMismatch Code = "POPUP_ORIGIN_MISMATCH"
	CodePopupOptionsInvalid Code = "POPUP_OPTIONS_INVALID"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodePageTokenInvalid Code = "PAGE_TOKEN_INVALID"
	CodeOrderByInvalid   Code = "ORDER_BY_INVALID"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeScopeMalformed,
		CodeAuthRequesterInvalid,
		CodeProviderStateInvalid,
		CodePopupOptionsInvalid,
		CodePopupOriginMismatch,
		CodePageTokenInvalid,
		CodeOrderByInvalid:
		return codes.InvalidArgument

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeAuthRequestNotPending,
		CodeProviderUnknown,
		CodePopupNotFound:
		return codes.NotFound

	// Aborted - the user declined or abandoned the flow
	case CodeAuthRequestRejected,
		CodePopupClosed:
		return codes.Aborted

	// Unavailable - upstream provider failed
	case CodeAuthFlowFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Aborted:
		return http.StatusForbidden
	case codes.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
