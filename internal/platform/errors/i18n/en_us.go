package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown               = "UNKNOWN"
	CodeAuthRequestRejected   = "AUTH_REQUEST_REJECTED"
	CodeAuthRequestNotPending = "AUTH_REQUEST_NOT_PENDING"
	CodeAuthRequesterInvalid  = "AUTH_REQUESTER_INVALID"
	CodeAuthFlowFailed        = "AUTH_FLOW_FAILED"
	CodeScopeMalformed        = "SCOPE_MALFORMED"
	CodeProviderUnknown       = "PROVIDER_UNKNOWN"
	CodeProviderStateInvalid  = "PROVIDER_STATE_INVALID"
	CodePopupClosed           = "POPUP_CLOSED"
	CodePopupNotFound         = "POPUP_NOT_FOUND"
	CodePopupOriginMismatch   = "POPUP_ORIGIN_MISMATCH"
	CodePopupOptionsInvalid   = "POPUP_OPTIONS_INVALID"
	CodeNotFound              = "NOT_FOUND"
	CodePageTokenInvalid      = "PAGE_TOKEN_INVALID"
	CodeOrderByInvalid        = "ORDER_BY_INVALID"
)

var enUSMessages = map[Code]string{
	CodeUnknown:               "An unexpected error occurred",
	CodeAuthRequestRejected:   "The login request was rejected",
	CodeAuthRequestNotPending: "The login request {{.RequestID}} is no longer pending",
	CodeAuthRequesterInvalid:  "The auth requester is not configured correctly",
	CodeAuthFlowFailed:        "Signing in with {{.Provider}} failed",
	CodeScopeMalformed:        "The requested scope is malformed",
	CodeProviderUnknown:       "Unknown login provider {{.Provider}}",
	CodeProviderStateInvalid:  "The login response could not be verified",
	CodePopupClosed:           "The login window was closed before sign-in completed",
	CodePopupNotFound:         "No login window is waiting for this response",
	CodePopupOriginMismatch:   "The login response came from an unexpected origin",
	CodePopupOptionsInvalid:   "The login window options are invalid",
	CodeNotFound:              "Record not found",
	CodePageTokenInvalid:      "The page token is invalid",
	CodeOrderByInvalid:        "Cannot order results by {{.OrderBy}}",
}
