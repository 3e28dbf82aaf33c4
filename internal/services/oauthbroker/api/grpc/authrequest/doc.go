// Package authrequest exposes the pending auth request list over gRPC.
//
// The service is described by hand with well-known protobuf types as
// payloads, so operators can list, watch, trigger and reject pending
// requests without generated stubs. Errors carry the domain code in an
// ErrorInfo detail and a localized message chosen from the caller's
// accept-language metadata.
package authrequest
