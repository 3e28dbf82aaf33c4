// Package grpc holds the server and client plumbing shared by gRPC commands:
// traced server and dial options, health registration, and a connect helper
// that waits for a named service to report SERVING.
package grpc
