// Package timeouts holds the durations shared by the broker's servers and flows.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// PopupDefault bounds how long a login popup waits for the provider redirect
// when no explicit timeout is configured.
const PopupDefault = 5 * time.Minute

// ProviderExchange caps a single token exchange with an upstream provider.
const ProviderExchange = 15 * time.Second

// SSEHeartbeat is the interval between keep-alive comments on event streams.
const SSEHeartbeat = 15 * time.Second
