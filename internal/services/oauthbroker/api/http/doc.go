// Package http exposes the broker over HTTP: the pending list and its event
// stream, trigger and reject actions, blocking token requests, the request
// history, and the provider redirect that completes a login popup.
package http
