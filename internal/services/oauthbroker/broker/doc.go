// Package broker coordinates OAuth login requests.
//
// Callers ask a Requester for scopes and get back a Waiter. Requests made
// through the same Requester while a login is pending are merged into a
// single entry whose scopes are the union of everything asked for. Someone
// watching the PendingStream (a UI, or an automatic policy) then triggers or
// rejects the entry, and every merged Waiter observes the same outcome.
//
// Triggering removes the entry from the registry before the provider's auth
// function runs, so requests that arrive while a login is executing start a
// new entry instead of joining one whose scopes are already fixed.
package broker
