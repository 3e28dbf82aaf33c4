// Package popup tracks login windows that wait for a single message from the
// page a provider redirects back to.
//
// Show opens a named window through an Opener and blocks until Deliver hands
// it a message from the expected origin, Close abandons it, or the context
// ends. Opening a name that is already waiting replaces the earlier window,
// which fails with ErrPopupClosed.
package popup
