// Package storage defines persistence contracts for the auth request history.
//
// Handlers depend on these interfaces rather than on the SQLite schema.
package storage
