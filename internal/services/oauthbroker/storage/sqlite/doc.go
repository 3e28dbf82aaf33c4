// Package sqlite persists the auth request history in SQLite.
//
// Store doubles as a broker observer so every lifecycle transition is
// recorded without the broker knowing about storage.
package sqlite
