// Package server wires the OAuth request broker into a runnable process.
//
// It owns the listeners, the history store and the background context that
// detached logins run under. Provider flows are loaded from the environment;
// each enabled provider gets one broker requester and one token session.
package server
