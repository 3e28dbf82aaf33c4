// Package session caches provider tokens and only asks the broker for a new
// login when the cached token is missing, expired, or lacks a scope.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/oauth2"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// Requester asks the broker for a login.
type Requester interface {
	Request(scopes scope.Like) *broker.Waiter[*oauth2.Token]
}

// Authority knows how a provider spells and reports scopes.
type Authority interface {
	DefaultScopes() scope.Scopes
	Canonical(scopes scope.Scopes) scope.Scopes
	Granted(token *oauth2.Token, requested scope.Scopes) scope.Scopes
}

// Manager holds the token of one provider.
type Manager struct {
	requester Requester
	authority Authority

	mu      sync.Mutex
	token   *oauth2.Token
	granted scope.Scopes
}

// NewManager creates a manager that logs in through requester.
func NewManager(requester Requester, authority Authority) *Manager {
	return &Manager{requester: requester, authority: authority}
}

// Token returns a valid token covering requested. A new login asks for the
// scopes already granted, the provider defaults, and requested, so the new
// token never loses access the old one had.
func (m *Manager) Token(ctx context.Context, requested scope.Like) (*oauth2.Token, error) {
	want := m.authority.Canonical(scope.Scopes{}.Extend(requested))

	m.mu.Lock()
	if m.token != nil && m.token.Valid() && m.granted.Has(want) {
		token := m.token
		m.mu.Unlock()
		return token, nil
	}
	ask := m.granted.Extend(m.authority.DefaultScopes()).Extend(requested)
	m.mu.Unlock()

	token, err := m.requester.Request(ask).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, fmt.Errorf("login returned no token")
	}
	granted := m.authority.Granted(token, m.authority.Canonical(ask))

	m.mu.Lock()
	m.token = token
	m.granted = granted
	m.mu.Unlock()
	return token, nil
}

// Granted returns the scopes of the cached token.
func (m *Manager) Granted() scope.Scopes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

// Clear drops the cached token. The next Token call starts a login.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.token = nil
	m.granted = scope.Scopes{}
	m.mu.Unlock()
}

// Set holds one manager per provider id.
type Set struct {
	managers map[string]*Manager
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{managers: make(map[string]*Manager)}
}

// Add registers the manager for providerID.
func (s *Set) Add(providerID string, manager *Manager) {
	s.managers[providerID] = manager
}

// Lookup returns the manager for providerID.
func (s *Set) Lookup(providerID string) (*Manager, error) {
	manager, ok := s.managers[providerID]
	if !ok {
		return nil, apperrors.Errorf(apperrors.CodeProviderUnknown, "unknown provider %q", providerID).
			With("Provider", providerID)
	}
	return manager, nil
}

// Token returns a token of providerID covering requested.
func (s *Set) Token(ctx context.Context, providerID string, requested scope.Like) (*oauth2.Token, error) {
	manager, err := s.Lookup(providerID)
	if err != nil {
		return nil, err
	}
	return manager.Token(ctx, requested)
}

// Clear drops the cached token of providerID.
func (s *Set) Clear(providerID string) error {
	manager, err := s.Lookup(providerID)
	if err != nil {
		return err
	}
	manager.Clear()
	return nil
}

// Providers returns the registered provider ids, sorted.
func (s *Set) Providers() []string {
	out := make([]string, 0, len(s.managers))
	for providerID := range s.managers {
		out = append(out, providerID)
	}
	sort.Strings(out)
	return out
}
