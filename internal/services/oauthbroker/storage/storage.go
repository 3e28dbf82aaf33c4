package storage

import (
	"context"
	"time"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

const (
	// OrderOldestFirst lists events in the order they happened.
	OrderOldestFirst = "id"
	// OrderNewestFirst lists the latest events first.
	OrderNewestFirst = "id desc"
)

// EventRecord is one persisted lifecycle transition of an auth request.
type EventRecord struct {
	ID            string       `json:"id"`
	RequestID     string       `json:"request_id"`
	Kind          string       `json:"kind"`
	ProviderID    string       `json:"provider_id"`
	ProviderTitle string       `json:"provider_title"`
	Scopes        scope.Scopes `json:"scopes"`
	Waiters       int          `json:"waiters"`
	ErrorCode     string       `json:"error_code,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// EventQuery selects a page of events.
type EventQuery struct {
	PageSize  int32
	PageToken string
	// RequestID and ProviderID narrow the listing when set.
	RequestID  string
	ProviderID string
	// OrderBy is OrderOldestFirst (default) or OrderNewestFirst.
	OrderBy string
}

// EventPage is one page of events.
type EventPage struct {
	Events        []EventRecord `json:"events"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// EventStore persists auth request events.
type EventStore interface {
	PutEvent(ctx context.Context, record EventRecord) error
	ListEvents(ctx context.Context, query EventQuery) (EventPage, error)
}

// Store is the composite storage of the broker daemon.
type Store interface {
	EventStore
	Close() error
}
