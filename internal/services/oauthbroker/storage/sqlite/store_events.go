package sqlite

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/platform/grpc/pagination"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/storage"
)

var (
	eventPageSize = pagination.PageSizeConfig{Default: 50, Max: 200}
	eventOrder    = pagination.OrderByConfig{
		Default: storage.OrderOldestFirst,
		Allowed: []string{storage.OrderOldestFirst, storage.OrderNewestFirst},
	}
)

// PutEvent appends one event to the history.
func (s *Store) PutEvent(ctx context.Context, record storage.EventRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.RequestID) == "" {
		return fmt.Errorf("request id is required")
	}
	if strings.TrimSpace(record.Kind) == "" {
		return fmt.Errorf("event kind is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("created at is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO auth_request_events (
	request_id, kind, provider_id, provider_title, scopes, waiters, error_code, error_message, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		strings.TrimSpace(record.RequestID),
		strings.TrimSpace(record.Kind),
		record.ProviderID,
		record.ProviderTitle,
		record.Scopes.String(),
		record.Waiters,
		record.ErrorCode,
		record.ErrorMessage,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put auth request event: %w", err)
	}
	return nil
}

// ListEvents returns a page of events. The page token is the id of the last
// event of the previous page.
func (s *Store) ListEvents(ctx context.Context, query storage.EventQuery) (storage.EventPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.EventPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.EventPage{}, fmt.Errorf("storage is not configured")
	}
	pageSize := eventPageSize.Clamp(query.PageSize)
	orderBy, err := eventOrder.Normalize(query.OrderBy)
	if err != nil {
		return storage.EventPage{}, err
	}
	newestFirst := orderBy == storage.OrderNewestFirst

	whereParts := []string{"1 = 1"}
	var args []any
	if requestID := strings.TrimSpace(query.RequestID); requestID != "" {
		whereParts = append(whereParts, "request_id = ?")
		args = append(args, requestID)
	}
	if providerID := strings.TrimSpace(query.ProviderID); providerID != "" {
		whereParts = append(whereParts, "provider_id = ?")
		args = append(args, providerID)
	}
	if pageToken := strings.TrimSpace(query.PageToken); pageToken != "" {
		cursor, err := pagination.DecodeCursor(pageToken, orderBy)
		if err != nil {
			return storage.EventPage{}, err
		}
		if newestFirst {
			whereParts = append(whereParts, "id < ?")
		} else {
			whereParts = append(whereParts, "id > ?")
		}
		args = append(args, cursor)
	}
	direction := "ASC"
	if newestFirst {
		direction = "DESC"
	}
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT id, request_id, kind, provider_id, provider_title, scopes, waiters, error_code, error_message, created_at
FROM auth_request_events
WHERE %s
ORDER BY id %s
LIMIT ?
`, strings.Join(whereParts, " AND "), direction), args...)
	if err != nil {
		return storage.EventPage{}, fmt.Errorf("list auth request events: %w", err)
	}
	defer rows.Close()

	page := storage.EventPage{Events: make([]storage.EventRecord, 0, pageSize)}
	rowIDs := make([]int64, 0, pageSize+1)
	for rows.Next() {
		var (
			rowID        int64
			record       storage.EventRecord
			scopesRaw    string
			createdAtRaw int64
		)
		if err := rows.Scan(
			&rowID,
			&record.RequestID,
			&record.Kind,
			&record.ProviderID,
			&record.ProviderTitle,
			&scopesRaw,
			&record.Waiters,
			&record.ErrorCode,
			&record.ErrorMessage,
			&createdAtRaw,
		); err != nil {
			return storage.EventPage{}, fmt.Errorf("scan auth request event row: %w", err)
		}
		record.ID = strconv.FormatInt(rowID, 10)
		rowIDs = append(rowIDs, rowID)
		record.Scopes = scope.Parse(scopesRaw)
		record.CreatedAt = fromMillis(createdAtRaw)
		page.Events = append(page.Events, record)
	}
	if err := rows.Err(); err != nil {
		return storage.EventPage{}, fmt.Errorf("iterate auth request event rows: %w", err)
	}
	if len(page.Events) > pageSize {
		page.NextPageToken = pagination.EncodeCursor(orderBy, rowIDs[pageSize-1])
		page.Events = page.Events[:pageSize]
	}
	return page, nil
}

// ObserveAuthRequest records a broker lifecycle event. Write failures are
// logged, never returned to the broker.
func (s *Store) ObserveAuthRequest(event broker.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
	defer cancel()
	if err := s.PutEvent(ctx, recordFromEvent(event)); err != nil {
		log.Printf("record auth request %s %s: %v", event.RequestID, event.Kind, err)
	}
}

// recordFromEvent converts a broker event into its stored form.
func recordFromEvent(event broker.Event) storage.EventRecord {
	record := storage.EventRecord{
		RequestID:     event.RequestID,
		Kind:          string(event.Kind),
		ProviderID:    event.Provider.ID,
		ProviderTitle: event.Provider.Title,
		Scopes:        event.Scopes,
		Waiters:       event.Waiters,
		CreatedAt:     event.At,
	}
	if event.Err != nil {
		record.ErrorCode = string(apperrors.GetCode(event.Err))
		record.ErrorMessage = event.Err.Error()
	}
	return record
}

var _ broker.Observer = (*Store)(nil)
