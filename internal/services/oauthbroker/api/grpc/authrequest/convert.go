package authrequest

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// Request is the client-side copy of a pending request.
type Request struct {
	ID        string
	Provider  broker.Provider
	Scopes    scope.Scopes
	Waiters   int
	CreatedAt time.Time
}

func pendingToStruct(views []broker.PendingRequest) (*structpb.Struct, error) {
	requests := make([]any, 0, len(views))
	for _, view := range views {
		scopes := make([]any, 0, view.Scopes.Len())
		for _, token := range view.Scopes.Slice() {
			scopes = append(scopes, token)
		}
		requests = append(requests, map[string]any{
			"id": view.ID,
			"provider": map[string]any{
				"id":    view.Provider.ID,
				"title": view.Provider.Title,
				"icon":  view.Provider.Icon,
			},
			"scopes":     scopes,
			"waiters":    view.Waiters,
			"created_at": view.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return structpb.NewStruct(map[string]any{"requests": requests})
}

func pendingFromStruct(in *structpb.Struct) ([]Request, error) {
	list := in.GetFields()["requests"].GetListValue()
	requests := make([]Request, 0, len(list.GetValues()))
	for i, value := range list.GetValues() {
		fields := value.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("request %d is not an object", i)
		}
		provider := fields["provider"].GetStructValue().GetFields()
		var tokens []string
		for _, token := range fields["scopes"].GetListValue().GetValues() {
			tokens = append(tokens, token.GetStringValue())
		}
		request := Request{
			ID: fields["id"].GetStringValue(),
			Provider: broker.Provider{
				ID:    provider["id"].GetStringValue(),
				Title: provider["title"].GetStringValue(),
				Icon:  provider["icon"].GetStringValue(),
			},
			Scopes:  scope.New(tokens...),
			Waiters: int(fields["waiters"].GetNumberValue()),
		}
		if raw := fields["created_at"].GetStringValue(); raw != "" {
			createdAt, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return nil, fmt.Errorf("request %d created_at: %w", i, err)
			}
			request.CreatedAt = createdAt
		}
		requests = append(requests, request)
	}
	return requests, nil
}
