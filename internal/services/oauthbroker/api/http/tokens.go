package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/scope"
)

// maxTokenBody bounds the JSON body of a token request.
const maxTokenBody = 64 << 10

type tokenRequest struct {
	Scopes any `json:"scopes"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

// handleToken blocks until the provider token covering the requested scopes
// is available. Scopes come from a JSON body {"scopes": "a b" | ["a","b"]}
// or from ?scope= query values.
func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		http.NotFound(w, r)
		return
	}
	requested, err := requestedScopes(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.tokens.Token(r.Context(), r.PathValue("provider"), requested)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response := tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.Type(),
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		response.Expiry = &expiry
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleClearToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.tokens.Clear(r.PathValue("provider")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requestedScopes(r *http.Request) (scope.Scopes, error) {
	requested := scope.Scopes{}.Extend(scope.List(r.URL.Query()["scope"]))
	if r.Body == nil {
		return requested, nil
	}
	var body tokenRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxTokenBody)).Decode(&body)
	if errors.Is(err, io.EOF) {
		return requested, nil
	}
	if err != nil {
		return scope.Scopes{}, scope.ErrMalformedScope
	}
	if body.Scopes == nil {
		return requested, nil
	}
	fromBody, err := scope.FromAny(body.Scopes)
	if err != nil {
		return scope.Scopes{}, err
	}
	return requested.Extend(fromBody), nil
}
