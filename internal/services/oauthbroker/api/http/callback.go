package http

import (
	"html/template"
	"log"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/popup"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{.Message}}</p>
<script>window.close();</script>
</body>
</html>
`))

type callbackView struct {
	Title   string
	Message string
}

// handleCallback receives the provider redirect and hands its query to the
// login popup named in the signed state.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if h.popups == nil || h.states == nil {
		http.NotFound(w, r)
		return
	}
	providerID := r.PathValue("provider")
	query := r.URL.Query()

	state, err := h.states.Verify(query.Get("state"))
	if err != nil {
		renderCallback(w, r, err)
		return
	}
	if state.Provider != providerID {
		renderCallback(w, r, apperrors.WithMetadata(
			apperrors.CodeProviderStateInvalid,
			"state belongs to provider "+state.Provider,
			map[string]string{"Field": "sub"},
		))
		return
	}

	err = h.popups.Deliver(requestOrigin(r), state.Popup, popup.Message{Params: query})
	renderCallback(w, r, err)
}

func (h *Handler) handleClosePopup(w http.ResponseWriter, r *http.Request) {
	if h.popups == nil {
		http.NotFound(w, r)
		return
	}
	if err := h.popups.Close(r.PathValue("name")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func renderCallback(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusOK
	view := callbackView{Title: "Signed in", Message: "You can close this window."}
	if err != nil {
		status = apperrors.GetCode(err).HTTPStatus()
		view = callbackView{
			Title:   "Sign-in failed",
			Message: apperrors.UserMessage(err, r.Header.Get("Accept-Language")),
		}
		log.Printf("provider callback %s: %v", r.URL.Path, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, view); err != nil {
		log.Printf("render callback page: %v", err)
	}
}

// requestOrigin is the origin the browser used to reach this server.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); forwarded != "" {
		scheme = strings.ToLower(forwarded)
	}
	return popup.Origin(scheme + "://" + r.Host)
}
