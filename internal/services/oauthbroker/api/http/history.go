package http

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/oauthbroker/internal/platform/errors"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/storage"
)

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.NotFound(w, r)
		return
	}
	params := r.URL.Query()
	query := storage.EventQuery{
		PageToken:  params.Get("page_token"),
		RequestID:  params.Get("request_id"),
		ProviderID: params.Get("provider"),
		OrderBy:    params.Get("order_by"),
	}
	if raw := strings.TrimSpace(params.Get("page_size")); raw != "" {
		size, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			writeError(w, r, apperrors.New(apperrors.CodePageTokenInvalid, "invalid page size"))
			return
		}
		query.PageSize = int32(size)
	}

	page, err := h.history.ListEvents(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
