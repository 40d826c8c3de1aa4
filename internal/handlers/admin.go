package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/mapping"
	"github.com/callrelay-systems/callrelay/internal/models"
)

// AdminHandler exposes the on-demand mapping rebuild.
type AdminHandler struct {
	builder *mapping.Builder
	secret  string
	logger  *logging.Logger
}

func NewAdminHandler(builder *mapping.Builder, secret string, logger *logging.Logger) *AdminHandler {
	return &AdminHandler{
		builder: builder,
		secret:  secret,
		logger:  logger,
	}
}

// RebuildMap rebuilds the DID publisher map synchronously. A concurrent
// rebuild answers 409 so callers know one is already underway.
func (h *AdminHandler) RebuildMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		h.sendError(w, "invalid admin secret", http.StatusUnauthorized)
		return
	}

	result, err := h.builder.Rebuild(r.Context())
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(models.RebuildResponse{
			Status:         "ok",
			DIDCount:       result.DIDCount,
			PublisherCount: result.PublisherCount,
		})

	case errors.Is(err, mapping.ErrRebuildRunning):
		h.sendError(w, "rebuild already in progress", http.StatusConflict)

	default:
		h.logger.ErrorContext(r.Context(), "rebuild failed", logging.Error(err))
		h.sendError(w, "rebuild failed: "+err.Error(), http.StatusBadGateway)
	}
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	provided := r.Header.Get("X-Admin-Secret")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

func (h *AdminHandler) sendError(w http.ResponseWriter, msg string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}
