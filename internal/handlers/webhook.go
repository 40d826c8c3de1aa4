package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/callrelay-systems/callrelay/internal/dedup"
	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/models"
	"github.com/callrelay-systems/callrelay/internal/normalizer"
	"github.com/callrelay-systems/callrelay/internal/ratelimit"
	"github.com/callrelay-systems/callrelay/internal/realtime"
	"github.com/callrelay-systems/callrelay/internal/service"
)

const maxBodySize = 1 << 20 // 1MB

// WebhookHandler receives call events from the telephony platform.
type WebhookHandler struct {
	ingress *service.Ingress
	limiter ratelimit.RateLimiter
	cache   *realtime.Cache
	store   dedup.Store
	secret  string
	logger  *logging.Logger
	started time.Time
}

func NewWebhookHandler(ingress *service.Ingress, limiter ratelimit.RateLimiter, cache *realtime.Cache, store dedup.Store, secret string, logger *logging.Logger) *WebhookHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &WebhookHandler{
		ingress: ingress,
		limiter: limiter,
		cache:   cache,
		store:   store,
		secret:  secret,
		logger:  logger,
		started: time.Now(),
	}
}

// HandleCall accepts one call event. The platform retries on any non-2xx
// response, so a duplicate delivery still answers 200.
func (h *WebhookHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		h.sendError(w, "invalid webhook secret", http.StatusUnauthorized)
		return
	}

	clientIP := getClientIP(r)
	allowed, err := h.limiter.Allow(r.Context(), clientIP)
	if err != nil {
		// A broken limiter must not drop billable calls.
		h.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
			logging.Error(err),
			logging.IP(clientIP))
		allowed = true
	}
	if !allowed {
		w.Header().Set("Retry-After", "60")
		h.sendError(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.sendError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.sendError(w, "invalid JSON payload", http.StatusUnprocessableEntity)
		return
	}

	call, err := h.ingress.Accept(r.Context(), &payload)
	switch {
	case err == nil:
		h.logger.InfoContext(r.Context(), "call queued",
			logging.CallID(call.ID),
			logging.DID(call.DID),
			logging.Campaign(call.Campaign))
		h.sendStatus(w, "queued")

	case errors.Is(err, service.ErrDuplicate):
		h.sendStatus(w, "duplicate")

	case errors.Is(err, normalizer.ErrInvalid), errors.Is(err, normalizer.ErrFiltered):
		h.sendError(w, err.Error(), http.StatusUnprocessableEntity)

	case errors.Is(err, service.ErrQueueFull):
		w.Header().Set("Retry-After", "30")
		h.sendError(w, "ingestion queue full, retry later", http.StatusServiceUnavailable)

	default:
		h.logger.ErrorContext(r.Context(), "failed to accept call", logging.Error(err))
		h.sendError(w, "temporarily unable to accept calls", http.StatusServiceUnavailable)
	}
}

// Health reports liveness plus the gauges the on-call person checks first.
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.HealthResponse{
		OK:           true,
		RealtimeDIDs: h.cache.Size(),
		QueueDepth:   h.ingress.QueueDepth(),
	})
}

// DebugStats exposes accept-path counters and queue state.
func (h *WebhookHandler) DebugStats(w http.ResponseWriter, r *http.Request) {
	processed := h.processedCount(r.Context())
	stats := h.ingress.Stats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.StatsResponse{
		Status:            "ok",
		ProcessedCalls:    processed,
		QueueDepth:        h.ingress.QueueDepth(),
		QueueCapacity:     h.ingress.QueueCapacity(),
		RealtimeDIDs:      h.cache.Size(),
		CampaignFiltering: h.ingress.Campaigns(),
		TotalReceived:     stats.TotalReceived,
		Queued:            stats.Queued,
		Duplicates:        stats.Duplicates,
		Invalid:           stats.Invalid,
		Overloads:         stats.Overloads,
		UptimeSec:         int64(time.Since(h.started).Seconds()),
	})
}

func (h *WebhookHandler) processedCount(ctx context.Context) int64 {
	count, err := h.store.Count(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to count processed calls", logging.Error(err))
		return -1
	}
	return count
}

// authorized checks the shared webhook secret, taken from the secret
// query parameter or the X-Webhook-Secret header. An empty configured
// secret disables the check.
func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	provided := r.URL.Query().Get("secret")
	if provided == "" {
		provided = r.Header.Get("X-Webhook-Secret")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) == 1
}

func (h *WebhookHandler) sendStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(models.WebhookResponse{Status: status})
}

func (h *WebhookHandler) sendError(w http.ResponseWriter, msg string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
