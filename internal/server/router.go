package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callrelay-systems/callrelay/internal/handlers"
	"github.com/callrelay-systems/callrelay/internal/middleware"
)

// NewRouter constructs a ServeMux with all relay routes registered.
func NewRouter(webhook *handlers.WebhookHandler, admin *handlers.AdminHandler) http.Handler {
	mux := http.NewServeMux()

	// Webhook endpoints. /ringba-webhook is the legacy path some
	// campaigns are still configured with.
	mux.HandleFunc("/webhook/calls", webhook.HandleCall)
	mux.HandleFunc("/events", webhook.HandleCall)
	mux.HandleFunc("/ringba-webhook", webhook.HandleCall)

	// Admin endpoints
	mux.HandleFunc("/admin/rebuild-map", admin.RebuildMap)

	// Health and debug endpoints
	mux.HandleFunc("/healthz", webhook.Health)
	mux.HandleFunc("/debug/stats", webhook.DebugStats)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
