package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/callrelay-systems/callrelay/internal/dedup"
	"github.com/callrelay-systems/callrelay/internal/handlers"
	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/mapping"
	"github.com/callrelay-systems/callrelay/internal/realtime"
	"github.com/callrelay-systems/callrelay/internal/service"
)

type emptyBridge struct{}

func (emptyBridge) ReadTable(context.Context, string) ([][]string, error) { return nil, nil }
func (emptyBridge) ReplaceTable(context.Context, string, [][]interface{}) error {
	return nil
}

func newTestRouter() http.Handler {
	store := dedup.NewMemoryStore()
	ingress := service.NewIngress(store, nil, 10, logging.Default())
	cache := realtime.NewCache()

	webhook := handlers.NewWebhookHandler(ingress, nil, cache, store, "", logging.Default())
	builder := mapping.NewBuilder(emptyBridge{}, cache, mapping.Config{
		RawTable:    "Ringba Raw",
		MapTable:    "DID Publisher Map",
		CountsTable: "Publisher DID Counts",
	}, logging.Default())
	admin := handlers.NewAdminHandler(builder, "", logging.Default())

	return NewRouter(webhook, admin)
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"debug stats", http.MethodGet, "/debug/stats", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"webhook wrong method", http.MethodGet, "/webhook/calls", http.StatusMethodNotAllowed},
		{"events wrong method", http.MethodGet, "/events", http.StatusMethodNotAllowed},
		{"legacy webhook wrong method", http.MethodGet, "/ringba-webhook", http.StatusMethodNotAllowed},
		{"rebuild", http.MethodPost, "/admin/rebuild-map", http.StatusOK},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.wantStatus, w.Code)
			}
		})
	}
}

func TestRouter_SetsRequestID(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header on every response")
	}
}
