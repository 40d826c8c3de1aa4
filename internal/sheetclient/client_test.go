package sheetclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AppendRows(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody rowsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Token: "secret-token"})

	rows := [][]interface{}{{"call-1", "5551234567", 42.5}}
	err := client.AppendRows(context.Background(), "Ringba Raw", rows)
	require.NoError(t, err)

	assert.Equal(t, "/v1/tables/Ringba%20Raw", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	require.Len(t, gotBody.Rows, 1)
	assert.Equal(t, "call-1", gotBody.Rows[0][0])
}

func TestClient_ReadTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(rowsResponse{Rows: [][]string{
			{"did"},
			{"5551234567"},
			{"5559876543"},
		}})
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})

	rows, err := client.ReadTable(context.Background(), "Real Time")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"5551234567"}, rows[1])
}

func TestClient_ReplaceTable(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})

	err := client.ReplaceTable(context.Background(), "DID Publisher Map", [][]interface{}{{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request is permanent", http.StatusBadRequest, true},
		{"unprocessable is permanent", http.StatusUnprocessableEntity, true},
		{"too many requests is retryable", http.StatusTooManyRequests, false},
		{"server error is retryable", http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client := New(Config{BaseURL: srv.URL})

			err := client.AppendRows(context.Background(), "Ringba Raw", nil)
			require.Error(t, err)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.Code)
			assert.Equal(t, tt.permanent, IsPermanent(err))
		})
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL})

	// Trip the breaker with consecutive failures.
	for i := 0; i < 6; i++ {
		_ = client.AppendRows(context.Background(), "Ringba Raw", nil)
	}

	err := client.AppendRows(context.Background(), "Ringba Raw", nil)
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se), "expected breaker error, not a bridge response")
}
