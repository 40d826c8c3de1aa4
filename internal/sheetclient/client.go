package sheetclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// StatusError is returned when the sheet bridge responds with a non-2xx
// status. Callers use Permanent to decide between retrying a batch and
// salvaging it row by row.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sheet bridge returned %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same request is pointless.
// 429 is the one 4xx worth retrying.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests
}

// IsPermanent reports whether err is a StatusError that will not succeed
// on retry.
func IsPermanent(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Permanent()
}

// Client talks to the sheet bridge, a small HTTP service that proxies
// spreadsheet tabs as named tables. All requests share one circuit
// breaker so a dead bridge fails fast instead of tying up workers.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cbSettings := gobreaker.Settings{
		Name:     "sheet-bridge",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// 4xx means the bridge is healthy and rejected the payload.
			return err == nil || IsPermanent(err)
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](cbSettings),
	}
}

type rowsRequest struct {
	Rows [][]interface{} `json:"rows"`
}

type rowsResponse struct {
	Rows [][]string `json:"rows"`
}

type headersRequest struct {
	Headers []string `json:"headers"`
}

// AppendRows appends rows to the bottom of a table.
func (c *Client) AppendRows(ctx context.Context, table string, rows [][]interface{}) error {
	body, err := json.Marshal(rowsRequest{Rows: rows})
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, c.tableURL(table), body)
	return err
}

// ReadTable returns every row of a table, including the header row if the
// table has one.
func (c *Client) ReadTable(ctx context.Context, table string) ([][]string, error) {
	data, err := c.do(ctx, http.MethodGet, c.tableURL(table), nil)
	if err != nil {
		return nil, err
	}

	var resp rowsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode table %s: %w", table, err)
	}
	return resp.Rows, nil
}

// ReplaceTable clears a table and writes the given rows in order.
func (c *Client) ReplaceTable(ctx context.Context, table string, rows [][]interface{}) error {
	body, err := json.Marshal(rowsRequest{Rows: rows})
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, c.tableURL(table), body)
	return err
}

// EnsureHeaders writes the header row of a table if it is missing or
// stale. Idempotent on the bridge side.
func (c *Client) EnsureHeaders(ctx context.Context, table string, headers []string) error {
	body, err := json.Marshal(headersRequest{Headers: headers})
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	_, err = c.do(ctx, http.MethodPut, c.tableURL(table)+"/headers", body)
	return err
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/v1/tables/%s", c.baseURL, url.PathEscape(table))
}

func (c *Client) do(ctx context.Context, method, reqURL string, body []byte) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("sheet bridge request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 200)}
		}
		return data, nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
