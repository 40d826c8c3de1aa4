package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/callrelay-systems/callrelay/internal/models"
)

// FileQueue writes failed calls to a local directory, one JSON file per
// call. Used when no NATS cluster is available.
type FileQueue struct {
	basePath string
	mu       sync.Mutex
	written  uint64
}

// NewFileQueue creates a DLQ that writes to the specified directory.
func NewFileQueue(basePath string) (*FileQueue, error) {
	if basePath == "" {
		basePath = "/var/lib/callrelay/dlq"
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dlq directory: %w", err)
	}

	return &FileQueue{basePath: basePath}, nil
}

// Write records a failed call to disk.
func (q *FileQueue) Write(_ context.Context, call *models.Call, cause error, reason string) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	failed := FailedCall{
		Timestamp: time.Now().UTC(),
		Call:      call,
		Error:     cause.Error(),
		Reason:    reason,
		Attempts:  1,
	}

	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dlq entry: %w", err)
	}

	filename := fmt.Sprintf("failed_%d_%d.json", time.Now().Unix(), q.written)
	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write dlq entry: %w", err)
	}

	q.written++
	return nil
}

// List returns up to limit failed calls in filename order.
func (q *FileQueue) List(_ context.Context, limit int) ([]FailedCall, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq not enabled")
	}
	if limit <= 0 {
		limit = 100
	}

	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read dlq directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	calls := make([]FailedCall, 0, limit)
	for _, name := range names {
		if len(calls) >= limit {
			break
		}
		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			continue
		}
		var failed FailedCall
		if err := json.Unmarshal(data, &failed); err != nil {
			continue
		}
		calls = append(calls, failed)
	}
	return calls, nil
}

// Stats returns DLQ counters.
func (q *FileQueue) Stats(_ context.Context) map[string]interface{} {
	if q == nil {
		return map[string]interface{}{"enabled": false}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pending := 0
	if entries, err := os.ReadDir(q.basePath); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				pending++
			}
		}
	}

	return map[string]interface{}{
		"enabled":       true,
		"written_local": q.written,
		"pending_files": pending,
		"base_path":     q.basePath,
	}
}

// Purge removes all dead letters from the directory.
func (q *FileQueue) Purge(_ context.Context) error {
	if q == nil {
		return fmt.Errorf("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return fmt.Errorf("failed to read dlq directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			if err := os.Remove(filepath.Join(q.basePath, e.Name())); err != nil {
				return fmt.Errorf("failed to remove dlq entry: %w", err)
			}
		}
	}
	return nil
}
