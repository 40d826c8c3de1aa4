package dedup

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(store.Close)

	return store
}

func TestPostgresStore_InsertIfAbsent(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	key := fmt.Sprintf("test-call-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = store.Delete(context.Background(), key)
	})

	status, err := store.InsertIfAbsent(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Inserted {
		t.Errorf("expected Inserted for first insert, got %v", status)
	}

	status, err = store.InsertIfAbsent(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != AlreadyExists {
		t.Errorf("expected AlreadyExists for second insert, got %v", status)
	}
}

func TestPostgresStore_Delete(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	key := fmt.Sprintf("test-call-%d", time.Now().UnixNano())

	if _, err := store.InsertIfAbsent(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := store.InsertIfAbsent(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != Inserted {
		t.Errorf("expected Inserted after delete, got %v", status)
	}
	_ = store.Delete(ctx, key)
}
