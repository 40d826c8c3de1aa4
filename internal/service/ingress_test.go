package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/callrelay-systems/callrelay/internal/dedup"
	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/metrics"
	"github.com/callrelay-systems/callrelay/internal/models"
	"github.com/callrelay-systems/callrelay/internal/normalizer"
)

type failingStore struct {
	dedup.Store
}

func (failingStore) InsertIfAbsent(context.Context, string) (dedup.Status, error) {
	return dedup.AlreadyExists, dedup.ErrStoreUnavailable
}

// countingStore counts InsertIfAbsent calls on top of a real store.
type countingStore struct {
	dedup.Store
	insertCalls atomic.Int64
}

func (c *countingStore) InsertIfAbsent(ctx context.Context, key string) (dedup.Status, error) {
	c.insertCalls.Add(1)
	return c.Store.InsertIfAbsent(ctx, key)
}

func (c *countingStore) inserts() int64 {
	return c.insertCalls.Load()
}

func validPayload(callID string) *models.WebhookPayload {
	return &models.WebhookPayload{
		CallID:        callID,
		CallStartUTC:  time.Now().UTC().Format(time.RFC3339),
		DID:           "+1 (555) 123-4567",
		CampaignName:  "ACA-National",
		PublisherID:   "pub-1",
		PublisherName: "Acme Leads",
	}
}

func TestIngress_AcceptQueuesCall(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), nil, 10, logging.Default())

	call, err := ingress.Accept(context.Background(), validPayload("call-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.DID != "5551234567" {
		t.Errorf("expected normalized DID, got %s", call.DID)
	}
	if ingress.QueueDepth() != 1 {
		t.Errorf("expected queue depth 1, got %d", ingress.QueueDepth())
	}

	stats := ingress.Stats()
	if stats.TotalReceived != 1 || stats.Queued != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestIngress_AcceptRejectsDuplicate(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), nil, 10, logging.Default())
	ctx := context.Background()

	if _, err := ingress.Accept(ctx, validPayload("call-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := ingress.Accept(ctx, validPayload("call-1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if ingress.QueueDepth() != 1 {
		t.Errorf("duplicate should not be queued, depth = %d", ingress.QueueDepth())
	}
	if stats := ingress.Stats(); stats.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", stats.Duplicates)
	}
}

func TestIngress_AcceptRejectsInvalid(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), nil, 10, logging.Default())

	payload := validPayload("call-1")
	payload.DID = "12345"

	_, err := ingress.Accept(context.Background(), payload)
	if !errors.Is(err, normalizer.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if stats := ingress.Stats(); stats.Invalid != 1 {
		t.Errorf("expected 1 invalid, got %d", stats.Invalid)
	}
}

func TestIngress_AcceptFiltersCampaigns(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), []string{"Medicare"}, 10, logging.Default())

	_, err := ingress.Accept(context.Background(), validPayload("call-1"))
	if !errors.Is(err, normalizer.ErrFiltered) {
		t.Fatalf("expected ErrFiltered, got %v", err)
	}
	if stats := ingress.Stats(); stats.Filtered != 1 {
		t.Errorf("expected 1 filtered, got %d", stats.Filtered)
	}
}

func TestIngress_OverloadLeavesNoDedupRecord(t *testing.T) {
	store := &countingStore{Store: dedup.NewMemoryStore()}
	ingress := NewIngress(store, nil, 1, logging.Default())
	ctx := context.Background()

	if _, err := ingress.Accept(ctx, validPayload("call-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inserts := store.inserts()

	_, err := ingress.Accept(ctx, validPayload("call-2"))
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	// Capacity is checked first, so the rejected call never reaches the
	// dedup store at all.
	if got := store.inserts(); got != inserts {
		t.Errorf("overloaded call touched the dedup store: %d inserts, want %d", got, inserts)
	}
	status, err := store.InsertIfAbsent(ctx, "call-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != dedup.Inserted {
		t.Error("overloaded call must not be remembered as processed")
	}
	if stats := ingress.Stats(); stats.Overloads != 1 {
		t.Errorf("expected 1 overload, got %d", stats.Overloads)
	}
}

// A redelivery racing an overloaded first delivery must never be told
// "duplicate": that answer means accepted, and the sender stops
// retrying.
func TestIngress_OverloadNeverAnswersDuplicate(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), nil, 1, logging.Default())
	ctx := context.Background()

	if _, err := ingress.Accept(ctx, validPayload("call-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const deliveries = 20
	results := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		go func() {
			_, err := ingress.Accept(ctx, validPayload("call-2"))
			results <- err
		}()
	}

	for i := 0; i < deliveries; i++ {
		err := <-results
		if errors.Is(err, ErrDuplicate) {
			t.Fatal("redelivery answered duplicate while the call was never queued")
		}
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("expected ErrQueueFull, got %v", err)
		}
	}
}

func TestIngress_StoreFailureSurfaces(t *testing.T) {
	ingress := NewIngress(failingStore{}, nil, 10, logging.Default())

	_, err := ingress.Accept(context.Background(), validPayload("call-1"))
	if !errors.Is(err, dedup.ErrStoreUnavailable) {
		t.Fatalf("expected store error, got %v", err)
	}
	if stats := ingress.Stats(); stats.StoreErrors != 1 {
		t.Errorf("expected 1 store error, got %d", stats.StoreErrors)
	}
}

func TestIngress_QueueDepthGaugeFallsOnDrain(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), nil, 5, logging.Default())
	ctx := context.Background()

	for _, id := range []string{"call-1", "call-2", "call-3"} {
		if _, err := ingress.Accept(ctx, validPayload(id)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 3 {
		t.Fatalf("queue depth gauge = %v after enqueue, want 3", got)
	}

	ingress.CloseQueue()
	for range ingress.Queue() {
	}

	// The gauge must follow the writer's consumption, not stick at the
	// last enqueue-time value.
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 0 {
		t.Errorf("queue depth gauge = %v after drain, want 0", got)
	}
	if ingress.QueueDepth() != 0 {
		t.Errorf("QueueDepth() = %d after drain, want 0", ingress.QueueDepth())
	}
}

func TestIngress_CloseQueueStopsConsumer(t *testing.T) {
	ingress := NewIngress(dedup.NewMemoryStore(), nil, 10, logging.Default())

	if _, err := ingress.Accept(context.Background(), validPayload("call-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ingress.CloseQueue()

	var got []*models.Call
	for call := range ingress.Queue() {
		got = append(got, call)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 drained call, got %d", len(got))
	}
}
