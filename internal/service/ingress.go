// Package service wires normalization, dedup, and the call queue into
// the accept path every webhook goes through.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/callrelay-systems/callrelay/internal/dedup"
	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/metrics"
	"github.com/callrelay-systems/callrelay/internal/models"
	"github.com/callrelay-systems/callrelay/internal/normalizer"
)

var (
	// ErrDuplicate means this call was already accepted by an earlier
	// delivery.
	ErrDuplicate = errors.New("duplicate call")
	// ErrQueueFull means the call queue is saturated and the sender
	// should retry.
	ErrQueueFull = errors.New("call queue full")
)

// IngestStats counts outcomes of the accept path.
type IngestStats struct {
	TotalReceived int64
	Queued        int64
	Duplicates    int64
	Invalid       int64
	Filtered      int64
	Overloads     int64
	StoreErrors   int64
	LastEvent     time.Time
}

// Ingress accepts webhook payloads, dedups them, and hands accepted
// calls to the batch writer via a bounded queue. Queue capacity is
// tracked by the slots semaphore: a slot is taken before the dedup
// record is written and freed when the writer takes the call, so an
// overloaded queue rejects a delivery before it can look like a
// duplicate to the sender's concurrent retry.
type Ingress struct {
	store     dedup.Store
	queue     chan *models.Call
	out       chan *models.Call
	slots     chan struct{}
	allow     map[string]struct{}
	campaigns []string
	logger    *logging.Logger

	stats      IngestStats
	statsMutex sync.RWMutex
}

func NewIngress(store dedup.Store, campaigns []string, queueCapacity int, logger *logging.Logger) *Ingress {
	if queueCapacity <= 0 {
		queueCapacity = 1000
	}
	metrics.QueueCapacity.Set(float64(queueCapacity))
	s := &Ingress{
		store:     store,
		queue:     make(chan *models.Call, queueCapacity),
		out:       make(chan *models.Call),
		slots:     make(chan struct{}, queueCapacity),
		allow:     normalizer.AllowSet(campaigns),
		campaigns: campaigns,
		logger:    logger,
	}
	go s.pump()
	return s
}

// pump hands queued calls to the writer and frees each call's slot once
// the writer has taken it.
func (s *Ingress) pump() {
	for call := range s.queue {
		s.out <- call
		<-s.slots
		metrics.QueueDepth.Set(float64(len(s.slots)))
	}
	close(s.out)
}

// Accept normalizes and dedups one webhook payload. On success the call
// is queued for the batch writer. A queue slot is reserved before the
// dedup record is written: a rejected delivery never touches the store,
// so ErrQueueFull and ErrDuplicate cannot race.
func (s *Ingress) Accept(ctx context.Context, payload *models.WebhookPayload) (*models.Call, error) {
	s.bumpReceived()

	call, err := normalizer.Normalize(payload, s.allow)
	if err != nil {
		if errors.Is(err, normalizer.ErrFiltered) {
			s.bump(func(st *IngestStats) { st.Filtered++ })
			metrics.EventsTotal.WithLabelValues("webhook", "filtered").Inc()
		} else {
			s.bump(func(st *IngestStats) { st.Invalid++ })
			metrics.EventsTotal.WithLabelValues("webhook", "invalid").Inc()
		}
		return nil, err
	}

	select {
	case s.slots <- struct{}{}:
	default:
		s.bump(func(st *IngestStats) { st.Overloads++ })
		metrics.EventsTotal.WithLabelValues("webhook", "overload").Inc()
		return nil, ErrQueueFull
	}

	status, err := s.store.InsertIfAbsent(ctx, call.ID)
	if err != nil {
		<-s.slots
		s.bump(func(st *IngestStats) { st.StoreErrors++ })
		metrics.EventsTotal.WithLabelValues("webhook", "store_error").Inc()
		s.logger.ErrorContext(ctx, "dedup store unavailable",
			logging.Error(err),
			logging.CallID(call.ID))
		return nil, err
	}
	if status == dedup.AlreadyExists {
		<-s.slots
		s.bump(func(st *IngestStats) { st.Duplicates++ })
		metrics.DuplicatesTotal.Inc()
		metrics.EventsTotal.WithLabelValues("webhook", "duplicate").Inc()
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, call.ID)
	}

	// Cannot block: the held slot guarantees buffer room.
	s.queue <- call
	s.bump(func(st *IngestStats) { st.Queued++ })
	metrics.EventsTotal.WithLabelValues("webhook", "queued").Inc()
	metrics.QueueDepth.Set(float64(len(s.slots)))
	return call, nil
}

// Queue returns the channel the batch writer consumes.
func (s *Ingress) Queue() <-chan *models.Call {
	return s.out
}

// CloseQueue signals the batch writer that no more calls will arrive.
// Accept must not be called after CloseQueue.
func (s *Ingress) CloseQueue() {
	close(s.queue)
}

// QueueDepth returns the number of calls accepted but not yet taken by
// the writer.
func (s *Ingress) QueueDepth() int {
	return len(s.slots)
}

// QueueCapacity returns the queue's maximum size.
func (s *Ingress) QueueCapacity() int {
	return cap(s.slots)
}

// Campaigns returns the configured campaign allow-list.
func (s *Ingress) Campaigns() []string {
	return s.campaigns
}

// Stats returns a snapshot of accept-path counters.
func (s *Ingress) Stats() IngestStats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()
	return s.stats
}

func (s *Ingress) bumpReceived() {
	s.bump(func(st *IngestStats) {
		st.TotalReceived++
		st.LastEvent = time.Now().UTC()
	})
}

func (s *Ingress) bump(fn func(*IngestStats)) {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	fn(&s.stats)
}
