// Package writer drains the call queue and appends rows to the raw call
// table in batches, so a burst of webhooks becomes a handful of bridge
// requests.
package writer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/callrelay-systems/callrelay/internal/dlq"
	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/metrics"
	"github.com/callrelay-systems/callrelay/internal/models"
	"github.com/callrelay-systems/callrelay/internal/sheetclient"
)

// Remote is the slice of the sheet bridge client the writer needs.
type Remote interface {
	AppendRows(ctx context.Context, table string, rows [][]interface{}) error
	EnsureHeaders(ctx context.Context, table string, headers []string) error
}

type Config struct {
	Table            string
	BatchSize        int
	FlushInterval    time.Duration
	RetryMaxAttempts int
	RetryMaxBackoff  time.Duration
}

type Writer struct {
	remote     Remote
	deadLetter dlq.Writer
	cfg        Config
	logger     *logging.Logger

	headersReady bool
	writtenRows  uint64
	deadRows     uint64
}

func New(remote Remote, deadLetter dlq.Writer, cfg Config, logger *logging.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 5
	}
	if cfg.RetryMaxBackoff <= 0 {
		cfg.RetryMaxBackoff = 30 * time.Second
	}
	if deadLetter == nil {
		deadLetter = dlq.NoopWriter{}
	}
	return &Writer{
		remote:     remote,
		deadLetter: deadLetter,
		cfg:        cfg,
		logger:     logger,
	}
}

// WrittenRows returns the number of rows successfully appended.
func (w *Writer) WrittenRows() uint64 { return atomic.LoadUint64(&w.writtenRows) }

// DeadRows returns the number of rows handed to the dead letter queue.
func (w *Writer) DeadRows() uint64 { return atomic.LoadUint64(&w.deadRows) }

// Run consumes calls from queue until the channel is closed or ctx is
// cancelled. A batch flushes when it reaches BatchSize or when
// FlushInterval has passed since its first call. On shutdown the
// remaining batch is flushed with a short grace context.
func (w *Writer) Run(ctx context.Context, queue <-chan *models.Call) {
	pending := make([]*models.Call, 0, w.cfg.BatchSize)

	timer := time.NewTimer(w.cfg.FlushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	disarm := func() {
		if timerArmed && !timer.Stop() {
			<-timer.C
		}
		timerArmed = false
	}

	flushPending := func(flushCtx context.Context) {
		disarm()
		if len(pending) == 0 {
			return
		}
		w.flush(flushCtx, pending)
		pending = pending[:0]
	}

	for {
		select {
		case call, ok := <-queue:
			if !ok {
				// Queue closed: drain what we have and exit.
				flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				flushPending(flushCtx)
				cancel()
				return
			}
			pending = append(pending, call)
			if len(pending) == 1 {
				timer.Reset(w.cfg.FlushInterval)
				timerArmed = true
			}
			if len(pending) >= w.cfg.BatchSize {
				flushPending(ctx)
			}

		case <-timer.C:
			timerArmed = false
			flushPending(ctx)

		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			flushPending(flushCtx)
			cancel()
			return
		}
	}
}

func (w *Writer) flush(ctx context.Context, batch []*models.Call) {
	start := time.Now()
	defer func() {
		metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.FlushSize.Observe(float64(len(batch)))

	w.ensureHeaders(ctx)

	rows := make([][]interface{}, len(batch))
	for i, call := range batch {
		rows[i] = call.Row()
	}

	err := w.appendWithRetry(ctx, rows)
	if err == nil {
		atomic.AddUint64(&w.writtenRows, uint64(len(rows)))
		w.logger.InfoContext(ctx, "flushed batch",
			logging.BatchSize(len(rows)),
			logging.Table(w.cfg.Table))
		return
	}

	metrics.FlushErrors.Inc()

	if sheetclient.IsPermanent(err) {
		// The bridge rejected the payload. One bad row poisons the whole
		// batch, so retry each row alone and dead-letter only the bad ones.
		w.logger.WarnContext(ctx, "batch rejected, salvaging row by row",
			logging.Error(err),
			logging.BatchSize(len(batch)))
		w.salvage(ctx, batch)
		return
	}

	w.logger.ErrorContext(ctx, "batch flush failed after retries",
		logging.Error(err),
		logging.BatchSize(len(batch)))
	for _, call := range batch {
		w.deadLetterCall(ctx, call, err, dlq.ReasonRetryExhausted)
	}
}

func (w *Writer) salvage(ctx context.Context, batch []*models.Call) {
	for _, call := range batch {
		err := w.appendWithRetry(ctx, [][]interface{}{call.Row()})
		if err == nil {
			atomic.AddUint64(&w.writtenRows, 1)
			continue
		}
		reason := dlq.ReasonRetryExhausted
		if sheetclient.IsPermanent(err) {
			reason = dlq.ReasonRejected
		}
		w.deadLetterCall(ctx, call, err, reason)
	}
}

func (w *Writer) appendWithRetry(ctx context.Context, rows [][]interface{}) error {
	operation := func() error {
		err := w.remote.AppendRows(ctx, w.cfg.Table, rows)
		if err != nil && sheetclient.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = w.cfg.RetryMaxBackoff
	b.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		metrics.FlushRetries.Inc()
		w.logger.WarnContext(ctx, "append failed, retrying",
			logging.Error(err),
			logging.Table(w.cfg.Table))
	}

	return backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.cfg.RetryMaxAttempts-1)), ctx),
		notify)
}

// ensureHeaders writes the header row once per process. Failure is not
// fatal: appends still land, the header just stays missing until the
// next flush retries it.
func (w *Writer) ensureHeaders(ctx context.Context) {
	if w.headersReady {
		return
	}
	if err := w.remote.EnsureHeaders(ctx, w.cfg.Table, models.RawTableHeaders); err != nil {
		w.logger.WarnContext(ctx, "failed to ensure table headers",
			logging.Error(err),
			logging.Table(w.cfg.Table))
		return
	}
	w.headersReady = true
}

func (w *Writer) deadLetterCall(ctx context.Context, call *models.Call, cause error, reason string) {
	atomic.AddUint64(&w.deadRows, 1)
	metrics.DLQWrites.WithLabelValues(reason).Inc()
	if err := w.deadLetter.Write(ctx, call, cause, reason); err != nil {
		w.logger.ErrorContext(ctx, "failed to write dead letter",
			logging.Error(err),
			logging.CallID(call.ID),
			logging.Reason(reason))
	}
}
