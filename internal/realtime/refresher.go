package realtime

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/metrics"
	"github.com/callrelay-systems/callrelay/internal/normalizer"
)

// TableReader is the slice of the sheet bridge client the refresher needs.
type TableReader interface {
	ReadTable(ctx context.Context, table string) ([][]string, error)
}

// Refresher reloads the realtime DID set from the bridge on an interval.
// A failed refresh keeps the previous set so transient bridge outages do
// not empty the cache.
type Refresher struct {
	cache    *Cache
	reader   TableReader
	table    string
	interval time.Duration
	logger   *logging.Logger

	lastRefresh atomicTime
}

// atomicTime holds a time readable without locking.
type atomicTime struct {
	v atomic.Int64
}

func (t *atomicTime) Store(ts time.Time) { t.v.Store(ts.UnixNano()) }

func (t *atomicTime) Load() time.Time {
	n := t.v.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func NewRefresher(cache *Cache, reader TableReader, table string, interval time.Duration, logger *logging.Logger) *Refresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Refresher{
		cache:    cache,
		reader:   reader,
		table:    table,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.WarnContext(ctx, "initial realtime refresh failed", logging.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.WarnContext(ctx, "realtime refresh failed, keeping previous set",
					logging.Error(err),
					logging.Table(r.table))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Refresh reads the realtime tab and replaces the cached DID set. The
// first row is treated as a header and skipped. Cells that do not
// normalize to a valid DID are ignored.
func (r *Refresher) Refresh(ctx context.Context) error {
	rows, err := r.reader.ReadTable(ctx, r.table)
	if err != nil {
		metrics.RealtimeRefreshErrors.Inc()
		return fmt.Errorf("failed to read realtime table: %w", err)
	}

	dids := make(map[string]struct{})
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		did, err := normalizer.NormalizeDID(row[0])
		if err != nil {
			continue
		}
		dids[did] = struct{}{}
	}

	r.cache.Replace(dids)
	r.lastRefresh.Store(time.Now().UTC())
	r.logger.InfoContext(ctx, "realtime cache refreshed",
		logging.Table(r.table),
		"did_count", len(dids))
	return nil
}

// LastRefresh returns when the cache last refreshed successfully.
func (r *Refresher) LastRefresh() time.Time {
	return r.lastRefresh.Load()
}
