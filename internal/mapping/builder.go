// Package mapping rebuilds the DID to publisher mapping tables from the
// raw call log.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/callrelay-systems/callrelay/internal/logging"
	"github.com/callrelay-systems/callrelay/internal/metrics"
	"github.com/callrelay-systems/callrelay/internal/models"
	"github.com/callrelay-systems/callrelay/internal/normalizer"
	"github.com/callrelay-systems/callrelay/internal/realtime"
)

// ErrRebuildRunning is returned when a rebuild is already in progress.
var ErrRebuildRunning = errors.New("rebuild already in progress")

// MapTableHeaders is the header row of the DID publisher map table.
var MapTableHeaders = []string{"did_canon", "publisher_name", "publisher_id", "last_seen_call_start"}

// CountsTableHeaders is the header row of the publisher DID counts table.
var CountsTableHeaders = []string{"publisher", "did_count", "last_refreshed"}

// Bridge is the slice of the sheet bridge client the builder needs.
type Bridge interface {
	ReadTable(ctx context.Context, table string) ([][]string, error)
	ReplaceTable(ctx context.Context, table string, rows [][]interface{}) error
}

type Config struct {
	RawTable    string
	MapTable    string
	CountsTable string
	WindowDays  int
	Campaigns   []string
}

// Result summarizes a completed rebuild.
type Result struct {
	DIDCount       int
	PublisherCount int
}

// Builder rebuilds the map and counts tables on demand. Only one rebuild
// runs at a time; concurrent requests fail fast with ErrRebuildRunning.
type Builder struct {
	bridge  Bridge
	cache   *realtime.Cache
	cfg     Config
	allow   map[string]struct{}
	logger  *logging.Logger
	running sync.Mutex
}

func NewBuilder(bridge Bridge, cache *realtime.Cache, cfg Config, logger *logging.Logger) *Builder {
	return &Builder{
		bridge: bridge,
		cache:  cache,
		cfg:    cfg,
		allow:  normalizer.AllowSet(cfg.Campaigns),
		logger: logger,
	}
}

type publisherSeen struct {
	name  string
	id    string
	start time.Time
}

// Rebuild reads the raw call table, keeps calls that are inside the
// lookback window, whose DID is on the realtime tab, and whose campaign
// is allowed, then writes one map row per DID using the most recent call.
// An older row that arrived later never displaces a newer one; on equal
// timestamps the earlier row wins.
func (b *Builder) Rebuild(ctx context.Context) (Result, error) {
	if !b.running.TryLock() {
		return Result{}, ErrRebuildRunning
	}
	defer b.running.Unlock()

	start := time.Now()
	result, err := b.rebuild(ctx)
	metrics.RebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RebuildErrors.Inc()
		return Result{}, err
	}
	return result, nil
}

func (b *Builder) rebuild(ctx context.Context) (Result, error) {
	rows, err := b.bridge.ReadTable(ctx, b.cfg.RawTable)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read raw table: %w", err)
	}

	cols := columnIndexes(rows)

	var cutoff time.Time
	if b.cfg.WindowDays > 0 {
		cutoff = time.Now().UTC().AddDate(0, 0, -b.cfg.WindowDays)
	}

	byDID := make(map[string]publisherSeen)
	for i, row := range rows {
		if i == 0 {
			continue
		}

		did, err := normalizer.NormalizeDID(cell(row, cols.didCanon))
		if err != nil {
			continue
		}
		if !b.cache.Contains(did) {
			continue
		}

		if len(b.allow) > 0 {
			if _, ok := b.allow[cell(row, cols.campaign)]; !ok {
				continue
			}
		}

		callStart, ok := models.ParseCallTime(cell(row, cols.callStart))
		if !ok {
			continue
		}
		if !cutoff.IsZero() && callStart.Before(cutoff) {
			continue
		}

		seen, exists := byDID[did]
		if exists && !callStart.After(seen.start) {
			continue
		}
		byDID[did] = publisherSeen{
			name:  cell(row, cols.publisherName),
			id:    cell(row, cols.publisherID),
			start: callStart,
		}
	}

	if err := b.writeMapTable(ctx, byDID); err != nil {
		return Result{}, err
	}

	publishers, err := b.writeCountsTable(ctx, byDID)
	if err != nil {
		return Result{}, err
	}

	b.logger.InfoContext(ctx, "rebuilt publisher map",
		"did_count", len(byDID),
		"publisher_count", publishers)
	return Result{DIDCount: len(byDID), PublisherCount: publishers}, nil
}

func (b *Builder) writeMapTable(ctx context.Context, byDID map[string]publisherSeen) error {
	dids := make([]string, 0, len(byDID))
	for did := range byDID {
		dids = append(dids, did)
	}
	sort.Strings(dids)

	out := make([][]interface{}, 0, len(dids)+1)
	out = append(out, toRow(MapTableHeaders))
	for _, did := range dids {
		seen := byDID[did]
		out = append(out, []interface{}{did, seen.name, seen.id, seen.start.UTC().Format(time.RFC3339)})
	}

	if err := b.bridge.ReplaceTable(ctx, b.cfg.MapTable, out); err != nil {
		return fmt.Errorf("failed to write map table: %w", err)
	}
	return nil
}

func (b *Builder) writeCountsTable(ctx context.Context, byDID map[string]publisherSeen) (int, error) {
	counts := make(map[string]int)
	for _, seen := range byDID {
		counts[seen.name]++
	}

	publishers := make([]string, 0, len(counts))
	for name := range counts {
		publishers = append(publishers, name)
	}
	sort.Strings(publishers)

	refreshed := time.Now().UTC().Format(time.RFC3339)
	out := make([][]interface{}, 0, len(publishers)+1)
	out = append(out, toRow(CountsTableHeaders))
	for _, name := range publishers {
		out = append(out, []interface{}{name, counts[name], refreshed})
	}

	if err := b.bridge.ReplaceTable(ctx, b.cfg.CountsTable, out); err != nil {
		return 0, fmt.Errorf("failed to write counts table: %w", err)
	}
	return len(publishers), nil
}

// columns holds the resolved index of each raw table column the rebuild
// reads. Resolved from the header row, falling back to the canonical
// column order when a header is missing.
type columns struct {
	callStart     int
	didCanon      int
	campaign      int
	publisherID   int
	publisherName int
}

func columnIndexes(rows [][]string) columns {
	cols := columns{
		callStart:     defaultIndex("call_start_utc"),
		didCanon:      defaultIndex("did_canon"),
		campaign:      defaultIndex("campaign"),
		publisherID:   defaultIndex("publisher_id"),
		publisherName: defaultIndex("publisher_name"),
	}
	if len(rows) == 0 {
		return cols
	}

	for i, name := range rows[0] {
		switch name {
		case "call_start_utc":
			cols.callStart = i
		case "did_canon":
			cols.didCanon = i
		case "campaign":
			cols.campaign = i
		case "publisher_id":
			cols.publisherID = i
		case "publisher_name":
			cols.publisherName = i
		}
	}
	return cols
}

func defaultIndex(name string) int {
	for i, h := range models.RawTableHeaders {
		if h == name {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func toRow(headers []string) []interface{} {
	out := make([]interface{}, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}
