package service

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// StatsAggregator folds the access log into running counters.  The log is
// append-only, so each refresh only reads entries after the last folded id.
// A refresh is bounded by a time budget; when the budget runs out the
// snapshot is marked partial and the next refresh continues where it left
// off.
//
// Start runs refreshes in the background on an interval.  Refresh may also
// be called directly; both paths share one fold.
type StatsAggregator struct {
	events   store.AccessLogStore
	interval time.Duration
	timeout  time.Duration
	batch    int
	logger   *zap.Logger

	mu      sync.Mutex
	fold    statsFold
	partial bool

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// StatsConfig holds the parameters for NewStatsAggregator.
type StatsConfig struct {
	// Interval between background refreshes.  0 disables the background
	// loop; Refresh still works.
	Interval time.Duration

	// Timeout bounds a single refresh.  Defaults to 10s.
	Timeout time.Duration

	// BatchSize is how many log entries are read per page.  Defaults to 1000.
	BatchSize int
}

func NewStatsAggregator(events store.AccessLogStore, cfg StatsConfig, logger *zap.Logger) *StatsAggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsAggregator{
		events:   events,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		batch:    cfg.BatchSize,
		logger:   logger,
		fold:     newStatsFold(),
		done:     make(chan struct{}),
	}
}

// Start begins the background loop: an immediate refresh, then one per
// interval until ctx is cancelled or Stop is called.
func (a *StatsAggregator) Start(ctx context.Context) {
	if a.interval <= 0 {
		a.logger.Info("stats refresher disabled (interval=0)")
		close(a.done)
		return
	}

	ctx, a.cancel = context.WithCancel(ctx)
	go a.loop(ctx)

	a.logger.Info("stats refresher started",
		zap.Duration("interval", a.interval),
		zap.Duration("timeout", a.timeout),
	)
}

// Stop signals the loop to exit and waits for it.  It must only be called
// after Start and is safe to call more than once.
func (a *StatsAggregator) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
	})
	<-a.done
}

func (a *StatsAggregator) loop(ctx context.Context) {
	defer close(a.done)

	a.refreshLogged(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshLogged(ctx)
		}
	}
}

func (a *StatsAggregator) refreshLogged(ctx context.Context) {
	st, err := a.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("stats refresh failed", zap.Error(err))
		}
		return
	}
	if st.Partial {
		a.logger.Warn("stats refresh hit its time budget",
			zap.Int64("last_log_id", st.LastLogID),
			zap.Duration("timeout", a.timeout),
		)
	}
}

// Refresh folds new log entries and returns the resulting snapshot.  Running
// out of the time budget is not an error: the snapshot comes back with
// Partial set.
func (a *StatsAggregator) Refresh(ctx context.Context) (types.AccessStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	scanCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.partial = false
	for {
		if err := scanCtx.Err(); err != nil {
			if ctx.Err() != nil {
				return types.AccessStats{}, ctx.Err()
			}
			a.partial = true
			break
		}
		page, err := a.events.EventsAfter(scanCtx, a.fold.lastID, a.batch)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				a.partial = true
				break
			}
			return types.AccessStats{}, err
		}
		for _, e := range page {
			a.fold.add(e)
		}
		if len(page) < a.batch {
			break
		}
	}
	return a.snapshotLocked(), nil
}

// Snapshot returns the counters as of the last refresh without reading the
// log.
func (a *StatsAggregator) Snapshot() types.AccessStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *StatsAggregator) snapshotLocked() types.AccessStats {
	st := a.fold.stats()
	st.Partial = a.partial
	st.GeneratedAt = utcNow()
	return st
}

// ── Fold ─────────────────────────────────────────────────────────────────────

type statsFold struct {
	total, allowed, denied int
	entries, exits         int
	byGate                 map[string]*types.GateStats // keyed by lower-cased gate
	byHour                 map[time.Time]*types.HourStats
	denials                map[types.DenyReason]int
	lastID                 int64
}

func newStatsFold() statsFold {
	return statsFold{
		byGate:  make(map[string]*types.GateStats),
		byHour:  make(map[time.Time]*types.HourStats),
		denials: make(map[types.DenyReason]int),
	}
}

func (f *statsFold) add(e types.AccessLogEntry) {
	f.total++
	if e.ID > f.lastID {
		f.lastID = e.ID
	}

	key := strings.ToLower(e.Gate)
	g, ok := f.byGate[key]
	if !ok {
		g = &types.GateStats{Gate: e.Gate}
		f.byGate[key] = g
	}
	at := e.CreatedAt.UTC()
	if g.LastEventAt == nil || at.After(*g.LastEventAt) {
		g.LastEventAt = &at
	}

	hour := at.Truncate(time.Hour)
	h, ok := f.byHour[hour]
	if !ok {
		h = &types.HourStats{Hour: hour}
		f.byHour[hour] = h
	}

	if e.Status != types.AccessAllowed {
		f.denied++
		g.Denied++
		h.Denied++
		f.denials[e.ReasonCode]++
		return
	}
	f.allowed++
	g.Allowed++
	h.Allowed++
	switch e.Direction {
	case types.DirectionIn:
		f.entries++
		g.Entries++
	case types.DirectionOut:
		f.exits++
		g.Exits++
	}
}

func (f *statsFold) stats() types.AccessStats {
	st := types.AccessStats{
		Total:           f.total,
		Allowed:         f.allowed,
		Denied:          f.denied,
		Entries:         f.entries,
		Exits:           f.exits,
		CurrentlyInside: f.entries - f.exits,
		ByGate:          make([]types.GateStats, 0, len(f.byGate)),
		ByHour:          make([]types.HourStats, 0, len(f.byHour)),
		DenialsByReason: maps.Clone(f.denials),
		LastLogID:       f.lastID,
	}
	for _, g := range f.byGate {
		gs := *g
		if g.LastEventAt != nil {
			t := *g.LastEventAt
			gs.LastEventAt = &t
		}
		st.ByGate = append(st.ByGate, gs)
	}
	sort.Slice(st.ByGate, func(i, j int) bool { return st.ByGate[i].Gate < st.ByGate[j].Gate })
	for _, h := range f.byHour {
		st.ByHour = append(st.ByHour, *h)
	}
	sort.Slice(st.ByHour, func(i, j int) bool { return st.ByHour[i].Hour.Before(st.ByHour[j].Hour) })
	return st
}
