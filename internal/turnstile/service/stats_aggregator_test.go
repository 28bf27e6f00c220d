package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/service"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/store/memory"
	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

func record(t *testing.T, st *memory.Store, e types.AccessLogEntry) {
	t.Helper()
	require.NoError(t, st.RecordEvent(context.Background(), &e))
}

// ── Fold ─────────────────────────────────────────────────────────────────────

func TestStats_CountsAndBuckets(t *testing.T) {
	st := memory.New()
	base := time.Date(2026, 7, 4, 18, 10, 0, 0, time.UTC)
	record(t, st, types.AccessLogEntry{TokenUID: "A", Gate: "Main", Direction: types.DirectionIn, Status: types.AccessAllowed, CreatedAt: base})
	record(t, st, types.AccessLogEntry{TokenUID: "B", Gate: "main", Direction: types.DirectionIn, Status: types.AccessAllowed, CreatedAt: base.Add(5 * time.Minute)})
	record(t, st, types.AccessLogEntry{TokenUID: "A", Gate: "Main", Direction: types.DirectionOut, Status: types.AccessAllowed, CreatedAt: base.Add(55 * time.Minute)})
	record(t, st, types.AccessLogEntry{TokenUID: "X", Gate: "Main", Direction: types.DirectionIn, Status: types.AccessDenied, ReasonCode: types.DenyNotRegistered, CreatedAt: base.Add(56 * time.Minute)})
	record(t, st, types.AccessLogEntry{TokenUID: "B", Gate: "Backstage", Direction: types.DirectionIn, Status: types.AccessDenied, ReasonCode: types.DenyTicketRestricted, CreatedAt: base.Add(57 * time.Minute)})

	agg := service.NewStatsAggregator(st, service.StatsConfig{BatchSize: 2}, zap.NewNop())
	stats, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, stats.Partial)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Allowed)
	assert.Equal(t, 2, stats.Denied)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.Exits)
	assert.Equal(t, 1, stats.CurrentlyInside)
	assert.Equal(t, int64(5), stats.LastLogID)
	assert.Equal(t, map[types.DenyReason]int{
		types.DenyNotRegistered:    1,
		types.DenyTicketRestricted: 1,
	}, stats.DenialsByReason)

	require.Len(t, stats.ByGate, 2)
	assert.Equal(t, "Backstage", stats.ByGate[0].Gate)
	assert.Equal(t, 1, stats.ByGate[0].Denied)
	mainGate := stats.ByGate[1]
	assert.Equal(t, 3, mainGate.Allowed, "gate names fold case-insensitively")
	assert.Equal(t, 2, mainGate.Entries)
	require.NotNil(t, mainGate.LastEventAt)
	assert.True(t, mainGate.LastEventAt.Equal(base.Add(56*time.Minute)))

	require.Len(t, stats.ByHour, 2)
	assert.True(t, stats.ByHour[0].Hour.Equal(time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, stats.ByHour[0].Allowed)
	assert.Equal(t, 1, stats.ByHour[1].Allowed)
	assert.Equal(t, 2, stats.ByHour[1].Denied)
}

func TestStats_RefreshIsIncremental(t *testing.T) {
	st := memory.New()
	agg := service.NewStatsAggregator(st, service.StatsConfig{}, zap.NewNop())
	ctx := context.Background()

	stats, err := agg.Refresh(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.DenialsByReason)

	record(t, st, types.AccessLogEntry{TokenUID: "A", Gate: "Main", Direction: types.DirectionIn, Status: types.AccessAllowed})
	stats, err = agg.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	record(t, st, types.AccessLogEntry{TokenUID: "A", Gate: "Main", Direction: types.DirectionOut, Status: types.AccessAllowed})
	record(t, st, types.AccessLogEntry{TokenUID: "A", Gate: "Main", Direction: types.DirectionOut, Status: types.AccessAllowed})
	stats, err = agg.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total, "entries already folded are not counted twice")
	assert.Equal(t, -1, stats.CurrentlyInside, "missed entry scans are not corrected")

	assert.Equal(t, 3, agg.Snapshot().Total)
}

// stalledLog never answers a page read before its context ends.
type stalledLog struct {
	store.AccessLogStore
}

func (stalledLog) EventsAfter(ctx context.Context, _ int64, _ int) ([]types.AccessLogEntry, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStats_TimeBudgetYieldsPartial(t *testing.T) {
	agg := service.NewStatsAggregator(stalledLog{memory.New()}, service.StatsConfig{Timeout: 20 * time.Millisecond}, zap.NewNop())

	stats, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Partial)
}

func TestStats_CallerCancellationIsAnError(t *testing.T) {
	agg := service.NewStatsAggregator(stalledLog{memory.New()}, service.StatsConfig{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// ── Background loop ──────────────────────────────────────────────────────────

func TestStats_DisabledWhenIntervalZero(t *testing.T) {
	agg := service.NewStatsAggregator(memory.New(), service.StatsConfig{Interval: 0}, zap.NewNop())
	agg.Start(context.Background())

	done := make(chan struct{})
	go func() {
		agg.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a disabled aggregator")
	}
}

func TestStats_LoopRefreshesUntilStopped(t *testing.T) {
	st := memory.New()
	agg := service.NewStatsAggregator(st, service.StatsConfig{Interval: 10 * time.Millisecond}, zap.NewNop())
	agg.Start(context.Background())

	record(t, st, types.AccessLogEntry{TokenUID: "A", Gate: "Main", Direction: types.DirectionIn, Status: types.AccessAllowed})
	assert.Eventually(t, func() bool { return agg.Snapshot().Total == 1 }, time.Second, 5*time.Millisecond)

	agg.Stop()
	agg.Stop()
}

func TestStats_LoopExitsOnContextCancel(t *testing.T) {
	agg := service.NewStatsAggregator(memory.New(), service.StatsConfig{Interval: time.Hour}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	agg.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		agg.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancel")
	}
}
