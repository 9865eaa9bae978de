package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"btc_portfolio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSchedulerFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := newFixture(t)
	f.balance.balances[addrGenesis] = 1
	return f
}

func TestSchedulerRefreshesPeriodically(t *testing.T) {
	f := newSchedulerFixture(t)
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "")
	require.NoError(t, err)
	callsAfterAdd := f.price.calls.Load()

	s := NewScheduler(f.engine, 10*time.Millisecond, time.Hour, nil, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	waitUntil(t, func() bool { return f.price.calls.Load() >= callsAfterAdd+2 })
}

func TestSchedulerSkipsEmptyPortfolio(t *testing.T) {
	f := newSchedulerFixture(t)

	s := NewScheduler(f.engine, 5*time.Millisecond, time.Hour, nil, zap.NewNop())
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.Zero(t, f.price.calls.Load(), "no wallets, no scheduled fetches")
}

func TestSchedulerClockTick(t *testing.T) {
	f := newSchedulerFixture(t)
	var ticks atomic.Int64

	s := NewScheduler(f.engine, time.Hour, 5*time.Millisecond, func() { ticks.Add(1) }, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	waitUntil(t, func() bool { return ticks.Load() >= 2 })
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	f := newSchedulerFixture(t)

	s := NewScheduler(f.engine, time.Hour, time.Hour, nil, zap.NewNop())
	s.Start(context.Background())
	s.Start(context.Background()) // second start is a no-op
	s.Stop()
	s.Stop() // second stop is a no-op
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	f := newSchedulerFixture(t)
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(f.engine, 5*time.Millisecond, time.Hour, nil, zap.NewNop())
	s.Start(ctx)
	cancel()

	time.Sleep(20 * time.Millisecond)
	settled := f.price.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, f.price.calls.Load(), "loop exited after cancellation")
	s.Stop()
}

// Scheduler ticks must never overlap with a refresh already in flight.
func TestSchedulerSkipsWhileRefreshing(t *testing.T) {
	f := newSchedulerFixture(t)
	_, err := f.engine.AddWallet(context.Background(), addrGenesis, "")
	require.NoError(t, err)
	callsAfterAdd := f.price.calls.Load()

	f.price.started = make(chan struct{}, 1)
	f.price.release = make(chan struct{})

	go f.engine.RefreshAll(context.Background(), domain.TriggerUser)
	<-f.price.started

	s := NewScheduler(f.engine, 5*time.Millisecond, time.Hour, nil, zap.NewNop())
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, callsAfterAdd+1, f.price.calls.Load(), "ticks skipped while a cycle is running")

	s.Stop()
	close(f.price.release)
	f.price.started = nil
	waitUntil(t, func() bool { return !f.engine.IsRefreshing() })
}
