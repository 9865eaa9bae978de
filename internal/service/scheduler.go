package service

import (
	"context"
	"sync"
	"time"

	"btc_portfolio/internal/domain"

	"go.uber.org/zap"
)

// Scheduler drives the periodic refresh. One ticker fires a full refresh
// when a pass is not already in flight and at least one wallet exists; an
// independent, faster ticker republishes the time-since-update text without
// touching network state.
type Scheduler struct {
	engine          *PortfolioEngine
	refreshInterval time.Duration
	clockInterval   time.Duration
	onClockTick     func()
	logger          *zap.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler creates a stopped scheduler. onClockTick is invoked on the
// clock ticker; pass nil when no time-ago republishing is needed.
func NewScheduler(engine *PortfolioEngine, refreshInterval, clockInterval time.Duration, onClockTick func(), logger *zap.Logger) *Scheduler {
	return &Scheduler{
		engine:          engine,
		refreshInterval: refreshInterval,
		clockInterval:   clockInterval,
		onClockTick:     onClockTick,
		logger:          logger.Named("Scheduler"),
	}
}

// Start launches the timer loop. Starting an already running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopChan != nil {
		return
	}
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, s.stopChan, s.done)
	s.logger.Info("Auto-refresh started",
		zap.Duration("refreshInterval", s.refreshInterval),
		zap.Duration("clockInterval", s.clockInterval))
}

// Stop cancels both timers and waits for the loop to exit. Stop is
// idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopChan, done := s.stopChan, s.done
	s.stopChan, s.done = nil, nil
	s.mu.Unlock()

	if stopChan == nil {
		return
	}
	close(stopChan)
	<-done
	s.logger.Info("Auto-refresh stopped")
}

func (s *Scheduler) run(ctx context.Context, stopChan, done chan struct{}) {
	defer close(done)

	refreshTicker := time.NewTicker(s.refreshInterval)
	defer refreshTicker.Stop()
	clockTicker := time.NewTicker(s.clockInterval)
	defer clockTicker.Stop()

	for {
		select {
		case <-refreshTicker.C:
			if s.engine.IsRefreshing() {
				s.logger.Debug("Skipping scheduled refresh, previous cycle still running")
				continue
			}
			if s.engine.Summary().WalletCount == 0 {
				continue
			}
			s.engine.RefreshAll(ctx, domain.TriggerScheduler)
		case <-clockTicker.C:
			if s.onClockTick != nil {
				s.onClockTick()
			}
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
