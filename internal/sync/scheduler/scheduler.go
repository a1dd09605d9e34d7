// Package scheduler decides when the sync queue is drained: at startup, on
// every transition to online, on manual request and optionally on a timer.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	syncpkg "github.com/benbakir04-create/teachers-report/backend/internal/sync"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
)

// Drainer runs drain passes.
type Drainer interface {
	Drain(ctx context.Context) (syncpkg.DrainResult, error)
	LastResult() *syncpkg.DrainResult
	Draining() bool
}

// Observer is the connectivity source the scheduler subscribes to.
type Observer interface {
	IsOnline() bool
	OnChange(onOnline, onOffline func()) (unsubscribe func())
}

// Scheduler triggers background drains.
type Scheduler struct {
	drainer      Drainer
	observer     Observer
	queue        *queue.Queue
	logger       *logging.Logger
	interval     time.Duration
	drainTimeout time.Duration

	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	isRunning   bool
	unsubscribe func()
	lastDrain   time.Time
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Interval     time.Duration // periodic drain while online; 0 disables the timer
	DrainTimeout time.Duration // upper bound for one background pass
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval:     0,
		DrainTimeout: 5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(drainer Drainer, observer Observer, q *queue.Queue, logger *logging.Logger, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if logger == nil {
		logger = logging.Get()
	}
	timeout := config.DrainTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		drainer:      drainer,
		observer:     observer,
		queue:        q,
		logger:       logger,
		interval:     config.Interval,
		drainTimeout: timeout,
	}
}

// Start subscribes to connectivity changes, runs a startup drain and, when
// an interval is configured, starts the periodic loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ctx = ctx
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	unsubscribe := s.observer.OnChange(func() {
		s.logger.Info("Back online, draining sync queue", nil)
		s.spawn("online")
	}, nil)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.spawn("startup")

	if s.interval > 0 {
		s.wg.Add(1)
		go s.periodicLoop(ctx, stopCh)
	}

	s.logger.Info("Background sync scheduler started",
		map[string]interface{}{"interval_seconds": s.interval.Seconds()})
}

// Stop unsubscribes and waits for running drains to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	stopCh := s.stopCh
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(stopCh)
	s.wg.Wait()

	s.logger.Info("Background sync scheduler stopped", nil)
}

// spawn runs a drain in the background unless the scheduler is stopped.
func (s *Scheduler) spawn(trigger string) bool {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return false
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runDrain(ctx, trigger)
	}()
	return true
}

func (s *Scheduler) periodicLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.observer.IsOnline() || s.drainer.Draining() {
				continue
			}
			s.runDrain(ctx, "interval")
		}
	}
}

func (s *Scheduler) runDrain(ctx context.Context, trigger string) {
	drainCtx, cancel := context.WithTimeout(ctx, s.drainTimeout)
	defer cancel()

	result, err := s.drainer.Drain(drainCtx)
	if errors.Is(err, syncpkg.ErrDrainInProgress) {
		s.logger.Debug("Drain already in progress, skipping", map[string]interface{}{"trigger": trigger})
		return
	}
	if err != nil {
		s.logger.ErrorWithCode("Background drain failed", string(apperrors.ErrSyncFailed), err,
			map[string]interface{}{"trigger": trigger})
	}
	if result.Offline {
		return
	}

	s.mu.Lock()
	s.lastDrain = time.Now()
	s.mu.Unlock()
}

// TriggerDrain starts a drain in the background. It returns false when a
// drain is already running or the scheduler is stopped.
func (s *Scheduler) TriggerDrain() bool {
	if s.drainer.Draining() {
		return false
	}
	return s.spawn("manual")
}

// DrainNow runs a drain on the caller's goroutine and returns its result.
func (s *Scheduler) DrainNow(ctx context.Context) (syncpkg.DrainResult, error) {
	result, err := s.drainer.Drain(ctx)
	if err == nil && !result.Offline {
		s.mu.Lock()
		s.lastDrain = time.Now()
		s.mu.Unlock()
	}
	return result, err
}

// SchedulerStatus is a snapshot of scheduler and queue state.
type SchedulerStatus struct {
	IsRunning     bool                 `json:"is_running" yaml:"is_running"`
	IsOnline      bool                 `json:"is_online" yaml:"is_online"`
	Draining      bool                 `json:"draining" yaml:"draining"`
	LastDrainTime *time.Time           `json:"last_drain_time,omitempty" yaml:"last_drain_time,omitempty"`
	LastDrain     *syncpkg.DrainResult `json:"last_drain,omitempty" yaml:"last_drain,omitempty"`
	PendingItems  int                  `json:"pending_items" yaml:"pending_items"`
	QueueStats    queue.Stats          `json:"queue_stats" yaml:"queue_stats"`
}

// Status returns the current status of the scheduler.
func (s *Scheduler) Status(ctx context.Context) (SchedulerStatus, error) {
	s.mu.RLock()
	status := SchedulerStatus{
		IsRunning: s.isRunning,
	}
	if !s.lastDrain.IsZero() {
		last := s.lastDrain
		status.LastDrainTime = &last
	}
	s.mu.RUnlock()

	status.IsOnline = s.observer.IsOnline()
	status.Draining = s.drainer.Draining()
	status.LastDrain = s.drainer.LastResult()

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return status, err
	}
	status.QueueStats = stats
	status.PendingItems = stats.Total
	return status, nil
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
