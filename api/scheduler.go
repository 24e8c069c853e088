/*
scheduler.go - Automated late-fee sweep scheduler

PURPOSE:
  Periodically runs the late-fee sweep with today's date. The sweep is
  idempotent per (obligation, period), so running it every hour only
  creates a charge the first time a period is past its grace period.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - A sweep that fails as a whole is logged and retried on the next tick;
    per-obligation failures are inside the result

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(sweeper, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - cmd/sweep: one-shot sweep for an external cron
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/billing"
	"github.com/wdeanegpt/property-sub001/ledger"
)

// SweepScheduler runs the late-fee sweep on a ticker.
type SweepScheduler struct {
	Sweeper       *billing.Sweeper
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	now    func() time.Time
	ticker *time.Ticker
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *billing.SweepResult
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(sweeper *billing.Sweeper, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		Sweeper:       sweeper,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		logger:        logger.Named("scheduler"),
		now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("sweep scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(ctx)

	s.logger.Info("sweep scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.cancel()
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("sweep scheduler stopped")
}

func (s *SweepScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep(ctx)

	s.mu.Lock()
	ticker, stop := s.ticker, s.stop
	s.mu.Unlock()
	if ticker == nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-stop:
			return
		}
	}
}

func (s *SweepScheduler) sweep(ctx context.Context) {
	asOf := ledger.DateOf(s.now())
	res, err := s.Sweeper.Sweep(ctx, asOf)
	if err != nil {
		s.logger.Error("scheduled sweep failed", zap.String("as_of", asOf.String()), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	if len(res.Charges) > 0 || len(res.Failures) > 0 {
		s.logger.Info("scheduled sweep completed",
			zap.String("as_of", asOf.String()),
			zap.Int("evaluated", res.Evaluated),
			zap.Int("charged", len(res.Charges)),
			zap.Int("failed", len(res.Failures)))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *SweepScheduler) RunNow(ctx context.Context) {
	s.sweep(ctx)
}

// LastResult returns the most recent successful sweep, if any.
func (s *SweepScheduler) LastResult() (billing.SweepResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return billing.SweepResult{}, false
	}
	return *s.last, true
}

// GetNextRunTime returns when the next scheduled sweep will occur.
func (s *SweepScheduler) GetNextRunTime() time.Time {
	return s.now().Add(s.CheckInterval)
}
