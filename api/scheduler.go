/*
scheduler.go - Periodic reconciliation sweep

PURPOSE:
  Every mutation reconciles inside its own transaction, so the ledger is
  normally already consistent. The sweep re-runs reconciliation for every
  active collaborator to repair rows written by imports or by hand in the
  database. A sweep over a consistent ledger writes nothing.

DESIGN:
  - One background goroutine driven by a ticker
  - Runs once immediately on Start
  - A failing collaborator is logged and skipped; the sweep goes on
  - Runs that wrote something or failed are recorded by the service

USAGE:
  scheduler := NewSweepScheduler(svc, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/multimax/hourbank/ledger"
	"github.com/multimax/hourbank/metrics"
)

// Sweeper is the part of ledger.Service the scheduler drives.
type Sweeper interface {
	ActiveCollaborators(ctx context.Context) ([]ledger.Collaborator, error)
	Reconcile(ctx context.Context, id ledger.CollaboratorID) (ledger.Outcome, error)
}

// SweepResult summarises one pass over all collaborators.
type SweepResult struct {
	Collaborators int
	Changed       int
	Failed        int
}

type SweepScheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSweepScheduler(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.logger.Info("sweep scheduler started", zap.Duration("interval", s.interval))
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger.Info("sweep scheduler stopped")
}

func (s *SweepScheduler) run() {
	defer s.wg.Done()

	s.RunNow(context.Background())
	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow sweeps every active collaborator once.
func (s *SweepScheduler) RunNow(ctx context.Context) SweepResult {
	var res SweepResult
	collaborators, err := s.sweeper.ActiveCollaborators(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues("error").Inc()
		s.logger.Error("sweep: failed to list collaborators", zap.Error(err))
		return res
	}

	for _, c := range collaborators {
		res.Collaborators++
		out, err := s.sweeper.Reconcile(ctx, c.ID)
		if err != nil {
			res.Failed++
			s.logger.Error("sweep: reconciliation failed",
				zap.Int64("collaborator_id", int64(c.ID)),
				zap.Error(err),
			)
			continue
		}
		if out.Writes() > 0 {
			res.Changed++
		}
	}

	result := "ok"
	if res.Failed > 0 {
		result = "error"
	}
	metrics.SweepRuns.WithLabelValues(result).Inc()

	if res.Changed > 0 || res.Failed > 0 {
		s.logger.Info("sweep completed",
			zap.Int("collaborators", res.Collaborators),
			zap.Int("changed", res.Changed),
			zap.Int("failed", res.Failed),
		)
	}
	return res
}
