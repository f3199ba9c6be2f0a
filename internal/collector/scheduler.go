package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs a Collector once per interval.
type Scheduler struct {
	collector  *Collector
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	mu         sync.RWMutex
	cancel     context.CancelFunc
	done       chan struct{}
	lastReport *Report
}

func NewScheduler(c *Collector, interval time.Duration, runOnStart bool, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Scheduler{
		collector:  c,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger.With("system", "scheduler"),
	}
}

// Start launches the ticker loop. It fails if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, s.done)
	s.logger.Info("scheduler started", "interval", s.interval, "run_on_start", s.runOnStart)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancel != nil
}

// LastReport returns the most recent finished run, if any.
func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return Report{}, false
	}
	return *s.lastReport, true
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.runOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.collector.RunOnce(ctx)
	if errors.Is(err, ErrAlreadyRunning) {
		s.logger.Warn("previous run still in progress, skipping tick")
		return
	}
	if err != nil {
		s.logger.Error("run failed", "error", err)
		report.Error = err.Error()
	}

	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()
}
