package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"serpmonitor/config"
	"serpmonitor/models"
)

type PassRunner interface {
	RunPass(ctx context.Context) ([]models.ScanResult, error)
}

type AlertPruner interface {
	DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs recurring diagnostic passes. A pass runs immediately on
// Start and then on every tick; a tick that fires while the previous pass
// is still running is skipped. Each Scheduler owns its own timer. A
// scheduler that halted on a missing API key can be started again once its
// loop has exited, without calling Stop.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	logger   *slog.Logger

	// Pruner, when set, deletes alerts older than Retention after each pass.
	Pruner    AlertPruner
	Retention time.Duration

	passMu sync.Mutex
	passes sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	errc   chan error
}

func NewScheduler(runner PassRunner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		logger:    logger,
		Retention: 30 * 24 * time.Hour,
		errc:      make(chan error, 1),
	}
}

var errSchedulerRunning = errors.New("scheduler already running")

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
			// The previous loop halted itself on a fatal error.
		default:
			return errSchedulerRunning
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("scheduler starting", "interval", s.interval.String())
	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and any running pass and waits for them to exit.
// Calling Stop more than once, or before Start, is a no-op.
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

// Err delivers configuration errors that stopped the scheduler, such as a
// missing API key.
func (s *Scheduler) Err() <-chan error {
	return s.errc
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.passes.Wait()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.passMu.TryLock() {
		s.logger.Warn("previous pass still running, skipping tick")
		return
	}
	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer s.passMu.Unlock()
		s.runPass(ctx)
	}()
}

// RunOnce executes one pass synchronously and reports whether it ran. It
// is safe to call without Start; it does nothing while another pass is in
// progress.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.passMu.TryLock() {
		s.logger.Warn("pass already running, skipping")
		return false
	}
	defer s.passMu.Unlock()
	s.runPass(ctx)
	return true
}

func (s *Scheduler) runPass(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler pass panic", "panic", r)
		}
	}()

	start := time.Now()
	results, err := s.runner.RunPass(ctx)
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			s.logger.Error("scheduler halted", "error", err)
			select {
			case s.errc <- err:
			default:
			}
			s.mu.Lock()
			if s.cancel != nil {
				s.cancel()
			}
			s.mu.Unlock()
			return
		}
		s.logger.Error("scheduled pass failed", "error", err)
	}

	for _, r := range results {
		s.logger.Info("scheduled scan", "engine", r.Engine, "status", r.Status, "state", r.State, "duration_ms", r.DurationMs)
	}
	s.logger.Info("scheduled pass finished", "scanned", len(results), "elapsed", time.Since(start).String())

	if s.Pruner != nil && s.Retention > 0 {
		n, err := s.Pruner.DeleteAlertsBefore(ctx, time.Now().Add(-s.Retention))
		if err != nil {
			s.logger.Warn("alert cleanup failed", "error", err)
		} else if n > 0 {
			s.logger.Info("alert cleanup", "deleted", n)
		}
	}
}
