package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"serpmonitor/config"
	"serpmonitor/models"
)

type fakeRunner struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (r *fakeRunner) RunPass(ctx context.Context) ([]models.ScanResult, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
		}
	}
	return []models.ScanResult{{Engine: "google", Status: models.StatusStable, State: models.ScanDone}}, r.err
}

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *fakePruner) DeleteAlertsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, time.Hour, discardLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, errSchedulerRunning) {
		t.Errorf("second Start err = %v", err)
	}
	waitFor(t, func() bool { return runner.calls.Load() == 1 })

	s.Stop()
	s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Errorf("restart after Stop: %v", err)
	}
	s.Stop()
}

func TestSchedulerTicks(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, 10*time.Millisecond, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return runner.calls.Load() >= 3 })
	s.Stop()
}

func TestSchedulerSkipsOverlappingPass(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := NewScheduler(runner, 5*time.Millisecond, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	time.Sleep(60 * time.Millisecond)
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("passes started while one was running: %d", n)
	}

	close(runner.release)
	waitFor(t, func() bool { return runner.calls.Load() >= 2 })
	s.Stop()
}

func TestSchedulerHaltsOnMissingKey(t *testing.T) {
	runner := &fakeRunner{err: config.ErrMissingAPIKey}
	s := NewScheduler(runner, 5*time.Millisecond, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-s.Err():
		if !errors.Is(err, config.ErrMissingAPIKey) {
			t.Errorf("Err() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}

	time.Sleep(30 * time.Millisecond)
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("scheduler kept running after fatal error: %d passes", n)
	}
	s.Stop()
}

func TestSchedulerRunOncePrunesAlerts(t *testing.T) {
	pruner := &fakePruner{}
	s := NewScheduler(&fakeRunner{err: errors.New("one target failed")}, time.Hour, discardLogger())
	s.Pruner = pruner
	s.Retention = 24 * time.Hour

	if !s.RunOnce(context.Background()) {
		t.Fatal("RunOnce did not run")
	}

	if len(pruner.cutoffs) != 1 {
		t.Fatalf("pruner called %d times", len(pruner.cutoffs))
	}
	age := time.Since(pruner.cutoffs[0])
	if age < 23*time.Hour || age > 25*time.Hour {
		t.Errorf("cutoff age = %v, want about 24h", age)
	}
}

type panicRunner struct{}

func (panicRunner) RunPass(context.Context) ([]models.ScanResult, error) {
	panic("pass exploded")
}

func TestSchedulerRecoversPanickingPass(t *testing.T) {
	s := NewScheduler(panicRunner{}, time.Hour, discardLogger())
	s.RunOnce(context.Background())
}

func TestSchedulerRunOnceSkipsWhilePassRuns(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := NewScheduler(runner, time.Hour, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return runner.calls.Load() == 1 })

	if s.RunOnce(context.Background()) {
		t.Error("RunOnce overlapped the running pass")
	}
	if n := runner.calls.Load(); n != 1 {
		t.Errorf("passes = %d, want 1", n)
	}

	close(runner.release)
	s.Stop()
	if !s.RunOnce(context.Background()) {
		t.Error("RunOnce refused to run after the pass finished")
	}
}

// keyFixedRunner fails its first pass with a missing API key.
type keyFixedRunner struct {
	calls atomic.Int32
}

func (r *keyFixedRunner) RunPass(context.Context) ([]models.ScanResult, error) {
	if r.calls.Add(1) == 1 {
		return nil, config.ErrMissingAPIKey
	}
	return nil, nil
}

func TestSchedulerRestartsAfterHalt(t *testing.T) {
	runner := &keyFixedRunner{}
	s := NewScheduler(runner, time.Hour, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-s.Err():
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}

	waitFor(t, func() bool { return s.Start(context.Background()) == nil })
	waitFor(t, func() bool { return runner.calls.Load() == 2 })
	s.Stop()
}
