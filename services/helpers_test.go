package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"serpmonitor/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeResponse struct {
	status int
	body   string
	err    error
	delay  time.Duration
}

// fakeFetcher serves canned responses by URL and honours ctx during delays.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	r, ok := f.responses[url]
	f.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !ok {
		return &FetchResult{StatusCode: 404}, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	status := r.status
	if status == 0 {
		status = 200
	}
	return &FetchResult{StatusCode: status, Body: r.body, Size: len(r.body)}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memHistory is an in-memory HistoryStore.
type memHistory struct {
	mu     sync.Mutex
	runs   []models.DiagnosticRun
	alerts []models.Alert
	err    error
}

func (m *memHistory) InsertRun(_ context.Context, run *models.DiagnosticRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if run.ID == "" {
		run.ID = "run-" + time.Now().Format("150405.000000000")
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memHistory) ListRecentRuns(_ context.Context, engine string, limit int) ([]models.DiagnosticRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DiagnosticRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.runs[i].Engine == engine {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

func (m *memHistory) InsertAlert(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = "alert"
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *memHistory) CountRecentAlerts(_ context.Context, engine, message string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.alerts {
		if a.Engine == engine && a.Message == message && a.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *memHistory) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *memHistory) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}
