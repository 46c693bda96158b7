package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"serpmonitor/config"
	"serpmonitor/models"
)

const DefaultScanTimeout = 20 * time.Second

var ErrEngineNotFound = errors.New("engine not found")

// HistoryStore is the append/query view of run storage the scanner needs.
type HistoryStore interface {
	InsertRun(ctx context.Context, run *models.DiagnosticRun) error
	ListRecentRuns(ctx context.Context, engine string, limit int) ([]models.DiagnosticRun, error)
	InsertAlert(ctx context.Context, alert *models.Alert) error
}

type AlertRecorder interface {
	Record(ctx context.Context, engine, runID string, anomalies []models.Anomaly) ([]models.Alert, error)
}

// lastRunToucher is implemented by stores that track last_run_at on the
// target configuration.
type lastRunToucher interface {
	TouchLastRun(ctx context.Context, engine string, at time.Time) error
}

type OrchestratorConfig struct {
	API      APIClient
	Fetcher  ContentFetcher
	History  HistoryStore
	Targets  TargetProvider
	Alerts   AlertRecorder
	APIKey   string
	Logger   *slog.Logger

	// Concurrency bounds recurring passes. Values below 1 mean sequential.
	Concurrency int
}

// Orchestrator runs the diagnostic pipeline for configured targets:
// search call, deep analysis, upstream analysis, anomaly detection and
// persistence.
type Orchestrator struct {
	api      APIClient
	deep     *DeepAnalyzer
	upstream *UpstreamAnalyzer
	history  HistoryStore
	targets  TargetProvider
	alerts   AlertRecorder
	apiKey   string
	logger   *slog.Logger

	concurrency int

	ScanTimeout time.Duration
	APITimeout  time.Duration
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		api:         cfg.API,
		deep:        NewDeepAnalyzer(cfg.Fetcher, logger),
		upstream:    NewUpstreamAnalyzer(cfg.Fetcher, logger),
		history:     cfg.History,
		targets:     cfg.Targets,
		alerts:      cfg.Alerts,
		apiKey:      cfg.APIKey,
		logger:      logger,
		concurrency: concurrency,
		ScanTimeout: DefaultScanTimeout,
		APITimeout:  DefaultAPITimeout,
	}
}

type DiagnoseOptions struct {
	Deep     bool
	Upstream bool
}

// Diagnose analyzes an already fetched search payload. Stages that are
// skipped contribute nothing to the overall status.
func (o *Orchestrator) Diagnose(ctx context.Context, engine string, payload map[string]interface{}, opts DiagnoseOptions) models.DiagnosticSummary {
	var statuses []models.Status
	summary := models.DiagnosticSummary{}

	if opts.Deep {
		report := o.deep.Analyze(ctx, engine, payload)
		summary.DeepAnalysis = &report
		if s, ok := DeepAnalysisContribution(&report); ok {
			statuses = append(statuses, s)
		}
	}

	if opts.Upstream {
		if rawURL := RawHTMLURL(payload); rawURL != "" {
			report := o.upstream.Analyze(ctx, rawURL)
			summary.Upstream = &report
			statuses = append(statuses, report.Status)
		}
	}

	summary.OverallStatus = ResolveStatus(statuses...)
	summary.Timestamp = timestamp()
	return summary
}

// DeepAnalyze runs only the HTML versus JSON comparison.
func (o *Orchestrator) DeepAnalyze(ctx context.Context, engine string, payload map[string]interface{}) models.DeepAnalysisReport {
	return o.deep.Analyze(ctx, engine, payload)
}

// AnalyzeUpstream runs only the upstream check against rawHTMLURL.
func (o *Orchestrator) AnalyzeUpstream(ctx context.Context, rawHTMLURL string) models.UpstreamReport {
	return o.upstream.Analyze(ctx, rawHTMLURL)
}

// Search calls the search API with the engine merged into params.
func (o *Orchestrator) Search(ctx context.Context, engine string, params map[string]interface{}, apiKey string) models.APICallResult {
	merged := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	if engine != "" {
		merged["engine"] = engine
	}
	return o.api.Call(ctx, merged, apiKey, o.APITimeout)
}

// persistTimeout bounds the store writes of one scan. They run detached
// from the scan context so a run row is never left without its alerts.
const persistTimeout = 10 * time.Second

// persistGate settles the race between a scan entering persistence and its
// caller giving up on it. Exactly one of enter and abort succeeds.
type persistGate struct {
	mu      sync.Mutex
	entered bool
	aborted bool
}

func (g *persistGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		return false
	}
	g.entered = true
	return true
}

func (g *persistGate) abort() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entered {
		return false
	}
	g.aborted = true
	return true
}

func (g *persistGate) started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}

// RunTarget scans one target end to end. It never panics and always returns
// a result. Persistence is skipped if ctx is done before it starts; once
// started, the run, its alerts and the last-run mark are written together
// even if ctx ends meanwhile.
func (o *Orchestrator) RunTarget(ctx context.Context, target models.TargetConfig, runType string) models.ScanResult {
	return o.runTarget(ctx, target, runType, nil)
}

func (o *Orchestrator) runTarget(ctx context.Context, target models.TargetConfig, runType string, gate *persistGate) (res models.ScanResult) {
	start := time.Now()
	log := o.logger.With("engine", target.Engine, "run_type", runType)

	res = models.ScanResult{Engine: target.Engine, Label: target.Label, State: models.ScanPending}
	transition := func(s models.ScanState) {
		log.Debug("scan state", "from", res.State, "to", s)
		res.State = s
	}
	fail := func(err error) {
		res.Error = err.Error()
		transition(models.ScanFailed)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("scan panic recovered", "panic", r)
			res.Status = models.StatusUpstreamBlock
			fail(fmt.Errorf("panic: %v", r))
		}
		res.DurationMs = time.Since(start).Milliseconds()
	}()

	transition(models.ScanFetching)
	call := o.Search(ctx, target.Engine, target.Params, o.apiKey)

	transition(models.ScanAnalyzing)
	var summary models.DiagnosticSummary
	if !call.Success || call.Response == nil {
		log.Warn("search call failed", "status_code", call.StatusCode, "error", call.Error, "latency_ms", call.LatencyMs)
		summary = models.DiagnosticSummary{OverallStatus: models.StatusUpstreamBlock, Timestamp: timestamp()}
		res.Error = call.Error
	} else {
		log.Debug("search call ok", "latency_ms", call.LatencyMs, "items", ItemCount(call.Response))
		summary = o.Diagnose(ctx, target.Engine, call.Response, DiagnoseOptions{Deep: true, Upstream: true})
	}
	res.Summary = &summary
	res.Status = summary.OverallStatus

	if err := ctx.Err(); err != nil {
		res.Status = models.StatusUpstreamBlock
		fail(err)
		return res
	}

	history, err := o.history.ListRecentRuns(ctx, target.Engine, HistoryWindow)
	if err != nil {
		fail(fmt.Errorf("load history: %w", err))
		return res
	}
	res.Anomalies = DetectAnomalies(&summary, history)

	run, err := newRun(runType, target, summary)
	if err != nil {
		fail(err)
		return res
	}
	if ctx.Err() != nil || (gate != nil && !gate.enter()) {
		res.Status = models.StatusUpstreamBlock
		fail(fmt.Errorf("scan abandoned before persistence: %w", context.Cause(ctx)))
		return res
	}

	transition(models.ScanPersisting)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := o.history.InsertRun(pctx, run); err != nil {
		fail(err)
		return res
	}
	res.RunID = run.ID

	if len(res.Anomalies) > 0 {
		if err := o.recordAlerts(pctx, target.Engine, run.ID, res.Anomalies); err != nil {
			log.Error("persisting alerts", "error", err)
		}
	}

	if t, ok := o.history.(lastRunToucher); ok {
		if err := t.TouchLastRun(pctx, target.Engine, run.CreatedAt); err != nil {
			log.Warn("updating last run", "error", err)
		}
	}

	transition(models.ScanDone)
	log.Info("scan complete", "status", res.Status, "anomalies", len(res.Anomalies))
	return res
}

func newRun(runType string, target models.TargetConfig, summary models.DiagnosticSummary) (*models.DiagnosticRun, error) {
	params := target.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	resultJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &models.DiagnosticRun{
		Type:      runType,
		Engine:    target.Engine,
		Params:    string(paramsJSON),
		Result:    string(resultJSON),
		Status:    summary.OverallStatus,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) recordAlerts(ctx context.Context, engine, runID string, anomalies []models.Anomaly) error {
	if o.alerts != nil {
		_, err := o.alerts.Record(ctx, engine, runID, anomalies)
		return err
	}
	var errs []error
	for _, an := range anomalies {
		alert := &models.Alert{
			DiagnosticRunID: runID,
			Engine:          engine,
			Type:            models.AlertTypeDashboard,
			Status:          models.AlertPending,
			Message:         an.Message,
			Severity:        an.Severity,
		}
		if err := o.history.InsertAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunPass scans every enabled target that is due. Target failures are
// logged and never stop the pass; only configuration errors are returned.
func (o *Orchestrator) RunPass(ctx context.Context) ([]models.ScanResult, error) {
	if o.apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	targets, err := o.targets.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var due []models.TargetConfig
	for _, t := range targets {
		if !t.Enabled {
			continue
		}
		if o.isDue(ctx, t, now) {
			due = append(due, t)
		}
	}
	o.logger.Info("running scheduled diagnostics", "targets", len(targets), "due", len(due))

	results := make([]models.ScanResult, len(due))
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, t := range due {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return results[:i], ctx.Err()
		}
		wg.Add(1)
		go func(i int, t models.TargetConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.RunTarget(ctx, t, models.RunTypeScheduled)
		}(i, t)
	}
	wg.Wait()
	return results, nil
}

// isDue allows a minute of slack so that a pass on an exact interval tick
// is not skipped by timing jitter.
func (o *Orchestrator) isDue(ctx context.Context, t models.TargetConfig, now time.Time) bool {
	interval := time.Duration(t.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = time.Hour
	}

	last := t.LastRunAt
	runs, err := o.history.ListRecentRuns(ctx, t.Engine, 1)
	if err != nil {
		o.logger.Warn("checking last run", "engine", t.Engine, "error", err)
	} else if len(runs) > 0 && (last == nil || runs[0].CreatedAt.After(*last)) {
		last = &runs[0].CreatedAt
	}

	if last == nil {
		return true
	}
	return now.Sub(*last) >= interval-time.Minute
}

// ScanNow runs an on-demand scan of one engine, or of every enabled target
// when engine is empty. Targets run concurrently, each bounded by
// ScanTimeout. A target that times out before persistence starts is
// reported as UPSTREAM_BLOCK and is not persisted; one that is already
// persisting is waited for and reported as persisted.
func (o *Orchestrator) ScanNow(ctx context.Context, engine string) ([]models.ScanResult, error) {
	if o.apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	targets, err := o.targets.ListTargets(ctx)
	if err != nil {
		return nil, err
	}

	var selected []models.TargetConfig
	for _, t := range targets {
		if (engine == "" && t.Enabled) || (engine != "" && t.Engine == engine) {
			selected = append(selected, t)
		}
	}
	if engine != "" && len(selected) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotFound, engine)
	}

	results := make([]models.ScanResult, len(selected))
	var wg sync.WaitGroup
	for i, t := range selected {
		wg.Add(1)
		go func(i int, t models.TargetConfig) {
			defer wg.Done()
			results[i] = o.scanWithTimeout(ctx, t)
		}(i, t)
	}
	wg.Wait()
	return results, nil
}

func (o *Orchestrator) scanWithTimeout(ctx context.Context, t models.TargetConfig) models.ScanResult {
	ctx, cancel := context.WithTimeout(ctx, o.ScanTimeout)
	defer cancel()

	gate := &persistGate{}
	done := make(chan models.ScanResult, 1)
	go func() {
		done <- o.runTarget(ctx, t, models.RunTypeManual, gate)
	}()

	var res models.ScanResult
	select {
	case res = <-done:
	case <-ctx.Done():
		if !gate.abort() {
			// Persistence already started on its own bounded context.
			res = <-done
		}
	}
	if gate.started() {
		return res
	}
	// A scan that gave up because of the deadline reports the timeout,
	// whichever channel won.
	if res.State != models.ScanDone && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		o.logger.Warn("scan timed out", "engine", t.Engine, "timeout", o.ScanTimeout)
		return models.ScanResult{
			Engine:     t.Engine,
			Label:      t.Label,
			Status:     models.StatusUpstreamBlock,
			State:      models.ScanFailed,
			Error:      fmt.Sprintf("scan timed out after %s", o.ScanTimeout),
			DurationMs: o.ScanTimeout.Milliseconds(),
		}
	}
	if res.State == "" {
		return models.ScanResult{
			Engine: t.Engine,
			Label:  t.Label,
			Status: models.StatusUpstreamBlock,
			State:  models.ScanFailed,
			Error:  ctx.Err().Error(),
		}
	}
	return res
}
