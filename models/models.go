package models

import (
	"time"
)

type TargetConfig struct {
	ID            string                 `json:"id,omitempty"`
	Engine        string                 `json:"engine"`
	Label         string                 `json:"label"`
	Params        map[string]interface{} `json:"params"`
	IntervalHours int                    `json:"intervalHours"`
	Enabled       bool                   `json:"enabled"`
	LastRunAt     *time.Time             `json:"lastRunAt,omitempty"`
	CreatedAt     *time.Time             `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time             `json:"updatedAt,omitempty"`
}

const (
	RunTypeScheduled = "scheduled"
	RunTypeManual    = "manual"
)

// DiagnosticRun is an immutable history record. Result holds the JSON
// encoded DiagnosticSummary exactly as it was stored.
type DiagnosticRun struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Engine    string    `json:"engine"`
	Params    string    `json:"params"`
	Result    string    `json:"result"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	AlertTypeDashboard = "dashboard"
	AlertTypeEmail     = "email"

	AlertPending   = "pending"
	AlertRead      = "read"
	AlertDismissed = "dismissed"
)

type Alert struct {
	ID              string    `json:"id"`
	DiagnosticRunID string    `json:"diagnosticRunId,omitempty"`
	Engine          string    `json:"engine"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	Severity        Severity  `json:"severity"`
	CreatedAt       time.Time `json:"createdAt"`
}

// APICallResult is what the search API client returns. It never carries a
// Go error: transport failures are folded into Success/StatusCode/Error.
type APICallResult struct {
	Success    bool                   `json:"success"`
	StatusCode int                    `json:"statusCode"`
	LatencyMs  int64                  `json:"latencyMs"`
	Response   map[string]interface{} `json:"response,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// ScanState tracks one target through a scan attempt.
type ScanState string

const (
	ScanPending    ScanState = "PENDING"
	ScanFetching   ScanState = "FETCHING"
	ScanAnalyzing  ScanState = "ANALYZING"
	ScanPersisting ScanState = "PERSISTING"
	ScanDone       ScanState = "DONE"
	ScanFailed     ScanState = "FAILED"
)

type ScanResult struct {
	Engine     string             `json:"engine"`
	Label      string             `json:"label,omitempty"`
	Status     Status             `json:"status"`
	State      ScanState          `json:"state"`
	RunID      string             `json:"runId,omitempty"`
	Summary    *DiagnosticSummary `json:"summary,omitempty"`
	Anomalies  []Anomaly          `json:"anomalies,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMs int64              `json:"durationMs"`
}

// EngineStatus is the per-engine row of the monitoring status view.
type EngineStatus struct {
	Engine              string     `json:"engine"`
	Label               string     `json:"label"`
	Enabled             bool       `json:"enabled"`
	Status              string     `json:"status"`
	StatusReason        string     `json:"statusReason"`
	MissingSections     *int       `json:"missingSections"`
	CriticalMissing     *int       `json:"criticalMissing"`
	MissingSectionNames []string   `json:"missingSectionNames"`
	IsBlocked           *bool      `json:"isBlocked"`
	LastRunAt           *time.Time `json:"lastRunAt"`
}

// HistoryEntry is a flattened DiagnosticRun for history listings.
type HistoryEntry struct {
	ID              string    `json:"id"`
	Engine          string    `json:"engine"`
	Type            string    `json:"type"`
	Status          Status    `json:"status"`
	MissingSections *int      `json:"missingSections"`
	CriticalMissing *int      `json:"criticalMissing"`
	IsBlocked       *bool     `json:"isBlocked"`
	CreatedAt       time.Time `json:"createdAt"`
}

type EngineStats struct {
	Engine        string  `json:"engine"`
	RunCount      int     `json:"run_count"`
	StableCount   int     `json:"stable_count"`
	FlakyCount    int     `json:"flaky_count"`
	ParserFail    int     `json:"parser_fail_count"`
	UpstreamBlock int     `json:"upstream_block_count"`
	StableRate    float64 `json:"stable_rate"`
}
