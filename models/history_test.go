package models

import "testing"

func TestStatusRank(t *testing.T) {
	order := []Status{StatusStable, StatusFlaky, StatusParserFail, StatusUpstreamBlock}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should rank above %s", order[i], order[i-1])
		}
	}
	if Status("unknown").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestRunSummaryCorrupted(t *testing.T) {
	tests := []struct {
		name   string
		result string
		wantOK bool
	}{
		{"empty", "", false},
		{"garbage", "{not json", false},
		{"valid", `{"overallStatus":"FLAKY","timestamp":"2026-01-01T00:00:00Z"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DiagnosticRun{Result: tt.result}.Summary()
			if ok != tt.wantOK {
				t.Errorf("Summary() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestHistoryEntry(t *testing.T) {
	run := DiagnosticRun{
		ID:     "run-1",
		Engine: "google",
		Status: StatusParserFail,
		Result: `{"overallStatus":"PARSER_FAIL","deepAnalysis":{"totalMissing":3,"criticalMissing":1},"upstream":{"isBlocked":false}}`,
	}
	e := run.HistoryEntry()
	if e.MissingSections == nil || *e.MissingSections != 3 {
		t.Errorf("MissingSections = %v, want 3", e.MissingSections)
	}
	if e.CriticalMissing == nil || *e.CriticalMissing != 1 {
		t.Errorf("CriticalMissing = %v, want 1", e.CriticalMissing)
	}
	if e.IsBlocked == nil || *e.IsBlocked {
		t.Errorf("IsBlocked = %v, want false", e.IsBlocked)
	}

	bad := DiagnosticRun{ID: "run-2", Result: "nope"}.HistoryEntry()
	if bad.MissingSections != nil || bad.IsBlocked != nil {
		t.Error("corrupted run should produce nil counters")
	}
}

func TestMissingSectionNames(t *testing.T) {
	s := &DiagnosticSummary{DeepAnalysis: &DeepAnalysisReport{
		HTMLComparison: HTMLComparison{MissingInJSON: []MissingSection{
			{Section: "local_results", Severity: SeverityWarning},
			{Section: "organic_results", Severity: SeverityCritical},
			{Section: "inline_images", Severity: SeverityInfo},
			{Section: "top_stories", Severity: SeverityInfo},
		}},
	}}
	if got := s.MissingSectionNames(3, false); len(got) != 3 || got[0] != "local_results" {
		t.Errorf("MissingSectionNames(3,false) = %v", got)
	}
	if got := s.MissingSectionNames(3, true); len(got) != 1 || got[0] != "organic_results" {
		t.Errorf("MissingSectionNames(3,true) = %v", got)
	}
	var nilSummary *DiagnosticSummary
	if got := nilSummary.MissingSectionNames(3, false); got != nil {
		t.Errorf("nil summary should give nil, got %v", got)
	}
}
