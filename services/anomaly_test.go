package services

import (
	"encoding/json"
	"strings"
	"testing"

	"serpmonitor/models"
)

func summaryWith(status models.Status, missing, critical int, sections ...string) *models.DiagnosticSummary {
	deep := &models.DeepAnalysisReport{
		TotalMissing:      missing,
		CriticalMissing:   critical,
		HasCriticalIssues: critical > 0,
	}
	for i, name := range sections {
		sev := models.SeverityWarning
		if i < critical {
			sev = models.SeverityCritical
		}
		deep.HTMLComparison.MissingInJSON = append(deep.HTMLComparison.MissingInJSON, models.MissingSection{Section: name, Severity: sev})
	}
	return &models.DiagnosticSummary{DeepAnalysis: deep, OverallStatus: status}
}

func storedRun(t *testing.T, s *models.DiagnosticSummary) models.DiagnosticRun {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return models.DiagnosticRun{Engine: "google", Status: s.OverallStatus, Result: string(b)}
}

func anomalyTypes(as []models.Anomaly) []string {
	var out []string
	for _, a := range as {
		out = append(out, string(a.Type))
	}
	return out
}

func TestDetectAnomaliesStableToParserFail(t *testing.T) {
	prev := storedRun(t, summaryWith(models.StatusStable, 0, 0))
	current := summaryWith(models.StatusParserFail, 1, 1, "organic_results")

	got := DetectAnomalies(current, []models.DiagnosticRun{prev})
	if strings.Join(anomalyTypes(got), ",") != "parsing_issue,status_change" {
		t.Fatalf("anomalies = %v", anomalyTypes(got))
	}

	parsing := got[0]
	if parsing.Severity != models.SeverityCritical || parsing.CurrentValue != 1 || *parsing.PreviousValue != 0 {
		t.Errorf("parsing anomaly = %+v", parsing)
	}
	if parsing.Message != "Critical parsing issue worsened: 1 critical section(s) missing (prev 0)" {
		t.Errorf("parsing message = %q", parsing.Message)
	}

	change := got[1]
	want := "Status changed from STABLE to PARSER_FAIL | 1 critical missing section(s) (e.g., organic_results)"
	if change.Message != want {
		t.Errorf("status change message = %q, want %q", change.Message, want)
	}
	if change.Severity != models.SeverityWarning {
		t.Errorf("status change severity = %s", change.Severity)
	}
}

func TestDetectAnomaliesNonCriticalWorsening(t *testing.T) {
	prev := storedRun(t, summaryWith(models.StatusFlaky, 1, 0, "local_results"))
	current := summaryWith(models.StatusFlaky, 3, 0, "local_results", "top_stories", "inline_images")

	got := DetectAnomalies(current, []models.DiagnosticRun{prev})
	if len(got) != 1 {
		t.Fatalf("anomalies = %+v", got)
	}
	if got[0].Severity != models.SeverityWarning || got[0].Message != "Parsing issue worsened: 3 section(s) missing (prev 1)" {
		t.Errorf("anomaly = %+v", got[0])
	}
}

func TestDetectAnomaliesUnchangedOrImproved(t *testing.T) {
	tests := []struct {
		name    string
		prev    *models.DiagnosticSummary
		current *models.DiagnosticSummary
	}{
		{"same", summaryWith(models.StatusFlaky, 2, 0), summaryWith(models.StatusFlaky, 2, 0)},
		{"improved", summaryWith(models.StatusParserFail, 3, 2), summaryWith(models.StatusFlaky, 1, 0)},
		{"stable to stable", summaryWith(models.StatusStable, 0, 0), summaryWith(models.StatusStable, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectAnomalies(tt.current, []models.DiagnosticRun{storedRun(t, tt.prev)})
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty non-nil slice, got %#v", got)
			}
		})
	}
}

func TestDetectAnomaliesFlakyToParserFailIsNotStatusChange(t *testing.T) {
	prev := storedRun(t, summaryWith(models.StatusFlaky, 1, 0, "local_results"))
	current := summaryWith(models.StatusParserFail, 2, 1, "organic_results", "local_results")

	got := DetectAnomalies(current, []models.DiagnosticRun{prev})
	for _, a := range got {
		if a.Type == models.AnomalyStatusChange {
			t.Errorf("unexpected status change %q", a.Message)
		}
	}
	if len(got) != 1 || got[0].Type != models.AnomalyParsingIssue {
		t.Errorf("anomalies = %v", anomalyTypes(got))
	}
}

func TestDetectAnomaliesUpstreamBlock(t *testing.T) {
	prev := storedRun(t, summaryWith(models.StatusStable, 0, 0))
	current := &models.DiagnosticSummary{
		OverallStatus: models.StatusUpstreamBlock,
		Upstream: &models.UpstreamReport{
			IsBlocked:    true,
			Status:       models.StatusUpstreamBlock,
			AlertMessage: "Blocking patterns detected: CAPTCHA detected",
		},
	}

	got := DetectAnomalies(current, []models.DiagnosticRun{prev})
	if strings.Join(anomalyTypes(got), ",") != "upstream_block,status_change" {
		t.Fatalf("anomalies = %v", anomalyTypes(got))
	}
	if got[0].Message != "Upstream blocking detected: Blocking patterns detected: CAPTCHA detected" {
		t.Errorf("upstream message = %q", got[0].Message)
	}
	if got[1].Severity != models.SeverityCritical {
		t.Errorf("block status change severity = %s", got[1].Severity)
	}
	if !strings.HasSuffix(got[1].Message, "| Blocking patterns detected: CAPTCHA detected") {
		t.Errorf("status change message = %q", got[1].Message)
	}
}

func TestDetectAnomaliesWithoutHistory(t *testing.T) {
	current := summaryWith(models.StatusParserFail, 2, 1, "organic_results", "local_results")
	got := DetectAnomalies(current, nil)
	if len(got) != 1 || got[0].Type != models.AnomalyParsingIssue {
		t.Errorf("anomalies = %v", anomalyTypes(got))
	}
}

func TestDetectAnomaliesCorruptedBaseline(t *testing.T) {
	corrupt := models.DiagnosticRun{Engine: "google", Status: models.StatusFlaky, Result: "{truncated"}
	current := summaryWith(models.StatusFlaky, 1, 0, "local_results")

	got := DetectAnomalies(current, []models.DiagnosticRun{corrupt})
	if len(got) != 1 || got[0].PreviousValue == nil || *got[0].PreviousValue != 0 {
		t.Errorf("corrupted baseline should count as zero missing, got %+v", got)
	}
}

func TestDetectAnomaliesUsesOnlyNewestRun(t *testing.T) {
	newest := storedRun(t, summaryWith(models.StatusFlaky, 2, 0))
	older := storedRun(t, summaryWith(models.StatusStable, 0, 0))
	current := summaryWith(models.StatusFlaky, 2, 0)

	if got := DetectAnomalies(current, []models.DiagnosticRun{newest, older}); len(got) != 0 {
		t.Errorf("older runs must not be a baseline, got %v", anomalyTypes(got))
	}
}

func TestDetectAnomaliesMonotonic(t *testing.T) {
	prev := []models.DiagnosticRun{storedRun(t, summaryWith(models.StatusFlaky, 2, 1))}
	for missing := 0; missing <= 2; missing++ {
		for critical := 0; critical <= 1; critical++ {
			got := DetectAnomalies(summaryWith(models.StatusFlaky, missing, critical), prev)
			for _, a := range got {
				if a.Type == models.AnomalyParsingIssue {
					t.Errorf("missing=%d critical=%d did not worsen but got %q", missing, critical, a.Message)
				}
			}
		}
	}
}
