package services

import (
	"fmt"
	"strings"

	"serpmonitor/models"
)

// ResolveStatus folds partial verdicts into one, worst first:
// UPSTREAM_BLOCK > PARSER_FAIL > FLAKY > STABLE. No contributors means STABLE.
func ResolveStatus(statuses ...models.Status) models.Status {
	overall := models.StatusStable
	for _, s := range statuses {
		if s.Rank() > overall.Rank() {
			overall = s
		}
	}
	return overall
}

// DeepAnalysisContribution is the verdict a comparison adds to the overall
// status. A clean comparison contributes nothing.
func DeepAnalysisContribution(report *models.DeepAnalysisReport) (models.Status, bool) {
	switch {
	case report == nil:
		return "", false
	case report.HasCriticalIssues:
		return models.StatusParserFail, true
	case report.TotalMissing > 0:
		return models.StatusFlaky, true
	default:
		return "", false
	}
}

// StatusReason renders the one-line explanation shown next to an engine's
// latest status. status is the stored run status ("" when never scanned);
// summary may be nil when the stored result is unreadable.
func StatusReason(status string, summary *models.DiagnosticSummary) string {
	var deep *models.DeepAnalysisReport
	var upstream *models.UpstreamReport
	if summary != nil {
		deep, upstream = summary.DeepAnalysis, summary.Upstream
	}

	switch models.Status(status) {
	case "", "unknown":
		return "Never scanned"

	case models.StatusStable:
		return "All checks passed: No parsing issues, no blocking detected"

	case models.StatusFlaky:
		if deep != nil && deep.TotalMissing > 0 {
			reason := fmt.Sprintf("Non-critical parsing gaps detected: %d section(s) in HTML but missing in JSON", deep.TotalMissing)
			if names := summary.MissingSectionNames(3, false); len(names) > 0 {
				reason += " | Missing: " + strings.Join(names, ", ")
			}
			return reason
		}
		return "Intermittent issues detected"

	case models.StatusParserFail:
		var reasons []string
		if deep != nil {
			if deep.CriticalMissing > 0 {
				reasons = append(reasons, fmt.Sprintf("%d critical sections in HTML but missing in JSON", deep.CriticalMissing))
			} else if deep.TotalMissing > 0 {
				reasons = append(reasons, fmt.Sprintf("%d sections in HTML but missing in JSON", deep.TotalMissing))
			}
		}
		if names := summary.MissingSectionNames(3, false); len(names) > 0 {
			reasons = append(reasons, "Missing: "+strings.Join(names, ", "))
		}
		if len(reasons) == 0 {
			return "Data in HTML not present in JSON response"
		}
		return strings.Join(reasons, " | ")

	case models.StatusUpstreamBlock:
		switch {
		case upstream == nil:
		case upstream.AlertMessage != "":
			return "Upstream: " + upstream.AlertMessage
		case upstream.IsBlocked:
			if found := FoundPatternLabels(upstream.BlockPatterns); len(found) > 0 {
				return "Detected: " + strings.Join(found, ", ")
			}
			return "Source is blocking access (CAPTCHA or rate limit)"
		}
		return "Data source inaccessible"
	}

	return "Unknown status"
}
