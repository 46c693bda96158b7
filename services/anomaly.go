package services

import (
	"fmt"
	"strings"

	"serpmonitor/models"
)

// HistoryWindow is how many prior runs are loaded for anomaly detection.
// Only the newest is compared against.
const HistoryWindow = 1

// DetectAnomalies compares a new summary with the engine's prior runs,
// newest first. Only history[0] is used as the baseline; an unreadable
// stored result counts as a run with nothing missing.
func DetectAnomalies(current *models.DiagnosticSummary, history []models.DiagnosticRun) []models.Anomaly {
	anomalies := []models.Anomaly{}
	if current == nil {
		return anomalies
	}

	var previous *models.DiagnosticSummary
	if len(history) > 0 {
		previous, _ = history[0].Summary()
	}

	missing, critical := missingCounts(current)
	prevMissing, prevCritical := missingCounts(previous)

	if critical > prevCritical {
		anomalies = append(anomalies, models.Anomaly{
			Type:          models.AnomalyParsingIssue,
			Message:       fmt.Sprintf("Critical parsing issue worsened: %d critical section(s) missing (prev %d)", critical, prevCritical),
			Severity:      models.SeverityCritical,
			CurrentValue:  critical,
			PreviousValue: intPtr(prevCritical),
		})
	} else if missing > prevMissing {
		anomalies = append(anomalies, models.Anomaly{
			Type:          models.AnomalyParsingIssue,
			Message:       fmt.Sprintf("Parsing issue worsened: %d section(s) missing (prev %d)", missing, prevMissing),
			Severity:      models.SeverityWarning,
			CurrentValue:  missing,
			PreviousValue: intPtr(prevMissing),
		})
	}

	if current.Upstream != nil && current.Upstream.IsBlocked {
		anomalies = append(anomalies, models.Anomaly{
			Type:         models.AnomalyUpstreamBlock,
			Message:      "Upstream blocking detected: " + upstreamReason(current),
			Severity:     models.SeverityCritical,
			CurrentValue: 1,
		})
	}

	// Only a move away from STABLE is a status change; FLAKY -> PARSER_FAIL
	// is reported through the parsing rule above.
	if len(history) > 0 {
		prevStatus := history[0].Status
		if prevStatus == models.StatusStable && current.OverallStatus != models.StatusStable {
			severity := models.SeverityWarning
			if current.OverallStatus == models.StatusUpstreamBlock {
				severity = models.SeverityCritical
			}
			anomalies = append(anomalies, models.Anomaly{
				Type:          models.AnomalyStatusChange,
				Message:       statusChangeMessage(prevStatus, current),
				Severity:      severity,
				CurrentValue:  0,
				PreviousValue: intPtr(0),
			})
		}
	}

	return anomalies
}

func missingCounts(s *models.DiagnosticSummary) (missing, critical int) {
	if s == nil || s.DeepAnalysis == nil {
		return 0, 0
	}
	return s.DeepAnalysis.TotalMissing, s.DeepAnalysis.CriticalMissing
}

func upstreamReason(s *models.DiagnosticSummary) string {
	if s.Upstream != nil && s.Upstream.AlertMessage != "" {
		return s.Upstream.AlertMessage
	}
	return "CAPTCHA or rate limit"
}

func statusChangeMessage(prev models.Status, current *models.DiagnosticSummary) string {
	msg := fmt.Sprintf("Status changed from %s to %s", prev, current.OverallStatus)
	missing, critical := missingCounts(current)

	switch current.OverallStatus {
	case models.StatusFlaky:
		msg += fmt.Sprintf(" | %d non-critical missing section(s)", missing)
		msg += sectionHint(current.MissingSectionNames(3, false))
	case models.StatusParserFail:
		msg += fmt.Sprintf(" | %d critical missing section(s)", critical)
		msg += sectionHint(current.MissingSectionNames(3, true))
	case models.StatusUpstreamBlock:
		msg += " | " + upstreamReason(current)
	}
	return msg
}

func sectionHint(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return " (e.g., " + strings.Join(names, ", ") + ")"
}

func intPtr(v int) *int {
	return &v
}
