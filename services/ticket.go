package services

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"serpmonitor/models"
)

// EngineTitle turns an engine id like "google_shopping" into
// "Google Shopping".
func EngineTitle(engine string) string {
	return cases.Title(language.Und, cases.NoLower).String(strings.ReplaceAll(engine, "_", " "))
}

// GenerateTicket builds a markdown issue template from a diagnostic
// summary and the search parameters that produced it.
func GenerateTicket(summary models.DiagnosticSummary, params map[string]interface{}) models.Ticket {
	engine, _ := params["engine"].(string)
	if engine == "" && summary.DeepAnalysis != nil {
		engine = summary.DeepAnalysis.Engine
	}
	if engine == "" {
		engine = "unknown"
	}

	return models.Ticket{
		Title:  ticketTitle(engine, summary),
		Body:   ticketBody(engine, summary, params),
		Labels: ticketLabels(engine, summary),
	}
}

func ticketTitle(engine string, s models.DiagnosticSummary) string {
	if s.DeepAnalysis != nil && s.DeepAnalysis.SuggestedTicketTitle != "" {
		return s.DeepAnalysis.SuggestedTicketTitle
	}
	name := EngineTitle(engine)
	switch s.OverallStatus {
	case models.StatusUpstreamBlock:
		return fmt.Sprintf("[%s] Upstream blocking: %s", name, upstreamReason(&s))
	case models.StatusParserFail, models.StatusFlaky:
		missing, _ := missingCounts(&s)
		return fmt.Sprintf("[%s] %d section(s) in HTML not parsed", name, missing)
	default:
		return fmt.Sprintf("[%s] Diagnostic report: %s", name, s.OverallStatus)
	}
}

func ticketBody(engine string, s models.DiagnosticSummary, params map[string]interface{}) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- Engine: `%s`\n", engine)
	fmt.Fprintf(&b, "- Status: **%s**\n", s.OverallStatus)
	fmt.Fprintf(&b, "- Detected at: %s\n\n", s.Timestamp)

	fmt.Fprintf(&b, "## Search parameters\n\n```\n")
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "api_key" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, params[k])
	}
	fmt.Fprintf(&b, "```\n\n")

	if d := s.DeepAnalysis; d != nil {
		fmt.Fprintf(&b, "## Parsing\n\n%s\n\n", d.HTMLComparison.Summary)
		if len(d.HTMLComparison.MissingInJSON) > 0 {
			fmt.Fprintf(&b, "| Section | Severity | Count in HTML | Evidence |\n|---|---|---|---|\n")
			for _, m := range d.HTMLComparison.MissingInJSON {
				fmt.Fprintf(&b, "| %s | %s | %d | `%s` |\n", m.Section, m.Severity, m.HTMLCount, m.HTMLEvidence)
			}
			b.WriteString("\n")
		}
		if d.HTMLComparison.HTMLURL != "" {
			fmt.Fprintf(&b, "Raw HTML: %s\n\n", d.HTMLComparison.HTMLURL)
		}
	}

	if u := s.Upstream; u != nil {
		fmt.Fprintf(&b, "## Upstream\n\n")
		fmt.Fprintf(&b, "- Content type: %s\n", u.ContentType)
		fmt.Fprintf(&b, "- Blocked: %t\n", u.IsBlocked)
		if u.AlertMessage != "" {
			fmt.Fprintf(&b, "- Alert: %s\n", u.AlertMessage)
		}
		for _, p := range u.BlockPatterns {
			if p.Found {
				fmt.Fprintf(&b, "- %s: \"%s\"\n", p.Pattern, p.Context)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Status reason\n\n")
	b.WriteString(StatusReason(string(s.OverallStatus), &s))
	b.WriteString("\n")
	return b.String()
}

func ticketLabels(engine string, s models.DiagnosticSummary) []string {
	labels := []string{"engine:" + engine}
	switch s.OverallStatus {
	case models.StatusParserFail:
		labels = append(labels, "bug", "parser")
	case models.StatusFlaky:
		labels = append(labels, "parser", "flaky")
	case models.StatusUpstreamBlock:
		labels = append(labels, "upstream", "blocking")
	default:
		labels = append(labels, "diagnostic")
	}
	if s.DeepAnalysis != nil && s.DeepAnalysis.HasCriticalIssues {
		labels = append(labels, "priority:high")
	}
	return labels
}
