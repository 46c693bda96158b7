package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"serpmonitor/config"
	"serpmonitor/models"
)

const (
	DeepAnalysisTimeout = 10 * time.Second
	DeepFetchTimeout    = 8 * time.Second

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// DeepAnalyzer compares the sections visible in an engine's raw HTML with
// the sections present in its structured response.
type DeepAnalyzer struct {
	fetcher      ContentFetcher
	budget       time.Duration
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func NewDeepAnalyzer(fetcher ContentFetcher, logger *slog.Logger) *DeepAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeepAnalyzer{
		fetcher:      fetcher,
		budget:       DeepAnalysisTimeout,
		fetchTimeout: DeepFetchTimeout,
		logger:       logger,
	}
}

func timestamp() string {
	return time.Now().UTC().Format(isoMillis)
}

// Analyze never fails. Missing URLs, fetch errors and the overall time
// budget are reported through the comparison summary.
func (d *DeepAnalyzer) Analyze(ctx context.Context, engine string, payload map[string]interface{}) models.DeepAnalysisReport {
	spec, _ := config.Engine(engine)
	inJSON := ExtractJSONSections(payload, spec.JSONSections)
	rawURL := RawHTMLURL(payload)

	base := models.DeepAnalysisReport{
		Engine:    engine,
		Timestamp: timestamp(),
		HTMLComparison: models.HTMLComparison{
			HTMLURL:        rawURL,
			SectionsInHTML: []models.HTMLSection{},
			SectionsInJSON: inJSON,
			MissingInJSON:  []models.MissingSection{},
		},
		TotalSectionsInJSON: len(inJSON),
	}

	if rawURL == "" {
		base.HTMLComparison.Summary = "No raw HTML URL available in response"
		return base
	}

	ctx, cancel := context.WithTimeout(ctx, d.budget)
	defer cancel()

	done := make(chan models.DeepAnalysisReport, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("deep analysis panic", "engine", engine, "panic", r)
				failed := base
				failed.HTMLComparison.Summary = fmt.Sprintf("Error: %v", r)
				done <- failed
			}
		}()
		done <- d.compare(ctx, spec, base)
	}()

	select {
	case report := <-done:
		return report
	case <-ctx.Done():
		partial := base
		partial.HTMLComparison.Summary = "Deep analysis timed out"
		return partial
	}
}

func (d *DeepAnalyzer) compare(ctx context.Context, spec config.EngineSpec, report models.DeepAnalysisReport) models.DeepAnalysisReport {
	cmp := &report.HTMLComparison

	res, err := d.fetcher.Fetch(ctx, cmp.HTMLURL, d.fetchTimeout)
	if err != nil {
		if isTimeout(err) {
			cmp.Summary = "HTML fetch timed out"
		} else {
			cmp.Summary = "Error: " + err.Error()
		}
		return report
	}
	if !res.OK() {
		cmp.Summary = fmt.Sprintf("Failed to fetch HTML: %d", res.StatusCode)
		return report
	}

	cmp.HTMLFetched = true
	cmp.HTMLSize = res.Size

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		cmp.Summary = "Error: " + err.Error()
		return report
	}

	descriptions := make(map[string]string, len(spec.HTMLSections))
	for _, s := range spec.HTMLSections {
		descriptions[s.Name] = s.Description
	}

	cmp.SectionsInHTML = ExtractHTMLSections(doc, spec.HTMLSections)
	report.TotalSectionsInHTML = len(cmp.SectionsInHTML)

	parsed := make(map[string]bool, len(cmp.SectionsInJSON))
	for _, name := range cmp.SectionsInJSON {
		parsed[name] = true
	}

	for _, s := range cmp.SectionsInHTML {
		if parsed[s.Name] {
			continue
		}
		desc := descriptions[s.Name]
		if desc == "" {
			desc = s.Name
		}
		severity := SectionSeverity(s.Name, s.Count)
		cmp.MissingInJSON = append(cmp.MissingInJSON, models.MissingSection{
			Section:      s.Name,
			Description:  fmt.Sprintf(`Found %d "%s" in HTML but NOT parsed in JSON`, s.Count, desc),
			Severity:     severity,
			HTMLEvidence: "Selector: " + s.Selector,
			HTMLCount:    s.Count,
		})
		if severity == models.SeverityCritical {
			report.CriticalMissing++
		}
	}

	report.TotalMissing = len(cmp.MissingInJSON)
	report.HasCriticalIssues = report.CriticalMissing > 0

	if report.TotalMissing == 0 {
		cmp.Summary = "All HTML sections are present in JSON response. No parsing issues detected."
	} else {
		cmp.Summary = fmt.Sprintf("PARSING ISSUE: Found %d section(s) in HTML that are NOT in JSON response.", report.TotalMissing)
		if report.CriticalMissing > 0 {
			cmp.Summary += fmt.Sprintf(" CRITICAL: %d major section(s) missing!", report.CriticalMissing)
		}
	}

	if report.HasCriticalIssues {
		for _, m := range cmp.MissingInJSON {
			if m.Severity == models.SeverityCritical {
				report.SuggestedTicketTitle = fmt.Sprintf("[%s] Missing %s - found %d in HTML but not parsed",
					EngineTitle(report.Engine), m.Section, m.HTMLCount)
				break
			}
		}
	}

	return report
}
