package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"serpmonitor/models"
)

const UpstreamFetchTimeout = 10 * time.Second

// UpstreamAnalyzer decides whether the source behind a search result is
// reachable and serving real content.
type UpstreamAnalyzer struct {
	fetcher ContentFetcher
	timeout time.Duration
	logger  *slog.Logger
}

func NewUpstreamAnalyzer(fetcher ContentFetcher, logger *slog.Logger) *UpstreamAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpstreamAnalyzer{fetcher: fetcher, timeout: UpstreamFetchTimeout, logger: logger}
}

// Analyze always returns a verdict. Fetch failures, bad payloads and panics
// all become UPSTREAM_BLOCK reports.
func (a *UpstreamAnalyzer) Analyze(ctx context.Context, rawHTMLURL string) (report models.UpstreamReport) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("upstream analysis panic", "url", rawHTMLURL, "panic", r)
			report = blockedReport(rawHTMLURL, models.ContentUnknown, 0, fmt.Sprintf("Error fetching raw HTML: %v", r))
		}
	}()

	res, err := a.fetcher.Fetch(ctx, rawHTMLURL, a.timeout)
	if err != nil {
		return blockedReport(rawHTMLURL, models.ContentUnknown, 0, "Error fetching raw HTML: "+err.Error())
	}
	if !res.OK() {
		return blockedReport(rawHTMLURL, models.ContentUnknown, 0, fmt.Sprintf("Failed to fetch raw HTML: HTTP %d", res.StatusCode))
	}

	contentType := ClassifyContent(res.Body)
	if contentType == models.ContentJSON {
		return analyzeJSONBody(rawHTMLURL, res)
	}

	patterns := ScanBlockPatterns(res.Body)
	found := FoundPatternLabels(patterns)
	report = models.UpstreamReport{
		RawHTMLURL:    rawHTMLURL,
		ContentType:   contentType,
		IsBlocked:     len(found) > 0,
		BlockPatterns: patterns,
		HTMLSize:      res.Size,
		Status:        models.StatusStable,
	}
	if report.IsBlocked {
		report.Status = models.StatusUpstreamBlock
		report.AlertMessage = "Blocking patterns detected: " + strings.Join(found, ", ")
	}
	return report
}

func analyzeJSONBody(rawHTMLURL string, res *FetchResult) models.UpstreamReport {
	var payload interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(res.Body)), &payload); err != nil {
		return blockedReport(rawHTMLURL, models.ContentJSON, res.Size, "Invalid JSON response detected")
	}

	if obj, ok := payload.(map[string]interface{}); ok {
		status, _ := obj["status"].(string)
		if truthy(obj["error"]) || status == "Error" || status == "FAILED_PRECONDITION" {
			return blockedReport(rawHTMLURL, models.ContentJSON, res.Size, "JSON error response: "+jsonErrorMessage(obj))
		}
	}

	return models.UpstreamReport{
		RawHTMLURL:    rawHTMLURL,
		ContentType:   models.ContentJSON,
		BlockPatterns: []models.BlockPattern{},
		HTMLSize:      res.Size,
		Status:        models.StatusStable,
	}
}

func jsonErrorMessage(obj map[string]interface{}) string {
	if s, ok := obj["error"].(string); ok {
		return s
	}
	if s, ok := obj["message"].(string); ok {
		return s
	}
	v := obj["error"]
	if !truthy(v) {
		v = obj["message"]
	}
	if !truthy(v) {
		v = "Unknown error"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "Unknown error"
	}
	return string(b)
}

// truthy mirrors loose JSON truthiness: null, false, 0 and "" are false.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func blockedReport(rawHTMLURL string, ct models.ContentType, size int, msg string) models.UpstreamReport {
	return models.UpstreamReport{
		RawHTMLURL:    rawHTMLURL,
		ContentType:   ct,
		IsBlocked:     true,
		BlockPatterns: []models.BlockPattern{},
		HTMLSize:      size,
		Status:        models.StatusUpstreamBlock,
		AlertMessage:  msg,
	}
}
