package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"serpmonitor/models"
)

const (
	SerpAPIBaseURL    = "https://serpapi.com/search.json"
	DefaultAPITimeout = 15 * time.Second
)

// APIClient runs one search. Implementations report HTTP and transport
// failures inside the result rather than as errors.
type APIClient interface {
	Call(ctx context.Context, params map[string]interface{}, apiKey string, timeout time.Duration) models.APICallResult
}

type SerpAPIClient struct {
	BaseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewSerpAPIClient builds a client that makes at most ratePerSec calls per
// second. A non-positive rate disables throttling.
func NewSerpAPIClient(ratePerSec float64) *SerpAPIClient {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		if b := int(ratePerSec); b > 1 {
			burst = b
		}
	}
	return &SerpAPIClient{
		BaseURL: SerpAPIBaseURL,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (c *SerpAPIClient) Call(ctx context.Context, params map[string]interface{}, apiKey string, timeout time.Duration) models.APICallResult {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timedOut := models.APICallResult{
		StatusCode: http.StatusRequestTimeout,
		Error:      fmt.Sprintf("Request timeout after %dms", timeout.Milliseconds()),
	}

	if err := c.limiter.Wait(ctx); err != nil {
		timedOut.LatencyMs = elapsed()
		return timedOut
	}

	query := url.Values{}
	query.Set("api_key", apiKey)
	for k, v := range params {
		if k == "api_key" || v == nil {
			continue
		}
		query.Set(k, fmt.Sprint(v))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return models.APICallResult{LatencyMs: elapsed(), Error: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			timedOut.LatencyMs = elapsed()
			return timedOut
		}
		return models.APICallResult{LatencyMs: elapsed(), Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return models.APICallResult{
			StatusCode: resp.StatusCode,
			LatencyMs:  elapsed(),
			Error:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode, body),
		}
	}

	var data map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		if isTimeout(err) {
			timedOut.LatencyMs = elapsed()
			return timedOut
		}
		return models.APICallResult{LatencyMs: elapsed(), Error: err.Error()}
	}

	// A 200 with an error field (no results, no transcript) is still a
	// successful call.
	result := models.APICallResult{
		Success:    true,
		StatusCode: resp.StatusCode,
		LatencyMs:  elapsed(),
		Response:   data,
	}
	if msg, ok := data["error"].(string); ok {
		result.Error = msg
	}
	return result
}

// RawHTMLURL returns search_metadata.raw_html_file, or "" when absent.
func RawHTMLURL(payload map[string]interface{}) string {
	meta, ok := payload["search_metadata"].(map[string]interface{})
	if !ok {
		return ""
	}
	u, _ := meta["raw_html_file"].(string)
	return u
}

// ItemCount is the size of the first non-empty main result list, or -1.
func ItemCount(payload map[string]interface{}) int {
	for _, key := range []string{"organic_results", "news_results", "shopping_results", "transcript"} {
		if items, ok := payload[key].([]interface{}); ok && len(items) > 0 {
			return len(items)
		}
	}
	return -1
}
