package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	defaultUserAgent = "SerpApi-Diagnostic-Workbench/1.0"
	htmlAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	// MaxHTMLBytes caps how much of a raw page is read and parsed.
	MaxHTMLBytes = 1 << 20
)

// FetchResult is a completed HTTP exchange. Non-2xx responses are results,
// not errors; callers decide what a status means.
type FetchResult struct {
	StatusCode int
	Body       string
	Size       int
	Truncated  bool
}

func (r *FetchResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ContentFetcher retrieves a raw page within timeout.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error)
}

// HTTPFetcher reads at most MaxBytes of a page, decoding it to UTF-8 based
// on the response Content-Type.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{},
		UserAgent: defaultUserAgent,
		MaxBytes:  MaxHTMLBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", htmlAccept)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &FetchResult{StatusCode: resp.StatusCode}
	if !result.OK() {
		return result, nil
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxHTMLBytes
	}
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		body = body[:limit]
		result.Truncated = true
	}
	result.Body = string(body)
	result.Size = len(body)
	return result, nil
}

// isTimeout reports whether err came from a deadline rather than a
// transport failure.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
