package search

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/logger"
)

const defaultCheckConcurrency = 8

// URLValidator drops search results whose URL does not answer a HEAD
// request with a status below 400.
type URLValidator struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
}

// NewURLValidator creates a validator with the given per-URL timeout.
func NewURLValidator(timeout time.Duration, client *http.Client) *URLValidator {
	if timeout <= 0 {
		timeout = consts.Timeout3Seconds
	}
	if client == nil {
		client = &http.Client{}
	}
	return &URLValidator{client: client, timeout: timeout, concurrency: defaultCheckConcurrency}
}

// Reachable reports whether rawURL answers a HEAD request. Redirects are
// followed.
func (v *URLValidator) Reachable(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}

// FilterResults checks all URLs concurrently and keeps the reachable ones in
// their original order.
func (v *URLValidator) FilterResults(ctx context.Context, results []SearchResult) []SearchResult {
	keep := make([]bool, len(results))

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, r := range results {
		g.Go(func() error {
			keep[i] = v.Reachable(ctx, r.URL)
			return nil
		})
	}
	_ = g.Wait()

	filtered := make([]SearchResult, 0, len(results))
	for i, r := range results {
		if keep[i] {
			filtered = append(filtered, r)
		}
	}
	if dropped := len(results) - len(filtered); dropped > 0 {
		logger.FromContext(ctx).Debug("dropped %d unreachable search result(s)", dropped)
	}
	return filtered
}

// Filter post-processes a tool result. Search results are filtered; anything
// else passes through unchanged.
func (v *URLValidator) Filter(ctx context.Context, toolName string, result interface{}) interface{} {
	switch r := result.(type) {
	case *ToolResult:
		return &ToolResult{Query: r.Query, Results: v.FilterResults(ctx, r.Results)}
	case ToolResult:
		return ToolResult{Query: r.Query, Results: v.FilterResults(ctx, r.Results)}
	default:
		return result
	}
}
