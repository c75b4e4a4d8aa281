package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/codefionn/castcheck/internal/config"
)

const braveBaseURL = "https://api.search.brave.com"

// BraveProvider implements SearchProvider for the Brave Search API
type BraveProvider struct {
	apiKey string
	count  int
	endpoint
}

// NewBraveProvider creates a new Brave search provider
func NewBraveProvider(apiKey string, cfg config.BraveConfig, opts ...Option) *BraveProvider {
	return &BraveProvider{
		apiKey:   apiKey,
		count:    cfg.Count,
		endpoint: newEndpoint(braveBaseURL, opts),
	}
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search performs a web search using the Brave API
func (b *BraveProvider) Search(ctx context.Context, query string, numResults int) (*SearchResponse, error) {
	if numResults <= 0 {
		numResults = b.count
	}
	if numResults <= 0 {
		numResults = 10
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(numResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/res/v1/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	var braveResp braveSearchResponse
	if err := b.do(req, "brave", &braveResp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(braveResp.Web.Results))
	for _, r := range braveResp.Web.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return &SearchResponse{Results: results, Query: query}, nil
}

// Name returns the provider name
func (b *BraveProvider) Name() string {
	return "brave"
}

// Validate checks if the provider is properly configured
func (b *BraveProvider) Validate() error {
	if b.apiKey == "" {
		return fmt.Errorf("brave API key is not configured")
	}
	return nil
}
