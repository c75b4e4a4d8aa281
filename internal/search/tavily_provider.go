package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codefionn/castcheck/internal/config"
)

const tavilyBaseURL = "https://api.tavily.com"

// TavilyProvider implements SearchProvider for the Tavily search API
type TavilyProvider struct {
	apiKey      string
	searchDepth string
	maxResults  int
	endpoint
}

// NewTavilyProvider creates a new Tavily search provider
func NewTavilyProvider(apiKey string, cfg config.TavilyConfig, opts ...Option) *TavilyProvider {
	depth := cfg.SearchDepth
	if depth == "" {
		depth = "advanced"
	}
	return &TavilyProvider{
		apiKey:      apiKey,
		searchDepth: depth,
		maxResults:  cfg.MaxResults,
		endpoint:    newEndpoint(tavilyBaseURL, opts),
	}
}

type tavilySearchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type tavilySearchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search performs a web search using the Tavily API
func (t *TavilyProvider) Search(ctx context.Context, query string, numResults int) (*SearchResponse, error) {
	if numResults <= 0 {
		numResults = t.maxResults
	}
	if numResults <= 0 {
		numResults = 10
	}

	jsonData, err := json.Marshal(tavilySearchRequest{
		APIKey:      t.apiKey,
		Query:       query,
		SearchDepth: t.searchDepth,
		MaxResults:  numResults,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var tavilyResp tavilySearchResponse
	if err := t.do(req, "tavily", &tavilyResp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return &SearchResponse{Results: results, Query: query}, nil
}

// Name returns the provider name
func (t *TavilyProvider) Name() string {
	return "tavily"
}

// Validate checks if the provider is properly configured
func (t *TavilyProvider) Validate() error {
	if t.apiKey == "" {
		return fmt.Errorf("tavily API key is not configured")
	}
	return nil
}
