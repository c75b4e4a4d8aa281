package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/codefionn/castcheck/internal/config"
)

const serperBaseURL = "https://google.serper.dev"

// SerperProvider implements SearchProvider for Google results via Serper
type SerperProvider struct {
	apiKey     string
	numResults int
	endpoint
}

// NewSerperProvider creates a new Serper search provider
func NewSerperProvider(apiKey string, cfg config.SerperConfig, opts ...Option) *SerperProvider {
	return &SerperProvider{
		apiKey:     apiKey,
		numResults: cfg.NumResults,
		endpoint:   newEndpoint(serperBaseURL, opts),
	}
}

type serperSearchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperSearchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search performs a web search using the Serper API
func (s *SerperProvider) Search(ctx context.Context, query string, numResults int) (*SearchResponse, error) {
	if numResults <= 0 {
		numResults = s.numResults
	}
	if numResults <= 0 {
		numResults = 10
	}

	jsonData, err := json.Marshal(serperSearchRequest{Q: query, Num: numResults})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	var serperResp serperSearchResponse
	if err := s.do(req, "serper", &serperResp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(serperResp.Organic))
	for _, r := range serperResp.Organic {
		results = append(results, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return &SearchResponse{Results: results, Query: query}, nil
}

// Name returns the provider name
func (s *SerperProvider) Name() string {
	return "serper"
}

// Validate checks if the provider is properly configured
func (s *SerperProvider) Validate() error {
	if s.apiKey == "" {
		return fmt.Errorf("serper API key is not configured")
	}
	return nil
}
