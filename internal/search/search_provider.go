// Package search wraps web search APIs as tools the fact checker and critic
// can call.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/codefionn/castcheck/internal/consts"
)

// SearchResult represents a single search result
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content,omitempty"` // Full content if available
}

// SearchResponse represents the response from a search provider
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Query   string         `json:"query"`
}

// SearchProvider defines the interface for web search providers
type SearchProvider interface {
	// Search performs a web search with the given query
	Search(ctx context.Context, query string, numResults int) (*SearchResponse, error)

	// Name returns the name of the search provider
	Name() string

	// Validate checks if the provider is properly configured
	Validate() error
}

// Option customizes a provider's endpoint or transport.
type Option func(*endpoint)

// WithBaseURL points a provider at another host, typically a test server.
func WithBaseURL(baseURL string) Option {
	return func(e *endpoint) { e.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(e *endpoint) {
		if client != nil {
			e.client = client
		}
	}
}

type endpoint struct {
	baseURL string
	client  *http.Client
}

func newEndpoint(defaultBaseURL string, opts []Option) endpoint {
	e := endpoint{baseURL: defaultBaseURL, client: &http.Client{Timeout: consts.Timeout30Seconds}}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// do sends req and decodes a 200 JSON body into out.
func (e endpoint) do(req *http.Request, provider string, out interface{}) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, consts.BufferSize64KB))
		return fmt.Errorf("%s API error (status %d): %s", provider, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
