package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/htmlconv"
	"github.com/codefionn/castcheck/internal/logger"
)

// Tool names as seen by the models.
const (
	ToolNameTavily = "tavily_search"
	ToolNameGoogle = "google_search"
	ToolNameBrave  = "brave_search"
)

// ErrNoSearchProviders is returned when no search API key is configured.
var ErrNoSearchProviders = errors.New("No search tools available. Please configure at least one search API key (TAVILY_API_KEY, SERPER_API_KEY, or BRAVE_API_KEY)")

// ToolResult is what a search tool returns to the model.
type ToolResult struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// Tool exposes a SearchProvider to the tool-calling loop.
type Tool struct {
	provider SearchProvider
	name     string
	label    string
	summary  string
}

// NewTool wraps provider under the given tool name.
func NewTool(name, label, summary string, provider SearchProvider) *Tool {
	return &Tool{provider: provider, name: name, label: label, summary: summary}
}

func (t *Tool) Name() string {
	return t.name
}

func (t *Tool) Description() string {
	return fmt.Sprintf("%s: %s. Returns titles, URLs, and snippets.", t.label, t.summary)
}

func (t *Tool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query to execute",
			},
		},
		"required": []string{"query"},
	}
}

// Invoke runs the search. Snippets are normalized to plain markdown.
func (t *Tool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("missing required parameter 'query'")
	}

	logger.FromContext(ctx).Debug("%s: searching %q", t.name, query)
	response, err := t.provider.Search(ctx, query, 0)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", t.provider.Name(), err)
	}

	out := &ToolResult{Query: query, Results: make([]SearchResult, 0, len(response.Results))}
	for _, r := range response.Results {
		out.Results = append(out.Results, SearchResult{
			Title:   htmlconv.Snippet(r.Title, 0),
			URL:     strings.TrimSpace(r.URL),
			Snippet: htmlconv.Snippet(r.Snippet, consts.PreviewLength),
		})
	}
	return out, nil
}

// NewTools builds a tool for every search provider with a key, in the order
// Tavily, Serper, Brave.
func NewTools(cfg config.SearchToolsConfig, creds config.Credentials, opts ...Option) ([]*Tool, error) {
	var tools []*Tool
	if creds.Tavily != "" {
		tools = append(tools, NewTool(ToolNameTavily, "Tavily Search", "Comprehensive search with advanced filtering",
			NewTavilyProvider(creds.Tavily, cfg.Tavily, opts...)))
	}
	if creds.Serper != "" {
		tools = append(tools, NewTool(ToolNameGoogle, "Google Search", "Current web search results",
			NewSerperProvider(creds.Serper, cfg.Serper, opts...)))
	}
	if creds.Brave != "" {
		tools = append(tools, NewTool(ToolNameBrave, "Brave Search", "Privacy-focused search engine",
			NewBraveProvider(creds.Brave, cfg.Brave, opts...)))
	}
	if len(tools) == 0 {
		return nil, ErrNoSearchProviders
	}
	return tools, nil
}

// ToolDescriptions renders one "- Label: summary" line per tool for system
// prompts.
func ToolDescriptions(tools []*Tool) string {
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.label, t.summary))
	}
	return strings.Join(lines, "\n")
}
