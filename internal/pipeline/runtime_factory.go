package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/progress"
	"github.com/codefionn/castcheck/internal/search"
	"github.com/codefionn/castcheck/internal/secretdetect"
)

// RuntimeFactory creates per-request runtimes. Only credentials and the HTTP
// client are shared; bindings, tools and state are fresh for every Create.
type RuntimeFactory struct {
	Credentials config.Credentials
	// HTTPClient is used for providers, search and URL checks (optional)
	HTTPClient *http.Client
	// SearchOptions are passed to every search provider (optional)
	SearchOptions []search.Option
	// CriticTools lets the critic search as well
	CriticTools bool
}

// NewRuntimeFactory creates a factory reading credentials from the
// environment.
func NewRuntimeFactory() *RuntimeFactory {
	return &RuntimeFactory{Credentials: config.CredentialsFromEnv()}
}

// Create builds the runtime for one request from a config snapshot. It fails
// with a *config.ConfigError wrapping search.ErrNoSearchProviders when no
// search key is set. Events reaching cb have API keys redacted.
func (rf *RuntimeFactory) Create(ctx context.Context, cfg *config.Config, cb progress.Callback) (*agents.Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt := &agents.Runtime{
		Config: cfg,
		Bindings: &agents.FactoryBindings{
			Factory: &llm.Factory{Credentials: rf.Credentials, HTTPClient: rf.HTTPClient},
			Config:  cfg,
		},
		Progress:    secretdetect.New(rf.Credentials.Values()...).Wrap(cb),
		CriticTools: rf.CriticTools,
	}

	opts := rf.SearchOptions
	if rf.HTTPClient != nil {
		opts = append(append([]search.Option(nil), opts...), search.WithHTTPClient(rf.HTTPClient))
	}
	tools, err := search.NewTools(cfg.SearchTools, rf.Credentials, opts...)
	switch {
	case errors.Is(err, search.ErrNoSearchProviders):
		logger.FromContext(ctx).Error("search tools: %v", err)
		return nil, &config.ConfigError{Field: "search_tools", Err: err}
	case err != nil:
		return nil, err
	}
	for _, t := range tools {
		rt.Tools = append(rt.Tools, loop.Tool(t))
	}
	rt.Filter = search.NewURLValidator(cfg.App.URLTimeout(), rf.HTTPClient).Filter
	return rt, nil
}
