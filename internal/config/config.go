package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codefionn/castcheck/internal/consts"
)

// Model keys referenced by the pipeline.
const (
	ModelAnalystA      = "model_a"
	ModelAnalystB      = "model_b"
	ModelSupervisor    = "model_c"
	ModelFactChecker   = "model_d"
	ModelCritic        = "model_e"
	ModelSummarizer    = "summarizer"
	ModelNoteExtractor = "note_extractor"
)

// DefaultLlamaBaseURL is the OpenAI-compatible endpoint used for the llama provider.
const DefaultLlamaBaseURL = "https://api.llama.com/compat/v1/"

// ConfigError reports an invalid or missing configuration value. It is fatal
// and never retried.
type ConfigError struct {
	Field   string
	Message string
	// Err is the underlying cause (optional)
	Err error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field == "" {
		return "config: " + msg
	}
	return fmt.Sprintf("config: %s: %s", e.Field, msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RateLimitConfig throttles calls to one model binding.
type RateLimitConfig struct {
	IntervalMillis  int `yaml:"interval_ms,omitempty"`
	TokensPerMinute int `yaml:"tokens_per_minute,omitempty"`
}

// Interval returns the minimum spacing between requests.
func (r RateLimitConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMillis) * time.Millisecond
}

// ModelConfig describes one model binding and its optional fallback.
type ModelConfig struct {
	Provider    string          `yaml:"provider"`
	Name        string          `yaml:"name"`
	Temperature *float64        `yaml:"temperature,omitempty"`
	MaxTokens   int             `yaml:"max_tokens,omitempty"`
	BaseURL     string          `yaml:"base_url,omitempty"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty"`
	Fallback    *ModelConfig    `yaml:"fallback,omitempty"`
}

// EffectiveTemperature returns the configured temperature or the default.
func (m *ModelConfig) EffectiveTemperature() float64 {
	if m == nil || m.Temperature == nil {
		return consts.DefaultTemperature
	}
	return *m.Temperature
}

// EffectiveMaxTokens returns the configured output budget or the default.
func (m *ModelConfig) EffectiveMaxTokens() int {
	if m == nil || m.MaxTokens <= 0 {
		return consts.DefaultMaxTokens
	}
	return m.MaxTokens
}

// AppSettings holds pipeline tuning knobs.
type AppSettings struct {
	MaxRetries              int      `yaml:"max_retries"`
	MaxSupervisorIterations int      `yaml:"max_supervisor_iterations"`
	MaxFactCheckIterations  int      `yaml:"max_fact_check_iterations"`
	URLValidationTimeout    int      `yaml:"url_validation_timeout"` // seconds
	CriticLoops             int      `yaml:"critic_loops"`
	StreamDelayMillis       int      `yaml:"stream_delay_ms"`
	VerificationStatuses    []string `yaml:"verification_statuses"`
	OutputDir               string   `yaml:"output_dir"`
	LogLevel                string   `yaml:"log_level"` // debug, info, warn, error, none
	LogPath                 string   `yaml:"log_path"`
}

// URLTimeout returns the reachability check timeout.
func (a AppSettings) URLTimeout() time.Duration {
	if a.URLValidationTimeout <= 0 {
		return consts.Timeout3Seconds
	}
	return time.Duration(a.URLValidationTimeout) * time.Second
}

// StreamDelay returns the pacing delay between streamed events.
func (a AppSettings) StreamDelay() time.Duration {
	if a.StreamDelayMillis < 0 {
		return 0
	}
	return time.Duration(a.StreamDelayMillis) * time.Millisecond
}

// TavilyConfig configures the Tavily search tool
type TavilyConfig struct {
	MaxResults  int    `yaml:"max_results"`
	SearchDepth string `yaml:"search_depth"`
}

// SerperConfig configures the Serper (Google) search tool
type SerperConfig struct {
	NumResults int `yaml:"num_results"`
}

// BraveConfig configures the Brave search tool
type BraveConfig struct {
	Count int `yaml:"count"`
}

// SearchToolsConfig holds configuration for web search providers
type SearchToolsConfig struct {
	Tavily TavilyConfig `yaml:"tavily"`
	Serper SerperConfig `yaml:"serper"`
	Brave  BraveConfig  `yaml:"brave"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                  string `yaml:"addr"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-analysis timeout.
func (s ServerConfig) RequestTimeout() time.Duration {
	if s.RequestTimeoutSeconds <= 0 {
		return consts.Timeout10Minutes
	}
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Config represents application configuration
type Config struct {
	Models      map[string]*ModelConfig `yaml:"models"`
	App         AppSettings             `yaml:"app"`
	SearchTools SearchToolsConfig       `yaml:"search_tools"`
	Server      ServerConfig            `yaml:"server"`
}

func float(v float64) *float64 { return &v }

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	haiku := func() *ModelConfig {
		return &ModelConfig{Provider: "anthropic", Name: "claude-3-5-haiku-latest", Temperature: float(0.3), MaxTokens: 2000}
	}
	sonnet := func() *ModelConfig {
		return &ModelConfig{Provider: "anthropic", Name: "claude-sonnet-4-5", Temperature: float(0.2), MaxTokens: 4000}
	}
	llama := func() *ModelConfig {
		return &ModelConfig{Provider: "llama", Name: "Llama-4-Maverick-17B-128E-Instruct-FP8", Temperature: float(0.3), MaxTokens: 2000}
	}

	analystB := llama()
	analystB.Fallback = haiku()
	summarizer := haiku()
	summarizer.Fallback = llama()
	notes := haiku()
	notes.Fallback = llama()
	factChecker := sonnet()
	factChecker.Fallback = llama()
	factChecker.Fallback.MaxTokens = 4000

	return &Config{
		Models: map[string]*ModelConfig{
			ModelAnalystA:      haiku(),
			ModelAnalystB:      analystB,
			ModelSupervisor:    sonnet(),
			ModelFactChecker:   factChecker,
			ModelCritic:        sonnet(),
			ModelSummarizer:    summarizer,
			ModelNoteExtractor: notes,
		},
		App: AppSettings{
			MaxRetries:              consts.DefaultMaxRetries,
			MaxSupervisorIterations: consts.DefaultSupervisorIterations,
			MaxFactCheckIterations:  consts.DefaultFactCheckIterations,
			URLValidationTimeout:    3,
			CriticLoops:             consts.DefaultCriticLoops,
			StreamDelayMillis:       int(consts.DefaultStreamDelay / time.Millisecond),
			VerificationStatuses:    []string{"fact-checked", "unverified", "declined"},
			OutputDir:               "output",
			LogLevel:                "info",
		},
		SearchTools: SearchToolsConfig{
			Tavily: TavilyConfig{MaxResults: 10, SearchDepth: "advanced"},
			Serper: SerperConfig{NumResults: 10},
			Brave:  BraveConfig{Count: 10},
		},
		Server: ServerConfig{
			Addr:                  ":8000",
			RequestTimeoutSeconds: 600,
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, overriding only the fields present, then
// validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}

	if cfg.Models == nil {
		cfg.Models = make(map[string]*ModelConfig)
	}
	if len(cfg.App.VerificationStatuses) == 0 {
		cfg.App.VerificationStatuses = DefaultConfig().App.VerificationStatuses
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.OutputDir == "" {
		cfg.App.OutputDir = "output"
	}

	return cfg.Validate()
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	var errs []error

	for _, key := range c.ModelKeys() {
		m := c.Models[key]
		if m == nil {
			errs = append(errs, &ConfigError{Field: "models." + key, Message: "empty model entry"})
			continue
		}
		errs = append(errs, validateModel("models."+key, m, 0)...)
	}

	if c.App.MaxRetries < 0 {
		errs = append(errs, &ConfigError{Field: "app.max_retries", Message: "must be >= 0"})
	}
	if c.App.CriticLoops < 1 {
		errs = append(errs, &ConfigError{Field: "app.critic_loops", Message: "must be >= 1"})
	}
	if c.App.MaxFactCheckIterations < 1 {
		errs = append(errs, &ConfigError{Field: "app.max_fact_check_iterations", Message: "must be >= 1"})
	}
	if c.App.MaxSupervisorIterations < 1 {
		errs = append(errs, &ConfigError{Field: "app.max_supervisor_iterations", Message: "must be >= 1"})
	}

	return errors.Join(errs...)
}

func validateModel(field string, m *ModelConfig, depth int) []error {
	var errs []error
	if strings.TrimSpace(m.Provider) == "" {
		errs = append(errs, &ConfigError{Field: field + ".provider", Message: "required"})
	}
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, &ConfigError{Field: field + ".name", Message: "required"})
	}
	if m.Fallback != nil {
		if depth > 0 {
			errs = append(errs, &ConfigError{Field: field + ".fallback", Message: "nested fallbacks are not supported"})
		} else {
			errs = append(errs, validateModel(field+".fallback", m.Fallback, depth+1)...)
		}
	}
	return errs
}

// Model returns the configuration for key.
func (c *Config) Model(key string) (*ModelConfig, error) {
	m, ok := c.Models[key]
	if !ok || m == nil {
		return nil, &ConfigError{Field: "models." + key, Message: "model configuration not found"}
	}
	return m, nil
}

// ModelKeys returns the configured model keys in sorted order.
func (c *Config) ModelKeys() []string {
	keys := make([]string, 0, len(c.Models))
	for k := range c.Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy so a request can hold a stable snapshot while the
// watcher swaps in a reloaded configuration.
func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		return c
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return c
	}
	return out
}
