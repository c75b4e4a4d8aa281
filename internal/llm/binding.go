package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/logger"
)

var (
	// ErrUnknownProvider is returned for a provider name no client exists for.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrMissingCredential is returned when the provider's API key is unset.
	ErrMissingCredential = errors.New("missing credential")
)

// Binding is a model handle with fixed generation parameters. It holds no
// conversation state and is safe for concurrent use.
type Binding struct {
	Key         string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Client      Client
}

// Name identifies the binding in logs.
func (b *Binding) Name() string {
	return b.Provider + "/" + b.Model
}

// Invoke sends the conversation and returns the assistant turn.
func (b *Binding) Invoke(ctx context.Context, conv []*Message) (*Message, error) {
	return b.InvokeTools(ctx, conv, nil)
}

// InvokeTools sends the conversation with tool definitions in the OpenAI
// function shape and returns the assistant turn, tool calls included.
func (b *Binding) InvokeTools(ctx context.Context, conv []*Message, tools []map[string]interface{}) (*Message, error) {
	if b == nil || b.Client == nil {
		return nil, fmt.Errorf("binding has no client")
	}

	resp, err := b.Client.CompleteWithRequest(ctx, &CompletionRequest{
		Messages:    conv,
		Tools:       tools,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Debug("%s returned %d chars, %d tool calls (stop=%s)", b.Name(), len(resp.Content), len(resp.ToolCalls), resp.StopReason)

	return &Message{
		Role:      RoleAssistant,
		Content:   resp.Content,
		ToolCalls: NormalizeToolCallIDs(resp.ToolCalls),
	}, nil
}

// Factory builds bindings from configuration. HTTPClient, when set, is used
// by every provider client.
type Factory struct {
	Credentials config.Credentials
	HTTPClient  *http.Client
}

// NewBindings returns the primary binding for key and its fallback, which
// is nil when none is configured.
func (f *Factory) NewBindings(ctx context.Context, cfg *config.Config, key string) (primary, fallback *Binding, err error) {
	mc, err := cfg.Model(key)
	if err != nil {
		return nil, nil, err
	}

	primary, err = f.NewBinding(ctx, key, mc)
	if err != nil {
		return nil, nil, err
	}

	if mc.Fallback != nil {
		fallback, err = f.NewBinding(ctx, key+".fallback", mc.Fallback)
		if err != nil {
			return nil, nil, err
		}
	}
	return primary, fallback, nil
}

// NewBinding builds one binding. Rate limits from the model config wrap the
// provider client.
func (f *Factory) NewBinding(ctx context.Context, key string, mc *config.ModelConfig) (*Binding, error) {
	provider := strings.ToLower(strings.TrimSpace(mc.Provider))

	apiKey, envVar, ok := f.Credentials.ProviderKey(provider)
	if !ok {
		return nil, fmt.Errorf("models.%s: %w %q", key, ErrUnknownProvider, mc.Provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("models.%s: %w: %s is not set", key, ErrMissingCredential, envVar)
	}

	client, err := f.newClient(ctx, provider, apiKey, mc)
	if err != nil {
		return nil, fmt.Errorf("models.%s: %w", key, err)
	}
	client = NewRateLimitedClient(client, key, mc.RateLimit)

	return &Binding{
		Key:         key,
		Provider:    provider,
		Model:       mc.Name,
		Temperature: mc.EffectiveTemperature(),
		MaxTokens:   mc.EffectiveMaxTokens(),
		Client:      client,
	}, nil
}

func (f *Factory) newClient(ctx context.Context, provider, apiKey string, mc *config.ModelConfig) (Client, error) {
	switch provider {
	case "anthropic":
		var opts []anthropicopt.RequestOption
		if mc.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(mc.BaseURL))
		}
		if f.HTTPClient != nil {
			opts = append(opts, anthropicopt.WithHTTPClient(f.HTTPClient))
		}
		return NewAnthropicClient(apiKey, mc.Name, opts...)
	case "llama":
		baseURL := mc.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultLlamaBaseURL
		}
		c, err := NewOpenAICompatibleClient("llama", apiKey, baseURL, mc.Name)
		if err != nil {
			return nil, err
		}
		return c.WithHTTPClient(f.HTTPClient), nil
	case "openai":
		if mc.BaseURL != "" {
			c, err := NewOpenAICompatibleClient("openai", apiKey, mc.BaseURL, mc.Name)
			if err != nil {
				return nil, err
			}
			return c.WithHTTPClient(f.HTTPClient), nil
		}
		var opts []openaiopt.RequestOption
		if f.HTTPClient != nil {
			opts = append(opts, openaiopt.WithHTTPClient(f.HTTPClient))
		}
		c, err := NewOpenAIClient(apiKey, mc.Name, opts...)
		if err != nil {
			return nil, err
		}
		if c.chat != nil {
			c.chat.WithHTTPClient(f.HTTPClient)
		}
		return c, nil
	case "google", "gemini":
		return NewGoogleAIClient(ctx, apiKey, mc.Name)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, provider)
	}
}
