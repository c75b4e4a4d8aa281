package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/castcheck/internal/config"
)

func TestFactoryNewBindingsWithFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	factory := &Factory{Credentials: config.Credentials{Anthropic: "a", Llama: "l"}}

	primary, fallback, err := factory.NewBindings(context.Background(), cfg, config.ModelAnalystB)
	require.NoError(t, err)
	require.NotNil(t, primary)
	require.NotNil(t, fallback)

	assert.Equal(t, "llama", primary.Provider)
	assert.Equal(t, "anthropic", fallback.Provider)
	assert.Equal(t, config.ModelAnalystB+".fallback", fallback.Key)
	assert.InDelta(t, 0.3, primary.Temperature, 1e-9)
	assert.Equal(t, 2000, primary.MaxTokens)

	_, none, err := factory.NewBindings(context.Background(), cfg, config.ModelAnalystA)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFactoryErrors(t *testing.T) {
	factory := &Factory{Credentials: config.Credentials{Anthropic: "a"}}

	_, err := factory.NewBinding(context.Background(), "model_x", &config.ModelConfig{Provider: "mystery", Name: "m"})
	assert.True(t, errors.Is(err, ErrUnknownProvider), "got %v", err)

	_, err = factory.NewBinding(context.Background(), "model_b", &config.ModelConfig{Provider: "llama", Name: "m"})
	assert.True(t, errors.Is(err, ErrMissingCredential), "got %v", err)
	assert.Contains(t, err.Error(), config.EnvLlamaKey)

	_, _, err = factory.NewBindings(context.Background(), config.DefaultConfig(), "missing")
	var cfgErr *config.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestBindingInvokeToolsPassesParameters(t *testing.T) {
	var captured chatRequest
	factory := &Factory{
		Credentials: config.Credentials{Llama: "l"},
		HTTPClient: newTestHTTPClient(func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(body, &captured))
			return newTestHTTPResponse(req, http.StatusOK, "application/json",
				`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`), nil
		}),
	}

	temp := 0.7
	binding, err := factory.NewBinding(context.Background(), "critic", &config.ModelConfig{
		Provider:    "llama",
		Name:        "Llama-4",
		BaseURL:     "https://llama.test/v1",
		Temperature: &temp,
		MaxTokens:   321,
	})
	require.NoError(t, err)
	assert.Equal(t, "llama/Llama-4", binding.Name())

	tools := []map[string]interface{}{{
		"type":     "function",
		"function": map[string]interface{}{"name": "tavily_search", "parameters": map[string]interface{}{"type": "object"}},
	}}
	msg, err := binding.InvokeTools(context.Background(), []*Message{{Role: RoleUser, Content: "hi"}}, tools)
	require.NoError(t, err)

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, `{"ok":true}`, msg.Content)
	assert.False(t, msg.HasToolCalls())
	assert.Equal(t, 321, captured.MaxTokens)
	require.NotNil(t, captured.Temperature)
	assert.InDelta(t, 0.7, *captured.Temperature, 1e-9)
	require.Len(t, captured.Tools, 1)
}

func TestBindingInvokeWithoutClient(t *testing.T) {
	_, err := (&Binding{}).Invoke(context.Background(), nil)
	assert.Error(t, err)
}
