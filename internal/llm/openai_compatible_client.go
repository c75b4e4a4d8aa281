package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/codefionn/castcheck/internal/consts"
)

// APIError is returned when a provider answers with a non-success status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s completion failed: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// OpenAICompatibleClient implements the Client interface for chat completions
// endpoints. It serves the OpenAI chat models and the llama API, which speaks
// the same wire format under a different base URL.
type OpenAICompatibleClient struct {
	provider   string
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAICompatibleClient constructs a client for an OpenAI-compatible API.
// baseURL must point to the API root (e.g. https://api.llama.com/compat/v1).
// If apiKey is empty, requests are sent without Authorization headers.
func NewOpenAICompatibleClient(provider, apiKey, baseURL, modelName string) (*OpenAICompatibleClient, error) {
	model := strings.TrimSpace(modelName)
	if model == "" {
		return nil, fmt.Errorf("model name is required for %s provider", provider)
	}

	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("base URL is required for %s provider", provider)
	}

	return &OpenAICompatibleClient{
		provider: provider,
		apiKey:   strings.TrimSpace(apiKey),
		model:    model,
		baseURL:  trimmedBase,
		httpClient: &http.Client{
			Timeout: consts.Timeout2Minutes,
		},
	}, nil
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *OpenAICompatibleClient) WithHTTPClient(client *http.Client) *OpenAICompatibleClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

func (c *OpenAICompatibleClient) GetModelName() string {
	return c.model
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, prompt string) (string, error) {
	return completeSimple(ctx, c, prompt)
}

func (c *OpenAICompatibleClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", c.provider, err)
	}
	return chatCompletion(&decoded), nil
}

func (c *OpenAICompatibleClient) post(ctx context.Context, req *CompletionRequest) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%s completion request cannot be nil", c.provider)
	}

	messages, err := buildChatMessages(req)
	if err != nil {
		return nil, err
	}

	payload := chatRequest{
		Model:     c.model,
		Messages:  messages,
		Tools:     req.Tools,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != 0 && !isOpenAITemperatureUnsupported(c.model) {
		temp := req.Temperature
		payload.Temperature = &temp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s failed to encode payload: %w", c.provider, err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s failed to create request: %w", c.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", c.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, consts.BufferSize64KB))
		return nil, &APIError{Provider: c.provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}
