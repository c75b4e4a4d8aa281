package llm

import (
	"context"
	"sync"
	"time"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/logger"
)

const (
	defaultResponseTokenEstimate = 512
	minTokenEstimate             = 8
)

// rateLimitedClient throttles the calls of one model binding. Every call
// books a start slot that honors both the request spacing and the
// tokens-per-minute budget, then waits for it.
type rateLimitedClient struct {
	delegate     Client
	key          string
	interval     time.Duration
	tokensPerMin int

	mu          sync.Mutex
	nextRequest time.Time
	nextToken   time.Time
}

// NewRateLimitedClient wraps base with the rate limit of the model binding
// key. With both limits disabled the base client is returned unchanged.
func NewRateLimitedClient(base Client, key string, limit config.RateLimitConfig) Client {
	if base == nil {
		return base
	}
	if limit.IntervalMillis <= 0 && limit.TokensPerMinute <= 0 {
		return base
	}
	return &rateLimitedClient{
		delegate:     base,
		key:          key,
		interval:     limit.Interval(),
		tokensPerMin: max(limit.TokensPerMinute, 0),
	}
}

// reserve books the slot for a call costing tokens and returns its start.
func (c *rateLimitedClient) reserve(now time.Time, tokens int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := now
	if c.nextRequest.After(start) {
		start = c.nextRequest
	}
	if c.nextToken.After(start) {
		start = c.nextToken
	}

	if c.interval > 0 {
		c.nextRequest = start.Add(c.interval)
	}
	c.nextToken = start.Add(tokensToDuration(tokens, c.tokensPerMin))
	return start
}

func (c *rateLimitedClient) wait(ctx context.Context, tokens int) error {
	delay := time.Until(c.reserve(time.Now(), tokens))
	if delay <= 0 {
		return nil
	}
	logger.FromContext(ctx).Debug("%s: rate limit holds %s call for %s (~%d tokens)",
		c.key, c.delegate.GetModelName(), delay.Round(time.Millisecond), tokens)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *rateLimitedClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx, estimateTokensForPrompt(prompt)); err != nil {
		return "", err
	}
	return c.delegate.Complete(ctx, prompt)
}

func (c *rateLimitedClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	tokens := estimateTokensForRequest(req)
	if err := c.wait(ctx, tokens); err != nil {
		return nil, err
	}
	return c.delegate.CompleteWithRequest(ctx, req)
}

func (c *rateLimitedClient) GetModelName() string {
	return c.delegate.GetModelName()
}

func estimateTokensForPrompt(prompt string) int {
	estimated := EstimateTokenCount(prompt)
	if estimated < minTokenEstimate {
		estimated = minTokenEstimate
	}
	return estimated + defaultResponseTokenEstimate
}

// estimateTokensForRequest charges the prompt plus the requested output
// budget against the per-minute allowance.
func estimateTokensForRequest(req *CompletionRequest) int {
	if req == nil {
		return defaultResponseTokenEstimate
	}

	tokens := EstimateConversationTokens(req.Messages) + EstimateTokenCount(req.SystemPrompt)
	if tokens < minTokenEstimate {
		tokens = minTokenEstimate
	}

	if req.MaxTokens > 0 {
		tokens += req.MaxTokens
	} else {
		tokens += defaultResponseTokenEstimate
	}
	return tokens
}

func tokensToDuration(tokens, tokensPerMinute int) time.Duration {
	if tokensPerMinute <= 0 || tokens <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) * float64(tokens) / float64(tokensPerMinute))
}
