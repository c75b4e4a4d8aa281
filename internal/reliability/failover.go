package reliability

import (
	"context"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/structured"
)

// Pair is a primary binding with an optional fallback.
type Pair struct {
	Primary  Invoker
	Fallback Invoker
}

// NewPair wraps llm bindings. A nil fallback stays a nil interface.
func NewPair(primary, fallback *llm.Binding) Pair {
	p := Pair{Primary: primary}
	if fallback != nil {
		p.Fallback = fallback
	}
	return p
}

// InvokeWithFailover runs InvokeWithRetry on the primary and, on any error,
// on the fallback with a fresh copy of conv. Without a fallback the primary
// error is returned unchanged; otherwise the fallback's outcome is. A
// cancelled context never fails over.
func InvokeWithFailover(ctx context.Context, pair Pair, conv []*llm.Message, shape *structured.Shape, maxRetries int) (structured.Record, error) {
	record, err := InvokeWithRetry(ctx, pair.Primary, conv, shape, maxRetries)
	if err == nil {
		return record, nil
	}
	if pair.Fallback == nil || ctx.Err() != nil {
		return nil, err
	}

	logger.FromContext(ctx).Warn("primary model %s failed: %v, falling back to %s", pair.Primary.Name(), err, pair.Fallback.Name())
	return InvokeWithRetry(ctx, pair.Fallback, llm.CloneConversation(conv), shape, maxRetries)
}

// Invoke runs InvokeWithFailover and decodes the record into T.
func Invoke[T any](ctx context.Context, pair Pair, conv []*llm.Message, shape *structured.Shape, maxRetries int) (T, error) {
	var out T
	record, err := InvokeWithFailover(ctx, pair, conv, shape, maxRetries)
	if err != nil {
		return out, err
	}
	if err := structured.Decode(record, &out); err != nil {
		return out, err
	}
	return out, nil
}
