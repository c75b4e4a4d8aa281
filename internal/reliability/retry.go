// Package reliability turns unreliable model calls into validated records:
// a validation-retry loop with corrective prompts and a primary/fallback
// failover wrapper on top of it.
package reliability

import (
	"context"
	"errors"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/structured"
)

// Invoker is a model binding reduced to what the loops need.
type Invoker interface {
	Invoke(ctx context.Context, conv []*llm.Message) (*llm.Message, error)
	Name() string
}

// InvokeWithRetry invokes the model until its reply extracts into a record
// matching shape, at most maxRetries+1 times. Validation failures append a
// corrective user turn; transport failures retry silently. Extraction
// failures are returned immediately. When the budget runs out on a
// validation failure the last parsed object goes through structured.Repair.
// conv is never modified.
func InvokeWithRetry(ctx context.Context, inv Invoker, conv []*llm.Message, shape *structured.Shape, maxRetries int) (structured.Record, error) {
	log := logger.FromContext(ctx)
	if maxRetries < 0 {
		maxRetries = 0
	}

	work := llm.CloneConversation(conv)
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := inv.Invoke(ctx, work)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, err
			}
			log.Warn("%s: attempt %d/%d failed: %v", inv.Name(), attempt+1, maxRetries+1, err)
			lastErr = err
			continue
		}
		work = append(work, msg)

		record, err := structured.Extract(ctx, msg.Content, shape)
		if err == nil {
			if attempt > 0 {
				log.Info("%s: valid response after %d attempts", inv.Name(), attempt+1)
			}
			return record, nil
		}

		var verr *structured.ValidationError
		if !errors.As(err, &verr) {
			log.Error("%s: %v", inv.Name(), err)
			return nil, err
		}

		if attempt < maxRetries {
			log.Warn("%s: validation failed on attempt %d/%d with %d error(s), retrying", inv.Name(), attempt+1, maxRetries+1, len(verr.Violations))
			work = append(work, &llm.Message{Role: llm.RoleUser, Content: structured.CorrectivePrompt(verr)})
			lastErr = verr
			continue
		}

		log.Warn("%s: validation failed after %d attempts, attempting auto-fix", inv.Name(), attempt+1)
		return structured.Repair(ctx, verr.Data, verr, shape)
	}

	return nil, lastErr
}
