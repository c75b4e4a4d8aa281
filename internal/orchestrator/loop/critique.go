package loop

import (
	"context"
	"fmt"
	"time"

	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/progress"
)

// StopReason explains why the critique loop ended.
type StopReason string

const (
	// StopSatisfied means the critic judged the research sufficient
	StopSatisfied StopReason = "satisfied"
	// StopExhausted means the round budget ran out first
	StopExhausted StopReason = "exhausted"
)

// IterationRecord is one fact-check/critique round. StopReason is only set
// on the final round.
type IterationRecord[F, C any] struct {
	Index      int        `json:"iteration"`
	FactCheck  F          `json:"fact_check"`
	Critique   C          `json:"critique"`
	Sufficient bool       `json:"sufficient"`
	Timestamp  time.Time  `json:"timestamp"`
	StopReason StopReason `json:"stop_reason,omitempty"`
}

// FactChecker verifies claims. From the second round on, previous holds the
// last round so the checker can address the critique.
type FactChecker[F, C any] interface {
	FactCheck(ctx context.Context, claims []string, previous *IterationRecord[F, C]) (F, error)
}

// Critic reviews a fact-check and reports whether the research is sufficient.
type Critic[F, C any] interface {
	Critique(ctx context.Context, claims []string, factCheck F) (critique C, sufficient bool, err error)
}

// CritiqueResult is the outcome of RunCritiqueLoop.
type CritiqueResult[F, C any] struct {
	History    []IterationRecord[F, C]
	StopReason StopReason
}

// Final returns the last round.
func (r *CritiqueResult[F, C]) Final() IterationRecord[F, C] {
	return r.History[len(r.History)-1]
}

// RunCritiqueLoop alternates fact-checking and critique until the critic is
// satisfied or maxIterations rounds ran. maxIterations below one runs one
// round. onRound receives an iteration event per round (optional).
func RunCritiqueLoop[F, C any](ctx context.Context, claims []string, maxIterations int, checker FactChecker[F, C], critic Critic[F, C], onRound progress.Callback) (*CritiqueResult[F, C], error) {
	if maxIterations < 1 {
		maxIterations = 1
	}
	log := logger.FromContext(ctx)
	result := &CritiqueResult[F, C]{StopReason: StopExhausted}

	for iteration := 0; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var previous *IterationRecord[F, C]
		if len(result.History) > 0 {
			previous = &result.History[len(result.History)-1]
		}

		factCheck, err := checker.FactCheck(ctx, claims, previous)
		if err != nil {
			return nil, fmt.Errorf("critique round %d: fact check: %w", iteration+1, err)
		}
		critique, sufficient, err := critic.Critique(ctx, claims, factCheck)
		if err != nil {
			return nil, fmt.Errorf("critique round %d: critique: %w", iteration+1, err)
		}

		record := IterationRecord[F, C]{
			Index:      iteration,
			FactCheck:  factCheck,
			Critique:   critique,
			Sufficient: sufficient,
			Timestamp:  time.Now(),
		}

		shouldContinue := !sufficient && iteration < maxIterations-1
		iteration++

		if !shouldContinue {
			record.StopReason = StopExhausted
			if sufficient {
				record.StopReason = StopSatisfied
			}
			result.StopReason = record.StopReason
		}
		result.History = append(result.History, record)

		log.Info("critique round %d/%d: sufficient=%t", iteration, maxIterations, sufficient)
		progress.Dispatch(ctx, onRound, progress.Event{
			Stage:   progress.StageIteration,
			Node:    "critic_loop",
			Message: fmt.Sprintf("Critique iteration %d/%d complete (sufficient: %t)", iteration, maxIterations, sufficient),
			Result:  record,
		})

		if !shouldContinue {
			return result, nil
		}
	}
}
