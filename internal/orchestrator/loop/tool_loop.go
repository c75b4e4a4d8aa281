package loop

import (
	"context"
	"fmt"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
)

// RunToolLoop lets model call tools until it answers without tool calls or
// maxIterations model invocations have been made. Hitting the limit is not
// an error. Model errors abort the loop. conv is never modified.
func RunToolLoop(ctx context.Context, model ToolModel, tools []Tool, conv []*llm.Message, maxIterations int, opts Options) (*ToolLoopResult, error) {
	iteration := NewToolIteration(model, tools, conv, opts)
	state := NewDefaultState(maxIterations)
	return Run(ctx, state, DefaultStrategy{}, iteration)
}

// Run drives iteration until strategy stops it. RunToolLoop is Run with a
// DefaultState and DefaultStrategy.
func Run(ctx context.Context, state State, strategy Strategy, iteration *ToolIteration) (*ToolLoopResult, error) {
	log := logger.FromContext(ctx)
	name := iteration.model.Name()
	result := &ToolLoopResult{TerminationReason: Break}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state.Increment()
		outcome, err := iteration.Execute(ctx, state)
		result.Iterations = state.Iteration()
		if err != nil {
			return nil, fmt.Errorf("%s: iteration %d: %w", name, state.Iteration(), err)
		}

		result.ToolCalls += len(outcome.ToolCalls)
		result.FailedCalls += outcome.FailedCalls

		if strategy.ShouldContinue(state, outcome) {
			continue
		}

		if outcome.Result == Continue && state.HasReachedLimit() {
			result.HitIterationLimit = true
			result.TerminationReason = BreakMaxIterations
			log.Warn("%s: stopped after %d iterations with tool calls pending", name, result.Iterations)
		} else {
			result.TerminationReason = outcome.Result
		}
		break
	}

	result.Conversation = iteration.Conversation()
	log.Debug("%s: tool loop finished (%s) after %d iteration(s), %d tool call(s), %d failed",
		name, result.TerminationReason, result.Iterations, result.ToolCalls, result.FailedCalls)
	return result, nil
}
