package loop

import (
	"context"

	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/progress"
)

// State tracks iteration counters for a single loop run.
type State interface {
	// Iteration returns the number of iterations started so far
	Iteration() int

	// Increment advances the iteration counter and returns the new count
	Increment() int

	// MaxIterations returns the maximum number of iterations allowed
	MaxIterations() int

	// HasReachedLimit returns true if the maximum iteration limit has been reached
	HasReachedLimit() bool
}

// IterationResult represents the outcome of a single loop iteration
type IterationResult int

const (
	// Continue indicates the loop should continue to the next iteration
	Continue IterationResult = iota

	// Break indicates the loop should stop normally
	Break

	// BreakMaxIterations indicates the loop stopped due to hitting the iteration limit
	BreakMaxIterations

	// Error indicates an error occurred during iteration
	Error
)

// String returns a human-readable description of the iteration result
func (r IterationResult) String() string {
	switch r {
	case Continue:
		return "continue"
	case Break:
		return "break"
	case BreakMaxIterations:
		return "break_max_iterations"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Iteration executes a single iteration of a loop.
type Iteration interface {
	// Execute runs a single iteration of the loop.
	// Returns the result and any error that occurred.
	Execute(ctx context.Context, state State) (*IterationOutcome, error)
}

// IterationOutcome contains the detailed results of a single iteration
type IterationOutcome struct {
	// Result indicates the overall outcome type
	Result IterationResult

	// Message is the assistant turn produced by the model
	Message *llm.Message

	// ToolCalls contains the tool calls requested by the assistant
	ToolCalls []llm.ToolCall

	// FailedCalls counts calls that hit an unknown tool or returned an error
	FailedCalls int

	// Error contains any error that occurred (if Result is Error)
	Error error
}

// Strategy determines when the loop should continue or terminate.
type Strategy interface {
	// ShouldContinue determines if the loop should continue after an iteration.
	ShouldContinue(state State, outcome *IterationOutcome) bool
}

// Tool is a function the model may call.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the arguments object
	Parameters() map[string]interface{}
	Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ToolModel is a model binding that accepts tool definitions.
type ToolModel interface {
	InvokeTools(ctx context.Context, conv []*llm.Message, tools []map[string]interface{}) (*llm.Message, error)
	Name() string
}

// ResultFilter post-processes a successful tool result before it is encoded
// into the conversation.
type ResultFilter func(ctx context.Context, toolName string, result interface{}) interface{}

// Options configure RunToolLoop.
type Options struct {
	// ResultFilter is applied to every successful tool result (optional)
	ResultFilter ResultFilter

	// Progress receives tool_started and tool_completed events (optional)
	Progress progress.Callback

	// Node labels progress events
	Node string
}

// ToolLoopResult is the outcome of RunToolLoop.
type ToolLoopResult struct {
	// Conversation is the input conversation plus every turn the loop added
	Conversation []*llm.Message

	// Iterations is the number of model invocations
	Iterations int

	// ToolCalls is the number of tool calls handled
	ToolCalls int

	// FailedCalls is the number of tool calls that produced an error turn
	FailedCalls int

	// HitIterationLimit is true if the model still requested tools on the last iteration
	HitIterationLimit bool

	// TerminationReason is Break or BreakMaxIterations. A custom Strategy
	// that stops early leaves the last outcome, usually Continue.
	TerminationReason IterationResult
}

// FinalMessage returns the last assistant turn, or nil.
func (r *ToolLoopResult) FinalMessage() *llm.Message {
	for i := len(r.Conversation) - 1; i >= 0; i-- {
		if r.Conversation[i].Role == llm.RoleAssistant {
			return r.Conversation[i]
		}
	}
	return nil
}
