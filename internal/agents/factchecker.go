package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/progress"
)

// Round is one fact-check/critique round of the critique loop.
type Round = loop.IterationRecord[*FactCheckOutput, *CriticFeedback]

// FactChecker verifies claims on model_d with the search tools. It
// implements loop.FactChecker.
type FactChecker struct {
	Runtime *Runtime
	// Context is the summary that helps the checker phrase queries
	Context string
}

// FactCheckResult is a fact-check plus research statistics.
type FactCheckResult struct {
	Output     *FactCheckOutput
	ToolCalls  int
	Iterations int
}

// FactCheck verifies claims. previous seeds the prompt with the last round's
// result and critique.
func (f *FactChecker) FactCheck(ctx context.Context, claims []string, previous *Round) (*FactCheckOutput, error) {
	if len(claims) == 0 {
		return emptyFactCheck(), nil
	}
	res, err := f.check(ctx, numbered(claims), previous)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// VerifyStatements verifies statements produced by the note extractor.
func (f *FactChecker) VerifyStatements(ctx context.Context, statements []FactualStatement) (*FactCheckResult, error) {
	if len(statements) == 0 {
		return &FactCheckResult{Output: emptyFactCheck()}, nil
	}
	return f.check(ctx, formatStatements(statements), nil)
}

func (f *FactChecker) check(ctx context.Context, claims string, previous *Round) (*FactCheckResult, error) {
	r := f.Runtime
	log := logger.FromContext(ctx)
	start := time.Now()
	statuses := r.statuses()
	tools := toolDescriptions(r.Tools)

	prompt := factCheckPrompt(claims, f.Context, tools, statuses)
	if previous != nil && previous.FactCheck != nil && previous.Critique != nil {
		prompt = improvedFactCheckPrompt(claims, f.Context, tools, statuses, previous.FactCheck, previous.Critique)
	}

	res, err := runToolStage[FactCheckOutput](ctx, r, toolStage{
		node:          NodeFactChecker,
		key:           config.ModelFactChecker,
		shape:         FactCheckShape(statuses),
		tools:         r.Tools,
		maxIterations: r.factCheckIterations(),
		invalidPrompt: invalidFactCheckPrompt,
	}, userTurn(prompt))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeFactChecker, err)
	}

	out := &res.Output
	counts := formatCounts(out.StatusCounts())
	log.Info("%s: verified %d claims in %s with %d tool call(s): %s", NodeFactChecker, len(out.VerifiedClaims), time.Since(start).Round(time.Millisecond), res.ToolCalls, counts)
	r.emit(ctx, progress.Event{
		Stage:   progress.StageNode,
		Node:    NodeFactChecker,
		Message: fmt.Sprintf("Fact Checking Agent completed: Verified %d claims: %s", len(out.VerifiedClaims), counts),
		Result:  out,
	})
	return &FactCheckResult{Output: out, ToolCalls: res.ToolCalls, Iterations: res.Iterations}, nil
}

func emptyFactCheck() *FactCheckOutput {
	return &FactCheckOutput{
		VerifiedClaims: []VerifiedClaim{},
		Reasoning:      "No factual statements were provided for verification.",
	}
}

// formatCounts renders status counts in a stable order.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

// Critic reviews fact-checks on model_e. It implements loop.Critic.
type Critic struct {
	Runtime *Runtime
}

// Critique reviews factCheck and reports whether the research is sufficient.
func (c *Critic) Critique(ctx context.Context, claims []string, factCheck *FactCheckOutput) (*CriticFeedback, bool, error) {
	r := c.Runtime
	var tools []loop.Tool
	if r.CriticTools {
		tools = r.Tools
	}

	res, err := runToolStage[CriticFeedback](ctx, r, toolStage{
		node:          NodeCritic,
		key:           config.ModelCritic,
		shape:         CriticFeedbackShape,
		tools:         tools,
		maxIterations: r.factCheckIterations(),
		invalidPrompt: invalidCritiquePrompt,
	}, userTurn(critiquePrompt(numbered(claims), factCheck, toolDescriptionsIf(tools))))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", NodeCritic, err)
	}

	out := &res.Output
	logger.FromContext(ctx).Info("%s: quality %.2f, sufficient=%t, %d missing verification(s)", NodeCritic, out.QualityScore, out.ResearchIsSufficient, len(out.MissingVerifications))
	r.emit(ctx, progress.Event{
		Stage:   progress.StageNode,
		Node:    NodeCritic,
		Message: fmt.Sprintf("Critic review complete (quality %.2f, sufficient: %t)", out.QualityScore, out.ResearchIsSufficient),
		Result:  out,
	})
	return out, out.ResearchIsSufficient, nil
}

func toolDescriptionsIf(tools []loop.Tool) string {
	if len(tools) == 0 {
		return ""
	}
	return toolDescriptions(tools)
}
