package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
)

// Stage labels reported in error events and State.Stage.
const (
	StageAnalysis      = "parallel_analysis"
	StageConsolidation = "supervisor"
	StageCritiqueLoop  = "critic_loop"
	StageSupervisor    = "supervisor_agent"
)

// StageError ties a failure to the pipeline stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// Graph is the fixed design: model_a and model_b analyze in parallel,
// model_c consolidates, then the critique loop fact-checks the claims.
type Graph struct {
	Runtime *agents.Runtime
	// CriticLoops bounds the critique rounds; zero uses the configured value
	CriticLoops int
}

func (g *Graph) criticLoops() int {
	if g.CriticLoops > 0 {
		return g.CriticLoops
	}
	if cfg := g.Runtime.Config; cfg != nil && cfg.App.CriticLoops > 0 {
		return cfg.App.CriticLoops
	}
	return consts.DefaultCriticLoops
}

// Run executes every node once and returns the merged state.
func (g *Graph) Run(ctx context.Context, initial State) (State, error) {
	state, err := g.analyze(ctx, initial)
	if err != nil {
		return state, err
	}

	consolidated, err := g.Runtime.Consolidate(ctx, state.Transcript, state.AnalysisA, state.AnalysisB)
	if err != nil {
		return state, stageErr(StageConsolidation, err)
	}
	state = Merge(state, State{
		Consolidated: consolidated,
		Stage:        "supervisor_complete",
		Messages:     []string{fmt.Sprintf("Supervisor consolidated both analyses and identified %d claims to verify", len(consolidated.ClaimsToVerify))},
	})

	return g.critique(ctx, state)
}

// analyze runs both analysts concurrently. Either failing fails the run;
// there is no partial consolidation.
func (g *Graph) analyze(ctx context.Context, state State) (State, error) {
	var a, b State
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		out, err := g.Runtime.Analyze(egCtx, config.ModelAnalystA, state.Transcript)
		if err != nil {
			return err
		}
		a = State{AnalysisA: out, Messages: []string{"Model A analysis complete"}}
		return nil
	})
	eg.Go(func() error {
		out, err := g.Runtime.Analyze(egCtx, config.ModelAnalystB, state.Transcript)
		if err != nil {
			return err
		}
		b = State{AnalysisB: out, Messages: []string{"Model B analysis complete"}}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return state, stageErr(StageAnalysis, err)
	}
	return Merge(Merge(state, a), b), nil
}

func (g *Graph) critique(ctx context.Context, state State) (State, error) {
	rt := g.Runtime
	rounds := g.criticLoops()
	claims := state.Consolidated.ClaimsToVerify
	logger.FromContext(ctx).Info("critique loop: %d claim(s), up to %d round(s)", len(claims), rounds)

	checker := &agents.FactChecker{Runtime: rt, Context: state.Consolidated.FinalSummary}
	critic := &agents.Critic{Runtime: rt}
	res, err := loop.RunCritiqueLoop[*agents.FactCheckOutput, *agents.CriticFeedback](ctx, claims, rounds, checker, critic, rt.Progress)
	if err != nil {
		return state, stageErr(StageCritiqueLoop, err)
	}

	final := res.Final()
	var notes []string
	for _, r := range res.History {
		notes = append(notes, fmt.Sprintf("Critique iteration %d: quality %.2f, sufficient: %t", r.Index+1, r.Critique.QualityScore, r.Sufficient))
	}
	if res.StopReason == loop.StopSatisfied {
		notes = append(notes, "Critic accepted the research")
	} else {
		notes = append(notes, fmt.Sprintf("Stopped after %d critique iteration(s) without critic approval", len(res.History)))
	}

	return Merge(state, State{
		FactCheck:  final.FactCheck,
		Critique:   final.Critique,
		Rounds:     res.History,
		StopReason: res.StopReason,
		Stage:      "critic_complete",
		Messages:   notes,
	}), nil
}

// Supervised is the supervisor design: model_c decides the order in which
// the specialists run.
type Supervised struct {
	Runtime *agents.Runtime
}

// Run executes the supervisor and returns the merged state.
func (s *Supervised) Run(ctx context.Context, initial State) (State, error) {
	res, err := s.Runtime.Supervise(ctx, initial.Transcript)
	if err != nil {
		return initial, stageErr(StageSupervisor, err)
	}

	return Merge(initial, State{
		Supervisor:   res,
		Consolidated: consolidate(res),
		FactCheck:    res.FactCheck,
		Stage:        "supervisor_complete",
		Messages: []string{
			fmt.Sprintf("Supervisor invoked %d agents with %d tool calls", res.AgentsInvoked, res.TotalToolCalls),
		},
	}), nil
}

// consolidate maps the specialists' outputs onto the consolidated shape the
// reports use.
func consolidate(res *agents.SupervisorResult) *agents.SupervisorOutput {
	out := &agents.SupervisorOutput{}
	if res.Summary != nil {
		out.FinalSummary = res.Summary.Summary
		out.Reasoning = res.Summary.Reasoning
	}
	if res.Notes != nil {
		out.MainTopics = res.Notes.Topics
		out.KeyTakeaways = res.Notes.TopTakeaways
		out.NotableQuotes = res.Notes.NotableQuotes
		for _, st := range res.Notes.FactualStatements {
			out.ClaimsToVerify = append(out.ClaimsToVerify, st.Statement)
		}
	}
	return out
}
