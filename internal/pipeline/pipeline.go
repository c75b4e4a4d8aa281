package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/progress"
)

// Mode selects the orchestration design.
type Mode string

const (
	ModeGraph      Mode = "graph"
	ModeSupervisor Mode = "supervisor"
)

// ParseMode accepts "graph" and "supervisor"; empty means graph.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeGraph:
		return ModeGraph, nil
	case ModeSupervisor:
		return ModeSupervisor, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want graph or supervisor)", s)
	}
}

// Request is one analysis.
type Request struct {
	Transcript string
	Metadata   map[string]string
	Mode       Mode
	// CriticLoops overrides the configured critique rounds when positive
	CriticLoops int
	// Debug adds a trace to error events
	Debug bool
}

// FinalOutput is the consolidated result of a run.
type FinalOutput struct {
	Mode                 Mode                     `json:"mode"`
	Summary              *agents.SupervisorOutput `json:"summary"`
	FactCheck            *agents.FactCheckOutput  `json:"fact_check"`
	ConfidenceInAnalysis float64                  `json:"confidence_in_analysis"`
	CriticIterations     int                      `json:"critic_iterations"`
	StopReason           loop.StopReason          `json:"stop_reason,omitempty"`
	ProcessingNotes      string                   `json:"processing_notes"`
	Metadata             map[string]string        `json:"metadata,omitempty"`

	AnalysisA  *agents.ParallelAnalysis `json:"model_a,omitempty"`
	AnalysisB  *agents.ParallelAnalysis `json:"model_b,omitempty"`
	Rounds     []agents.Round           `json:"fact_check_iterations,omitempty"`
	Supervisor *agents.SupervisorResult `json:"supervisor,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// NewFinalOutput assembles the result from a finished state.
func NewFinalOutput(mode Mode, s State) *FinalOutput {
	out := &FinalOutput{
		Mode:             mode,
		Summary:          s.Consolidated,
		FactCheck:        s.FactCheck,
		CriticIterations: len(s.Rounds),
		StopReason:       s.StopReason,
		ProcessingNotes:  strings.Join(s.Messages, "; "),
		Metadata:         s.Metadata,
		AnalysisA:        s.AnalysisA,
		AnalysisB:        s.AnalysisB,
		Rounds:           s.Rounds,
		Supervisor:       s.Supervisor,
		GeneratedAt:      time.Now(),
	}
	if s.FactCheck != nil {
		out.ConfidenceInAnalysis = s.FactCheck.OverallReliability
	}
	return out
}

// Runner drives requests end to end and reports progress through the
// runtime's callback.
type Runner struct {
	Runtime *agents.Runtime
}

// Run analyzes req. Failures are reported as an error event labelled with
// the failing stage and returned.
func (r *Runner) Run(ctx context.Context, req Request) (*FinalOutput, error) {
	if logger.RunID(ctx) == "" {
		ctx = logger.WithRun(ctx, "")
	}
	log := logger.FromContext(ctx)
	start := time.Now()

	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}

	emit := func(ev progress.Event) { progress.Dispatch(ctx, r.Runtime.Progress, ev) }
	emit(progress.Event{Stage: progress.StageStarted, Message: "Analysis started"})
	log.Info("analysis started (mode=%s, %d chars)", mode, len(req.Transcript))

	initial := State{Transcript: req.Transcript, Metadata: req.Metadata, Stage: "initialized"}
	var state State
	switch mode {
	case ModeSupervisor:
		state, err = (&Supervised{Runtime: r.Runtime}).Run(ctx, initial)
	default:
		state, err = (&Graph{Runtime: r.Runtime, CriticLoops: req.CriticLoops}).Run(ctx, initial)
	}

	if err != nil {
		stage := "pipeline"
		var serr *StageError
		if errors.As(err, &serr) {
			stage = serr.Stage
		}
		log.Error("analysis failed in %s after %s: %v", stage, time.Since(start).Round(time.Millisecond), err)
		ev := progress.Event{Stage: progress.StageError, Node: stage, Message: err.Error()}
		if req.Debug {
			ev.Traceback = trace(err)
		}
		emit(ev)
		return nil, err
	}

	out := NewFinalOutput(mode, state)
	log.Info("analysis complete in %s (confidence %.2f, %d critique round(s))", time.Since(start).Round(time.Millisecond), out.ConfidenceInAnalysis, out.CriticIterations)
	emit(progress.Event{Stage: progress.StageComplete, Message: "Analysis complete", Result: out})
	return out, nil
}

// trace lists the wrapped error chain followed by the current stack.
func trace(err error) string {
	var b strings.Builder
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(&b, "%T: %v\n", e, e)
	}
	b.Write(debug.Stack())
	return b.String()
}
