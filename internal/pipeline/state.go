// Package pipeline drives a full transcript analysis, either as a fixed
// graph of specialists or through the supervisor agent.
package pipeline

import (
	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
)

// State accumulates the outputs of one run. Nodes return partial states
// which are combined with Merge; a State is never updated in place.
type State struct {
	Transcript string
	Metadata   map[string]string
	Stage      string

	AnalysisA    *agents.ParallelAnalysis
	AnalysisB    *agents.ParallelAnalysis
	Consolidated *agents.SupervisorOutput
	FactCheck    *agents.FactCheckOutput
	Critique     *agents.CriticFeedback
	Supervisor   *agents.SupervisorResult
	StopReason   loop.StopReason

	Rounds   []agents.Round
	Messages []string
}

// Merge combines two states. Lists concatenate, everything else takes the
// right value unless it is empty. Neither argument is modified.
func Merge(left, right State) State {
	return State{
		Transcript:   pick(right.Transcript, left.Transcript),
		Metadata:     mergeMetadata(left.Metadata, right.Metadata),
		Stage:        pick(right.Stage, left.Stage),
		AnalysisA:    pickPtr(right.AnalysisA, left.AnalysisA),
		AnalysisB:    pickPtr(right.AnalysisB, left.AnalysisB),
		Consolidated: pickPtr(right.Consolidated, left.Consolidated),
		FactCheck:    pickPtr(right.FactCheck, left.FactCheck),
		Critique:     pickPtr(right.Critique, left.Critique),
		Supervisor:   pickPtr(right.Supervisor, left.Supervisor),
		StopReason:   pick(right.StopReason, left.StopReason),
		Rounds:       concat(left.Rounds, right.Rounds),
		Messages:     concat(left.Messages, right.Messages),
	}
}

func pick[T comparable](right, left T) T {
	var zero T
	if right != zero {
		return right
	}
	return left
}

func pickPtr[T any](right, left *T) *T {
	if right != nil {
		return right
	}
	return left
}

func concat[T any](left, right []T) []T {
	if len(left)+len(right) == 0 {
		return nil
	}
	out := make([]T, 0, len(left)+len(right))
	out = append(out, left...)
	return append(out, right...)
}

func mergeMetadata(left, right map[string]string) map[string]string {
	if len(left)+len(right) == 0 {
		return nil
	}
	out := make(map[string]string, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
