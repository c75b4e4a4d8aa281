package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/progress"
)

// Node names used in progress events.
const (
	NodeAnalystA      = "model_a"
	NodeAnalystB      = "model_b"
	NodeConsolidator  = "supervisor"
	NodeSummarizer    = "summarizer"
	NodeNoteExtractor = "note_extractor"
	NodeFactChecker   = "fact_checker"
	NodeCritic        = "critic"
	NodeSupervisor    = "supervisor_agent"
)

func userTurn(content string) []*llm.Message {
	return []*llm.Message{{Role: llm.RoleUser, Content: content}}
}

// Analyze runs one of the parallel analysts. key is config.ModelAnalystA or
// config.ModelAnalystB.
func (r *Runtime) Analyze(ctx context.Context, key, transcript string) (*ParallelAnalysis, error) {
	node := NodeAnalystA
	if key == config.ModelAnalystB {
		node = NodeAnalystB
	}
	log := logger.FromContext(ctx)
	start := time.Now()
	log.Info("%s: analysis started (%d chars)", node, len(transcript))

	out, err := invokeStructured[ParallelAnalysis](ctx, r, key, userTurn(analysisPrompt(transcript)), ParallelAnalysisShape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", node, err)
	}

	log.Info("%s: analysis finished in %s (%d key points, confidence %.2f)", node, time.Since(start).Round(time.Millisecond), len(out.KeyPoints), out.Confidence)
	r.emit(ctx, progress.Event{
		Stage:   progress.StageNode,
		Node:    node,
		Message: fmt.Sprintf("Analysis complete with %d key points", len(out.KeyPoints)),
		Result:  &out,
	})
	return &out, nil
}

// Consolidate merges two analyses on model_c.
func (r *Runtime) Consolidate(ctx context.Context, transcript string, a, b *ParallelAnalysis) (*SupervisorOutput, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	out, err := invokeStructured[SupervisorOutput](ctx, r, config.ModelSupervisor, userTurn(consolidationPrompt(transcript, a, b)), SupervisorOutputShape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeConsolidator, err)
	}

	log.Info("%s: consolidation finished in %s (%d claims to verify)", NodeConsolidator, time.Since(start).Round(time.Millisecond), len(out.ClaimsToVerify))
	r.emit(ctx, progress.Event{
		Stage:   progress.StageNode,
		Node:    NodeConsolidator,
		Message: fmt.Sprintf("Consolidated analyses, %d claims to verify", len(out.ClaimsToVerify)),
		Result:  &out,
	})
	return &out, nil
}

// Summarize runs the summarizer specialist.
func (r *Runtime) Summarize(ctx context.Context, transcript string) (*SummaryOutput, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	log.Info("%s: started (%d chars)", NodeSummarizer, len(transcript))

	out, err := invokeStructured[SummaryOutput](ctx, r, config.ModelSummarizer, userTurn(summaryPrompt(transcript)), SummaryOutputShape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeSummarizer, err)
	}

	log.Info("%s: finished in %s (%d chars, %d discussions)", NodeSummarizer, time.Since(start).Round(time.Millisecond), len(out.Summary), len(out.KeyDiscussions))
	r.emit(ctx, progress.Event{
		Stage:   progress.StageNode,
		Node:    NodeSummarizer,
		Message: "Summarizing Agent completed: Core theme: " + out.CoreTheme,
		Result:  &out,
	})
	return &out, nil
}

// ExtractNotes runs the note extractor specialist.
func (r *Runtime) ExtractNotes(ctx context.Context, transcript string) (*NotesOutput, error) {
	log := logger.FromContext(ctx)
	start := time.Now()
	log.Info("%s: started (%d chars)", NodeNoteExtractor, len(transcript))

	out, err := invokeStructured[NotesOutput](ctx, r, config.ModelNoteExtractor, userTurn(notesPrompt(transcript)), NotesOutputShape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeNoteExtractor, err)
	}

	log.Info("%s: finished in %s", NodeNoteExtractor, time.Since(start).Round(time.Millisecond))
	r.emit(ctx, progress.Event{
		Stage: progress.StageNode,
		Node:  NodeNoteExtractor,
		Message: fmt.Sprintf("Note Extraction Agent completed: Extracted %d factual claims, %d quotes, %d topics",
			len(out.FactualStatements), len(out.NotableQuotes), len(out.Topics)),
		Result: &out,
	})
	return &out, nil
}
