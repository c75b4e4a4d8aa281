package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codefionn/castcheck/internal/config"
	"github.com/codefionn/castcheck/internal/consts"
	"github.com/codefionn/castcheck/internal/llm"
	"github.com/codefionn/castcheck/internal/logger"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/progress"
)

// Supervisor tool names.
const (
	ToolSummarize   = "summarize_podcast_tool"
	ToolExtractNote = "extract_notes_tool"
	ToolFactCheck   = "fact_check_claims_tool"
)

// SupervisorResult consolidates the specialists the supervisor ran.
type SupervisorResult struct {
	Summary        *SummaryOutput   `json:"summary"`
	Notes          *NotesOutput     `json:"notes"`
	FactCheck      *FactCheckOutput `json:"fact_check"`
	TotalToolCalls int              `json:"total_tool_calls"`
	AgentsInvoked  int              `json:"agents_invoked"`
	// FinalMessage is the supervisor's closing remark
	FinalMessage string `json:"final_message,omitempty"`
}

// specialistTool exposes a specialist to the supervisor model.
type specialistTool struct {
	name        string
	description string
	params      map[string]interface{}
	run         func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

func (t *specialistTool) Name() string                       { return t.name }
func (t *specialistTool) Description() string                { return t.description }
func (t *specialistTool) Parameters() map[string]interface{} { return t.params }
func (t *specialistTool) Invoke(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.run(ctx, args)
}

func stringParams(names map[string]string, required ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(names))
	for name, desc := range names {
		props[name] = map[string]interface{}{"type": "string", "description": desc}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// supervision holds the outputs of one supervisor run. The tool loop is
// sequential, so no locking is needed.
type supervision struct {
	rt         *Runtime
	transcript string
	summary    *SummaryOutput
	notes      *NotesOutput
	factCheck  *FactCheckResult
}

// transcriptArg prefers the transcript the model passed, unless it was cut
// down below the minimum length.
func (s *supervision) transcriptArg(args map[string]interface{}) string {
	if t, ok := args["transcript"].(string); ok && len(strings.TrimSpace(t)) >= consts.MinTranscriptLength {
		return t
	}
	return s.transcript
}

func (s *supervision) tools() []loop.Tool {
	return []loop.Tool{
		&specialistTool{
			name:        ToolSummarize,
			description: "Summarize a podcast episode: a 200-300 word summary, the core theme, key discussions and outcomes or opinions.",
			params:      stringParams(map[string]string{"transcript": "The full podcast transcript text"}, "transcript"),
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				out, err := s.rt.Summarize(ctx, s.transcriptArg(args))
				if err != nil {
					return nil, err
				}
				s.summary = out
				return out, nil
			},
		},
		&specialistTool{
			name:        ToolExtractNote,
			description: "Extract the top 5 takeaways, notable quotes with timestamps, topics for tagging and verifiable factual statements from a podcast episode.",
			params:      stringParams(map[string]string{"transcript": "The full podcast transcript text"}, "transcript"),
			run: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				out, err := s.rt.ExtractNotes(ctx, s.transcriptArg(args))
				if err != nil {
					return nil, err
				}
				s.notes = out
				return out, nil
			},
		},
		&specialistTool{
			name:        ToolFactCheck,
			description: "Verify factual statements with web search. Classifies each statement and links credible sources.",
			params: stringParams(map[string]string{
				"factual_statements_json": `JSON array of statements, each {"statement", "speaker", "context", "timestamp"}`,
				"context":                 "Summary or context that helps phrase search queries",
			}, "factual_statements_json", "context"),
			run: s.runFactCheck,
		},
	}
}

// factCheckToolResult is what the supervisor sees after a fact-check.
type factCheckToolResult struct {
	*FactCheckOutput
	ToolCallsSummary struct {
		TotalSearches int `json:"total_searches"`
	} `json:"tool_calls_summary"`
}

// runFactCheck parses the statements argument. Malformed input is reported
// back to the model as a zero-score result rather than as a tool error.
func (s *supervision) runFactCheck(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	statements, err := parseStatements(args["factual_statements_json"])
	if err != nil {
		logger.FromContext(ctx).Warn("%s: %v", ToolFactCheck, err)
		return map[string]interface{}{
			"error":               err.Error(),
			"verified_claims":     []interface{}{},
			"overall_reliability": 0.0,
			"research_quality":    0.0,
			"reasoning":           "Failed to parse input data",
		}, nil
	}

	background, _ := args["context"].(string)
	checker := &FactChecker{Runtime: s.rt, Context: background}
	res, err := checker.VerifyStatements(ctx, statements)
	if err != nil {
		return nil, err
	}
	s.factCheck = res

	out := factCheckToolResult{FactCheckOutput: res.Output}
	out.ToolCallsSummary.TotalSearches = res.ToolCalls
	return out, nil
}

// parseStatements accepts a JSON string or an already decoded array.
func parseStatements(raw interface{}) ([]FactualStatement, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case nil:
		return nil, fmt.Errorf("invalid JSON in factual_statements_json: missing argument")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid factual statement data: %w", err)
		}
		data = encoded
	}

	var statements []FactualStatement
	if err := json.Unmarshal(data, &statements); err != nil {
		return nil, fmt.Errorf("invalid JSON in factual_statements_json: %w", err)
	}
	for i, st := range statements {
		if strings.TrimSpace(st.Statement) == "" {
			return nil, fmt.Errorf("invalid factual statement data: statement %d is empty", i+1)
		}
	}
	return statements, nil
}

// Supervise lets model_c drive the specialists through tool calls. Any
// specialist the model never ran successfully is run once afterwards, so
// the result always holds all three outputs.
func (r *Runtime) Supervise(ctx context.Context, transcript string) (*SupervisorResult, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	_, model, err := r.pair(ctx, config.ModelSupervisor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeSupervisor, err)
	}

	s := &supervision{rt: r, transcript: transcript}
	conv := []*llm.Message{
		{Role: llm.RoleSystem, Content: supervisorSystemPrompt},
		{Role: llm.RoleUser, Content: supervisorUserPrompt(transcript)},
	}

	res, err := loop.RunToolLoop(ctx, model, s.tools(), conv, r.supervisorIterations(), loop.Options{
		Progress: r.Progress,
		Node:     NodeSupervisor,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", NodeSupervisor, err)
	}

	result := &SupervisorResult{TotalToolCalls: res.ToolCalls}
	if final := res.FinalMessage(); final != nil && !final.HasToolCalls() {
		result.FinalMessage = strings.TrimSpace(final.Content)
	}

	if s.summary == nil {
		log.Warn("%s: summarizer was never run, running it now", NodeSupervisor)
		if s.summary, err = r.Summarize(ctx, transcript); err != nil {
			return nil, err
		}
	}
	if s.notes == nil {
		log.Warn("%s: note extractor was never run, running it now", NodeSupervisor)
		if s.notes, err = r.ExtractNotes(ctx, transcript); err != nil {
			return nil, err
		}
	}
	if s.factCheck == nil {
		log.Warn("%s: fact checker was never run, running it now", NodeSupervisor)
		checker := &FactChecker{Runtime: r, Context: s.summary.Summary}
		if s.factCheck, err = checker.VerifyStatements(ctx, s.notes.FactualStatements); err != nil {
			return nil, err
		}
	}

	result.Summary = s.summary
	result.Notes = s.notes
	result.FactCheck = s.factCheck.Output
	result.AgentsInvoked = 3

	log.Info("%s: finished in %s with %d tool call(s) over %d iteration(s)", NodeSupervisor, time.Since(start).Round(time.Millisecond), res.ToolCalls, res.Iterations)
	r.emit(ctx, progress.Event{
		Stage:   progress.StageNode,
		Node:    NodeSupervisor,
		Message: strings.TrimSpace("All specialist agents have completed their work. " + result.FinalMessage),
		Result:  result,
	})
	return result, nil
}
