// Package report writes analysis results as JSON and Markdown files and
// renders them for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/pipeline"
)

const timestampLayout = "20060102_150405"

// BaseName returns the default file name stem for a report generated at t.
func BaseName(t time.Time) string {
	return "analysis_" + t.Format(timestampLayout)
}

// Claim is one row of the fact-check table.
type Claim struct {
	Claim      string  `json:"claim"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// Document is the JSON report.
type Document struct {
	Metadata        DocumentMetadata `json:"metadata"`
	Summary         SummarySection   `json:"summary"`
	FactCheck       FactCheckSection `json:"fact_check"`
	ProcessingNotes string           `json:"processing_notes"`
	ProcessDetails  *ProcessDetails  `json:"process_details,omitempty"`
}

// DocumentMetadata describes the run.
type DocumentMetadata struct {
	GeneratedAt          time.Time         `json:"generated_at"`
	Mode                 pipeline.Mode     `json:"mode"`
	CriticIterations     int               `json:"critic_iterations"`
	ConfidenceInAnalysis float64           `json:"confidence_in_analysis"`
	Podcast              map[string]string `json:"podcast,omitempty"`
}

// SummarySection holds the consolidated analysis.
type SummarySection struct {
	MainTopics       []string       `json:"main_topics"`
	KeyTakeaways     []string       `json:"key_takeaways"`
	FinalSummary     string         `json:"final_summary"`
	NotableQuotes    []agents.Quote `json:"notable_quotes"`
	ClaimsIdentified []string       `json:"claims_identified"`
}

// FactCheckSection holds the final fact-check.
type FactCheckSection struct {
	OverallReliability float64 `json:"overall_reliability"`
	ResearchQuality    float64 `json:"research_quality"`
	VerifiedClaims     []Claim `json:"verified_claims"`
}

// ProcessDetails records the intermediate outputs.
type ProcessDetails struct {
	ModelA               *agents.ParallelAnalysis `json:"model_a_analysis"`
	ModelB               *agents.ParallelAnalysis `json:"model_b_analysis"`
	Consolidation        *ConsolidationDetails    `json:"supervisor_consolidation"`
	FactCheckIterations  []IterationDetails       `json:"fact_check_iterations"`
	SupervisorToolCalls  int                      `json:"supervisor_tool_calls,omitempty"`
	SupervisorAgentsUsed int                      `json:"supervisor_agents_invoked,omitempty"`
}

// ConsolidationDetails is the consolidator's reasoning.
type ConsolidationDetails struct {
	Reasoning      string   `json:"reasoning"`
	ClaimsToVerify []string `json:"claims_to_verify"`
}

// IterationDetails is one critique round.
type IterationDetails struct {
	Iteration int           `json:"iteration_number"`
	Timestamp time.Time     `json:"timestamp"`
	FactCheck IterationFact `json:"fact_check_result"`
	Critic    IterationCrit `json:"critic_feedback"`
}

// IterationFact summarizes a round's fact-check.
type IterationFact struct {
	OverallReliability float64 `json:"overall_reliability"`
	ResearchQuality    float64 `json:"research_quality"`
	VerifiedClaims     []Claim `json:"verified_claims"`
	Reasoning          string  `json:"reasoning"`
}

// IterationCrit summarizes a round's critique.
type IterationCrit struct {
	QualityScore          float64  `json:"quality_score"`
	ResearchIsSufficient  bool     `json:"research_is_sufficient"`
	MissingVerifications  []string `json:"missing_verifications"`
	SuggestedImprovements []string `json:"suggested_improvements"`
	Reasoning             string   `json:"reasoning"`
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// claims flattens verified claims into table rows. Evidence is the list of
// source URLs, or "N/A".
func claims(fc *agents.FactCheckOutput) []Claim {
	if fc == nil {
		return []Claim{}
	}
	rows := make([]Claim, 0, len(fc.VerifiedClaims))
	for _, c := range fc.VerifiedClaims {
		urls := make([]string, 0, len(c.Sources))
		for _, s := range c.Sources {
			if s.URL != "" {
				urls = append(urls, s.URL)
			}
		}
		evidence := strings.Join(urls, ", ")
		if evidence == "" {
			evidence = "N/A"
		}
		rows = append(rows, Claim{
			Claim:      c.Claim,
			Status:     c.VerificationStatus,
			Confidence: round3(c.Confidence),
			Evidence:   evidence,
		})
	}
	return rows
}

// Build converts a final output into the JSON document. includeProcess adds
// the intermediate outputs.
func Build(out *pipeline.FinalOutput, includeProcess bool) *Document {
	doc := &Document{
		Metadata: DocumentMetadata{
			GeneratedAt:          out.GeneratedAt,
			Mode:                 out.Mode,
			CriticIterations:     out.CriticIterations,
			ConfidenceInAnalysis: round3(out.ConfidenceInAnalysis),
			Podcast:              out.Metadata,
		},
		Summary: SummarySection{
			MainTopics:       []string{},
			KeyTakeaways:     []string{},
			NotableQuotes:    []agents.Quote{},
			ClaimsIdentified: []string{},
		},
		FactCheck:       FactCheckSection{VerifiedClaims: claims(out.FactCheck)},
		ProcessingNotes: out.ProcessingNotes,
	}

	if s := out.Summary; s != nil {
		doc.Summary = SummarySection{
			MainTopics:       nonNil(s.MainTopics),
			KeyTakeaways:     nonNil(s.KeyTakeaways),
			FinalSummary:     s.FinalSummary,
			NotableQuotes:    nonNil(s.NotableQuotes),
			ClaimsIdentified: nonNil(s.ClaimsToVerify),
		}
	}
	if fc := out.FactCheck; fc != nil {
		doc.FactCheck.OverallReliability = round3(fc.OverallReliability)
		doc.FactCheck.ResearchQuality = round3(fc.ResearchQuality)
	}

	if !includeProcess {
		return doc
	}

	details := &ProcessDetails{
		ModelA:              out.AnalysisA,
		ModelB:              out.AnalysisB,
		FactCheckIterations: []IterationDetails{},
	}
	if out.Mode == pipeline.ModeGraph && out.Summary != nil {
		details.Consolidation = &ConsolidationDetails{
			Reasoning:      out.Summary.Reasoning,
			ClaimsToVerify: nonNil(out.Summary.ClaimsToVerify),
		}
	}
	if sup := out.Supervisor; sup != nil {
		details.SupervisorToolCalls = sup.TotalToolCalls
		details.SupervisorAgentsUsed = sup.AgentsInvoked
	}
	for _, r := range out.Rounds {
		it := IterationDetails{Iteration: r.Index + 1, Timestamp: r.Timestamp}
		if fc := r.FactCheck; fc != nil {
			it.FactCheck = IterationFact{
				OverallReliability: round3(fc.OverallReliability),
				ResearchQuality:    round3(fc.ResearchQuality),
				VerifiedClaims:     claims(fc),
				Reasoning:          fc.Reasoning,
			}
		}
		if c := r.Critique; c != nil {
			it.Critic = IterationCrit{
				QualityScore:          round3(c.QualityScore),
				ResearchIsSufficient:  c.ResearchIsSufficient,
				MissingVerifications:  nonNil(c.MissingVerifications),
				SuggestedImprovements: nonNil(c.SuggestedImprovements),
				Reasoning:             c.Reasoning,
			}
		}
		details.FactCheckIterations = append(details.FactCheckIterations, it)
	}
	doc.ProcessDetails = details
	return doc
}

func resolveBase(out *pipeline.FinalOutput, base string) string {
	if base != "" {
		return base
	}
	t := out.GeneratedAt
	if t.IsZero() {
		t = time.Now()
	}
	return BaseName(t)
}

// WriteJSON writes <dir>/<base>.json, creating dir. An empty base uses the
// generation timestamp.
func WriteJSON(out *pipeline.FinalOutput, dir, base string) (string, error) {
	data, err := json.MarshalIndent(Build(out, true), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return write(dir, resolveBase(out, base)+".json", data)
}

// WriteMarkdown writes <dir>/<base>.md, creating dir.
func WriteMarkdown(out *pipeline.FinalOutput, dir, base string) (string, error) {
	return write(dir, resolveBase(out, base)+".md", []byte(Markdown(out)))
}

// WriteAll writes both reports with the same base name.
func WriteAll(out *pipeline.FinalOutput, dir, base string) (jsonPath, mdPath string, err error) {
	base = resolveBase(out, base)
	if jsonPath, err = WriteJSON(out, dir, base); err != nil {
		return "", "", err
	}
	if mdPath, err = WriteMarkdown(out, dir, base); err != nil {
		return "", "", err
	}
	return jsonPath, mdPath, nil
}

func write(dir, name string, data []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
