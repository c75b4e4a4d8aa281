// Package agents holds the specialists of the analysis pipeline and the
// supervisor that coordinates them.
package agents

import (
	"github.com/codefionn/castcheck/internal/structured"
)

// ParallelAnalysis is produced independently by model_a and model_b.
type ParallelAnalysis struct {
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
	Topics     []string `json:"topics"`
	Confidence float64  `json:"confidence"`
}

// Quote is a notable quote from the transcript.
type Quote struct {
	Text      string  `json:"text"`
	Speaker   *string `json:"speaker,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
	Context   string  `json:"context"`
}

// SupervisorOutput consolidates the two parallel analyses.
type SupervisorOutput struct {
	FinalSummary   string   `json:"final_summary"`
	MainTopics     []string `json:"main_topics"`
	KeyTakeaways   []string `json:"key_takeaways"`
	NotableQuotes  []Quote  `json:"notable_quotes"`
	ClaimsToVerify []string `json:"claims_to_verify"`
	Reasoning      string   `json:"reasoning"`
}

// SummaryOutput is the summarizer's result.
type SummaryOutput struct {
	Summary             string   `json:"summary"`
	CoreTheme           string   `json:"core_theme"`
	KeyDiscussions      []string `json:"key_discussions"`
	OutcomesAndOpinions []string `json:"outcomes_and_opinions"`
	Reasoning           string   `json:"reasoning"`
}

// FactualStatement is a verifiable claim extracted from the transcript.
type FactualStatement struct {
	Statement string  `json:"statement"`
	Speaker   *string `json:"speaker,omitempty"`
	Context   string  `json:"context"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// NotesOutput is the note extractor's result.
type NotesOutput struct {
	TopTakeaways      []string           `json:"top_takeaways"`
	NotableQuotes     []Quote            `json:"notable_quotes"`
	Topics            []string           `json:"topics"`
	FactualStatements []FactualStatement `json:"factual_statements"`
	Reasoning         string             `json:"reasoning"`
}

// Source backs a verified claim.
type Source struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Relevance float64 `json:"relevance"`
}

// VerifiedClaim is the fact checker's verdict on one claim.
type VerifiedClaim struct {
	Claim              string   `json:"claim"`
	VerificationStatus string   `json:"verification_status"`
	Confidence         float64  `json:"confidence"`
	Sources            []Source `json:"sources"`
	Reasoning          string   `json:"reasoning"`
	AdditionalContext  *string  `json:"additional_context,omitempty"`
}

// FactCheckOutput is the fact checker's result.
type FactCheckOutput struct {
	VerifiedClaims     []VerifiedClaim `json:"verified_claims"`
	OverallReliability float64         `json:"overall_reliability"`
	ResearchQuality    float64         `json:"research_quality"`
	Reasoning          string          `json:"reasoning"`
}

// StatusCounts tallies claims per verification status.
func (f *FactCheckOutput) StatusCounts() map[string]int {
	counts := make(map[string]int)
	if f == nil {
		return counts
	}
	for _, c := range f.VerifiedClaims {
		counts[c.VerificationStatus]++
	}
	return counts
}

// CriticFeedback is the critic's review of a fact-check.
type CriticFeedback struct {
	ResearchIsSufficient  bool     `json:"research_is_sufficient"`
	MissingVerifications  []string `json:"missing_verifications"`
	SuggestedImprovements []string `json:"suggested_improvements"`
	QualityScore          float64  `json:"quality_score"`
	Reasoning             string   `json:"reasoning"`
}

var quoteShape = structured.NewShape("Quote",
	structured.String("text"),
	structured.String("speaker").Opt(),
	structured.String("timestamp").Opt(),
	structured.String("context"),
)

// ParallelAnalysisShape constrains ParallelAnalysis.
var ParallelAnalysisShape = structured.NewShape("ParallelAnalysis",
	structured.String("summary").Describe("A concise summary of the podcast content"),
	structured.List("key_points", structured.String("")).Size(1, 0),
	structured.List("topics", structured.String("")).Size(1, 0),
	structured.Number("confidence").Range(0, 1).Describe("Certainty of this analysis"),
)

// SupervisorOutputShape constrains SupervisorOutput.
var SupervisorOutputShape = structured.NewShape("SupervisorOutput",
	structured.String("final_summary").Length(0, 400).Describe("At most 400 characters"),
	structured.List("main_topics", structured.String("")),
	structured.List("key_takeaways", structured.String("")),
	structured.List("notable_quotes", structured.Object("", quoteShape)),
	structured.List("claims_to_verify", structured.String("")).Describe("Specific, standalone factual claims worth verifying"),
	structured.String("reasoning"),
)

// SummaryOutputShape constrains SummaryOutput.
var SummaryOutputShape = structured.NewShape("SummaryOutput",
	structured.String("summary").Length(200, 400),
	structured.String("core_theme"),
	structured.List("key_discussions", structured.String("")).Size(2, 0),
	structured.List("outcomes_and_opinions", structured.String("")).Size(1, 0),
	structured.String("reasoning"),
)

// NotesOutputShape constrains NotesOutput.
var NotesOutputShape = structured.NewShape("NotesOutput",
	structured.List("top_takeaways", structured.String("")).Size(5, 5),
	structured.List("notable_quotes", structured.Object("", quoteShape)).Size(1, 0),
	structured.List("topics", structured.String("")).Size(3, 0),
	structured.List("factual_statements", structured.Object("", structured.NewShape("FactualStatement",
		structured.String("statement"),
		structured.String("speaker").Opt(),
		structured.String("context"),
		structured.String("timestamp").Opt(),
	))).Size(1, 0),
	structured.String("reasoning"),
)

// CriticFeedbackShape constrains CriticFeedback.
var CriticFeedbackShape = structured.NewShape("CriticFeedback",
	structured.Bool("research_is_sufficient"),
	structured.List("missing_verifications", structured.String("")),
	structured.List("suggested_improvements", structured.String("")),
	structured.Number("quality_score").Range(0, 1),
	structured.String("reasoning"),
)

// FactCheckShape constrains FactCheckOutput. statuses is the accepted
// verification_status enum.
func FactCheckShape(statuses []string) *structured.Shape {
	status := structured.String("verification_status")
	if len(statuses) > 0 {
		status = status.OneOf(statuses...)
	}
	return structured.NewShape("FactCheckOutput",
		structured.List("verified_claims", structured.Object("", structured.NewShape("VerifiedClaim",
			structured.String("claim"),
			status,
			structured.Number("confidence").Range(0, 1),
			structured.List("sources", structured.Object("", structured.NewShape("Source",
				structured.String("url"),
				structured.String("title"),
				structured.Number("relevance").Range(0, 1),
			))).Opt(),
			structured.String("reasoning"),
			structured.String("additional_context").Opt(),
		))),
		structured.Number("overall_reliability").Range(0, 1),
		structured.Number("research_quality").Range(0, 1),
		structured.String("reasoning"),
	)
}
