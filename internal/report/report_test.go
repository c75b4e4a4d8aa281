package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/orchestrator/loop"
	"github.com/codefionn/castcheck/internal/pipeline"
)

func ptr(s string) *string { return &s }

func sampleOutput() *pipeline.FinalOutput {
	fc := &agents.FactCheckOutput{
		VerifiedClaims: []agents.VerifiedClaim{
			{
				Claim:              "Apollo 11 landed in 1969",
				VerificationStatus: "fact-checked",
				Confidence:         0.95432,
				Sources:            []agents.Source{{URL: "https://nasa.gov/apollo11", Title: "Apollo 11", Relevance: 1}},
				Reasoning:          "Well documented",
			},
			{
				Claim:              "Pipes | break tables",
				VerificationStatus: "unverified",
				Confidence:         0.4,
			},
		},
		OverallReliability: 0.8123,
		ResearchQuality:    0.7,
		Reasoning:          "two claims checked",
	}
	return &pipeline.FinalOutput{
		Mode: pipeline.ModeGraph,
		Summary: &agents.SupervisorOutput{
			FinalSummary:   "A look back at the moon landings.",
			MainTopics:     []string{"Apollo program"},
			KeyTakeaways:   []string{"The landing was in 1969"},
			NotableQuotes:  []agents.Quote{{Text: "One small step", Speaker: ptr("Neil")}},
			ClaimsToVerify: []string{"Apollo 11 landed in 1969"},
			Reasoning:      "both analysts agreed",
		},
		FactCheck:            fc,
		ConfidenceInAnalysis: 0.8123,
		CriticIterations:     1,
		ProcessingNotes:      "Critic accepted the research",
		Metadata:             map[string]string{"title": "Looking Up"},
		Rounds: []agents.Round{{
			Index:      0,
			FactCheck:  fc,
			Critique:   &agents.CriticFeedback{ResearchIsSufficient: true, QualityScore: 0.9},
			Sufficient: true,
			StopReason: loop.StopSatisfied,
		}},
		GeneratedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "analysis_20260314_092653", BaseName(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)))
}

func TestBuild(t *testing.T) {
	doc := Build(sampleOutput(), true)

	assert.Equal(t, 0.812, doc.Metadata.ConfidenceInAnalysis)
	want := []Claim{
		{Claim: "Apollo 11 landed in 1969", Status: "fact-checked", Confidence: 0.954, Evidence: "https://nasa.gov/apollo11"},
		{Claim: "Pipes | break tables", Status: "unverified", Confidence: 0.4, Evidence: "N/A"},
	}
	if diff := cmp.Diff(want, doc.FactCheck.VerifiedClaims); diff != "" {
		t.Errorf("claims mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, doc.ProcessDetails)
	require.NotNil(t, doc.ProcessDetails.Consolidation)
	assert.Equal(t, "both analysts agreed", doc.ProcessDetails.Consolidation.Reasoning)
	require.Len(t, doc.ProcessDetails.FactCheckIterations, 1)
	assert.Equal(t, 1, doc.ProcessDetails.FactCheckIterations[0].Iteration)
	assert.True(t, doc.ProcessDetails.FactCheckIterations[0].Critic.ResearchIsSufficient)
}

func TestBuildEmpty(t *testing.T) {
	doc := Build(&pipeline.FinalOutput{Mode: pipeline.ModeSupervisor}, false)
	assert.Nil(t, doc.ProcessDetails)
	assert.NotNil(t, doc.Summary.MainTopics)
	assert.NotNil(t, doc.FactCheck.VerifiedClaims)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"verified_claims":[]`)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleOutput())

	assert.True(t, strings.HasPrefix(md, "# Podcast Analysis Report\n"))
	assert.Contains(t, md, "**Podcast:** Looking Up")
	assert.Contains(t, md, "**Overall Confidence:** 81.2%")
	assert.Contains(t, md, "### Topics Discussed\n\n- Apollo program\n")
	assert.Contains(t, md, "## Processing Notes\n\nCritic accepted the research")
	assert.Contains(t, md, "| Apollo 11 landed in 1969 | fact-checked | 95.4% | https://nasa.gov/apollo11 |")
	assert.Contains(t, md, `| Pipes \| break tables | unverified | 40.0% | N/A |`)
}

func TestMarkdownWithoutResults(t *testing.T) {
	md := Markdown(&pipeline.FinalOutput{Mode: pipeline.ModeGraph})
	assert.Contains(t, md, "*No summary available*")
	assert.Contains(t, md, "No fact-check claims available.")
	assert.NotContains(t, md, "## Processing Notes")
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	out := sampleOutput()

	jsonPath, mdPath, err := WriteAll(out, dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "analysis_20260314_092653.json"), jsonPath)
	assert.Equal(t, filepath.Join(dir, "analysis_20260314_092653.md"), mdPath)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "A look back at the moon landings.", doc.Summary.FinalSummary)
	require.NotNil(t, doc.ProcessDetails)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Equal(t, Markdown(out), string(md))
}

func TestWriteJSONCustomBase(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteJSON(sampleOutput(), dir, "episode")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "episode.json"), path)
}

func TestRenderTerminal(t *testing.T) {
	rendered, err := RenderTerminal("# Title\n\nSome body text.", 0)
	require.NoError(t, err)
	assert.Contains(t, rendered, "Title")
	assert.Contains(t, rendered, "Some body text.")
}
