package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/castcheck/internal/agents"
	"github.com/codefionn/castcheck/internal/pipeline"
	"github.com/codefionn/castcheck/internal/progress"
)

func TestReadInput(t *testing.T) {
	t.Cleanup(func() { analyzeSample = "" })

	path := filepath.Join(t.TempDir(), "episode.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("Host: we talked about the moon landing. ", 5)), 0o644))

	in, err := readInput([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "episode.txt", in.Metadata["filename"])

	_, err = readInput(nil)
	assert.ErrorContains(t, err, "no transcript given")

	analyzeSample = "tech_talk"
	in, err = readInput(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, in.Normalize())

	_, err = readInput([]string{path})
	assert.ErrorContains(t, err, "not both")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Cleanup(func() { configFile, logLevel = "config.yaml", "" })
	configFile = filepath.Join(t.TempDir(), "missing.yaml")
	logLevel = "warn"
	t.Setenv("CASTCHECK_LOG_LEVEL", "debug")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.App.LogLevel)
}

func TestPrintResult(t *testing.T) {
	color.NoColor = true
	out := &pipeline.FinalOutput{
		Summary: &agents.SupervisorOutput{FinalSummary: "A short episode about Apollo."},
		FactCheck: &agents.FactCheckOutput{VerifiedClaims: []agents.VerifiedClaim{
			{Claim: "Apollo 11 landed in 1969", VerificationStatus: "fact-checked"},
		}},
		ConfidenceInAnalysis: 0.75,
		CriticIterations:     2,
	}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, out))
	text := buf.String()
	assert.Contains(t, text, "A short episode about Apollo.")
	assert.Contains(t, text, "Confidence: 75.0%  Critic iterations: 2")
	assert.Contains(t, text, "[fact-checked] Apollo 11 landed in 1969")
}

func TestProgressPrinter(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf}

	require.NoError(t, p.Print(progress.Event{Stage: progress.StageToolStarted, Tool: "tavily_search"}))
	require.NoError(t, p.Print(progress.Event{Stage: progress.StageError, Node: "critic_loop", Message: "boom"}))

	assert.NotContains(t, buf.String(), "tavily_search")
	assert.Contains(t, buf.String(), "✗ critic_loop failed: boom")
}
