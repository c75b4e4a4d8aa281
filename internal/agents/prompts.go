package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// noFinalAnswerPrompt is appended when the tool loop ended without an
	// assistant answer.
	noFinalAnswerPrompt = "Based on your search results, please provide the final fact-check results in JSON format."
	// invalidFactCheckPrompt is appended when the final answer could not be
	// parsed as a fact-check.
	invalidFactCheckPrompt = "Please provide your fact-check results in valid JSON format as specified in the schema."
	// invalidCritiquePrompt is the critic's counterpart.
	invalidCritiquePrompt = "Please provide your review in valid JSON format as specified in the schema."
)

const supervisorSystemPrompt = `You are the Editor-in-Chief of an ad agency's podcast desk. You coordinate a team of specialists, each exposed to you as a tool:

1. summarize_podcast_tool: writes a 200-300 word summary with core theme, key discussions and outcomes
2. extract_notes_tool: extracts five takeaways, quotes with timestamps, topics for tagging and verifiable factual statements
3. fact_check_claims_tool: verifies factual statements with web search

Run them in this order:
- First summarize_podcast_tool
- Then extract_notes_tool
- Finally fact_check_claims_tool, passing the factual_statements returned by extract_notes_tool as a JSON array

Every tool must be used once. When all three have finished, reply with a short summary of the work done and no further tool calls.`

func writeSection(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "%s:\n%s\n\n", title, strings.TrimSpace(body))
}

func toJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func numbered(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

// analysisPrompt asks model_a and model_b for an independent analysis.
func analysisPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("You are analyzing a podcast transcript to extract its key information.\n\n")
	b.WriteString("Provide a concise summary of the content, the key points discussed (three to five), ")
	b.WriteString("the main topics covered and your confidence in this analysis between 0.0 and 1.0. ")
	b.WriteString("Stick to what is said in the transcript.\n\n")
	b.WriteString(ParallelAnalysisShape.FormatInstructions())
	b.WriteString("\n\n")
	writeSection(&b, "Podcast transcript", transcript)
	return b.String()
}

// consolidationPrompt merges the two analyses on model_c.
func consolidationPrompt(transcript string, a, bAnalysis *ParallelAnalysis) string {
	var b strings.Builder
	b.WriteString("You are a senior analyst reviewing two independent analyses of the same podcast transcript. ")
	b.WriteString("Consolidate them into one authoritative result.\n\n")
	writeSection(&b, "Analysis A", toJSON(a))
	writeSection(&b, "Analysis B", toJSON(bAnalysis))
	writeSection(&b, "Original transcript (for reference)", transcript)
	b.WriteString("Combine the insights of both analyses into a final summary, merge duplicate topics, ")
	b.WriteString("write three to five key takeaways and collect notable quotes with context.\n")
	b.WriteString("Most importantly, list the factual claims that need verification: statistics, dates, ")
	b.WriteString("scientific or historical statements. Each claim must stand on its own. Leave out opinions. ")
	b.WriteString("Aim for three to seven claims central to the episode.\n\n")
	b.WriteString("final_summary is limited to 400 characters, not words. Count before you answer.\n\n")
	b.WriteString(SupervisorOutputShape.FormatInstructions())
	return b.String()
}

// summaryPrompt drives the summarizer specialist.
func summaryPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("You are a podcast summarizing expert working for an ad agency.\n\n")
	writeSection(&b, "Podcast transcript", transcript)
	b.WriteString("Write a summary suitable for social media and marketing material. Capture the tone of the ")
	b.WriteString("conversation and what makes the episode worth listening to. Name the core theme, at least two ")
	b.WriteString("key discussions and at least one outcome or opinion shared by the participants.\n\n")
	b.WriteString("The summary field must be between 200 and 400 characters.\n\n")
	b.WriteString(SummaryOutputShape.FormatInstructions())
	return b.String()
}

// notesPrompt drives the note extractor specialist.
func notesPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("You are a content extraction expert working for an ad agency.\n\n")
	writeSection(&b, "Podcast transcript", transcript)
	b.WriteString("Extract exactly five takeaways, memorable quotes with timestamps when the transcript has them ")
	b.WriteString("(MM:SS or HH:MM:SS), at least three short topic tags and the specific factual statements ")
	b.WriteString("that can be verified, such as \"I started company X and sold it for Y dollars\".\n\n")
	b.WriteString(NotesOutputShape.FormatInstructions())
	return b.String()
}

// factCheckPrompt is the first-round fact-checking prompt. claims is the
// already formatted claim list.
func factCheckPrompt(claims, context, tools string, statuses []string) string {
	var b strings.Builder
	b.WriteString("You are a fact-checking expert with access to web search tools.\n\n")
	writeSection(&b, "Statements to verify", claims)
	writeSection(&b, "Context", context)
	writeSection(&b, "Available tools", tools)
	b.WriteString("Search for every statement, using several query variations, and judge the credibility of ")
	b.WriteString("what you find. Reputable news organizations, academic institutions, official company and ")
	b.WriteString("government websites and peer-reviewed publications count as credible.\n")
	b.WriteString(statusGuide(statuses))
	b.WriteString("Do not rely on prior knowledge. overall_reliability is the average confidence of the verdicts, ")
	b.WriteString("research_quality rates how thorough your search was. Answer only after using the tools.\n\n")
	b.WriteString(FactCheckShape(statuses).FormatInstructions())
	return b.String()
}

// improvedFactCheckPrompt seeds a later critique round with the previous
// result and the critic's feedback.
func improvedFactCheckPrompt(claims, context, tools string, statuses []string, previous *FactCheckOutput, feedback *CriticFeedback) string {
	var b strings.Builder
	b.WriteString("You are improving your previous fact-check based on a critic's feedback.\n\n")
	writeSection(&b, "Previous fact-check", toJSON(previous))
	writeSection(&b, "Critic feedback", toJSON(feedback))
	writeSection(&b, "Statements to re-verify", claims)
	writeSection(&b, "Context", context)
	writeSection(&b, "Available tools", tools)
	b.WriteString("Address every missing verification and suggested improvement, look for more authoritative ")
	b.WriteString("sources and make your reasoning clearer.\n")
	b.WriteString(statusGuide(statuses))
	b.WriteString("\n")
	b.WriteString(FactCheckShape(statuses).FormatInstructions())
	return b.String()
}

// critiquePrompt asks model_e to review a fact-check.
func critiquePrompt(claims string, factCheck *FactCheckOutput, tools string) string {
	var b strings.Builder
	b.WriteString("You are a quality control critic reviewing fact-checking research.\n\n")
	writeSection(&b, "Fact-check results", toJSON(factCheck))
	writeSection(&b, "Original claims", claims)
	if tools != "" {
		writeSection(&b, "Available tools for spot checks", tools)
	}
	b.WriteString("Judge whether the research was thorough: enough credible sources, clear reasoning, ")
	b.WriteString("no unverified gaps and a justified research_quality. Be strict but fair. ")
	b.WriteString("Set research_is_sufficient to true only if quality_score is above 0.75. ")
	b.WriteString("List the claims that still need work and concrete improvements.\n\n")
	b.WriteString(CriticFeedbackShape.FormatInstructions())
	return b.String()
}

// supervisorUserPrompt starts the supervisor conversation.
func supervisorUserPrompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Please analyze this podcast transcript using your specialist tools.\n\n")
	writeSection(&b, "Transcript", transcript)
	b.WriteString("Remember: first summarize_podcast_tool, then extract_notes_tool, finally fact_check_claims_tool ")
	b.WriteString("with the factual statements from the second step.\n\nBegin the workflow.")
	return b.String()
}

func statusGuide(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	guide := "Classify every statement as one of " + strings.Join(quoted, ", ") + "."
	if hasDefaultStatuses(statuses) {
		guide += ` "fact-checked" means credible sources confirm it, "unverified" means no credible source confirms or denies it, "declined" means credible evidence contradicts it. Link the sources.`
	}
	return guide + "\n"
}

func hasDefaultStatuses(statuses []string) bool {
	want := map[string]bool{"fact-checked": true, "unverified": true, "declined": true}
	for _, s := range statuses {
		if !want[s] {
			return false
		}
	}
	return len(statuses) == len(want)
}

// formatStatements renders extracted statements for the fact checker.
func formatStatements(statements []FactualStatement) string {
	var b strings.Builder
	for i, st := range statements {
		speaker := "Unknown"
		if st.Speaker != nil && *st.Speaker != "" {
			speaker = *st.Speaker
		}
		fmt.Fprintf(&b, "%d. %s (Speaker: %s, Context: %s)\n", i+1, st.Statement, speaker, st.Context)
	}
	return b.String()
}
