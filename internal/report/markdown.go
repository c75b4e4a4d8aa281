package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/codefionn/castcheck/internal/pipeline"
)

// Markdown renders the human-readable report.
func Markdown(out *pipeline.FinalOutput) string {
	doc := Build(out, false)
	var b strings.Builder

	b.WriteString("# Podcast Analysis Report\n\n")
	if title := doc.Metadata.Podcast["title"]; title != "" {
		fmt.Fprintf(&b, "**Podcast:** %s\n", title)
	}
	fmt.Fprintf(&b, "**Generated:** %s\n", doc.Metadata.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Mode:** %s\n", doc.Metadata.Mode)
	fmt.Fprintf(&b, "**Critic Iterations:** %d\n", doc.Metadata.CriticIterations)
	fmt.Fprintf(&b, "**Overall Confidence:** %.1f%%\n\n", doc.Metadata.ConfidenceInAnalysis*100)
	b.WriteString("---\n\n")

	b.WriteString("## Summary\n\n")
	if out.Summary == nil {
		b.WriteString("*No summary available*\n\n")
	} else {
		s := doc.Summary
		if s.FinalSummary != "" {
			b.WriteString(s.FinalSummary + "\n\n")
		}
		bullets(&b, "Topics Discussed", s.MainTopics)
		bullets(&b, "Key Takeaways", s.KeyTakeaways)
		if len(s.NotableQuotes) > 0 {
			b.WriteString("### Notable Quotes\n\n")
			for _, q := range s.NotableQuotes {
				fmt.Fprintf(&b, "> %s\n", q.Text)
				if q.Speaker != nil && *q.Speaker != "" {
					fmt.Fprintf(&b, ">\n> *%s*\n", *q.Speaker)
				}
				b.WriteString("\n")
			}
		}
	}

	if doc.ProcessingNotes != "" {
		b.WriteString("## Processing Notes\n\n")
		b.WriteString(doc.ProcessingNotes + "\n\n")
	}

	b.WriteString("## Fact-Check Results\n\n")
	fmt.Fprintf(&b, "**Overall Reliability:** %.1f%%\n", doc.FactCheck.OverallReliability*100)
	fmt.Fprintf(&b, "**Research Quality:** %.1f%%\n\n", doc.FactCheck.ResearchQuality*100)
	b.WriteString("### Verified Claims\n\n")
	if len(doc.FactCheck.VerifiedClaims) == 0 {
		b.WriteString("No fact-check claims available.\n")
		return b.String()
	}
	b.WriteString("| Claim | Status | Confidence | Evidence |\n")
	b.WriteString("|-------|--------|------------|----------|\n")
	for _, c := range doc.FactCheck.VerifiedClaims {
		fmt.Fprintf(&b, "| %s | %s | %.1f%% | %s |\n",
			cell(c.Claim), cell(c.Status), c.Confidence*100, cell(c.Evidence))
	}
	return b.String()
}

func bullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// cell makes s safe for a single table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// RenderTerminal styles markdown for a terminal of the given width.
func RenderTerminal(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return rendered, nil
}
