// Package htmlconv normalizes HTML found in search results into markdown the
// models can read.
package htmlconv

import (
	"bytes"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/codefionn/castcheck/internal/logger"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)
	inlineTagPattern  = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*\b[^>]*>`)
	entityPattern     = regexp.MustCompile(`&(#[0-9]+|#x[0-9a-fA-F]+|[a-zA-Z]+);`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
	spacePattern      = regexp.MustCompile(`\s+`)
)

// Number of tags from which text is treated as an HTML document.
const htmlTagThreshold = 3

// structuralTags hint at a document even below the tag threshold.
var structuralTags = []string{"<body", "<div", "<table", "<ul>", "<ol>", "<h1", "<h2"}

// droppedTags never carry article content.
var droppedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "meta": true,
	"link": true, "head": true, "header": true, "footer": true,
	"nav": true, "aside": true, "iframe": true, "svg": true,
}

var contentIdentifiers = []string{
	"content", "main", "article", "post", "entry", "story",
	"text", "body-content", "page-content", "main-content",
}

// Convert turns an HTML page into markdown, keeping the main content only.
// Text that does not look like HTML is returned unchanged with false.
func Convert(input string) (string, bool) {
	if !isHTML(input) {
		return input, false
	}

	cleaned, err := extractMain(input)
	if err != nil {
		logger.Warn("failed to preprocess search result HTML: %v, using original", err)
		cleaned = input
	}

	markdown, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		logger.Warn("failed to convert search result HTML to markdown: %v", err)
		return input, false
	}

	markdown = strings.TrimSpace(blankLinesPattern.ReplaceAllString(markdown, "\n\n"))
	logger.Debug("converted HTML to markdown (%d -> %d bytes)", len(input), len(markdown))
	return markdown, true
}

// Snippet normalizes a short search snippet: inline markup such as
// <strong> and HTML entities are rendered, whitespace is collapsed and the
// text is cut to maxLen characters (0 means no limit).
func Snippet(input string, maxLen int) string {
	text := input
	if converted, ok := Convert(text); ok {
		text = converted
	} else if inlineTagPattern.MatchString(text) || entityPattern.MatchString(text) {
		if md, err := htmltomarkdown.ConvertString(text); err == nil {
			text = md
		}
	}

	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	if maxLen <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return strings.TrimSpace(string(runes[:maxLen-3])) + "..."
}

func isHTML(input string) bool {
	trimmed := strings.TrimSpace(input)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return true
	}

	tagCount := len(htmlTagPattern.FindAllString(input, -1))
	if tagCount >= htmlTagThreshold {
		return true
	}
	if tagCount < 2 {
		return false
	}

	lower = strings.ToLower(input)
	for _, tag := range structuralTags {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// extractMain parses the page, picks the main content node and strips
// navigation and scripts from it.
func extractMain(input string) (string, error) {
	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return input, err
	}

	root := findMainContent(doc)
	removeDropped(root)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return input, err
	}
	return buf.String(), nil
}

func removeDropped(n *html.Node) {
	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		removeDropped(child)
		child = next
	}
	if n.Type == html.ElementNode && droppedTags[n.Data] && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// findMainContent prefers <main>, then <article>, then an element whose id
// or class names content, then <body>.
func findMainContent(doc *html.Node) *html.Node {
	if doc.Type != html.DocumentNode {
		return doc
	}

	var mains, articles, identified, bodies []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "main":
				mains = append(mains, n)
			case "article":
				articles = append(articles, n)
			case "body":
				bodies = append(bodies, n)
			default:
				if hasContentIdentifier(n) {
					identified = append(identified, n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, group := range [][]*html.Node{mains, articles, identified, bodies} {
		if len(group) > 0 {
			return group[0]
		}
	}
	return doc
}

func hasContentIdentifier(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" {
			continue
		}
		for _, token := range strings.Fields(strings.ToLower(attr.Val)) {
			for _, id := range contentIdentifiers {
				if strings.Contains(token, id) {
					return true
				}
			}
		}
	}
	return false
}
