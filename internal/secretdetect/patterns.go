package secretdetect

import "regexp"

// Pattern is a named expression for one kind of credential.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// Key shapes of the providers the pipeline talks to.
var (
	anthropicRegex  = regexp.MustCompile(`sk-ant-[a-zA-Z0-9]{2,6}-[a-zA-Z0-9_\-]{20,}`)
	openAIProjRegex = regexp.MustCompile(`sk-proj-[a-zA-Z0-9_\-]{32,}`)
	openAIRegex     = regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`)
	googleAPIRegex  = regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)
	tavilyRegex     = regexp.MustCompile(`tvly-[a-zA-Z0-9_\-]{20,}`)
	llamaRegex      = regexp.MustCompile(`LLM\|[0-9]+\|[a-zA-Z0-9_\-]{20,}`)
	bearerRegex     = regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-.=|]{20,}`)
)

// DefaultPatterns returns the built-in patterns. More specific patterns come
// first so their names win on overlapping matches.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{Name: "Anthropic API Key", Regex: anthropicRegex},
		{Name: "OpenAI Project Key", Regex: openAIProjRegex},
		{Name: "OpenAI API Key", Regex: openAIRegex},
		{Name: "Google API Key", Regex: googleAPIRegex},
		{Name: "Tavily API Key", Regex: tavilyRegex},
		{Name: "Llama API Key", Regex: llamaRegex},
		{Name: "Bearer Token", Regex: bearerRegex},
	}
}
