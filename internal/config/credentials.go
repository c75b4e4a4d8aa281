package config

import (
	"os"
	"strings"
)

// Environment variables holding provider credentials.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvLlamaKey     = "LLAMA_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvGoogleKey    = "GOOGLE_API_KEY"
	EnvTavilyKey    = "TAVILY_API_KEY"
	EnvSerperKey    = "SERPER_API_KEY"
	EnvBraveKey     = "BRAVE_API_KEY"
)

// Credentials holds API keys. They are read from the environment only and
// never written to the YAML file.
type Credentials struct {
	Anthropic string
	Llama     string
	OpenAI    string
	Google    string
	Tavily    string
	Serper    string
	Brave     string
}

// CredentialsFromEnv reads credentials from the process environment.
func CredentialsFromEnv() Credentials {
	return LoadCredentials(os.Getenv)
}

// LoadCredentials reads credentials through getenv.
func LoadCredentials(getenv func(string) string) Credentials {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }
	return Credentials{
		Anthropic: get(EnvAnthropicKey),
		Llama:     get(EnvLlamaKey),
		OpenAI:    get(EnvOpenAIKey),
		Google:    get(EnvGoogleKey),
		Tavily:    get(EnvTavilyKey),
		Serper:    get(EnvSerperKey),
		Brave:     get(EnvBraveKey),
	}
}

// ProviderKey returns the key for an LLM provider and the variable it comes
// from. ok is false for providers this build does not know.
func (c Credentials) ProviderKey(provider string) (key, envVar string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic":
		return c.Anthropic, EnvAnthropicKey, true
	case "llama":
		return c.Llama, EnvLlamaKey, true
	case "openai":
		return c.OpenAI, EnvOpenAIKey, true
	case "google", "gemini":
		return c.Google, EnvGoogleKey, true
	default:
		return "", "", false
	}
}

// HasSearchKey reports whether at least one search provider is configured.
func (c Credentials) HasSearchKey() bool {
	return c.Tavily != "" || c.Serper != "" || c.Brave != ""
}

// Values returns every non-empty key, for redaction.
func (c Credentials) Values() []string {
	var out []string
	for _, v := range []string{c.Anthropic, c.Llama, c.OpenAI, c.Google, c.Tavily, c.Serper, c.Brave} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
