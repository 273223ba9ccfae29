// Package llm implements the request-time key resolution policy and the
// upstream chat-completions client. Resolution decides, per request, whether
// a user's own provider key or the platform's shared app key serves the call,
// and charges the free-tier quota ledger when the app key is used.
package llm

import "strings"

// Provider identifies an external AI vendor.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderGroq   Provider = "groq"
)

// knownProviders is the set of providers the platform can route to.
var knownProviders = map[Provider]bool{
	ProviderOpenAI: true,
	ProviderGemini: true,
	ProviderClaude: true,
	ProviderGroq:   true,
}

// freeTierProviders are the providers for which the platform subsidizes a
// limited number of calls through its own app key.
var freeTierProviders = map[Provider]bool{
	ProviderOpenAI: true,
	ProviderGemini: true,
}

// ParseProvider validates a provider name from client input.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	return p, knownProviders[p]
}

// FreeTier reports whether the platform serves free-tier calls for p.
func (p Provider) FreeTier() bool {
	return freeTierProviders[p]
}

func (p Provider) String() string {
	return string(p)
}

// BaseURL returns the provider's OpenAI-compatible API root.
func (p Provider) BaseURL() string {
	switch p {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta/openai"
	case ProviderClaude:
		return "https://api.anthropic.com/v1"
	case ProviderGroq:
		return "https://api.groq.com/openai/v1"
	}
	return ""
}

// modelPrefixes maps model ID prefixes to the provider that hosts them. The
// chat endpoint accepts a model ID, not a provider name, so routing starts
// here.
var modelPrefixes = []struct {
	prefix   string
	provider Provider
}{
	{"gpt-", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"gemini-", ProviderGemini},
	{"claude-", ProviderClaude},
	{"llama-", ProviderGroq},
	{"llama3", ProviderGroq},
	{"mixtral-", ProviderGroq},
}

// ProviderForModel resolves a model ID to its hosting provider.
func ProviderForModel(modelID string) (Provider, bool) {
	m := strings.ToLower(strings.TrimSpace(modelID))
	for _, mp := range modelPrefixes {
		if strings.HasPrefix(m, mp.prefix) {
			return mp.provider, true
		}
	}
	return "", false
}
