package llm

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Provider names a model backend.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// Providers lists every supported backend.
var Providers = []Provider{ProviderClaude, ProviderOpenAI, ProviderOllama}

// Settings selects and configures a provider. Empty fields take the
// provider's defaults.
type Settings struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
	// Options tune the hosted providers; Ollama ignores them.
	Options []Option
}

// New builds the client described by s.
func New(s Settings) (LLM, error) {
	switch s.Provider {
	case ProviderClaude:
		if s.APIKey == "" {
			return nil, errors.New("Claude API key is required")
		}
		return NewClaude(s.APIKey, s.options()...), nil
	case ProviderOpenAI:
		if s.APIKey == "" {
			return nil, errors.New("OpenAI API key is required")
		}
		return NewOpenAI(s.APIKey, s.options()...), nil
	case ProviderOllama:
		return NewOllama(s.BaseURL, s.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: claude, openai, ollama)", s.Provider)
	}
}

func (s Settings) options() []Option {
	return append([]Option{WithModel(s.Model), WithBaseURL(s.BaseURL)}, s.Options...)
}

// IsSupported reports whether name is a known provider. Empty means auto-detect.
func IsSupported(name string) bool {
	return name == "" || slices.Contains(Providers, Provider(strings.ToLower(name)))
}

// CreateFromEnv builds a client with API keys read from the environment.
// An explicit provider wins; otherwise LLM_PROVIDER is consulted and Claude
// is the fallback. Model and base URL fall back to per-provider variables.
func CreateFromEnv(providerOverride, modelOverride, baseURL string, opts ...Option) (LLM, error) {
	name := providerOverride
	if name == "" {
		name = os.Getenv("LLM_PROVIDER")
	}
	s := Settings{
		Provider: Provider(strings.ToLower(name)),
		Model:    modelOverride,
		BaseURL:  baseURL,
		Options:  opts,
	}
	if s.Provider == "" {
		s.Provider = ProviderClaude
	}

	switch s.Provider {
	case ProviderOpenAI:
		s.APIKey = os.Getenv("OPENAI_API_KEY")
		if s.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable not set")
		}
		s.Model = firstSet(s.Model, os.Getenv("OPENAI_MODEL"))
	case ProviderClaude:
		s.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if s.APIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
		}
		s.Model = firstSet(s.Model, os.Getenv("CLAUDE_MODEL"))
	case ProviderOllama:
		s.Model = firstSet(s.Model, os.Getenv("OLLAMA_MODEL"))
		s.BaseURL = firstSet(s.BaseURL, os.Getenv("OLLAMA_HOST"))
	}
	return New(s)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
