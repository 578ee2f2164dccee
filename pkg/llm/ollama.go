package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// Ollama talks to a local or in-cluster Ollama server through langchaingo.
type Ollama struct {
	llm   llms.Model
	model string
}

func NewOllama(serverURL, model string) (*Ollama, error) {
	if serverURL == "" {
		serverURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	client, err := ollama.New(ollama.WithServerURL(serverURL), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &Ollama{llm: client, model: model}, nil
}

func (o *Ollama) Chat(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, o.llm, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	return out, nil
}

// GetModel returns the model being used by this Ollama client
func (o *Ollama) GetModel() string {
	return o.model
}
