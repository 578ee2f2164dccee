package llm

import (
	"context"
	"errors"
)

const (
	defaultOpenAIURL   = "https://api.openai.com"
	defaultOpenAIModel = "gpt-4o"
)

// OpenAI calls the Chat Completions API or any server that mimics it.
type OpenAI struct {
	httpProvider
}

func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	return &OpenAI{httpProvider: newHTTPProvider("OpenAI", apiKey, defaultOpenAIURL, defaultOpenAIModel, opts)}
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OpenAI) Chat(ctx context.Context, prompt string) (string, error) {
	req := openAIRequest{
		Model:     o.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: o.maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	var resp openAIResponse
	if err := o.post(ctx, "/v1/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
