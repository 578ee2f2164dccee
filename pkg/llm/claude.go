package llm

import (
	"context"
	"errors"
)

const (
	defaultClaudeURL   = "https://api.anthropic.com"
	defaultClaudeModel = "claude-sonnet-4-20250514"
	anthropicVersion   = "2023-06-01"
)

// Claude calls the Anthropic Messages API.
type Claude struct {
	httpProvider
}

func NewClaude(apiKey string, opts ...Option) *Claude {
	return &Claude{httpProvider: newHTTPProvider("Claude", apiKey, defaultClaudeURL, defaultClaudeModel, opts)}
}

type claudeRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *Claude) Chat(ctx context.Context, prompt string) (string, error) {
	req := claudeRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.maxTokens,
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp claudeResponse
	if err := c.post(ctx, "/v1/messages", headers, req, &resp); err != nil {
		return "", err
	}

	// Text blocks are concatenated; tool_use and other block types are ignored.
	var out string
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", errors.New("empty response from Claude")
	}
	return out, nil
}
