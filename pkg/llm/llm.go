package llm

import "context"

// LLM is the model invocation contract used by the planner, analyzer and
// reflector. Replies may wrap JSON in a fenced block; callers parse tolerantly.
type LLM interface {
	Chat(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the LLM interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Chat(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }
