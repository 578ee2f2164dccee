package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/helmcode/kubediag/pkg/llm"
	"github.com/helmcode/kubediag/pkg/model"
)

func TestAnalyzeStructuredReply(t *testing.T) {
	var prompt string
	l := llm.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n{\"summary\": \"killed\", \"findings\": [\"container OOMKilled\"], \"root_cause\": \"OOM\", \"confidence\": 0.95, \"next_action\": \"conclude\"}\n```", nil
	})
	a := New(l, zaptest.NewLogger(t))

	res := a.Analyze(context.Background(), "get_pod_logs", map[string]any{"pod_name": "checkout-7x"}, "Last State: OOMKilled", []string{"pod restarting"})

	require.NotNil(t, res.RootCause)
	assert.Equal(t, "OOM", *res.RootCause)
	assert.Equal(t, model.ActionConclude, res.NextAction)
	assert.Equal(t, []string{"container OOMKilled"}, res.Findings)

	assert.Contains(t, prompt, "Tool: get_pod_logs")
	assert.Contains(t, prompt, `{"pod_name":"checkout-7x"}`)
	assert.Contains(t, prompt, "Last State: OOMKilled")
	assert.Contains(t, prompt, "- pod restarting")
	assert.Contains(t, prompt, "CrashLoopBackOff")
}

func TestAnalyzeTruncatesLargeResults(t *testing.T) {
	var prompt string
	l := llm.Func(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `{"findings": []}`, nil
	})
	a := New(l, nil)

	a.Analyze(context.Background(), "get_pod_logs", nil, strings.Repeat("z", 10000), nil)

	assert.Contains(t, prompt, strings.Repeat("z", 3000)+"...")
	assert.NotContains(t, prompt, strings.Repeat("z", 3001))
}

func TestAnalyzeFallbacks(t *testing.T) {
	t.Run("prose reply becomes a finding", func(t *testing.T) {
		a := New(llm.Func(func(context.Context, string) (string, error) {
			return "The logs show nothing unusual.", nil
		}), zaptest.NewLogger(t))

		res := a.Analyze(context.Background(), "get_pod_logs", nil, "ok", nil)
		assert.Equal(t, []string{"The logs show nothing unusual."}, res.Findings)
		assert.Equal(t, model.ActionContinue, res.NextAction)
		assert.Nil(t, res.RootCause)
	})

	t.Run("model error yields empty analysis", func(t *testing.T) {
		a := New(llm.Func(func(context.Context, string) (string, error) {
			return "", errors.New("timeout")
		}), zaptest.NewLogger(t))

		res := a.Analyze(context.Background(), "get_pod_logs", nil, "ok", nil)
		assert.Empty(t, res.Findings)
		assert.Equal(t, model.ActionContinue, res.NextAction)
		assert.Nil(t, res.RootCause)
	})
}
