package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/tools"
)

type fakeLLM struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) Chat(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type namedTool struct{ name, desc string }

func (n namedTool) Name() string                                           { return n.name }
func (n namedTool) Description() string                                    { return n.desc }
func (n namedTool) Schema() tools.Schema                                   { return tools.Schema{} }
func (n namedTool) Invoke(context.Context, map[string]any) (string, error) { return "", nil }

func newRegistry(t *testing.T) *tools.Registry {
	reg, err := tools.NewRegistry(
		namedTool{"get_pod_logs", "Fetch container logs"},
		namedTool{"describe_pod", "Show pod status and events"},
	)
	require.NoError(t, err)
	return reg
}

func TestPlanParsesFencedReply(t *testing.T) {
	l := &fakeLLM{reply: "```json\n{\"initial_hypothesis\": \"OOM\", \"steps\": [{\"step_id\": 1, \"tool\": \"get_pod_logs\", \"args\": {\"namespace\": \"shop\"}, \"reason\": \"logs\"}]}\n```"}
	p := New(l, newRegistry(t), zaptest.NewLogger(t))

	plan := p.Plan(context.Background(), "pod checkout-7x crashes repeatedly", "prod", nil)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "get_pod_logs", plan.Steps[0].ToolName)
	assert.Equal(t, "OOM", plan.InitialHypothesis)

	require.Len(t, l.prompts, 1)
	prompt := l.prompts[0]
	assert.Contains(t, prompt, "pod checkout-7x crashes repeatedly")
	assert.Contains(t, prompt, "Environment: prod")
	assert.Contains(t, prompt, "- get_pod_logs: Fetch container logs")
	assert.Contains(t, prompt, "Findings so far:\nnone")
}

func TestPlanIncludesFindings(t *testing.T) {
	l := &fakeLLM{reply: `{"steps": []}`}
	p := New(l, newRegistry(t), nil)

	p.Plan(context.Background(), "p", "dev", []string{"pod is pending", "node pool full"})

	assert.Contains(t, l.prompts[0], "- pod is pending\n- node pool full")
}

func TestPlanFallbacks(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{name: "unparseable reply", llm: &fakeLLM{reply: "I think you should look at the logs."}},
		{name: "model error", llm: &fakeLLM{err: errors.New("upstream 500")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.llm, newRegistry(t), zaptest.NewLogger(t))
			plan := p.Plan(context.Background(), "problem", "dev", nil)
			assert.Empty(t, plan.Steps)
			assert.Equal(t, "problem", plan.ProblemDescription)
		})
	}
}

func TestReplanQuotesExecutedSteps(t *testing.T) {
	l := &fakeLLM{reply: `{"steps": [{"step_id": 1, "tool": "describe_pod", "reason": "limits"}]}`}
	p := New(l, newRegistry(t), zaptest.NewLogger(t))

	previous := model.DiagnosticPlan{
		InitialHypothesis: "bad config",
		Steps: []model.DiagnosticStep{
			{ID: 1, ToolName: "get_pod_logs", Reason: "logs", Status: model.StepCompleted, Result: strings.Repeat("a", 800)},
		},
	}

	plan := p.Replan(context.Background(), "p", "dev", previous, previous.Executed(), "logs mention OOMKilled")

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "describe_pod", plan.Steps[0].ToolName)

	prompt := l.prompts[0]
	assert.Contains(t, prompt, "Previous hypothesis: bad config")
	assert.Contains(t, prompt, "logs mention OOMKilled")
	assert.Contains(t, prompt, strings.Repeat("a", 500)+"...")
	assert.NotContains(t, prompt, strings.Repeat("a", 501))
}
