package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatchBoundsConcurrency(t *testing.T) {
	l := &scriptedLLM{
		plan:       oneStepPlan,
		analysis:   `{"findings": ["OOMKilled"], "root_cause": "OOM", "next_action": "conclude"}`,
		reflection: `{"quality_score": 9}`,
	}
	logs := &podLogsTool{output: "OOMKilled", delay: 30 * time.Millisecond}
	o := newTestOrchestrator(t, l, Options{Concurrency: 2}, logs)

	problems := make([]string, 6)
	for i := range problems {
		problems[i] = fmt.Sprintf("incident %d", i)
	}

	results := o.RunBatch(context.Background(), problems)

	require.Len(t, results, len(problems))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, problems[i], r.Problem)
		assert.Equal(t, problems[i], r.Report.Problem)
		assert.True(t, r.Report.RootCauseFound)
	}
	assert.LessOrEqual(t, logs.peak.Load(), int32(2))
	assert.Equal(t, 6, l.count("analysis"))
}

func TestRunBatchSessionsAreIsolated(t *testing.T) {
	l := &scriptedLLM{
		plan:       oneStepPlan,
		analysis:   `{"findings": ["f"], "root_cause": "OOM"}`,
		reflection: `{"quality_score": 9}`,
	}
	o := newTestOrchestrator(t, l, Options{Concurrency: 3}, &podLogsTool{output: "x"})

	results := o.RunBatch(context.Background(), []string{"a", "", "c"})

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrEmptyProblem)
	assert.NoError(t, results[2].Err)
	assert.NotEqual(t, results[0].Report.SessionID, results[2].Report.SessionID)
	assert.Equal(t, []string{"f"}, results[0].Report.Findings)
	assert.Equal(t, []string{"f"}, results[2].Report.Findings)
}

func TestRunBatchCancelled(t *testing.T) {
	o := newTestOrchestrator(t, &scriptedLLM{}, Options{Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := o.RunBatch(ctx, []string{"a", "b"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
