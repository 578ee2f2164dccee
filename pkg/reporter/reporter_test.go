package reporter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmcode/kubediag/pkg/model"
)

const (
	memoryBullet  = "Check the application's memory configuration and consider raising resource limits"
	scalingBullet = "Scale out the cluster's node pool"
	networkBullet = "Check network policies between the workload and its dependencies"
)

func TestRecommendations(t *testing.T) {
	tests := []struct {
		rootCause string
		contains  []string
		excludes  []string
	}{
		{rootCause: "OOM", contains: []string{memoryBullet}, excludes: []string{networkBullet, scalingBullet}},
		{rootCause: "container in CrashLoopBackOff", contains: []string{memoryBullet}},
		{rootCause: "Pod stuck Pending", contains: []string{scalingBullet}, excludes: []string{memoryBullet}},
		{rootCause: "0/3 nodes: Insufficient memory", contains: []string{scalingBullet}},
		{rootCause: "database connection refused", contains: []string{networkBullet}},
		{rootCause: "upstream TIMEOUT after 30s", contains: []string{networkBullet}},
		{rootCause: "OOM after connection storm", contains: []string{memoryBullet, networkBullet}},
		{rootCause: "wrong image tag", contains: []string{genericRecommendation}, excludes: []string{memoryBullet, scalingBullet, networkBullet}},
	}

	for _, tt := range tests {
		t.Run(tt.rootCause, func(t *testing.T) {
			recs := Recommendations(tt.rootCause)
			for _, c := range tt.contains {
				assert.Contains(t, recs, c)
			}
			for _, e := range tt.excludes {
				assert.NotContains(t, recs, e)
			}
		})
	}
}

func TestRecommendationsKeywordCase(t *testing.T) {
	// "oom" in lower case is not the OOM marker.
	assert.Equal(t, []string{genericRecommendation}, Recommendations("room for improvement"))
}

func TestBuildWithRootCause(t *testing.T) {
	state := model.NewSession("s-1", "pod checkout-7x crashes repeatedly", "prod", 10)
	state.ReplacePlan(model.DiagnosticPlan{Steps: []model.DiagnosticStep{
		{ID: 1, ToolName: "get_pod_logs", Status: model.StepCompleted, Result: "OOMKilled"},
		{ID: 2, ToolName: "describe_pod", Status: model.StepPending},
	}})
	state.AddFindings("container was OOMKilled")
	rc := "OOM"
	state.RootCause = &rc
	state.Iteration = 1

	report := Build(state)

	assert.True(t, report.RootCauseFound)
	assert.Equal(t, "OOM", report.RootCause)
	assert.Equal(t, 1, report.Iterations)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, "get_pod_logs", report.Steps[0].ToolName)

	md := report.Markdown
	assert.Contains(t, md, "## Problem\npod checkout-7x crashes repeatedly")
	assert.Contains(t, md, "## Environment\nprod")
	assert.Contains(t, md, "- container was OOMKilled")
	assert.Contains(t, md, "## Root Cause\nOOM")
	assert.Contains(t, md, "- "+memoryBullet)
	assert.NotContains(t, md, networkBullet)
}

func TestBuildKeepsStepsAcrossPlans(t *testing.T) {
	state := model.NewSession("s-3", "orders API times out", "prod", 10)
	state.ReplacePlan(model.DiagnosticPlan{Steps: []model.DiagnosticStep{
		{ID: 1, ToolName: "list_pods", Status: model.StepCompleted, Result: "3 pods"},
		{ID: 2, ToolName: "get_events", Status: model.StepPending},
	}})
	state.ReplacePlan(model.DiagnosticPlan{Steps: []model.DiagnosticStep{
		{ID: 1, ToolName: "get_pod_logs", Status: model.StepCompleted, Result: "timeout"},
	}})

	report := Build(state)

	require.Len(t, report.Steps, 2)
	assert.Equal(t, "list_pods", report.Steps[0].ToolName)
	assert.Equal(t, "get_pod_logs", report.Steps[1].ToolName)
}

func TestBuildWithoutRootCause(t *testing.T) {
	state := model.NewSession("s-2", "something is off", "dev", 10)

	report := Build(state)

	assert.False(t, report.RootCauseFound)
	assert.Equal(t, RootCauseUndetermined, report.RootCause)
	assert.Equal(t, []string{genericRecommendation}, report.Recommendations)
	assert.Contains(t, report.Markdown, "## Findings\n- none")
	assert.Empty(t, report.Steps)
}
