// Package reporter renders the final diagnosis report. It performs no model calls.
package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/helmcode/kubediag/pkg/model"
)

// RootCauseUndetermined is reported when no analysis produced a root cause.
const RootCauseUndetermined = "Root cause could not be determined"

const genericRecommendation = "Investigate further based on the findings above"

type rule struct {
	match           func(rootCause string) bool
	recommendations []string
}

var rules = []rule{
	{
		match: func(rc string) bool {
			return strings.Contains(rc, "CrashLoopBackOff") || strings.Contains(rc, "OOM")
		},
		recommendations: []string{
			"Check the application's memory configuration and consider raising resource limits",
			"Review application logs and fix application-level errors",
		},
	},
	{
		match: func(rc string) bool {
			lower := strings.ToLower(rc)
			return strings.Contains(rc, "Pending") ||
				strings.Contains(lower, "insufficient") ||
				strings.Contains(lower, "resource shortage")
		},
		recommendations: []string{
			"Scale out the cluster's node pool",
			"Reduce the pod's resource requests",
		},
	},
	{
		match: func(rc string) bool {
			lower := strings.ToLower(rc)
			return strings.Contains(lower, "timeout") || strings.Contains(lower, "connect")
		},
		recommendations: []string{
			"Check network policies between the workload and its dependencies",
			"Verify that the target service is running and reachable",
		},
	},
}

// Recommendations maps root-cause text to fixed advice by keyword. Several
// rules may match; when none does a single generic bullet is returned.
func Recommendations(rootCause string) []string {
	var out []string
	for _, r := range rules {
		if r.match(rootCause) {
			out = append(out, r.recommendations...)
		}
	}
	if len(out) == 0 {
		out = []string{genericRecommendation}
	}
	return out
}

// Build assembles the report for a finished session.
func Build(state *model.SessionState) model.Report {
	rootCause := RootCauseUndetermined
	found := false
	if state.RootCause != nil && strings.TrimSpace(*state.RootCause) != "" {
		rootCause = *state.RootCause
		found = true
	}

	findings := append([]string{}, state.Findings...)
	report := model.Report{
		SessionID:       state.ID,
		Problem:         state.Problem,
		Environment:     state.Environment,
		Findings:        findings,
		RootCause:       rootCause,
		RootCauseFound:  found,
		Recommendations: Recommendations(rootCause),
		Reflection:      state.Reflection,
		Iterations:      state.Iteration,
		Steps:           state.ExecutedSteps(),
		Duration:        time.Since(state.StartedAt).Round(time.Millisecond),
	}
	report.Markdown = Markdown(report)
	return report
}

// Markdown renders the report body.
func Markdown(r model.Report) string {
	var b strings.Builder
	b.WriteString("# Kubernetes Diagnosis Report\n\n")
	fmt.Fprintf(&b, "## Problem\n%s\n\n", r.Problem)
	fmt.Fprintf(&b, "## Environment\n%s\n\n", r.Environment)

	b.WriteString("## Findings\n")
	if len(r.Findings) == 0 {
		b.WriteString("- none\n")
	}
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}

	fmt.Fprintf(&b, "\n## Root Cause\n%s\n\n", r.RootCause)

	b.WriteString("## Recommendations\n")
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	return b.String()
}
