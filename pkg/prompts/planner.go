package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/helmcode/kubediag/pkg/model"
)

// MaxStepResultChars bounds each executed step result quoted back to the model.
const MaxStepResultChars = 500

const planStrategy = `Diagnostic strategies for common failures:
1. CrashLoopBackOff: get_pod_logs, get_previous_logs, describe_pod
2. Pending: describe_pod, get_events (scheduling failures)
3. ImagePullBackOff: describe_pod (image name), get_events (pull errors)
4. Job failure: describe_job, get_job_logs, get_events
5. Connection failure or timeout: exec_in_pod (ping, nslookup, env), list_pods for the target service`

const planFormat = `Respond in JSON format with this structure:
{
  "problem_description": "short restatement of the problem",
  "initial_hypothesis": "most likely cause given what is known",
  "steps": [
    {
      "step_id": 1,
      "tool": "tool name",
      "args": {"namespace": "xxx"},
      "reason": "why this step is needed",
      "expected_outcome": "what information it should reveal",
      "depends_on": null
    }
  ]
}`

// BuildPlanPrompt asks for an initial diagnostic plan.
func BuildPlanPrompt(problem, environment string, findings []string, toolCatalog string) string {
	return fmt.Sprintf(`You are a Kubernetes expert diagnosing a failing workload.

Problem: %s
Environment: %s

Findings so far:
%s

Available tools:
%s

%s

Start broad (list_pods, get_events) before drilling into a specific resource.
Keep each step to a single tool call and only use the tools listed above.

%s`, problem, environment, FormatFindings(findings), toolCatalog, planStrategy, planFormat)
}

// BuildReplanPrompt asks for a revised plan given what has already been executed.
func BuildReplanPrompt(problem, environment string, previous model.DiagnosticPlan, executed []model.DiagnosticStep, newFindings string, toolCatalog string) string {
	return fmt.Sprintf(`You are a Kubernetes expert diagnosing a failing workload. The current plan needs revision.

Problem: %s
Environment: %s

Previous hypothesis: %s
Previous plan:
%s

Executed steps:
%s

New findings:
%s

Available tools:
%s

Produce a new plan that builds on what was learned. Do not repeat steps whose results are already known.

%s`, problem, environment, orNone(previous.InitialHypothesis), FormatPlanSteps(previous.Steps),
		FormatExecutedSteps(executed, MaxStepResultChars), orNone(newFindings), toolCatalog, planFormat)
}

// FormatFindings renders findings as a bullet list, or "none".
func FormatFindings(findings []string) string {
	if len(findings) == 0 {
		return "none"
	}
	return "- " + strings.Join(findings, "\n- ")
}

// FormatPlanSteps lists step ids, tools and reasons.
func FormatPlanSteps(steps []model.DiagnosticStep) string {
	if len(steps) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "%d. %s: %s\n", s.ID, s.ToolName, s.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatExecutedSteps renders executed steps with their results cut to limit.
func FormatExecutedSteps(steps []model.DiagnosticStep, limit int) string {
	if len(steps) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "Step %d: %s\n", s.ID, s.ToolName)
		fmt.Fprintf(&b, "  Args: %s\n", FormatArgs(s.Arguments))
		fmt.Fprintf(&b, "  Result: %s\n", Truncate(s.Result, limit))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatArgs renders tool arguments as compact JSON.
func FormatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(raw)
}

// Truncate cuts s to at most n characters, marking the cut. It never splits a rune.
func Truncate(s string, n int) string {
	i := 0
	for count := 0; i < len(s); count++ {
		if count >= n {
			return s[:i] + "..."
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
