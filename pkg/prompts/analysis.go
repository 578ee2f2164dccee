package prompts

import (
	"fmt"

	"github.com/helmcode/kubediag/pkg/model"
)

// MaxToolResultChars bounds the raw tool output sent for analysis.
const MaxToolResultChars = 3000

// BuildAnalysisPrompt asks the model to interpret one tool result.
// The failure patterns are guidance for the model, not classification rules.
func BuildAnalysisPrompt(tool string, args map[string]any, result string, priorFindings []string) string {
	return fmt.Sprintf(`You are a Kubernetes expert interpreting the output of a diagnostic command.

Tool: %s
Arguments: %s

Result:
%s

Previous findings:
%s

Common failure patterns to look for:
- CrashLoopBackOff: exit codes, OOMKilled, panics or fatal errors in logs
- Pending: FailedScheduling events, insufficient cpu or memory, unbound volumes, taints
- ImagePullBackOff: wrong image name or tag, registry authentication failures
- Job failure: non-zero exit, backoff limit reached, deadline exceeded
- Connectivity failure: connection refused, timeouts, DNS resolution errors

Respond in JSON format with this structure:
{
  "summary": "one sentence summary of this result",
  "findings": ["concrete fact 1", "concrete fact 2"],
  "root_cause": "root cause if it is now clear, otherwise null",
  "confidence": 0.8,
  "next_action": "continue|replan|conclude",
  "recommendations": ["recommendation 1"]
}

next_action:
- continue: run the next planned step
- replan: the findings invalidate the current plan
- conclude: the root cause is found or no further progress is possible`,
		tool, FormatArgs(args), Truncate(result, MaxToolResultChars), FormatFindings(priorFindings))
}

// BuildReflectionPrompt asks the model to grade the diagnosis so far.
func BuildReflectionPrompt(plan model.DiagnosticPlan, executed []model.DiagnosticStep, findings []string, rootCause *string) string {
	rc := "not determined"
	if rootCause != nil {
		rc = *rootCause
	}
	return fmt.Sprintf(`You are reviewing a Kubernetes diagnosis for quality.

Planned steps:
%s

Executed steps:
%s

Findings:
%s

Current root cause: %s

Score the diagnosis from 1 to 10 considering completeness, accuracy, depth and efficiency.
Set should_improve to true only if another planning cycle would likely change the conclusion.

Respond in JSON format with this structure:
{
  "quality_score": 7,
  "completeness": "assessment of coverage",
  "accuracy": "assessment of the evidence behind the root cause",
  "suggestions": ["what to check next"],
  "should_improve": false,
  "improvement_focus": "area to focus on if improving"
}`, FormatPlanSteps(plan.Steps), FormatExecutedSteps(executed, MaxStepResultChars), FormatFindings(findings), rc)
}
