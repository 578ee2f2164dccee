// Package executor dispatches plan steps through the security gate.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/prompts"
)

// Dispatcher is the tool invocation boundary. *security.Gate satisfies it.
type Dispatcher interface {
	Invoke(ctx context.Context, sessionID, name string, args map[string]any) model.ToolOutcome
}

const transcriptResultChars = 500

type Executor struct {
	dispatcher      Dispatcher
	maxCallsPerPlan int
	log             *zap.Logger
}

// New creates an executor. maxCallsPerPlan bounds the dispatches made for one
// plan; <= 0 disables the cap.
func New(d Dispatcher, maxCallsPerPlan int, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{dispatcher: d, maxCallsPerPlan: maxCallsPerPlan, log: log.Named("executor")}
}

// Execute runs the step at the session's cursor and records its result on the
// step. It reports false without running anything when the plan is exhausted
// or its call budget is spent; remaining steps stay pending.
// The cursor itself is advanced after analysis.
func (e *Executor) Execute(ctx context.Context, state *model.SessionState) bool {
	if state.CurrentStepIndex < 0 || state.PlanExhausted() {
		return false
	}
	if e.maxCallsPerPlan > 0 && state.ToolCallsThisPlan >= e.maxCallsPerPlan {
		skipped := len(state.Plan.Steps) - state.CurrentStepIndex
		e.log.Info("tool call budget for this plan spent",
			zap.String("session_id", state.ID),
			zap.Int("limit", e.maxCallsPerPlan),
			zap.Int("skipped_steps", skipped),
		)
		state.Transcript = append(state.Transcript,
			fmt.Sprintf("Tool call limit of %d per plan reached, %d steps skipped", e.maxCallsPerPlan, skipped))
		return false
	}

	step := &state.Plan.Steps[state.CurrentStepIndex]
	step.Status = model.StepRunning

	start := time.Now()
	outcome := e.dispatcher.Invoke(ctx, state.ID, step.ToolName, step.Arguments)
	metrics.ToolCallDuration.WithLabelValues(step.ToolName).Observe(time.Since(start).Seconds())
	state.ToolCallsThisPlan++

	// A failed dispatch still completes the step; Outcome carries the error kind.
	step.Status = model.StepCompleted
	step.Result = outcome.Text()
	step.Outcome = outcome.Kind

	label := "ok"
	if !outcome.OK() {
		label = string(outcome.Kind)
		e.log.Warn("step failed",
			zap.String("session_id", state.ID),
			zap.Int("step_id", step.ID),
			zap.String("tool", step.ToolName),
			zap.String("kind", label),
			zap.String("message", outcome.Message),
		)
	}
	if outcome.Kind == model.KindSecurityViolation {
		metrics.SecurityRejectionsTotal.WithLabelValues(step.ToolName).Inc()
	}
	metrics.ToolCallsTotal.WithLabelValues(step.ToolName, label).Inc()

	state.Transcript = append(state.Transcript,
		fmt.Sprintf("Executed %s: %s", step.ToolName, prompts.Truncate(step.Result, transcriptResultChars)))
	return true
}
