// Package orchestrator runs the bounded plan/execute/analyze/reflect/report
// loop for one diagnosis session, and bounded batches of sessions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/analyzer"
	"github.com/helmcode/kubediag/pkg/executor"
	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/planner"
	"github.com/helmcode/kubediag/pkg/reflector"
	"github.com/helmcode/kubediag/pkg/reporter"
)

// ErrEmptyProblem is returned by Diagnose for a blank problem statement.
var ErrEmptyProblem = errors.New("problem description is required")

const (
	DefaultMaxIterations = 10
	DefaultConcurrency   = 4
)

// Options configures an Orchestrator.
type Options struct {
	Environment   string
	MaxIterations int
	// Concurrency bounds the number of sessions RunBatch runs at once.
	Concurrency int
	// Progress, if set, is called on every phase change of every session.
	Progress func(sessionID string, phase Phase, detail string)
}

// Orchestrator wires the components into the control loop. It holds no
// per-session state and may run many sessions concurrently.
type Orchestrator struct {
	planner   *planner.Planner
	executor  *executor.Executor
	analyzer  *analyzer.Analyzer
	reflector *reflector.Reflector
	opts      Options
	log       *zap.Logger
}

func New(p *planner.Planner, e *executor.Executor, a *analyzer.Analyzer, r *reflector.Reflector, opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Environment == "" {
		opts.Environment = "default"
	}
	return &Orchestrator{planner: p, executor: e, analyzer: a, reflector: r, opts: opts, log: log}
}

type planMode int

const (
	planInitial planMode = iota
	planReplan
	planImprove
)

// Diagnose runs one session to completion. Component failures degrade into
// report content; the only error is an empty problem. When ctx is done the
// loop jumps to the report with whatever has been gathered.
func (o *Orchestrator) Diagnose(ctx context.Context, problem string) (model.Report, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" {
		return model.Report{}, ErrEmptyProblem
	}

	state := model.NewSession(uuid.NewString(), problem, o.opts.Environment, o.opts.MaxIterations)
	log := o.log.With(zap.String("session_id", state.ID), zap.String("environment", state.Environment))
	log.Info("diagnosis started", zap.String("problem", problem))

	metrics.SessionsInFlight.Inc()
	defer metrics.SessionsInFlight.Dec()

	var (
		report model.Report
		phase  = PhasePlan
		mode   = planInitial
	)
	for phase != PhaseDone {
		if ctx.Err() != nil && phase != PhaseReport {
			log.Warn("context done, reporting early", zap.String("phase", string(phase)), zap.Error(ctx.Err()))
			o.note(state, PhaseReport, ReasonCancelled)
			phase = PhaseReport
		}

		switch phase {
		case PhasePlan:
			o.plan(ctx, state, mode)
			phase = PhaseExecute

		case PhaseExecute:
			o.progress(state, PhaseExecute, o.currentTool(state))
			if o.executor.Execute(ctx, state) {
				phase = PhaseAnalyze
			} else {
				o.note(state, PhaseReflect, ReasonPlanExhausted)
				phase = PhaseReflect
			}

		case PhaseAnalyze:
			o.analyze(ctx, state)
			d := DecideAfterAnalysis(state)
			log.Debug("analysis transition", zap.String("next", string(d.Next)), zap.String("reason", d.Reason), zap.Int("iteration", state.Iteration))
			o.note(state, d.Next, d.Reason)
			if d.Next == PhasePlan {
				mode = planReplan
			}
			phase = d.Next

		case PhaseReflect:
			o.progress(state, PhaseReflect, "")
			ref := o.reflector.Reflect(ctx, state)
			state.Reflection = &ref
			d := DecideAfterReflection(state)
			log.Debug("reflection transition", zap.String("next", string(d.Next)), zap.String("reason", d.Reason), zap.Int("quality_score", ref.QualityScore))
			o.note(state, d.Next, d.Reason)
			if d.Next == PhasePlan {
				state.ReflectionCount++
				mode = planImprove
			}
			phase = d.Next

		case PhaseReport:
			o.progress(state, PhaseReport, "")
			report = reporter.Build(state)
			phase = PhaseDone
		}
	}

	outcome := "undetermined"
	if report.RootCauseFound {
		outcome = "root_cause_found"
	}
	metrics.SessionsTotal.WithLabelValues(state.Environment, outcome).Inc()
	metrics.SessionDuration.WithLabelValues(state.Environment).Observe(time.Since(state.StartedAt).Seconds())
	log.Info("diagnosis finished",
		zap.Bool("root_cause_found", report.RootCauseFound),
		zap.Int("iterations", state.Iteration),
		zap.Int("improvements", state.ReflectionCount),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (o *Orchestrator) plan(ctx context.Context, state *model.SessionState, mode planMode) {
	var plan model.DiagnosticPlan
	switch mode {
	case planInitial:
		o.progress(state, PhasePlan, "initial")
		plan = o.planner.Plan(ctx, state.Problem, state.Environment, state.Findings)
	case planReplan:
		o.progress(state, PhasePlan, "replan")
		plan = o.planner.Replan(ctx, state.Problem, state.Environment, state.Plan, state.Plan.Executed(), strings.Join(state.Findings, "\n"))
	case planImprove:
		o.progress(state, PhasePlan, "improve")
		plan = o.planner.Replan(ctx, state.Problem, state.Environment, state.Plan, state.Plan.Executed(), improvementBrief(state))
	}
	state.ReplacePlan(plan)
	state.Transcript = append(state.Transcript, fmt.Sprintf("Plan: %d steps, hypothesis: %s", len(plan.Steps), plan.InitialHypothesis))
}

// analyze interprets the step just executed and folds the result into the session.
func (o *Orchestrator) analyze(ctx context.Context, state *model.SessionState) {
	step := state.Plan.Steps[state.CurrentStepIndex]
	o.progress(state, PhaseAnalyze, step.ToolName)

	res := o.analyzer.Analyze(ctx, step.ToolName, step.Arguments, step.Result, state.Findings)

	state.AddFindings(res.Findings...)
	state.RootCause = res.RootCause
	state.ShouldReplan = res.NextAction == model.ActionReplan
	state.Iteration++
	state.CurrentStepIndex++
	if res.Summary != "" {
		state.Transcript = append(state.Transcript, "Analysis: "+res.Summary)
	}
}

func improvementBrief(state *model.SessionState) string {
	var b strings.Builder
	b.WriteString(strings.Join(state.Findings, "\n"))
	if state.Reflection == nil {
		return b.String()
	}
	if len(state.Reflection.Suggestions) > 0 {
		b.WriteString("\n\nReviewer suggestions:\n- ")
		b.WriteString(strings.Join(state.Reflection.Suggestions, "\n- "))
	}
	if state.Reflection.ImprovementFocus != "" {
		b.WriteString("\n\nFocus: ")
		b.WriteString(state.Reflection.ImprovementFocus)
	}
	return b.String()
}

func (o *Orchestrator) currentTool(state *model.SessionState) string {
	if state.PlanExhausted() {
		return ""
	}
	return state.Plan.Steps[state.CurrentStepIndex].ToolName
}

func (o *Orchestrator) note(state *model.SessionState, next Phase, reason string) {
	state.Transcript = append(state.Transcript, fmt.Sprintf("Transition: %s (%s)", next, reason))
}

func (o *Orchestrator) progress(state *model.SessionState, phase Phase, detail string) {
	if o.opts.Progress != nil {
		o.opts.Progress(state.ID, phase, detail)
	}
}
