// Package planner turns a problem statement into an ordered diagnostic plan.
package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/llm"
	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/parser"
	"github.com/helmcode/kubediag/pkg/prompts"
	"github.com/helmcode/kubediag/pkg/tools"
)

type Planner struct {
	llm      llm.LLM
	registry *tools.Registry
	log      *zap.Logger
}

func New(l llm.LLM, registry *tools.Registry, log *zap.Logger) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Planner{llm: l, registry: registry, log: log.Named("planner")}
}

// Plan produces the initial plan. It never fails: a model or parse error
// yields a plan with zero steps.
func (p *Planner) Plan(ctx context.Context, problem, environment string, findings []string) model.DiagnosticPlan {
	prompt := prompts.BuildPlanPrompt(problem, environment, findings, p.registry.Describe())
	return p.complete(ctx, prompt, problem)
}

// Replan produces a replacement plan informed by the executed steps.
func (p *Planner) Replan(ctx context.Context, problem, environment string, previous model.DiagnosticPlan, executed []model.DiagnosticStep, newFindings string) model.DiagnosticPlan {
	prompt := prompts.BuildReplanPrompt(problem, environment, previous, executed, newFindings, p.registry.Describe())
	return p.complete(ctx, prompt, problem)
}

func (p *Planner) complete(ctx context.Context, prompt, problem string) model.DiagnosticPlan {
	raw, err := p.llm.Chat(ctx, prompt)
	metrics.ObserveLLMCall("planner", err)
	if err != nil {
		p.log.Warn("model call failed, using empty plan", zap.Error(err))
		return model.DiagnosticPlan{ProblemDescription: problem, Steps: []model.DiagnosticStep{}}
	}

	plan, skipped, err := parser.ParsePlan(raw, problem)
	if err != nil {
		metrics.ParseFailuresTotal.WithLabelValues("planner").Inc()
		p.log.Warn("failed to parse plan, using empty plan", zap.Error(err), zap.Int("reply_length", len(raw)))
	}
	for _, s := range skipped {
		p.log.Warn("dropped malformed plan step", zap.String("detail", s))
	}
	p.log.Debug("plan generated", zap.Int("steps", len(plan.Steps)))
	return plan
}
