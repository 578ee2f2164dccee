// Package reflector grades a diagnosis attempt and decides whether another
// planning cycle is worthwhile.
package reflector

import (
	"context"

	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/llm"
	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/parser"
	"github.com/helmcode/kubediag/pkg/prompts"
)

type Reflector struct {
	llm llm.LLM
	log *zap.Logger
}

func New(l llm.LLM, log *zap.Logger) *Reflector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reflector{llm: l, log: log.Named("reflector")}
}

// Reflect scores the session. Any failure yields the conservative default,
// which never asks for improvement.
func (r *Reflector) Reflect(ctx context.Context, state *model.SessionState) model.ReflectionResult {
	prompt := prompts.BuildReflectionPrompt(state.Plan, state.ExecutedSteps(), state.Findings, state.RootCause)

	raw, err := r.llm.Chat(ctx, prompt)
	metrics.ObserveLLMCall("reflector", err)
	if err != nil {
		r.log.Warn("model call failed, accepting diagnosis", zap.String("session_id", state.ID), zap.Error(err))
		return parser.DefaultReflection()
	}

	res, err := parser.ParseReflection(raw)
	if err != nil {
		metrics.ParseFailuresTotal.WithLabelValues("reflector").Inc()
		r.log.Warn("failed to parse reflection, accepting diagnosis",
			zap.String("session_id", state.ID), zap.Error(err), zap.Int("reply_length", len(raw)))
	}
	return res
}
