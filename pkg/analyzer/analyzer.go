package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/helmcode/kubediag/pkg/llm"
	"github.com/helmcode/kubediag/pkg/metrics"
	"github.com/helmcode/kubediag/pkg/model"
	"github.com/helmcode/kubediag/pkg/parser"
	"github.com/helmcode/kubediag/pkg/prompts"
)

// Analyzer interprets one tool result. Classification is left to the model.
type Analyzer struct {
	llm llm.LLM
	log *zap.Logger
}

func New(l llm.LLM, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{llm: l, log: log.Named("analyzer")}
}

// Analyze never fails. An unparseable reply becomes a single finding with
// next_action=continue; a failed model call yields no findings.
func (a *Analyzer) Analyze(ctx context.Context, tool string, args map[string]any, result string, priorFindings []string) model.AnalysisResult {
	prompt := prompts.BuildAnalysisPrompt(tool, args, result, priorFindings)

	rawResp, err := a.llm.Chat(ctx, prompt)
	metrics.ObserveLLMCall("analyzer", err)
	if err != nil {
		a.log.Warn("model call failed, continuing", zap.String("tool", tool), zap.Error(err))
		return model.AnalysisResult{
			Findings:        []string{},
			NextAction:      model.ActionContinue,
			Recommendations: []string{},
		}
	}

	res, err := parser.ParseAnalysis(rawResp)
	if err != nil {
		metrics.ParseFailuresTotal.WithLabelValues("analyzer").Inc()
		a.log.Warn("failed to parse analysis, using raw reply as finding",
			zap.String("tool", tool), zap.Error(err), zap.Int("reply_length", len(rawResp)))
	}
	return res
}
