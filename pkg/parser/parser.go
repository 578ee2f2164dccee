package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/helmcode/kubediag/pkg/model"
)

// ErrNoJSON is returned when no candidate in the reply decodes as JSON.
var ErrNoJSON = errors.New("no JSON object found in model reply")

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// Fallback values used when a reply cannot be decoded.
const (
	DefaultQualityScore = 7
	DefaultConfidence   = 0.0
)

// ExtractJSON locates the JSON payload of a model reply. It tries a fenced
// code block first, then the whole reply, then the outermost brace pair.
func ExtractJSON(raw string) (string, bool) {
	var candidates []string
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, strings.TrimSpace(raw))
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start != -1 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && json.Valid([]byte(c)) {
			return c, true
		}
	}
	return "", false
}

type planWire struct {
	ProblemDescription string           `json:"problem_description"`
	InitialHypothesis  string           `json:"initial_hypothesis"`
	Hypothesis         string           `json:"hypothesis"`
	Steps              []map[string]any `json:"steps"`
}

// ParsePlan decodes a planner reply. On failure it returns a plan with zero
// steps together with the decode error, which callers only log. Steps that
// lack an id, a tool or a reason are dropped and reported in skipped.
func ParsePlan(raw, problem string) (plan model.DiagnosticPlan, skipped []string, err error) {
	plan = model.DiagnosticPlan{ProblemDescription: problem, Steps: []model.DiagnosticStep{}}

	payload, ok := ExtractJSON(raw)
	if !ok {
		return plan, nil, ErrNoJSON
	}
	var wire planWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return plan, nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	if wire.ProblemDescription != "" {
		plan.ProblemDescription = wire.ProblemDescription
	}
	plan.InitialHypothesis = firstNonEmpty(wire.InitialHypothesis, wire.Hypothesis)

	for i, s := range wire.Steps {
		step, err := decodeStep(s)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("step %d: %v", i+1, err))
			continue
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, skipped, nil
}

func decodeStep(s map[string]any) (model.DiagnosticStep, error) {
	id, ok := asInt(s["step_id"])
	if !ok {
		return model.DiagnosticStep{}, errors.New("missing step_id")
	}
	tool := firstNonEmpty(asString(s["tool"]), asString(s["action"]))
	if tool == "" {
		return model.DiagnosticStep{}, errors.New("missing tool")
	}
	reason := strings.TrimSpace(asString(s["reason"]))
	if reason == "" {
		return model.DiagnosticStep{}, errors.New("missing reason")
	}

	args, _ := s["args"].(map[string]any)
	if args == nil {
		args, _ = s["params"].(map[string]any)
	}
	if args == nil {
		args = map[string]any{}
	}

	step := model.DiagnosticStep{
		ID:              id,
		ToolName:        tool,
		Arguments:       args,
		Reason:          reason,
		ExpectedOutcome: asString(s["expected_outcome"]),
		Status:          model.StepPending,
	}
	if dep, ok := asInt(s["depends_on"]); ok {
		step.DependsOn = &dep
	}
	return step, nil
}

type analysisWire struct {
	Summary         string          `json:"summary"`
	Findings        json.RawMessage `json:"findings"`
	Finding         string          `json:"finding"`
	RootCause       *string         `json:"root_cause"`
	Confidence      any             `json:"confidence"`
	NextAction      string          `json:"next_action"`
	Recommendations []string        `json:"recommendations"`
}

// ParseAnalysis decodes an analyzer reply. On failure the raw reply becomes
// the only finding and the next action is continue.
func ParseAnalysis(raw string) (model.AnalysisResult, error) {
	fallback := model.AnalysisResult{
		Findings:        nonEmpty(strings.TrimSpace(raw)),
		NextAction:      model.ActionContinue,
		Recommendations: []string{},
	}

	payload, ok := ExtractJSON(raw)
	if !ok {
		return fallback, ErrNoJSON
	}
	var wire analysisWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return fallback, fmt.Errorf("failed to decode analysis: %w", err)
	}

	res := model.AnalysisResult{
		Summary:         wire.Summary,
		Findings:        decodeFindings(wire.Findings),
		RootCause:       normalizeRootCause(wire.RootCause),
		Confidence:      clamp(asFloat(wire.Confidence), 0, 1),
		NextAction:      normalizeAction(wire.NextAction),
		Recommendations: wire.Recommendations,
	}
	if len(res.Findings) == 0 {
		res.Findings = nonEmpty(wire.Finding)
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}
	return res, nil
}

// findings may arrive as a list or as a single string.
func decodeFindings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := []string{}
		for _, f := range list {
			out = append(out, nonEmpty(strings.TrimSpace(f))...)
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return nonEmpty(strings.TrimSpace(single))
	}
	return []string{}
}

func normalizeRootCause(rc *string) *string {
	if rc == nil {
		return nil
	}
	v := strings.TrimSpace(*rc)
	switch strings.ToLower(v) {
	case "", "null", "none", "n/a", "unknown":
		return nil
	}
	return &v
}

func normalizeAction(a string) model.NextAction {
	switch model.NextAction(strings.ToLower(strings.TrimSpace(a))) {
	case model.ActionReplan:
		return model.ActionReplan
	case model.ActionConclude:
		return model.ActionConclude
	default:
		return model.ActionContinue
	}
}

type reflectionWire struct {
	QualityScore     any      `json:"quality_score"`
	Completeness     string   `json:"completeness"`
	Accuracy         string   `json:"accuracy"`
	Suggestions      []string `json:"suggestions"`
	ShouldImprove    bool     `json:"should_improve"`
	ImprovementFocus string   `json:"improvement_focus"`
}

// DefaultReflection is the conservative result used when a reflection reply
// cannot be decoded. It never requests an improvement cycle.
func DefaultReflection() model.ReflectionResult {
	return model.ReflectionResult{
		QualityScore:  DefaultQualityScore,
		Suggestions:   []string{},
		ShouldImprove: false,
	}
}

// ParseReflection decodes a reflector reply. The score is clamped to [1,10].
func ParseReflection(raw string) (model.ReflectionResult, error) {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return DefaultReflection(), ErrNoJSON
	}
	var wire reflectionWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return DefaultReflection(), fmt.Errorf("failed to decode reflection: %w", err)
	}

	score, ok := asInt(wire.QualityScore)
	if !ok {
		score = DefaultQualityScore
	}
	res := model.ReflectionResult{
		QualityScore:     int(clamp(float64(score), 1, 10)),
		Completeness:     wire.Completeness,
		Accuracy:         wire.Accuracy,
		Suggestions:      wire.Suggestions,
		ShouldImprove:    wire.ShouldImprove,
		ImprovementFocus: wire.ImprovementFocus,
	}
	if res.Suggestions == nil {
		res.Suggestions = []string{}
	}
	return res, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return DefaultConfidence
		}
		return f
	default:
		return DefaultConfidence
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(s string) []string {
	if s == "" {
		return []string{}
	}
	return []string{s}
}
