package model

import "time"

// StepStatus is the lifecycle state of a single diagnostic step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// NextAction is the analyzer's signal for how the loop should proceed.
type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionReplan   NextAction = "replan"
	ActionConclude NextAction = "conclude"
)

// DiagnosticStep is one tool invocation within a plan.
type DiagnosticStep struct {
	ID              int            `json:"step_id" yaml:"step_id"`
	ToolName        string         `json:"tool" yaml:"tool"`
	Arguments       map[string]any `json:"args" yaml:"args"`
	Reason          string         `json:"reason" yaml:"reason"`
	ExpectedOutcome string         `json:"expected_outcome,omitempty" yaml:"expected_outcome,omitempty"`
	// DependsOn is advisory. Steps always run in index order.
	DependsOn *int       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Status    StepStatus `json:"status" yaml:"status"`
	Result    string     `json:"result,omitempty" yaml:"result,omitempty"`
	// Outcome is the error kind of the dispatch, empty when the tool ran cleanly.
	Outcome ErrorKind `json:"outcome,omitempty" yaml:"outcome,omitempty"`
}

// DiagnosticPlan is the ordered output of the planner for one attempt.
type DiagnosticPlan struct {
	ProblemDescription string           `json:"problem_description" yaml:"problem_description"`
	InitialHypothesis  string           `json:"initial_hypothesis" yaml:"initial_hypothesis"`
	Steps              []DiagnosticStep `json:"steps" yaml:"steps"`
}

// Executed returns copies of the steps that have already run.
func (p *DiagnosticPlan) Executed() []DiagnosticStep {
	if p == nil {
		return nil
	}
	var out []DiagnosticStep
	for _, s := range p.Steps {
		if s.Status == StepCompleted || s.Status == StepFailed {
			out = append(out, s)
		}
	}
	return out
}

// AnalysisResult is the structured interpretation of one tool result.
type AnalysisResult struct {
	Summary         string     `json:"summary"`
	Findings        []string   `json:"findings"`
	RootCause       *string    `json:"root_cause,omitempty"`
	Confidence      float64    `json:"confidence"`
	NextAction      NextAction `json:"next_action"`
	Recommendations []string   `json:"recommendations"`
}

// ReflectionResult is the quality self-assessment of a diagnosis attempt.
type ReflectionResult struct {
	QualityScore     int      `json:"quality_score" yaml:"quality_score"`
	Completeness     string   `json:"completeness" yaml:"completeness"`
	Accuracy         string   `json:"accuracy" yaml:"accuracy"`
	Suggestions      []string `json:"suggestions" yaml:"suggestions"`
	ShouldImprove    bool     `json:"should_improve" yaml:"should_improve"`
	ImprovementFocus string   `json:"improvement_focus" yaml:"improvement_focus"`
}

// ErrorKind classifies a failed tool dispatch.
type ErrorKind string

const (
	KindToolNotFound      ErrorKind = "tool_not_found"
	KindToolExecution     ErrorKind = "tool_execution_error"
	KindSecurityViolation ErrorKind = "security_violation"
)

// ToolOutcome is the result of dispatching one tool call: either output text
// or an error kind with a message. It never carries a Go error.
type ToolOutcome struct {
	Output  string
	Kind    ErrorKind
	Message string
}

// OK reports whether the tool ran without a dispatch error.
func (o ToolOutcome) OK() bool { return o.Kind == "" }

// Text renders the outcome as the step result string.
func (o ToolOutcome) Text() string {
	switch o.Kind {
	case "":
		return o.Output
	case KindToolNotFound:
		return "tool not found: " + o.Message
	case KindSecurityViolation:
		return "security rejection: " + o.Message
	default:
		return "tool execution failed: " + o.Message
	}
}

// SessionState is owned by exactly one diagnosis run.
type SessionState struct {
	ID                string
	Problem           string
	Environment       string
	Plan              DiagnosticPlan
	CurrentStepIndex  int
	Findings          []string
	RootCause         *string
	ShouldReplan      bool
	Iteration         int
	MaxIterations     int
	Reflection        *ReflectionResult
	ReflectionCount   int
	ToolCallsThisPlan int
	History           []DiagnosticStep
	Transcript        []string
	StartedAt         time.Time
}

// NewSession creates the initial state for one diagnosis.
func NewSession(id, problem, environment string, maxIterations int) *SessionState {
	return &SessionState{
		ID:            id,
		Problem:       problem,
		Environment:   environment,
		MaxIterations: maxIterations,
		Findings:      []string{},
		StartedAt:     time.Now(),
	}
}

// AddFindings appends non-empty findings. The list is never truncated.
func (s *SessionState) AddFindings(findings ...string) {
	for _, f := range findings {
		if f != "" {
			s.Findings = append(s.Findings, f)
		}
	}
}

// ReplacePlan archives the executed steps of the current plan, installs a
// fresh plan and resets the per-plan cursor and call budget.
func (s *SessionState) ReplacePlan(p DiagnosticPlan) {
	s.History = append(s.History, s.Plan.Executed()...)
	s.Plan = p
	s.CurrentStepIndex = 0
	s.ToolCallsThisPlan = 0
	s.ShouldReplan = false
}

// ExecutedSteps returns every step run in this session, across plans, in
// execution order.
func (s *SessionState) ExecutedSteps() []DiagnosticStep {
	out := append([]DiagnosticStep{}, s.History...)
	return append(out, s.Plan.Executed()...)
}

// PlanExhausted reports whether every step of the current plan has been consumed.
func (s *SessionState) PlanExhausted() bool {
	return s.CurrentStepIndex >= len(s.Plan.Steps)
}

// Report is the final artifact of a session.
type Report struct {
	SessionID       string            `json:"session_id" yaml:"session_id"`
	Problem         string            `json:"problem" yaml:"problem"`
	Environment     string            `json:"environment" yaml:"environment"`
	Findings        []string          `json:"findings" yaml:"findings"`
	RootCause       string            `json:"root_cause" yaml:"root_cause"`
	RootCauseFound  bool              `json:"root_cause_found" yaml:"root_cause_found"`
	Recommendations []string          `json:"recommendations" yaml:"recommendations"`
	Reflection      *ReflectionResult `json:"reflection,omitempty" yaml:"reflection,omitempty"`
	Iterations      int               `json:"iterations" yaml:"iterations"`
	Steps           []DiagnosticStep  `json:"steps" yaml:"steps"`
	Markdown        string            `json:"markdown" yaml:"-"`
	Duration        time.Duration     `json:"duration" yaml:"duration"`
}
