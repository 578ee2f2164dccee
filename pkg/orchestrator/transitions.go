package orchestrator

import "github.com/helmcode/kubediag/pkg/model"

// Phase is a state of the diagnosis control loop.
type Phase string

const (
	PhasePlan    Phase = "plan"
	PhaseExecute Phase = "execute"
	PhaseAnalyze Phase = "analyze"
	PhaseReflect Phase = "reflect"
	PhaseReport  Phase = "report"
	PhaseDone    Phase = "done"
)

const (
	// MaxReflectionCount caps the number of improvement cycles per session.
	MaxReflectionCount = 2
	// QualityThreshold is the score below which an improvement may be requested.
	QualityThreshold = 6
)

// Reasons attached to transitions, used in logs and the session transcript.
const (
	ReasonMaxReached    = "max_reached"
	ReasonConcluded     = "concluded"
	ReasonReplan        = "replan"
	ReasonPlanExhausted = "plan_exhausted"
	ReasonContinue      = "continue"
	ReasonAccept        = "accept"
	ReasonImprove       = "improve"
	ReasonCancelled     = "cancelled"
)

// Decision is the outcome of a transition function.
type Decision struct {
	Next   Phase
	Reason string
}

// DecideAfterAnalysis picks the phase following an analysis pass. It reads
// only the iteration counters, root cause, replan flag and plan cursor.
func DecideAfterAnalysis(s *model.SessionState) Decision {
	switch {
	case s.Iteration >= s.MaxIterations:
		return Decision{Next: PhaseReflect, Reason: ReasonMaxReached}
	case s.RootCause != nil:
		return Decision{Next: PhaseReflect, Reason: ReasonConcluded}
	case s.ShouldReplan:
		return Decision{Next: PhasePlan, Reason: ReasonReplan}
	case s.CurrentStepIndex >= len(s.Plan.Steps):
		return Decision{Next: PhaseReflect, Reason: ReasonPlanExhausted}
	default:
		return Decision{Next: PhaseExecute, Reason: ReasonContinue}
	}
}

// DecideAfterReflection picks between another planning cycle and the report.
// Once MaxReflectionCount improvements have run, it always reports.
func DecideAfterReflection(s *model.SessionState) Decision {
	if s.ReflectionCount >= MaxReflectionCount {
		return Decision{Next: PhaseReport, Reason: ReasonAccept}
	}
	if s.Reflection != nil && s.Reflection.QualityScore < QualityThreshold && s.Reflection.ShouldImprove {
		return Decision{Next: PhasePlan, Reason: ReasonImprove}
	}
	return Decision{Next: PhaseReport, Reason: ReasonAccept}
}
