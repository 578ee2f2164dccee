package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helmcode/kubediag/pkg/model"
)

func stateFor(iteration, maxIter int, rootCause bool, replan bool, index, steps int) *model.SessionState {
	s := model.NewSession("s", "p", "dev", maxIter)
	s.Plan.Steps = make([]model.DiagnosticStep, steps)
	s.Iteration = iteration
	s.CurrentStepIndex = index
	s.ShouldReplan = replan
	if rootCause {
		rc := "OOM"
		s.RootCause = &rc
	}
	return s
}

func TestDecideAfterAnalysisTruthTable(t *testing.T) {
	for _, atMax := range []bool{false, true} {
		for _, rootCause := range []bool{false, true} {
			for _, replan := range []bool{false, true} {
				for _, exhausted := range []bool{false, true} {
					name := fmt.Sprintf("max=%v/root=%v/replan=%v/exhausted=%v", atMax, rootCause, replan, exhausted)
					t.Run(name, func(t *testing.T) {
						iteration := 3
						if atMax {
							iteration = 10
						}
						index := 1
						if exhausted {
							index = 2
						}
						got := DecideAfterAnalysis(stateFor(iteration, 10, rootCause, replan, index, 2))

						var want Decision
						switch {
						case atMax:
							want = Decision{Next: PhaseReflect, Reason: ReasonMaxReached}
						case rootCause:
							want = Decision{Next: PhaseReflect, Reason: ReasonConcluded}
						case replan:
							want = Decision{Next: PhasePlan, Reason: ReasonReplan}
						case exhausted:
							want = Decision{Next: PhaseReflect, Reason: ReasonPlanExhausted}
						default:
							want = Decision{Next: PhaseExecute, Reason: ReasonContinue}
						}
						assert.Equal(t, want, got)
					})
				}
			}
		}
	}
}

func TestDecideAfterAnalysisMaxAlwaysReflects(t *testing.T) {
	s := stateFor(12, 10, false, true, 0, 5)
	assert.Equal(t, PhaseReflect, DecideAfterAnalysis(s).Next)

	s = stateFor(0, 0, false, false, 0, 5)
	assert.Equal(t, PhaseReflect, DecideAfterAnalysis(s).Next)
}

func TestDecideAfterAnalysisEmptyPlan(t *testing.T) {
	s := stateFor(1, 10, false, false, 0, 0)
	assert.Equal(t, Decision{Next: PhaseReflect, Reason: ReasonPlanExhausted}, DecideAfterAnalysis(s))
}

func TestDecideAfterReflection(t *testing.T) {
	for count := 0; count <= 3; count++ {
		for score := 1; score <= 10; score++ {
			for _, improve := range []bool{false, true} {
				s := model.NewSession("s", "p", "dev", 10)
				s.ReflectionCount = count
				s.Reflection = &model.ReflectionResult{QualityScore: score, ShouldImprove: improve}

				got := DecideAfterReflection(s)

				if count >= MaxReflectionCount {
					assert.Equal(t, Decision{Next: PhaseReport, Reason: ReasonAccept}, got, "count=%d score=%d improve=%v", count, score, improve)
					continue
				}
				if score < QualityThreshold && improve {
					assert.Equal(t, Decision{Next: PhasePlan, Reason: ReasonImprove}, got, "count=%d score=%d", count, score)
				} else {
					assert.Equal(t, Decision{Next: PhaseReport, Reason: ReasonAccept}, got, "count=%d score=%d improve=%v", count, score, improve)
				}
			}
		}
	}
}

func TestDecideAfterReflectionWithoutReflection(t *testing.T) {
	s := model.NewSession("s", "p", "dev", 10)
	assert.Equal(t, PhaseReport, DecideAfterReflection(s).Next)
}
