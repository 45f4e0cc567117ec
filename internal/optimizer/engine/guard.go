package engine

import (
	"fmt"
	"strings"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
	"github.com/danshapiro/promptforge/internal/optimizer/pipeline"
)

// GuardResult is the transient verdict on whether a transition is legal.
// Never persisted; denials become TransitionErrors and tracer events.
type GuardResult struct {
	Allowed bool
	Reason  string
}

func allow() GuardResult             { return GuardResult{Allowed: true} }
func deny(reason string) GuardResult { return GuardResult{Reason: reason} }

// TransitionError is an illegal transition. The session is left unchanged.
type TransitionError struct {
	Op     string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s: %s", e.Op, e.Reason)
}

func guardPropose(s *model.Session) GuardResult {
	if !s.Current.Valid() {
		return deny(fmt.Sprintf("current step is %s, nothing to propose", s.Current))
	}
	return allow()
}

func guardCommit(s *model.Session, step model.StepType, value string) GuardResult {
	if step != s.Current {
		return deny(fmt.Sprintf("step %s does not match current pointer %s", step, s.Current))
	}
	if !step.Valid() {
		return deny(fmt.Sprintf("%s is not a committable step", step))
	}
	if _, dup := s.Committed(step); dup {
		return deny(fmt.Sprintf("step %s is already committed", step))
	}
	if strings.TrimSpace(value) == "" {
		return deny("value is empty")
	}
	if len(value) > pipeline.MaxDraftLen {
		return deny(fmt.Sprintf("value exceeds %d characters", pipeline.MaxDraftLen))
	}
	if pipeline.ContainsControlCharacters(value) {
		return deny("value contains control characters")
	}
	return allow()
}

func guardReject(s *model.Session, step model.StepType) GuardResult {
	if step != s.Current {
		return deny(fmt.Sprintf("step %s does not match current pointer %s", step, s.Current))
	}
	return allow()
}

func guardRollback(s *model.Session, target model.StepType) GuardResult {
	if s.Done() {
		return deny("session is done")
	}
	if _, ok := s.Committed(target); !ok {
		return deny(fmt.Sprintf("step %s was never committed", target))
	}
	return allow()
}

func guardHarmonize(s *model.Session) GuardResult {
	if s.Current != model.StepHarmonizing {
		return deny(fmt.Sprintf("current step is %s, not %s", s.Current, model.StepHarmonizing))
	}
	if !s.AllStepsCommitted() {
		return deny("not all steps are committed")
	}
	return allow()
}
