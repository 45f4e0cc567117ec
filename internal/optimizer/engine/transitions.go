package engine

import (
	"time"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

// The transition core: pure functions from (session, args) to a new session
// or an error. Callers see either the unchanged input or a fresh clone; no
// transition mutates its argument.

func commitSession(s *model.Session, step model.Step, now time.Time) (*model.Session, error) {
	if v := guardCommit(s, step.Type, step.Value); !v.Allowed {
		return nil, &TransitionError{Op: "commit", Reason: v.Reason}
	}
	out := s.Clone()
	step.ApprovedAt = now.UTC()
	out.Steps = append(out.Steps, step)
	out.Current = nextPointer(step.Type)
	out.UpdatedAt = now.UTC()
	return out, nil
}

func rollbackSession(s *model.Session, target model.StepType, now time.Time) (*model.Session, []model.Step, error) {
	if v := guardRollback(s, target); !v.Allowed {
		return nil, nil, &TransitionError{Op: "rollback", Reason: v.Reason}
	}
	out := s.Clone()
	idx := target.Index()
	discarded := append([]model.Step(nil), out.Steps[idx:]...)
	out.Steps = out.Steps[:idx]
	out.Current = target
	out.FinalPrompt = ""
	out.UpdatedAt = now.UTC()
	return out, discarded, nil
}

func nextPointer(committed model.StepType) model.StepType {
	order := model.Order()
	idx := committed.Index()
	if idx < 0 || idx+1 >= len(order) {
		return model.StepHarmonizing
	}
	return order[idx+1]
}
