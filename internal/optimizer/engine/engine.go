// Package engine is the state machine driving one optimization session:
// strictly forward transitions along the canonical step order, cascading
// rollback to any committed step, and a single harmonization pass before the
// terminal state.
package engine

import (
	"context"
	"time"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
	"github.com/danshapiro/promptforge/internal/optimizer/pipeline"
	"github.com/danshapiro/promptforge/internal/optimizer/trace"
)

// Proposal is an uncommitted candidate for the current step.
type Proposal struct {
	Step       model.StepType
	Value      string
	Rationale  string
	Confidence float64
	// Preview is the rendered document as it would look if this candidate
	// were committed.
	Preview string
}

// Engine holds the authoritative session state. Not safe for concurrent use;
// callers process one session strictly sequentially.
type Engine struct {
	session *model.Session
	runner  *pipeline.Runner
	tracer  trace.Tracer
	now     func() time.Time

	pending *pendingStep
}

// pendingStep tracks the draft state for the step under negotiation: the
// last candidate and the rejection history accumulated before commit.
type pendingStep struct {
	step       model.StepType
	draft      string
	candidate  model.AnalysisResult
	rejections []model.Rejection
}

func New(session *model.Session, runner *pipeline.Runner, tracer trace.Tracer) *Engine {
	if tracer == nil {
		tracer = trace.Nop{}
	}
	return &Engine{
		session: session,
		runner:  runner,
		tracer:  tracer,
		now:     time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Session returns a copy of the current session state.
func (e *Engine) Session() *model.Session {
	return e.session.Clone()
}

// Current returns the step pointer.
func (e *Engine) Current() model.StepType {
	return e.session.Current
}

// Propose runs parse through optimize for the current step and returns an
// uncommitted candidate. The session itself is unchanged apart from the
// token-usage accumulation the client performs.
func (e *Engine) Propose(ctx context.Context, raw string) (*Proposal, error) {
	step := e.session.Current
	if v := guardPropose(e.session); !v.Allowed {
		e.emitGuard("propose", step, v)
		return nil, &TransitionError{Op: "propose", Reason: v.Reason}
	}
	e.emitGuard("propose", step, allow())

	feedback := e.pendingFeedback(step)
	res, err := e.runner.Produce(ctx, e.session.ID, step, raw, e.session.PriorValues(), feedback, &e.session.Usage)
	if err != nil {
		return nil, err
	}

	if e.pending == nil || e.pending.step != step {
		e.pending = &pendingStep{step: step}
	}
	e.pending.draft = raw
	e.pending.candidate = res

	preview := append(e.session.Clone().Steps, model.Step{Type: step, Value: res.Value})
	return &Proposal{
		Step:       step,
		Value:      res.Value,
		Rationale:  res.Rationale,
		Confidence: res.Confidence,
		Preview:    e.runner.RenderDocument(ctx, e.session.ID, step, preview),
	}, nil
}

// Commit appends the step with the given value and advances the pointer. The
// guard requires the step to match the current pointer and the value to pass
// validation; on denial the session is unchanged.
func (e *Engine) Commit(step model.StepType, value string) error {
	if v := guardCommit(e.session, step, value); !v.Allowed {
		e.emitGuard("commit", step, v)
		return &TransitionError{Op: "commit", Reason: v.Reason}
	}
	e.emitGuard("commit", step, allow())

	committed := model.Step{Type: step, Value: value}
	if e.pending != nil && e.pending.step == step {
		committed.Rejections = append([]model.Rejection(nil), e.pending.rejections...)
	}

	next, err := commitSession(e.session, committed, e.now())
	if err != nil {
		return err
	}
	from := e.session.Current
	e.session = next
	e.pending = nil
	e.emitTransition("commit", from, next.Current, nil)
	return nil
}

// Reject records operator feedback against the current candidate and keeps
// the pointer where it is; the next Propose carries the accumulated feedback.
func (e *Engine) Reject(step model.StepType, feedback string) error {
	if v := guardReject(e.session, step); !v.Allowed {
		e.emitGuard("reject", step, v)
		return &TransitionError{Op: "reject", Reason: v.Reason}
	}
	e.emitGuard("reject", step, allow())

	if e.pending == nil || e.pending.step != step {
		e.pending = &pendingStep{step: step}
	}
	e.pending.rejections = append(e.pending.rejections, model.Rejection{
		Candidate: e.pending.candidate.Value,
		Feedback:  feedback,
		At:        e.now().UTC(),
	})
	e.emitTransition("reject", step, step, nil)
	return nil
}

// Rollback discards the target step and every later committed step, resetting
// the pointer to the target. The discarded steps are recorded for audit.
func (e *Engine) Rollback(target model.StepType) error {
	if v := guardRollback(e.session, target); !v.Allowed {
		e.emitGuard("rollback", target, v)
		return &TransitionError{Op: "rollback", Reason: v.Reason}
	}
	e.emitGuard("rollback", target, allow())

	next, discarded, err := rollbackSession(e.session, target, e.now())
	if err != nil {
		return err
	}
	from := e.session.Current
	e.session = next
	e.pending = nil

	names := make([]string, 0, len(discarded))
	for _, d := range discarded {
		names = append(names, string(d.Type))
	}
	e.tracer.OnEvent(context.Background(), trace.Event{
		Type:      trace.EventRollback,
		Timestamp: e.now().UTC(),
		SessionID: e.session.ID,
		Step:      string(target),
		Data: map[string]any{
			"from":            string(from),
			"discarded_steps": names,
		},
	})
	return nil
}

// EnterHarmonizing runs the single whole-session consistency pass and, when
// harmonization and rendering both succeed, moves the session to done. On an
// invalid harmonized payload the session stays in harmonizing so the caller
// can retry.
func (e *Engine) EnterHarmonizing(ctx context.Context) error {
	if v := guardHarmonize(e.session); !v.Allowed {
		e.emitGuard("harmonize", model.StepHarmonizing, v)
		return &TransitionError{Op: "harmonize", Reason: v.Reason}
	}
	e.emitGuard("harmonize", model.StepHarmonizing, allow())

	h := &Harmonizer{runner: e.runner}
	revised, err := h.Run(ctx, e.session, &e.session.Usage)
	if err != nil {
		e.emitTransition("harmonize", model.StepHarmonizing, model.StepHarmonizing, err)
		return err
	}

	next := e.session.Clone()
	next.Steps = revised
	next.FinalPrompt = e.runner.RenderDocument(ctx, e.session.ID, model.StepHarmonizing, revised)
	next.Current = model.StepDone
	next.UpdatedAt = e.now().UTC()
	e.session = next
	e.emitTransition("harmonize", model.StepHarmonizing, model.StepDone, nil)
	return nil
}

// FinalPrompt returns the rendered artifact once the session is done.
func (e *Engine) FinalPrompt() (string, error) {
	if !e.session.Done() {
		return "", &TransitionError{Op: "render", Reason: "session has not reached done"}
	}
	return e.session.FinalPrompt, nil
}

func (e *Engine) pendingFeedback(step model.StepType) []string {
	if e.pending == nil || e.pending.step != step {
		return nil
	}
	out := make([]string, 0, len(e.pending.rejections))
	for _, r := range e.pending.rejections {
		out = append(out, r.Feedback)
	}
	return out
}

func (e *Engine) emitGuard(op string, step model.StepType, v GuardResult) {
	data := map[string]any{"op": op, "allowed": v.Allowed}
	if v.Reason != "" {
		data["reason"] = v.Reason
	}
	e.tracer.OnEvent(context.Background(), trace.Event{
		Type:      trace.EventGuard,
		Timestamp: e.now().UTC(),
		SessionID: e.session.ID,
		Step:      string(step),
		Data:      data,
	})
}

func (e *Engine) emitTransition(op string, from, to model.StepType, err error) {
	data := map[string]any{"op": op, "from": string(from), "to": string(to)}
	if err != nil {
		data["error"] = err.Error()
	}
	e.tracer.OnEvent(context.Background(), trace.Event{
		Type:      trace.EventTransition,
		Timestamp: e.now().UTC(),
		SessionID: e.session.ID,
		Step:      string(to),
		Data:      data,
	})
}
