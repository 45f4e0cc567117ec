// Package trace is the append-only observability sink for the optimizer. It
// records transition attempts, guard verdicts, stage entry/exit, and LLM call
// fingerprints. Sinks never fail and are never read by the engine.
package trace

import (
	"context"
	"time"
)

type EventType string

const (
	EventTransition EventType = "engine.transition"
	EventGuard      EventType = "engine.guard"
	EventRollback   EventType = "engine.rollback"
	EventStageEnter EventType = "pipeline.stage_enter"
	EventStageExit  EventType = "pipeline.stage_exit"
	EventLLMCall    EventType = "llm.call"
)

// Event is one observability record. SessionID doubles as the correlation id
// across the run.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Step      string
	Data      map[string]any
}

// Tracer receives events. Implementations must not block on the engine's
// mutation path and must never return errors to the caller.
type Tracer interface {
	OnEvent(ctx context.Context, ev Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) OnEvent(context.Context, Event) {}

// Multi fans events out to several sinks in order.
type Multi []Tracer

func (m Multi) OnEvent(ctx context.Context, ev Event) {
	for _, t := range m {
		if t != nil {
			t.OnEvent(ctx, ev)
		}
	}
}
