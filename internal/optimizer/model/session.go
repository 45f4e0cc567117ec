package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is the session persistence schema understood by this build.
// Deserialization rejects any other version rather than attempting partial
// recovery.
const SchemaVersion = 1

// Session is the root aggregate for one optimization run. The committed step
// sequence is always a prefix of the canonical order; Current points at the
// next step to fill, or at StepHarmonizing/StepDone.
type Session struct {
	ID            string     `json:"session_id"`
	SchemaVersion int        `json:"schema_version"`
	Steps         []Step     `json:"committed_steps"`
	Current       StepType   `json:"current_step"`
	Usage         TokenUsage `json:"token_usage"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// FinalPrompt is set when harmonization and rendering succeed and the
	// session reaches StepDone.
	FinalPrompt string `json:"final_prompt,omitempty"`
}

// NewSession creates an empty session positioned at the first canonical step.
func NewSession(now time.Time) *Session {
	return &Session{
		ID:            ulid.Make().String(),
		SchemaVersion: SchemaVersion,
		Current:       canonicalOrder[0],
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

// Clone returns a deep copy. Transitions operate on clones so a failed guard
// leaves the caller's session untouched.
func (s *Session) Clone() *Session {
	out := *s
	out.Steps = make([]Step, len(s.Steps))
	for i, st := range s.Steps {
		out.Steps[i] = st.Clone()
	}
	return &out
}

// Committed returns the committed step of the given type, if present.
func (s *Session) Committed(t StepType) (Step, bool) {
	for _, st := range s.Steps {
		if st.Type == t {
			return st, true
		}
	}
	return Step{}, false
}

// PriorValues returns the committed (type, value) pairs in canonical order.
type PriorValue struct {
	Step  StepType `json:"step"`
	Value string   `json:"value"`
}

func (s *Session) PriorValues() []PriorValue {
	out := make([]PriorValue, 0, len(s.Steps))
	for _, st := range s.Steps {
		out = append(out, PriorValue{Step: st.Type, Value: st.Value})
	}
	return out
}

// Done reports whether the session reached its terminal state.
func (s *Session) Done() bool {
	return s.Current == StepDone
}

// AllStepsCommitted reports whether every canonical step is committed.
func (s *Session) AllStepsCommitted() bool {
	return len(s.Steps) == len(canonicalOrder)
}
