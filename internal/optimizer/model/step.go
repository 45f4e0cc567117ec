package model

import (
	"strings"
	"time"
)

// StepType identifies one slot in the canonical optimization order, plus the
// two terminal markers used by the current-step pointer.
type StepType string

const (
	StepIntent      StepType = "intent"
	StepRole        StepType = "role"
	StepGoal        StepType = "goal"
	StepContext     StepType = "context"
	StepAudience    StepType = "audience"
	StepKeyPoints   StepType = "key_points"
	StepConstraints StepType = "constraints"
	StepOutput      StepType = "output"

	// Pointer sentinels. Never valid as committed step types.
	StepHarmonizing StepType = "harmonizing"
	StepDone        StepType = "done"
)

var canonicalOrder = []StepType{
	StepIntent,
	StepRole,
	StepGoal,
	StepContext,
	StepAudience,
	StepKeyPoints,
	StepConstraints,
	StepOutput,
}

// Order returns the canonical step sequence. Callers must not mutate the
// returned slice.
func Order() []StepType {
	return canonicalOrder
}

// Index returns the position of t in the canonical order, or -1 for sentinels
// and unknown values.
func (t StepType) Index() int {
	for i, s := range canonicalOrder {
		if s == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the eight committable step types.
func (t StepType) Valid() bool {
	return t.Index() >= 0
}

// Label returns a human-readable name ("key_points" -> "Key Points").
func (t StepType) Label() string {
	parts := strings.Split(string(t), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// ParseStepType resolves user-facing step names (case-insensitive, spaces or
// underscores) to a StepType. Returns false for sentinels and unknown names.
func ParseStepType(s string) (StepType, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	t := StepType(key)
	if t.Valid() {
		return t, true
	}
	return "", false
}

// Rejection is one rejected candidate with the operator feedback that
// accompanied it.
type Rejection struct {
	Candidate string    `json:"candidate"`
	Feedback  string    `json:"feedback"`
	At        time.Time `json:"at"`
}

// Step is one committed parameter slot. Immutable once committed; the
// rejection history is retained for harmonization and tracing.
type Step struct {
	Type       StepType    `json:"type"`
	Value      string      `json:"value"`
	Rejections []Rejection `json:"rejections,omitempty"`
	ApprovedAt time.Time   `json:"approved_at"`
}

// Clone returns a deep copy of the step.
func (s Step) Clone() Step {
	out := s
	if len(s.Rejections) > 0 {
		out.Rejections = append([]Rejection(nil), s.Rejections...)
	}
	return out
}
