// Package pipeline implements the per-step transformation chain:
// parse -> validate -> normalize -> optimize -> render. Every stage consumes
// and produces typed values; optimize is the only stage with a side effect
// (the LLM call).
package pipeline

import (
	"fmt"
	"strings"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

// StageError is a stage-level contract violation. The engine converts it into
// a feedback request instead of crashing the session.
type StageError struct {
	Stage   string
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s: %s", e.Stage, e.Message)
}

// MaxDraftLen bounds operator input. Anything longer is a validate failure,
// not a truncation.
const MaxDraftLen = 8000

// StageInput is the structured value flowing between stages.
type StageInput struct {
	Step     model.StepType
	Draft    string
	Prior    []model.PriorValue
	Feedback []string
}

// Parse turns raw operator text into a structured stage input. The first step
// requires a draft; later steps may derive their value from prior parameters
// alone.
func Parse(step model.StepType, raw string, prior []model.PriorValue, feedback []string) (StageInput, error) {
	if !step.Valid() {
		return StageInput{}, &StageError{Stage: "parse", Message: fmt.Sprintf("unknown step type %q", step)}
	}
	draft := strings.TrimSpace(raw)
	if step == model.StepIntent && draft == "" {
		return StageInput{}, &StageError{Stage: "parse", Message: "a draft prompt is required for the intent step"}
	}
	return StageInput{
		Step:     step,
		Draft:    draft,
		Prior:    append([]model.PriorValue(nil), prior...),
		Feedback: append([]string(nil), feedback...),
	}, nil
}

// Validate checks structural constraints: length bounds, forbidden control
// characters, and presence of every earlier canonical step. Fails fast.
func Validate(in StageInput) error {
	if len(in.Draft) > MaxDraftLen {
		return &StageError{Stage: "validate", Message: fmt.Sprintf("draft exceeds %d characters", MaxDraftLen)}
	}
	if ContainsControlCharacters(in.Draft) {
		return &StageError{Stage: "validate", Message: "draft contains control characters"}
	}
	want := in.Step.Index()
	if len(in.Prior) != want {
		return &StageError{Stage: "validate", Message: fmt.Sprintf(
			"step %s requires %d prior parameters, have %d", in.Step, want, len(in.Prior))}
	}
	for i, p := range in.Prior {
		if p.Step != model.Order()[i] {
			return &StageError{Stage: "validate", Message: fmt.Sprintf(
				"prior parameter %d is %s, want %s", i, p.Step, model.Order()[i])}
		}
		if strings.TrimSpace(p.Value) == "" {
			return &StageError{Stage: "validate", Message: fmt.Sprintf("prior parameter %s is empty", p.Step)}
		}
	}
	return nil
}

// ContainsControlCharacters reports whether s contains control characters
// other than newline and tab. Drafts and committed values are held to the
// same rule.
func ContainsControlCharacters(s string) bool {
	return strings.IndexFunc(s, forbiddenRune) >= 0
}

func forbiddenRune(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	return r < 0x20 || r == 0x7f
}

// Normalize canonicalizes whitespace. Total function: never fails.
func Normalize(in StageInput) StageInput {
	in.Draft = normalizeText(in.Draft)
	for i := range in.Feedback {
		in.Feedback[i] = normalizeText(in.Feedback[i])
	}
	return in
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		lines[i] = strings.Join(fields, " ")
	}
	out := strings.Join(lines, "\n")
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

// Render turns a step sequence into the output document. Pure; used for both
// the per-step preview and the final artifact.
func Render(steps []model.Step) string {
	var b strings.Builder
	b.WriteString("# Optimized Prompt\n")
	for _, st := range steps {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", st.Type.Label(), st.Value)
	}
	return b.String()
}
