// Package prompts owns the meta-prompt templates the optimizer sends to a
// backend. The engine asks for pre-rendered text by step type and never
// touches template syntax itself.
package prompts

import (
	"fmt"
	"strings"

	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

// TemplateError is a template resolution failure. Fatal for the in-flight
// proposal only; the session is untouched.
type TemplateError struct {
	Key string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("no prompt template for key %q", e.Key)
}

const stepTemplate = `You are assisting with a structured prompt optimization process.
Evaluate and expand the "{{step}}" dimension of the prompt being built.

Guidance for this dimension:
{{guidance}}

Draft prompt from the operator:
{{draft}}

Previously collected parameters:
{{parameters}}

Operator feedback on rejected candidates (most recent last):
{{feedback}}

Respond with a single JSON object and nothing else:
{"value": "<your concise recommendation for the {{step}}>", "rationale": "<one or two sentences of justification>", "confidence": <0.0-1.0>}`

const harmonizeTemplate = `You are the final reviewer for an optimized prompt.
The parameters below were collected independently and may contradict each
other (tone vs. audience, constraints vs. output format). Resolve every
inconsistency while preserving the operator's intent. Do not add or remove
parameters.

Collected parameters:
{{parameters}}

Respond with a single JSON object and nothing else. The "value" field must
contain one markdown section per parameter, in the same order, formatted as:
## <Parameter Name>
<revised text>

{"value": "<the sectioned markdown>", "rationale": "<key changes you applied>", "confidence": <0.0-1.0>}`

var stepGuidance = map[model.StepType]string{
	model.StepIntent:      "State what the operator ultimately wants the model to do, in one actionable sentence.",
	model.StepRole:        "Name the persona or expertise the model should adopt.",
	model.StepGoal:        "Define the measurable outcome a successful response achieves.",
	model.StepContext:     "Capture background facts the model needs; omit anything it can infer.",
	model.StepAudience:    "Describe who will consume the output and their expertise level.",
	model.StepKeyPoints:   "List the content elements the response must cover.",
	model.StepConstraints: "State hard limits: length, tone, forbidden content, required style.",
	model.StepOutput:      "Specify the concrete output format and structure.",
}

// Catalog resolves and fills meta-prompt templates.
type Catalog struct{}

func NewCatalog() *Catalog { return &Catalog{} }

// RenderStep fills the per-step analysis template.
func (c *Catalog) RenderStep(step model.StepType, draft string, prior []model.PriorValue, feedback []string) (string, error) {
	guidance, ok := stepGuidance[step]
	if !ok {
		return "", &TemplateError{Key: string(step)}
	}
	r := strings.NewReplacer(
		"{{step}}", step.Label(),
		"{{guidance}}", guidance,
		"{{draft}}", orNone(draft),
		"{{parameters}}", formatParameters(prior),
		"{{feedback}}", formatFeedback(feedback),
	)
	return r.Replace(stepTemplate), nil
}

// RenderHarmonize fills the global consistency template with the full
// committed sequence.
func (c *Catalog) RenderHarmonize(prior []model.PriorValue) (string, error) {
	if len(prior) == 0 {
		return "", &TemplateError{Key: "harmonize"}
	}
	r := strings.NewReplacer(
		"{{parameters}}", formatParameters(prior),
	)
	return r.Replace(harmonizeTemplate), nil
}

func formatParameters(prior []model.PriorValue) string {
	if len(prior) == 0 {
		return "(none collected yet)"
	}
	var b strings.Builder
	for _, p := range prior {
		fmt.Fprintf(&b, "- %s: %s\n", p.Step.Label(), p.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatFeedback(feedback []string) string {
	if len(feedback) == 0 {
		return "(none provided)"
	}
	var b strings.Builder
	for _, f := range feedback {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none provided)"
	}
	return s
}
