// Package mock is the deterministic offline backend used in dry-run mode and
// throughout the pipeline and engine tests. Responses are pure functions of
// the request, so two runs over the same session produce identical output.
package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/danshapiro/promptforge/internal/llm"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Name() string { return "mock" }

func (a *Adapter) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}

	promptTokens := len(strings.Fields(req.Prompt))
	completionTokens := promptTokens / 2
	if completionTokens < 1 {
		completionTokens = 1
	}

	var value, rationale string
	if req.Stage == "harmonize" {
		value = harmonizedDocument(req.Prior)
		rationale = "Aligned terminology and tone across all collected parameters."
	} else {
		value = stepValue(req)
		rationale = fmt.Sprintf("Synthesized %s from the draft and %d prior parameters.",
			strings.ToLower(req.Step.Label()), len(req.Prior))
	}

	return llm.Response{
		Provider:         a.Name(),
		Model:            req.Model,
		Value:            value,
		Rationale:        rationale,
		Confidence:       0.9,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func stepValue(req llm.Request) string {
	base := fmt.Sprintf("%s: synthesized recommendation based on the draft", req.Step.Label())
	if n := len(req.Feedback); n > 0 {
		// Revisions must differ from the rejected candidate or the operator
		// would loop forever in dry-run walkthroughs.
		base = fmt.Sprintf("%s (revision %d)", base, n)
	}
	return base
}

// harmonizedDocument emits the section-per-step document the harmonizer
// parses, echoing the committed values unchanged.
func harmonizedDocument(prior []model.PriorValue) string {
	var b strings.Builder
	for _, p := range prior {
		fmt.Fprintf(&b, "## %s\n%s\n\n", p.Step.Label(), p.Value)
	}
	return strings.TrimSpace(b.String())
}
