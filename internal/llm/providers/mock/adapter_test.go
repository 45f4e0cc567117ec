package mock

import (
	"context"
	"strings"
	"testing"

	"github.com/danshapiro/promptforge/internal/llm"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

func TestComplete_DeterministicForSameRequest(t *testing.T) {
	a := New()
	req := llm.Request{
		Stage:  "optimize",
		Step:   model.StepRole,
		Prompt: "one two three four",
		Model:  "mock-optimizer",
		Prior:  []model.PriorValue{{Step: model.StepIntent, Value: "x"}},
	}
	first, err := a.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	second, err := a.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if first != second {
		t.Fatalf("responses must be identical:\n%+v\n%+v", first, second)
	}
	if first.PromptTokens != 4 || first.CompletionTokens != 2 {
		t.Fatalf("token estimate: %d/%d", first.PromptTokens, first.CompletionTokens)
	}
}

func TestComplete_FeedbackChangesTheCandidate(t *testing.T) {
	a := New()
	req := llm.Request{Stage: "optimize", Step: model.StepGoal, Prompt: "p", Model: "m"}

	plain, _ := a.Complete(context.Background(), req)
	req.Feedback = []string{"tighter"}
	revised, _ := a.Complete(context.Background(), req)

	if plain.Value == revised.Value {
		t.Fatalf("revision must differ from the rejected candidate")
	}
	if !strings.Contains(revised.Value, "revision 1") {
		t.Fatalf("revised value: %q", revised.Value)
	}
}

func TestComplete_HarmonizeEmitsSectionPerStep(t *testing.T) {
	a := New()
	req := llm.Request{
		Stage:  "harmonize",
		Step:   model.StepHarmonizing,
		Prompt: "p",
		Model:  "m",
		Prior: []model.PriorValue{
			{Step: model.StepIntent, Value: "alpha"},
			{Step: model.StepKeyPoints, Value: "beta"},
		},
	}
	resp, err := a.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(resp.Value, "## Intent\nalpha") {
		t.Fatalf("missing intent section:\n%s", resp.Value)
	}
	if !strings.Contains(resp.Value, "## Key Points\nbeta") {
		t.Fatalf("missing key points section:\n%s", resp.Value)
	}
}

func TestComplete_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Complete(ctx, llm.Request{Stage: "optimize", Step: model.StepIntent, Prompt: "p", Model: "m"}); err == nil {
		t.Fatalf("cancelled context must fail")
	}
}
