package model

import (
	"testing"
	"time"
)

func TestStepType_CanonicalOrderAndIndex(t *testing.T) {
	order := Order()
	if len(order) != 8 {
		t.Fatalf("canonical order length: %d", len(order))
	}
	if order[0] != StepIntent || order[7] != StepOutput {
		t.Fatalf("canonical order endpoints: %s .. %s", order[0], order[7])
	}
	for i, s := range order {
		if s.Index() != i {
			t.Fatalf("%s index: %d", s, s.Index())
		}
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if StepHarmonizing.Valid() || StepDone.Valid() {
		t.Fatalf("sentinels must not be valid committable steps")
	}
	if StepHarmonizing.Index() != -1 {
		t.Fatalf("sentinel index: %d", StepHarmonizing.Index())
	}
}

func TestStepType_Label(t *testing.T) {
	if got := StepKeyPoints.Label(); got != "Key Points" {
		t.Fatalf("key_points label: %q", got)
	}
	if got := StepIntent.Label(); got != "Intent" {
		t.Fatalf("intent label: %q", got)
	}
}

func TestParseStepType(t *testing.T) {
	for _, in := range []string{"key_points", "Key Points", " KEY_POINTS "} {
		got, ok := ParseStepType(in)
		if !ok || got != StepKeyPoints {
			t.Fatalf("parse %q: %v %v", in, got, ok)
		}
	}
	if _, ok := ParseStepType("harmonizing"); ok {
		t.Fatalf("sentinels must not parse")
	}
	if _, ok := ParseStepType("bogus"); ok {
		t.Fatalf("unknown names must not parse")
	}
}

func TestStep_CloneIsDeep(t *testing.T) {
	orig := Step{
		Type:  StepRole,
		Value: "a senior editor",
		Rejections: []Rejection{
			{Candidate: "an editor", Feedback: "more senior", At: time.Now()},
		},
	}
	cp := orig.Clone()
	cp.Rejections[0].Feedback = "changed"
	if orig.Rejections[0].Feedback != "more senior" {
		t.Fatalf("clone shares rejection backing array")
	}
}
