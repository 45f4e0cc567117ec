package llm

import (
	"errors"
	"testing"
)

func TestParseAnalysisText_ValidPayload(t *testing.T) {
	value, rationale, confidence, err := ParseAnalysisText("prov",
		`{"value": "the step text", "rationale": "tight phrasing", "confidence": 0.85}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if value != "the step text" || rationale != "tight phrasing" || confidence != 0.85 {
		t.Fatalf("fields: %q %q %f", value, rationale, confidence)
	}
}

func TestParseAnalysisText_StripsMarkdownFence(t *testing.T) {
	value, _, _, err := ParseAnalysisText("prov", "```json\n{\"value\": \"fenced\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if value != "fenced" {
		t.Fatalf("value: %q", value)
	}
}

func TestParseAnalysisText_RejectsDeviations(t *testing.T) {
	cases := []string{
		"",
		"not json at all",
		`{"rationale": "missing value"}`,
		`{"value": ""}`,
		`{"value": 42}`,
		`{"value": "x", "confidence": 1.5}`,
		`{"value": "x", "extra": true}`,
	}
	for i, text := range cases {
		_, _, _, err := ParseAnalysisText("prov", text)
		var ire *InvalidResponseError
		if !errors.As(err, &ire) {
			t.Fatalf("case %d: expected InvalidResponseError, got %v", i, err)
		}
	}
}

func TestEstimateCost_LongestPrefixMatch(t *testing.T) {
	if c := EstimateCost("claude-sonnet-4-20250514", 1000, 1000); c <= 0 {
		t.Fatalf("known model must price: %f", c)
	}
	if c := EstimateCost("completely-unknown", 1000, 1000); c != 0 {
		t.Fatalf("unknown model must cost zero: %f", c)
	}
}
