package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// analysisSchema is the contract every backend answer must satisfy. The
// meta-prompts instruct the model to emit exactly this object.
const analysisSchema = `{
  "type": "object",
  "properties": {
    "value": {"type": "string", "minLength": 1},
    "rationale": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["value"],
  "additionalProperties": false
}`

var compiledAnalysisSchema = mustCompile(analysisSchema)

func mustCompile(src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("analysis.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return c.MustCompile("analysis.json")
}

type analysisPayload struct {
	Value      string  `json:"value"`
	Rationale  string  `json:"rationale,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ParseAnalysisText validates and decodes the assistant text of a backend
// answer. Models occasionally wrap JSON in a markdown fence; that wrapper is
// stripped before validation. Any other deviation is an InvalidResponseError.
func ParseAnalysisText(provider, text string) (value, rationale string, confidence float64, err error) {
	raw := stripFence(strings.TrimSpace(text))
	if raw == "" {
		return "", "", 0, NewInvalidResponseError(provider, "empty response body")
	}

	var doc any
	if jerr := json.Unmarshal([]byte(raw), &doc); jerr != nil {
		return "", "", 0, NewInvalidResponseError(provider, fmt.Sprintf("response is not valid JSON: %v", jerr))
	}
	if verr := compiledAnalysisSchema.Validate(doc); verr != nil {
		return "", "", 0, NewInvalidResponseError(provider, fmt.Sprintf("response schema validation failed: %v", verr))
	}

	var p analysisPayload
	if jerr := json.Unmarshal([]byte(raw), &p); jerr != nil {
		return "", "", 0, NewInvalidResponseError(provider, fmt.Sprintf("decode response: %v", jerr))
	}
	return p.Value, p.Rationale, p.Confidence, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
