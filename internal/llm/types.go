package llm

import (
	"fmt"
	"strings"

	"github.com/danshapiro/promptforge/internal/cassette"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

// Mode selects how the client satisfies a generation request.
type Mode string

const (
	// ModeDryRun never performs network I/O; the deterministic mock adapter
	// answers every request.
	ModeDryRun Mode = "dry-run"
	// ModeRecord performs a real call and writes a cassette entry before
	// returning.
	ModeRecord Mode = "record"
	// ModeReplay requires an exact cassette match and never touches the
	// network.
	ModeReplay Mode = "replay"
	// ModeLive performs a real call with no recording.
	ModeLive Mode = "live"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(s))) {
	case ModeDryRun:
		return ModeDryRun, nil
	case ModeRecord:
		return ModeRecord, nil
	case ModeReplay:
		return ModeReplay, nil
	case ModeLive:
		return ModeLive, nil
	default:
		return "", fmt.Errorf("unknown client mode %q", s)
	}
}

// Request is the normalized generation request. Prompt is the pre-rendered
// meta-prompt; Prior carries the committed values in canonical order so that
// reordering them invalidates the cassette fingerprint.
type Request struct {
	// SessionID correlates tracer events across the run. Never part of the
	// fingerprint: recordings must replay for any session over the same
	// inputs.
	SessionID string

	Stage    string
	Step     model.StepType
	Prompt   string
	Prior    []model.PriorValue
	Feedback []string

	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Validate checks the request shape before any adapter sees it.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Stage) == "" {
		return &ConfigurationError{Message: "request stage is required"}
	}
	if strings.TrimSpace(string(r.Step)) == "" {
		return &ConfigurationError{Message: "request step is required"}
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return &ConfigurationError{Message: "request prompt is required"}
	}
	if strings.TrimSpace(r.Model) == "" {
		return &ConfigurationError{Message: "request model is required"}
	}
	return nil
}

// Summary projects the request onto the fingerprintable shape. The rendered
// prompt body is deliberately excluded so copy edits to the meta-prompt
// templates do not invalidate existing recordings; session ids, attempt
// counters, and timestamps stay out so neither the run identity nor retries
// nor wall-clock time can change the key.
func (r Request) Summary() cassette.RequestSummary {
	prior := make([]string, 0, len(r.Prior))
	for _, p := range r.Prior {
		prior = append(prior, string(p.Step)+"="+p.Value)
	}
	return cassette.RequestSummary{
		Stage:    r.Stage,
		Step:     string(r.Step),
		Model:    r.Model,
		Prior:    prior,
		Feedback: append([]string(nil), r.Feedback...),
	}
}

// Response is a provider answer after payload validation.
type Response struct {
	Provider   string
	Model      string
	Value      string
	Rationale  string
	Confidence float64

	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	CostUSD          float64
}

func (r Response) payload() cassette.ResponsePayload {
	return cassette.ResponsePayload{
		Value:            r.Value,
		Rationale:        r.Rationale,
		Confidence:       r.Confidence,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		CachedTokens:     r.CachedTokens,
		CostUSD:          r.CostUSD,
	}
}

func responseFromPayload(p cassette.ResponsePayload) Response {
	return Response{
		Value:            p.Value,
		Rationale:        p.Rationale,
		Confidence:       p.Confidence,
		PromptTokens:     p.PromptTokens,
		CompletionTokens: p.CompletionTokens,
		CachedTokens:     p.CachedTokens,
		CostUSD:          p.CostUSD,
	}
}
