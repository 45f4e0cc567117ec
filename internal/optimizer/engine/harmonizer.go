package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/danshapiro/promptforge/internal/llm"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
)

// Harmonizer performs the single cross-step consistency pass over a fully
// committed session. Idempotent under replay: the call is fingerprinted over
// the committed values, so an unmodified session replays to identical output.
type Harmonizer struct {
	runner harmonizeCaller
}

type harmonizeCaller interface {
	Harmonize(ctx context.Context, sessionID string, prior []model.PriorValue, usage *model.TokenUsage) (model.AnalysisResult, error)
}

// Run returns the revised step sequence: same types, same count, same order,
// potentially revised values. Rejection histories and approval timestamps are
// carried over from the committed steps.
func (h *Harmonizer) Run(ctx context.Context, s *model.Session, usage *model.TokenUsage) ([]model.Step, error) {
	res, err := h.runner.Harmonize(ctx, s.ID, s.PriorValues(), usage)
	if err != nil {
		return nil, err
	}
	values, err := parseHarmonizedDocument(res.Value, s.Steps)
	if err != nil {
		return nil, err
	}

	revised := make([]model.Step, len(s.Steps))
	for i, st := range s.Steps {
		revised[i] = st.Clone()
		revised[i].Value = values[i]
	}
	return revised, nil
}

// parseHarmonizedDocument splits the sectioned markdown the harmonize prompt
// mandates: one "## <Label>" section per committed step, in order. Any
// deviation is an InvalidResponseError — the session must not advance on a
// malformed consistency pass.
func parseHarmonizedDocument(doc string, steps []model.Step) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")

	type section struct {
		label string
		body  []string
	}
	var sections []section
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			sections = append(sections, section{label: strings.TrimSpace(strings.TrimPrefix(line, "## "))})
			continue
		}
		if len(sections) == 0 {
			if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "# ") {
				return nil, llm.NewInvalidResponseError("harmonizer", "harmonized document has content before the first section")
			}
			continue
		}
		sections[len(sections)-1].body = append(sections[len(sections)-1].body, line)
	}

	if len(sections) != len(steps) {
		return nil, llm.NewInvalidResponseError("harmonizer", fmt.Sprintf(
			"harmonized document has %d sections, want %d", len(sections), len(steps)))
	}

	values := make([]string, len(steps))
	for i, sec := range sections {
		want := steps[i].Type.Label()
		if !strings.EqualFold(sec.label, want) {
			return nil, llm.NewInvalidResponseError("harmonizer", fmt.Sprintf(
				"section %d is %q, want %q", i, sec.label, want))
		}
		value := strings.TrimSpace(strings.Join(sec.body, "\n"))
		if value == "" {
			return nil, llm.NewInvalidResponseError("harmonizer", fmt.Sprintf("section %q is empty", sec.label))
		}
		values[i] = value
	}
	return values, nil
}
