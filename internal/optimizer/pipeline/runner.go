package pipeline

import (
	"context"
	"time"

	"github.com/danshapiro/promptforge/internal/llm"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
	"github.com/danshapiro/promptforge/internal/optimizer/trace"
	"github.com/danshapiro/promptforge/internal/prompts"
)

// Budget is the generation budget the caller supplies per run.
type Budget struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Runner chains the stages for one step and delegates the optimize stage to
// the LLM client.
type Runner struct {
	catalog *prompts.Catalog
	client  *llm.Client
	tracer  trace.Tracer
	budget  Budget
}

func NewRunner(catalog *prompts.Catalog, client *llm.Client, tracer trace.Tracer, budget Budget) *Runner {
	if tracer == nil {
		tracer = trace.Nop{}
	}
	return &Runner{catalog: catalog, client: client, tracer: tracer, budget: budget}
}

// Produce runs parse -> validate -> normalize -> optimize for one step and
// returns the candidate analysis. The session is not touched; usage is the
// single accumulation entry point the client writes through.
func (r *Runner) Produce(ctx context.Context, sessionID string, step model.StepType, raw string, prior []model.PriorValue, feedback []string, usage *model.TokenUsage) (model.AnalysisResult, error) {
	in, err := r.runParse(ctx, sessionID, step, raw, prior, feedback)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	if err := r.runStage(ctx, sessionID, step, "validate", func() error {
		return Validate(in)
	}); err != nil {
		return model.AnalysisResult{}, err
	}

	_ = r.runStage(ctx, sessionID, step, "normalize", func() error {
		in = Normalize(in)
		return nil
	})

	prompt, err := r.catalog.RenderStep(in.Step, in.Draft, in.Prior, in.Feedback)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	var res model.AnalysisResult
	err = r.runStage(ctx, sessionID, step, "optimize", func() error {
		var gerr error
		res, gerr = r.client.Generate(ctx, llm.Request{
			SessionID:   sessionID,
			Stage:       "optimize",
			Step:        in.Step,
			Prompt:      prompt,
			Prior:       in.Prior,
			Feedback:    in.Feedback,
			Provider:    r.budget.Provider,
			Model:       r.budget.Model,
			MaxTokens:   r.budget.MaxTokens,
			Temperature: r.budget.Temperature,
		}, usage)
		return gerr
	})
	if err != nil {
		return model.AnalysisResult{}, err
	}
	return res, nil
}

// Harmonize issues the single whole-session consistency call.
func (r *Runner) Harmonize(ctx context.Context, sessionID string, prior []model.PriorValue, usage *model.TokenUsage) (model.AnalysisResult, error) {
	prompt, err := r.catalog.RenderHarmonize(prior)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	var res model.AnalysisResult
	err = r.runStage(ctx, sessionID, model.StepHarmonizing, "optimize", func() error {
		var gerr error
		res, gerr = r.client.Generate(ctx, llm.Request{
			SessionID:   sessionID,
			Stage:       "harmonize",
			Step:        model.StepHarmonizing,
			Prompt:      prompt,
			Prior:       prior,
			Provider:    r.budget.Provider,
			Model:       r.budget.Model,
			MaxTokens:   r.budget.MaxTokens,
			Temperature: r.budget.Temperature,
		}, usage)
		return gerr
	})
	if err != nil {
		return model.AnalysisResult{}, err
	}
	return res, nil
}

// RenderDocument runs the render stage over the given steps. Rendering is a
// total function; the stage exists so previews and the final artifact show up
// in the trace like every other stage.
func (r *Runner) RenderDocument(ctx context.Context, sessionID string, step model.StepType, steps []model.Step) string {
	var doc string
	_ = r.runStage(ctx, sessionID, step, "render", func() error {
		doc = Render(steps)
		return nil
	})
	return doc
}

func (r *Runner) runParse(ctx context.Context, sessionID string, step model.StepType, raw string, prior []model.PriorValue, feedback []string) (StageInput, error) {
	var in StageInput
	err := r.runStage(ctx, sessionID, step, "parse", func() error {
		var perr error
		in, perr = Parse(step, raw, prior, feedback)
		return perr
	})
	return in, err
}

func (r *Runner) runStage(ctx context.Context, sessionID string, step model.StepType, stage string, fn func() error) error {
	r.emit(ctx, sessionID, step, trace.EventStageEnter, stage, nil)
	err := fn()
	r.emit(ctx, sessionID, step, trace.EventStageExit, stage, err)
	return err
}

func (r *Runner) emit(ctx context.Context, sessionID string, step model.StepType, t trace.EventType, stage string, err error) {
	data := map[string]any{"stage": stage}
	if err != nil {
		data["error"] = err.Error()
	}
	r.tracer.OnEvent(ctx, trace.Event{
		Type:      t,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Step:      string(step),
		Data:      data,
	})
}
