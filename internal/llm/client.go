// Package llm is the uniform client boundary over heterogeneous LLM backends.
// It owns retry and rate-limit backoff, telemetry capture, and the four
// execution modes (dry-run, record, replay, live); no other component talks
// to a backend or reads credentials.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danshapiro/promptforge/internal/cassette"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
	"github.com/danshapiro/promptforge/internal/optimizer/trace"
)

// ProviderAdapter is implemented per backend.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

type Client struct {
	mode            Mode
	providers       map[string]ProviderAdapter
	defaultProvider string
	store           *cassette.Store
	tracer          trace.Tracer
	policy          RetryPolicy
	sleep           SleepFunc
	now             func() time.Time
}

func NewClient(mode Mode) *Client {
	return &Client{
		mode:      mode,
		providers: map[string]ProviderAdapter{},
		tracer:    trace.Nop{},
		policy:    DefaultRetryPolicy(),
		sleep:     defaultSleep,
		now:       time.Now,
	}
}

func (c *Client) Mode() Mode { return c.mode }

func (c *Client) Register(adapter ProviderAdapter) {
	if c.providers == nil {
		c.providers = map[string]ProviderAdapter{}
	}
	c.providers[adapter.Name()] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = adapter.Name()
	}
}

func (c *Client) SetDefaultProvider(name string) { c.defaultProvider = name }

// SetCassette attaches the per-session store. Required for record and replay
// modes.
func (c *Client) SetCassette(s *cassette.Store) { c.store = s }

func (c *Client) SetTracer(t trace.Tracer) {
	if t == nil {
		t = trace.Nop{}
	}
	c.tracer = t
}

func (c *Client) SetRetryPolicy(p RetryPolicy) { c.policy = p }

func (c *Client) SetSleep(fn SleepFunc) {
	if fn == nil {
		fn = defaultSleep
	}
	c.sleep = fn
}

// SetClock overrides the latency clock. Tests only.
func (c *Client) SetClock(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// Generate produces an AnalysisResult for the request. Every completed call
// folds exactly one telemetry record into usage and emits one tracer event;
// a cancelled call does neither, so partial calls cannot corrupt the
// session's accumulator.
func (c *Client) Generate(ctx context.Context, req Request, usage *model.TokenUsage) (model.AnalysisResult, error) {
	if err := req.Validate(); err != nil {
		return model.AnalysisResult{}, err
	}
	if c.mode == ModeRecord && c.store == nil {
		return model.AnalysisResult{}, &ConfigurationError{Message: "record mode requires a cassette store"}
	}
	summary := req.Summary()
	fp := cassette.Fingerprint(summary)

	if c.mode == ModeReplay {
		return c.replay(ctx, req, fp, usage)
	}

	adapter, err := c.resolve(req.Provider)
	if err != nil {
		return model.AnalysisResult{}, err
	}
	req.Provider = adapter.Name()

	start := c.now()
	resp, attempts, err := c.callWithRetry(ctx, adapter, req, fp)
	if ctx.Err() != nil {
		// Abandoned call: no cassette write, no usage, no trace.
		return model.AnalysisResult{}, ctx.Err()
	}
	latency := c.now().Sub(start).Milliseconds()

	if err != nil {
		tele := model.CallTelemetry{
			Provider: adapter.Name(), Model: req.Model,
			Fingerprint: fp, Attempts: attempts, LatencyMS: latency,
		}
		if usage != nil {
			usage.Add(tele)
		}
		c.emit(ctx, req, fp, tele, "error", err)
		return model.AnalysisResult{}, err
	}

	tele := model.CallTelemetry{
		Provider:         resp.Provider,
		Model:            req.Model,
		Fingerprint:      fp,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		CachedTokens:     resp.CachedTokens,
		Attempts:         attempts,
		LatencyMS:        latency,
		CostUSD:          resp.CostUSD,
	}
	if usage != nil {
		usage.Add(tele)
	}

	// Telemetry is settled before the cassette write: a failed recording must
	// not erase the accounting for a backend call that actually completed.
	if c.mode == ModeRecord {
		if perr := c.store.Put(summary, resp.payload()); perr != nil {
			werr := fmt.Errorf("record cassette entry: %w", perr)
			c.emit(ctx, req, fp, tele, "error", werr)
			return model.AnalysisResult{}, werr
		}
	}
	c.emit(ctx, req, fp, tele, "ok", nil)

	return model.AnalysisResult{
		Step:       req.Step,
		Value:      resp.Value,
		Rationale:  resp.Rationale,
		Confidence: resp.Confidence,
		Telemetry:  tele,
	}, nil
}

func (c *Client) replay(ctx context.Context, req Request, fp string, usage *model.TokenUsage) (model.AnalysisResult, error) {
	if c.store == nil {
		return model.AnalysisResult{}, &ConfigurationError{Message: "replay mode requires a cassette store"}
	}
	payload, ok := c.store.Get(fp)
	if !ok {
		err := &CassetteMissError{Fingerprint: fp}
		c.emit(ctx, req, fp, model.CallTelemetry{Fingerprint: fp}, "miss", err)
		return model.AnalysisResult{}, err
	}
	resp := responseFromPayload(payload)

	// Latency is zeroed on replay so replayed sessions are byte-identical
	// run to run.
	tele := model.CallTelemetry{
		Provider:         "cassette",
		Model:            req.Model,
		Fingerprint:      fp,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		CachedTokens:     resp.CachedTokens,
		Attempts:         1,
		CostUSD:          resp.CostUSD,
	}
	if usage != nil {
		usage.Add(tele)
	}
	c.emit(ctx, req, fp, tele, "replayed", nil)

	return model.AnalysisResult{
		Step:       req.Step,
		Value:      resp.Value,
		Rationale:  resp.Rationale,
		Confidence: resp.Confidence,
		Telemetry:  tele,
	}, nil
}

// callWithRetry performs the backend call, retrying retryable failures with
// capped exponential backoff. Returns the number of attempts actually made.
// InvalidResponseError is surfaced immediately: retrying malformed content
// rarely helps.
func (c *Client) callWithRetry(ctx context.Context, adapter ProviderAdapter, req Request, fp string) (Response, int, error) {
	maxAttempts := c.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := adapter.Complete(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == maxAttempts {
			return Response{}, attempt, err
		}

		delay := DelayForAttempt(attempt, c.policy, fmt.Sprintf("%s:%d", fp, attempt))
		if le, ok := err.(Error); ok {
			if ra := le.RetryAfter(); ra != nil && *ra > delay {
				delay = *ra
			}
		}
		if serr := c.sleep(ctx, delay); serr != nil {
			return Response{}, attempt, serr
		}
	}
	return Response{}, maxAttempts, lastErr
}

func (c *Client) resolve(name string) (ProviderAdapter, error) {
	prov := strings.TrimSpace(name)
	if prov == "" {
		prov = c.defaultProvider
	}
	if prov == "" {
		return nil, &ConfigurationError{Message: "no provider specified and no default provider configured"}
	}
	adapter, ok := c.providers[prov]
	if !ok {
		return nil, &ConfigurationError{Message: fmt.Sprintf("unknown provider: %s", prov)}
	}
	return adapter, nil
}

func (c *Client) emit(ctx context.Context, req Request, fp string, tele model.CallTelemetry, outcome string, err error) {
	data := map[string]any{
		"stage":             req.Stage,
		"mode":              string(c.mode),
		"model":             req.Model,
		"fingerprint":       fp,
		"attempts":          tele.Attempts,
		"latency_ms":        tele.LatencyMS,
		"prompt_tokens":     tele.PromptTokens,
		"completion_tokens": tele.CompletionTokens,
		"cost_usd":          tele.CostUSD,
		"outcome":           outcome,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	c.tracer.OnEvent(ctx, trace.Event{
		Type:      trace.EventLLMCall,
		Timestamp: c.now().UTC(),
		SessionID: req.SessionID,
		Step:      string(req.Step),
		Data:      data,
	})
}
