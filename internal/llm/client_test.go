package llm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danshapiro/promptforge/internal/cassette"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
	"github.com/danshapiro/promptforge/internal/optimizer/trace"
)

// fakeAdapter fails with the scripted errors in order, then succeeds with
// resp on every later call.
type fakeAdapter struct {
	name  string
	errs  []error
	resp  Response
	calls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Complete(ctx context.Context, req Request) (Response, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Response{}, err
	}
	resp := f.resp
	resp.Provider = f.name
	return resp, nil
}

func testRequest() Request {
	return Request{
		Stage:  "optimize",
		Step:   model.StepIntent,
		Prompt: "rendered prompt body",
		Model:  "test-model",
	}
}

func noSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func TestGenerate_LiveSuccessAccumulatesUsage(t *testing.T) {
	fake := &fakeAdapter{name: "fake", resp: Response{
		Value: "answer", Rationale: "because", Confidence: 0.7,
		PromptTokens: 10, CompletionTokens: 4, CostUSD: 0.01,
	}}
	c := NewClient(ModeLive)
	c.Register(fake)
	mem := trace.NewMemory()
	c.SetTracer(mem)

	var usage model.TokenUsage
	res, err := c.Generate(context.Background(), testRequest(), &usage)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Value != "answer" || res.Step != model.StepIntent {
		t.Fatalf("result: %+v", res)
	}
	if usage.Calls != 1 || usage.Retries != 0 || usage.TotalTokens() != 14 {
		t.Fatalf("usage: %+v", usage)
	}
	if mem.Count(trace.EventLLMCall) != 1 {
		t.Fatalf("llm call events: %d", mem.Count(trace.EventLLMCall))
	}
}

func TestGenerate_EventCarriesCorrelationIDAndTokenCost(t *testing.T) {
	fake := &fakeAdapter{name: "fake", resp: Response{
		Value: "answer", PromptTokens: 11, CompletionTokens: 7, CostUSD: 0.5,
	}}
	c := NewClient(ModeLive)
	c.Register(fake)
	mem := trace.NewMemory()
	c.SetTracer(mem)

	req := testRequest()
	req.SessionID = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	if _, err := c.Generate(context.Background(), req, nil); err != nil {
		t.Fatalf("generate: %v", err)
	}

	events := mem.Events()
	if len(events) != 1 {
		t.Fatalf("events: %d", len(events))
	}
	ev := events[0]
	if ev.SessionID != req.SessionID {
		t.Fatalf("event session id: %q", ev.SessionID)
	}
	if ev.Step != string(model.StepIntent) {
		t.Fatalf("event step: %q", ev.Step)
	}
	if got := ev.Data["prompt_tokens"]; got != 11 {
		t.Fatalf("prompt_tokens: %v", got)
	}
	if got := ev.Data["completion_tokens"]; got != 7 {
		t.Fatalf("completion_tokens: %v", got)
	}
	if got := ev.Data["cost_usd"]; got != 0.5 {
		t.Fatalf("cost_usd: %v", got)
	}
	if _, ok := ev.Data["latency_ms"]; !ok {
		t.Fatalf("latency_ms missing from event data")
	}
}

func TestRequest_SessionIDNeverEntersTheFingerprint(t *testing.T) {
	a := testRequest()
	a.SessionID = "session-a"
	b := testRequest()
	b.SessionID = "session-b"
	if cassette.Fingerprint(a.Summary()) != cassette.Fingerprint(b.Summary()) {
		t.Fatalf("session identity must not change the fingerprint")
	}
}

func TestGenerate_RetryableFailuresAreRetriedAndCounted(t *testing.T) {
	fake := &fakeAdapter{
		name: "fake",
		errs: []error{
			ErrorFromHTTPStatus("fake", 429, "slow down", nil),
			ErrorFromHTTPStatus("fake", 500, "flaky", nil),
		},
		resp: Response{Value: "ok", PromptTokens: 1, CompletionTokens: 1},
	}
	c := NewClient(ModeLive)
	c.Register(fake)
	var delays []time.Duration
	c.SetSleep(noSleep(&delays))

	var usage model.TokenUsage
	res, err := c.Generate(context.Background(), testRequest(), &usage)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fake.calls != 3 {
		t.Fatalf("adapter calls: %d", fake.calls)
	}
	if res.Telemetry.Attempts != 3 {
		t.Fatalf("attempts: %d", res.Telemetry.Attempts)
	}
	if usage.Calls != 3 || usage.Retries != 2 {
		t.Fatalf("usage: %+v", usage)
	}
	if len(delays) != 2 {
		t.Fatalf("sleeps: %v", delays)
	}
	if delays[1] < delays[0] {
		t.Fatalf("backoff must not shrink: %v", delays)
	}
}

func TestGenerate_RetryAfterOverridesShorterBackoff(t *testing.T) {
	ra := 5 * time.Second
	fake := &fakeAdapter{
		name: "fake",
		errs: []error{ErrorFromHTTPStatus("fake", 429, "slow down", &ra)},
		resp: Response{Value: "ok"},
	}
	c := NewClient(ModeLive)
	c.Register(fake)
	var delays []time.Duration
	c.SetSleep(noSleep(&delays))

	if _, err := c.Generate(context.Background(), testRequest(), nil); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(delays) != 1 || delays[0] != ra {
		t.Fatalf("delays: %v", delays)
	}
}

func TestGenerate_InvalidResponseIsNotRetried(t *testing.T) {
	fake := &fakeAdapter{
		name: "fake",
		errs: []error{NewInvalidResponseError("fake", "not json")},
		resp: Response{Value: "never reached"},
	}
	c := NewClient(ModeLive)
	c.Register(fake)
	c.SetSleep(noSleep(nil))

	var usage model.TokenUsage
	_, err := c.Generate(context.Background(), testRequest(), &usage)
	var ire *InvalidResponseError
	if !errors.As(err, &ire) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("invalid responses must not be retried: %d calls", fake.calls)
	}
	// Failed call still appears in call accounting, with no tokens.
	if usage.Calls != 1 || usage.TotalTokens() != 0 {
		t.Fatalf("usage: %+v", usage)
	}
}

func TestGenerate_ExhaustedRetriesRecordAttemptsWithoutTokens(t *testing.T) {
	fake := &fakeAdapter{
		name: "fake",
		errs: []error{
			ErrorFromHTTPStatus("fake", 500, "down", nil),
			ErrorFromHTTPStatus("fake", 500, "down", nil),
		},
	}
	c := NewClient(ModeLive)
	c.Register(fake)
	c.SetSleep(noSleep(nil))
	c.SetRetryPolicy(RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 2})

	var usage model.TokenUsage
	if _, err := c.Generate(context.Background(), testRequest(), &usage); err == nil {
		t.Fatalf("expected failure after exhausted retries")
	}
	if usage.Calls != 2 || usage.Retries != 1 || usage.TotalTokens() != 0 {
		t.Fatalf("usage: %+v", usage)
	}
}

func TestGenerate_CancellationLeavesUsageUntouched(t *testing.T) {
	fake := &fakeAdapter{
		name: "fake",
		errs: []error{ErrorFromHTTPStatus("fake", 500, "down", nil)},
		resp: Response{Value: "ok"},
	}
	c := NewClient(ModeLive)
	c.Register(fake)
	mem := trace.NewMemory()
	c.SetTracer(mem)

	ctx, cancel := context.WithCancel(context.Background())
	c.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	var usage model.TokenUsage
	_, err := c.Generate(ctx, testRequest(), &usage)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if usage != (model.TokenUsage{}) {
		t.Fatalf("cancelled call must record nothing: %+v", usage)
	}
	if mem.Count(trace.EventLLMCall) != 0 {
		t.Fatalf("cancelled call must emit no events")
	}
}

func TestGenerate_RecordWritesCassetteEntry(t *testing.T) {
	store, err := cassette.Open(filepath.Join(t.TempDir(), "run.cassette.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fake := &fakeAdapter{name: "fake", resp: Response{
		Value: "recorded", Confidence: 0.9, PromptTokens: 3, CompletionTokens: 2,
	}}
	c := NewClient(ModeRecord)
	c.Register(fake)
	c.SetCassette(store)

	req := testRequest()
	if _, err := c.Generate(context.Background(), req, nil); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("cassette entries: %d", store.Len())
	}
	payload, ok := store.Get(cassette.Fingerprint(req.Summary()))
	if !ok || payload.Value != "recorded" {
		t.Fatalf("recorded payload: %+v %v", payload, ok)
	}
}

func TestGenerate_RecordWriteFailureKeepsTelemetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.cassette.yaml")
	store, err := cassette.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A directory at the cassette path makes the write fail after the
	// backend call has completed.
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fake := &fakeAdapter{name: "fake", resp: Response{
		Value: "answer", PromptTokens: 5, CompletionTokens: 3,
	}}
	c := NewClient(ModeRecord)
	c.Register(fake)
	c.SetCassette(store)
	mem := trace.NewMemory()
	c.SetTracer(mem)

	var usage model.TokenUsage
	_, err = c.Generate(context.Background(), testRequest(), &usage)
	if err == nil || !strings.Contains(err.Error(), "record cassette entry") {
		t.Fatalf("expected cassette write failure, got %v", err)
	}
	if usage.Calls != 1 || usage.TotalTokens() != 8 {
		t.Fatalf("completed call must keep its telemetry: %+v", usage)
	}
	if mem.Count(trace.EventLLMCall) != 1 {
		t.Fatalf("completed call must emit its event: %d", mem.Count(trace.EventLLMCall))
	}
}

func TestGenerate_RecordWithoutStoreFailsBeforeAnyCall(t *testing.T) {
	fake := &fakeAdapter{name: "fake", resp: Response{Value: "answer"}}
	c := NewClient(ModeRecord)
	c.Register(fake)

	_, err := c.Generate(context.Background(), testRequest(), nil)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("misconfigured record mode must not reach the backend: %d calls", fake.calls)
	}
}

func TestGenerate_ReplayHitIsDeterministic(t *testing.T) {
	store, err := cassette.Open(filepath.Join(t.TempDir(), "run.cassette.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	req := testRequest()
	if err := store.Put(req.Summary(), cassette.ResponsePayload{
		Value: "from tape", PromptTokens: 7, CompletionTokens: 3, CostUSD: 0.002,
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	c := NewClient(ModeReplay)
	c.SetCassette(store)

	var usage model.TokenUsage
	res, err := c.Generate(context.Background(), req, &usage)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Value != "from tape" {
		t.Fatalf("value: %q", res.Value)
	}
	if res.Telemetry.Provider != "cassette" || res.Telemetry.LatencyMS != 0 {
		t.Fatalf("replay telemetry: %+v", res.Telemetry)
	}
	if usage.Calls != 1 || usage.TotalTokens() != 10 || usage.LatencyMS != 0 {
		t.Fatalf("usage: %+v", usage)
	}
}

func TestGenerate_ReplayMissIsFatalAndRecordsNothing(t *testing.T) {
	store, err := cassette.Open(filepath.Join(t.TempDir(), "run.cassette.yaml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := NewClient(ModeReplay)
	c.SetCassette(store)
	mem := trace.NewMemory()
	c.SetTracer(mem)

	var usage model.TokenUsage
	_, err = c.Generate(context.Background(), testRequest(), &usage)
	var miss *CassetteMissError
	if !errors.As(err, &miss) {
		t.Fatalf("expected CassetteMissError, got %v", err)
	}
	if miss.Fingerprint == "" {
		t.Fatalf("miss must carry the fingerprint")
	}
	if usage != (model.TokenUsage{}) {
		t.Fatalf("miss must record no usage: %+v", usage)
	}
	if mem.Count(trace.EventLLMCall) != 1 {
		t.Fatalf("miss must still emit one trace event")
	}
}

func TestGenerate_UnknownProviderIsConfigurationError(t *testing.T) {
	c := NewClient(ModeLive)
	req := testRequest()
	req.Provider = "nope"
	_, err := c.Generate(context.Background(), req, nil)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRequest_ValidateRejectsBlankFields(t *testing.T) {
	cases := []func(*Request){
		func(r *Request) { r.Stage = "" },
		func(r *Request) { r.Step = "" },
		func(r *Request) { r.Prompt = "  " },
		func(r *Request) { r.Model = "" },
	}
	for i, mutate := range cases {
		req := testRequest()
		mutate(&req)
		if err := req.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
