package model

// CallTelemetry is the raw token/latency record for a single LLM call,
// including retried attempts that eventually succeeded.
type CallTelemetry struct {
	Provider         string  `json:"provider,omitempty"`
	Model            string  `json:"model,omitempty"`
	Fingerprint      string  `json:"fingerprint,omitempty"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens,omitempty"`
	Attempts         int     `json:"attempts"`
	LatencyMS        int64   `json:"latency_ms"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// TokenUsage is the session-wide accumulator. It is only ever grown through
// Add, called by the LLM client boundary after a completed call; cancelled
// calls never reach it.
type TokenUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	Calls            int     `json:"calls"`
	Retries          int     `json:"retries"`
	LatencyMS        int64   `json:"latency_ms"`
	CostUSD          float64 `json:"cost_usd"`
}

// Add folds one completed call into the accumulator. A call with N attempts
// counts as N toward Calls and N-1 toward Retries.
func (u *TokenUsage) Add(t CallTelemetry) {
	attempts := t.Attempts
	if attempts < 1 {
		attempts = 1
	}
	u.PromptTokens += t.PromptTokens
	u.CompletionTokens += t.CompletionTokens
	u.CachedTokens += t.CachedTokens
	u.Calls += attempts
	u.Retries += attempts - 1
	u.LatencyMS += t.LatencyMS
	u.CostUSD += t.CostUSD
}

// TotalTokens returns prompt + completion + cached tokens.
func (u TokenUsage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens + u.CachedTokens
}
