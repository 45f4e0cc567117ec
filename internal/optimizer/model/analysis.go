package model

// AnalysisResult is the output of one LLM generation or revision request.
// Never mutated after creation; the session stores only the approved value,
// not the full result.
type AnalysisResult struct {
	Step       StepType
	Value      string
	Rationale  string
	Confidence float64
	Telemetry  CallTelemetry
}
