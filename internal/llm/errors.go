package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error is the unified error interface returned by provider adapters and the
// client.
type Error interface {
	error
	Provider() string
	StatusCode() int
	Retryable() bool
	RetryAfter() *time.Duration
}

// ConfigurationError covers wiring mistakes: unknown provider, missing
// credentials, a record/replay mode without a cassette.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.TrimSpace(e.Message)
}
func (e *ConfigurationError) Provider() string           { return "" }
func (e *ConfigurationError) StatusCode() int            { return 0 }
func (e *ConfigurationError) Retryable() bool            { return false }
func (e *ConfigurationError) RetryAfter() *time.Duration { return nil }

type errorBase struct {
	provider   string
	statusCode int
	message    string
	retryable  bool
	retryAfter *time.Duration
}

func (e *errorBase) Error() string {
	msg := strings.TrimSpace(e.message)
	if msg == "" {
		msg = "request failed"
	}
	if e.statusCode > 0 {
		return fmt.Sprintf("%s error (status=%d): %s", e.provider, e.statusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.provider, msg)
}
func (e *errorBase) Provider() string           { return e.provider }
func (e *errorBase) StatusCode() int            { return e.statusCode }
func (e *errorBase) Retryable() bool            { return e.retryable }
func (e *errorBase) RetryAfter() *time.Duration { return e.retryAfter }

// ClientError is a network or backend failure. Retryable variants are retried
// per the client's policy before surfacing.
type ClientError struct{ errorBase }

// RateLimitError is a rate-limit signal. Retried with exponential backoff up
// to the configured bound, then surfaced.
type RateLimitError struct{ errorBase }

// InvalidResponseError means the backend answered but the payload failed
// schema validation. Never retried: malformed content is not transient.
type InvalidResponseError struct{ errorBase }

// CassetteMissError is fatal for replay runs: the required fingerprint has no
// recording and falling back to a live call would break determinism.
type CassetteMissError struct {
	Fingerprint string
}

func (e *CassetteMissError) Error() string {
	return fmt.Sprintf("cassette miss: no recording for fingerprint %s", e.Fingerprint)
}
func (e *CassetteMissError) Provider() string           { return "" }
func (e *CassetteMissError) StatusCode() int            { return 0 }
func (e *CassetteMissError) Retryable() bool            { return false }
func (e *CassetteMissError) RetryAfter() *time.Duration { return nil }

// NewClientError constructs a transport-level failure (no HTTP status).
func NewClientError(provider, message string, retryable bool) error {
	return &ClientError{errorBase{
		provider:  strings.TrimSpace(provider),
		message:   message,
		retryable: retryable,
	}}
}

// NewInvalidResponseError constructs a schema-validation failure.
func NewInvalidResponseError(provider, message string) error {
	return &InvalidResponseError{errorBase{
		provider: strings.TrimSpace(provider),
		message:  message,
	}}
}

// ErrorFromHTTPStatus classifies an HTTP failure into the unified taxonomy.
func ErrorFromHTTPStatus(provider string, statusCode int, message string, retryAfter *time.Duration) error {
	base := errorBase{
		provider:   strings.TrimSpace(provider),
		statusCode: statusCode,
		message:    message,
		retryAfter: retryAfter,
	}
	switch {
	case statusCode == 429:
		base.retryable = true
		return &RateLimitError{base}
	case statusCode == 408 || statusCode >= 500:
		base.retryable = true
		return &ClientError{base}
	default:
		base.retryable = false
		return &ClientError{base}
	}
}

// ParseRetryAfter parses the Retry-After header value: integer seconds or an
// HTTP-date.
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

// IsRetryable reports whether err carries a retryable verdict.
func IsRetryable(err error) bool {
	var le Error
	if errors.As(err, &le) {
		return le.Retryable()
	}
	return false
}
