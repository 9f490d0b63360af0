package llm

import (
	"fmt"
	"strings"
)

// Request is a single text-generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response carries the generated text and token accounting.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption for a single call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Schema describes the JSON shape a structured call must return.
// Strict schemas are validated after decoding; lenient schemas are
// included in the prompt only, so callers can repair partial output.
type Schema struct {
	Name   string
	Raw    map[string]interface{}
	Strict bool
}

// StructuredError reports a structured call that did not yield usable
// JSON. RawResponse preserves the model text when one was produced.
type StructuredError struct {
	Reason      string
	RawResponse string
	Err         error
}

func (e *StructuredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("structured generation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("structured generation: %s", e.Reason)
}

func (e *StructuredError) Unwrap() error { return e.Err }

// IsRetryableError reports whether an error is transient (network,
// rate limit, or server-side) and worth retrying.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// Network errors
	if strings.Contains(msg, "ECONNRESET") || strings.Contains(msg, "ETIMEDOUT") {
		return true
	}

	// Rate limits
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") {
		return true
	}

	// Server errors
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}

	return false
}
