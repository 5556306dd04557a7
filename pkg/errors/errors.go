// Package errors defines the unified error taxonomy for validated
// generation. Failures from the model-invocation collaborator, the parse
// step, and the validation step are all mapped to a GenerationError carrying
// a category, so callers and the resilience gate can act on the category
// rather than on provider-specific messages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies a generation failure.
type Category string

const (
	CategoryRateLimit  Category = "rate_limit"
	CategoryTimeout    Category = "timeout"
	CategoryValidation Category = "validation"
	CategoryParsing    Category = "parsing"
	CategoryUnknown    Category = "unknown"

	// CategoryBreakerOpen marks a request refused by the resilience gate.
	// It is not a generation error: no attempt was made.
	CategoryBreakerOpen Category = "breaker_open"
)

// GenerationError is the typed failure returned across the component
// boundary. It is never raised as a panic.
type GenerationError struct {
	Category  Category `json:"category"`
	Message   string   `json:"message"`
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	Attempts  int      `json:"attempts"`
	RawOutput string   `json:"raw_output,omitempty"`
	Retryable bool     `json:"-"`
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s, attempts=%d)",
		e.Category, e.Message, e.Provider, e.Model, e.Attempts)
}

// NewRateLimitError creates a rate-limit error (retryable).
func NewRateLimitError(provider, model, message string) *GenerationError {
	return &GenerationError{
		Category:  CategoryRateLimit,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewTimeoutError creates a timeout error (retryable).
func NewTimeoutError(provider, model, message string) *GenerationError {
	return &GenerationError{
		Category:  CategoryTimeout,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewValidationError creates a schema-mismatch error. Retryable only via the
// concrete-example prompt enhancement, so it is marked non-retryable here;
// the orchestrator applies the enhancement policy itself.
func NewValidationError(provider, model, message string) *GenerationError {
	return &GenerationError{
		Category:  CategoryValidation,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: false,
	}
}

// NewParsingError creates a malformed-output error (retryable).
func NewParsingError(provider, model, message string) *GenerationError {
	return &GenerationError{
		Category:  CategoryParsing,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewUnknownError creates an unclassified error (non-retryable by default).
func NewUnknownError(provider, model, message string) *GenerationError {
	return &GenerationError{
		Category:  CategoryUnknown,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: false,
	}
}

// NewBreakerOpenError creates the temporarily-unavailable failure surfaced
// when the resilience gate refuses an attempt. Attempts is always 0.
func NewBreakerOpenError(provider, model, state string) *GenerationError {
	return &GenerationError{
		Category:  CategoryBreakerOpen,
		Message:   fmt.Sprintf("target temporarily unavailable: circuit breaker %s", state),
		Provider:  provider,
		Model:     model,
		Retryable: false,
	}
}

// Classify maps an arbitrary error to a failure category. A GenerationError
// keeps its own category; anything else is classified by inspecting the
// message for recognizable substrings.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429"):
		return CategoryRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "connection"):
		return CategoryTimeout
	case strings.Contains(msg, "schema") || strings.Contains(msg, "validation") || strings.Contains(msg, "invalid field"):
		return CategoryValidation
	case strings.Contains(msg, "parse") || strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "unexpected end of json") || strings.Contains(msg, "invalid json"):
		return CategoryParsing
	default:
		return CategoryUnknown
	}
}

// IsRetryable reports whether a failure of the given category is retried
// locally with backoff. Validation failures are handled separately through
// the example-enhancement strategy; unknown failures are terminal.
func IsRetryable(cat Category) bool {
	switch cat {
	case CategoryRateLimit, CategoryTimeout, CategoryParsing:
		return true
	default:
		return false
	}
}
