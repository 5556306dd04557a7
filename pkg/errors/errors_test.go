package errors

import (
	"fmt"
	"testing"
)

func TestGenerationError_Error(t *testing.T) {
	err := NewTimeoutError("openai", "gpt-4o", "request timed out")
	err.Attempts = 2

	want := "[timeout] request timed out (provider=openai, model=gpt-4o, attempts=2)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"rate limit substring", fmt.Errorf("provider returned rate limit exceeded"), CategoryRateLimit},
		{"429 status", fmt.Errorf("http 429 too many requests"), CategoryRateLimit},
		{"timeout", fmt.Errorf("request timed out"), CategoryTimeout},
		{"deadline", fmt.Errorf("context deadline exceeded"), CategoryTimeout},
		{"connection", fmt.Errorf("connection refused"), CategoryTimeout},
		{"validation", fmt.Errorf("schema validation failed for Recipe: field \"title\" is required"), CategoryValidation},
		{"parsing", fmt.Errorf("parse failed for Recipe: malformed output"), CategoryParsing},
		{"unknown", fmt.Errorf("something else entirely"), CategoryUnknown},
		{"typed error keeps category", NewParsingError("p", "m", "bad json"), CategoryParsing},
		{"wrapped typed error", fmt.Errorf("attempt 1: %w", NewRateLimitError("p", "m", "slow down")), CategoryRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Category{CategoryRateLimit, CategoryTimeout, CategoryParsing}
	for _, cat := range retryable {
		if !IsRetryable(cat) {
			t.Errorf("IsRetryable(%v) = false, want true", cat)
		}
	}

	terminal := []Category{CategoryValidation, CategoryUnknown, CategoryBreakerOpen}
	for _, cat := range terminal {
		if IsRetryable(cat) {
			t.Errorf("IsRetryable(%v) = true, want false", cat)
		}
	}
}
