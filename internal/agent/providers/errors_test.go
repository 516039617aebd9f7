package providers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestErrorReasonIsRetryable(t *testing.T) {
	tests := []struct {
		reason   ErrorReason
		expected bool
	}{
		{ReasonRateLimit, true},
		{ReasonTimeout, true},
		{ReasonServerError, true},
		{ReasonAuth, false},
		{ReasonInvalidRequest, false},
		{ReasonModelNotFound, false},
		{ReasonContextLength, false},
		{ReasonUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.IsRetryable(); got != tt.expected {
				t.Errorf("ErrorReason(%q).IsRetryable() = %v, want %v", tt.reason, got, tt.expected)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorReason
	}{
		{"nil", nil, ReasonUnknown},
		{"deadline", errors.New("context deadline exceeded"), ReasonTimeout},
		{"rate limit", errors.New("rate limit reached for requests"), ReasonRateLimit},
		{"status 429", errors.New("status code: 429"), ReasonRateLimit},
		{"context length", errors.New("prompt exceeds context length"), ReasonContextLength},
		{"unauthorized", errors.New("401 Unauthorized"), ReasonAuth},
		{"missing model", errors.New("model qwen-9 does not exist"), ReasonModelNotFound},
		{"bad gateway", errors.New("502 Bad Gateway"), ReasonServerError},
		{"other", errors.New("something odd"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewProviderError_APIError(t *testing.T) {
	apiErr := &openai.APIError{
		Code:           "context_length_exceeded",
		Message:        "too long",
		HTTPStatusCode: http.StatusBadRequest,
	}
	err := NewProviderError("cerebras", "qwen-3-235b-a22b", fmt.Errorf("wrapped: %w", apiErr))

	if err.Status != http.StatusBadRequest {
		t.Errorf("Status = %d", err.Status)
	}
	if err.Code != "context_length_exceeded" {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Reason != ReasonContextLength {
		t.Errorf("Reason = %q, want %q", err.Reason, ReasonContextLength)
	}
	if !errors.Is(err, apiErr) {
		t.Error("ProviderError should unwrap to the API error")
	}
}

func TestNewProviderError_StatusWins(t *testing.T) {
	apiErr := &openai.APIError{Message: "slow down", HTTPStatusCode: http.StatusServiceUnavailable}
	err := NewProviderError("cerebras", "m", apiErr)
	if err.Reason != ReasonServerError {
		t.Errorf("Reason = %q, want %q", err.Reason, ReasonServerError)
	}
	if !IsRetryable(err) {
		t.Error("503 should be retryable")
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{
		Reason:   ReasonRateLimit,
		Provider: "cerebras",
		Model:    "qwen-3-235b-a22b",
		Status:   429,
		Message:  "slow down",
	}
	want := "[rate_limit] cerebras model=qwen-3-235b-a22b status=429 slow down"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestGetProviderError(t *testing.T) {
	base := NewProviderError("cerebras", "m", errors.New("timeout"))
	wrapped := fmt.Errorf("chat completion: %w", base)

	got, ok := GetProviderError(wrapped)
	if !ok || got != base {
		t.Fatalf("GetProviderError() = %v, %v", got, ok)
	}
	if _, ok := GetProviderError(errors.New("plain")); ok {
		t.Error("plain error should not be a ProviderError")
	}
}
