package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorReason categorizes why a provider request failed.
type ErrorReason string

const (
	ReasonRateLimit      ErrorReason = "rate_limit"
	ReasonAuth           ErrorReason = "auth"
	ReasonTimeout        ErrorReason = "timeout"
	ReasonServerError    ErrorReason = "server_error"
	ReasonInvalidRequest ErrorReason = "invalid_request"
	ReasonModelNotFound  ErrorReason = "model_not_found"
	ReasonContextLength  ErrorReason = "context_length"
	ReasonUnknown        ErrorReason = "unknown"
)

// IsRetryable returns true if retrying the same request may succeed.
func (r ErrorReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure from a completion endpoint.
type ProviderError struct {
	Reason   ErrorReason
	Provider string
	Model    string
	Status   int
	Code     string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError classifies cause. Status codes and error codes reported
// by go-openai take precedence over message matching.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   ReasonUnknown,
	}
	if cause == nil {
		return err
	}
	err.Message = cause.Error()
	err.Reason = ClassifyError(cause)

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(cause, &apiErr):
		err.Message = apiErr.Message
		if code, ok := apiErr.Code.(string); ok {
			err.Code = code
		}
		if apiErr.HTTPStatusCode != 0 {
			err.Status = apiErr.HTTPStatusCode
			err.Reason = classifyStatusCode(apiErr.HTTPStatusCode)
		}
		if reason := classifyErrorCode(err.Code); reason != ReasonUnknown {
			err.Reason = reason
		}
	case errors.As(cause, &reqErr):
		if reqErr.HTTPStatusCode != 0 {
			err.Status = reqErr.HTTPStatusCode
			err.Reason = classifyStatusCode(reqErr.HTTPStatusCode)
		}
	}
	return err
}

// ClassifyError inspects an error message and returns its ErrorReason.
func ClassifyError(err error) ErrorReason {
	if err == nil {
		return ReasonUnknown
	}
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "429"):
		return ReasonRateLimit
	case strings.Contains(errStr, "context length"),
		strings.Contains(errStr, "context_length"),
		strings.Contains(errStr, "too many tokens"):
		return ReasonContextLength
	case strings.Contains(errStr, "unauthorized"),
		strings.Contains(errStr, "invalid api key"),
		strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"):
		return ReasonAuth
	case strings.Contains(errStr, "model not found"),
		strings.Contains(errStr, "does not exist"):
		return ReasonModelNotFound
	case strings.Contains(errStr, "server error"),
		strings.Contains(errStr, "500"),
		strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"),
		strings.Contains(errStr, "504"):
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyStatusCode(status int) ErrorReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ReasonInvalidRequest
	case status == http.StatusNotFound:
		return ReasonModelNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyErrorCode(code string) ErrorReason {
	switch strings.ToLower(code) {
	case "rate_limit_exceeded", "too_many_requests_error", "queue_exceeded":
		return ReasonRateLimit
	case "invalid_api_key", "wrong_api_key":
		return ReasonAuth
	case "model_not_found":
		return ReasonModelNotFound
	case "context_length_exceeded":
		return ReasonContextLength
	case "server_error", "internal_error":
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
