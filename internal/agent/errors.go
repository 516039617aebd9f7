package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for agent operations
var (
	// ErrContextExhausted indicates the budget left nothing to send to the model
	ErrContextExhausted = errors.New("context budget exhausted")

	// ErrNoProvider indicates no LLM provider is configured
	ErrNoProvider = errors.New("no provider configured")

	// ErrToolNotFound indicates a requested tool doesn't exist
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidArgs indicates tool arguments failed schema validation
	ErrInvalidArgs = errors.New("invalid tool arguments")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")

	// ErrInvalidToolName indicates a tool was registered with an unusable name
	ErrInvalidToolName = errors.New("invalid tool name")
)

// ToolErrorType categorizes tool execution errors.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorRateLimit    ToolErrorType = "rate_limit"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// ToolError is a classified failure of a single tool call.
type ToolError struct {
	Type       ToolErrorType
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	parts := []string{fmt.Sprintf("[tool:%s]", e.Type)}
	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// NewToolError creates a ToolError, classifying the cause.
func NewToolError(toolName string, cause error) *ToolError {
	err := &ToolError{
		ToolName: toolName,
		Cause:    cause,
		Type:     ToolErrorUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Type = classifyToolError(cause)
	}
	return err
}

// WithToolCallID sets the tool call ID for correlating errors with specific calls.
func (e *ToolError) WithToolCallID(id string) *ToolError {
	e.ToolCallID = id
	return e
}

// WithMessage sets a custom human-readable error message.
func (e *ToolError) WithMessage(msg string) *ToolError {
	e.Message = msg
	return e
}

func classifyToolError(err error) ToolErrorType {
	switch {
	case err == nil:
		return ToolErrorUnknown
	case errors.Is(err, ErrToolNotFound):
		return ToolErrorNotFound
	case errors.Is(err, ErrInvalidArgs):
		return ToolErrorInvalidInput
	case errors.Is(err, ErrToolTimeout):
		return ToolErrorTimeout
	case errors.Is(err, ErrToolPanic):
		return ToolErrorPanic
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "deadline exceeded"):
		return ToolErrorTimeout
	case strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "rate limit"),
		strings.Contains(errStr, "429"):
		return ToolErrorRateLimit
	case strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "no such host"),
		strings.Contains(errStr, "refused"):
		return ToolErrorNetwork
	}
	return ToolErrorExecution
}

// GetToolError extracts a ToolError from an error chain using errors.As.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}
