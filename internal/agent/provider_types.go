package agent

import (
	"context"
	"encoding/json"

	"github.com/zapdoslabs/relay/pkg/models"
)

// LLMProvider defines the interface for chat-completion backends.
//
// Implementations translate a CompletionRequest into the backend's wire
// format and return the complete assistant message. Streaming backends
// accumulate their deltas before returning.
//
// Implementations must be safe for concurrent use.
//
// See Also:
//   - providers.OpenAIProvider for OpenAI-compatible endpoints (Cerebras, OpenAI)
type LLMProvider interface {
	// Complete sends one request and returns the model's reply.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// CompletionRequest contains all parameters for one completion request.
//
// Example:
//
//	req := &CompletionRequest{
//	    Model:     "qwen-3-235b-a22b",
//	    System:    "You are a helpful assistant.",
//	    Messages:  []models.Message{{Role: models.RoleUser, Content: "hello"}},
//	    MaxTokens: 40000,
//	}
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's default is used.
	Model string `json:"model"`

	// System is the system prompt. It is sent ahead of Messages.
	System string `json:"system,omitempty"`

	// Messages contains the conversation in chronological order.
	Messages []models.Message `json:"messages"`

	// Tools is the catalog offered to the model. Empty disables tool calling.
	Tools []Tool `json:"-"`

	// MaxTokens limits the length of the generated response.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature and TopP are sampling parameters. A zero Temperature asks
	// for greedy decoding; a zero TopP leaves the provider default in place.
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p,omitempty"`
}

// Usage reports token accounting for one request. Zero values mean the
// backend did not report usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// CompletionResponse is the provider's reply to one request.
type CompletionResponse struct {
	// Message is the assistant message, including any tool calls.
	// Nil when the backend returned no choices.
	Message *models.Message `json:"message,omitempty"`

	// Usage is the token accounting, when reported.
	Usage Usage `json:"usage"`

	// Model is the model that served the request.
	Model string `json:"model,omitempty"`

	// FinishReason is the backend's stop reason, e.g. "stop" or "tool_calls".
	FinishReason string `json:"finish_reason,omitempty"`
}

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Clock struct{}
//
//	func (c *Clock) Name() string { return "clock" }
//
//	func (c *Clock) Description() string { return "Returns the current time" }
//
//	func (c *Clock) Schema() json.RawMessage {
//	    return json.RawMessage(`{"type": "object", "properties": {}}`)
//	}
//
//	func (c *Clock) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
//	    return &ToolResult{Content: time.Now().Format(time.RFC3339)}, nil
//	}
type Tool interface {
	// Name returns the tool name for function calling.
	// Must be a valid function name (alphanumeric, underscores, dashes).
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema returns the JSON Schema of the tool's parameters. Arguments are
	// validated against it before Execute is called.
	Schema() json.RawMessage

	// Execute runs the tool with arguments that match Schema.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ProgressLogger is implemented by tools that describe each successful call
// in a single line shown to the user while the turn is running.
type ProgressLogger interface {
	LogLine(params json.RawMessage) string
}

// ToolResult contains the output from a tool execution.
//
// Errors can also be reported via ToolResult with IsError=true, which the
// model sees like any other result.
type ToolResult struct {
	// Content is the tool's output, normally a JSON document.
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`
}
