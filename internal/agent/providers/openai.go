// Package providers implements agent.LLMProvider for hosted model endpoints.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zapdoslabs/relay/internal/agent"
	"github.com/zapdoslabs/relay/internal/agent/toolconv"
	"github.com/zapdoslabs/relay/pkg/models"
)

// DefaultBaseURL is the Cerebras OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.cerebras.ai/v1"

// MaxResponseTextSize bounds accumulated streamed content (1MB).
const MaxResponseTextSize = 1 << 20

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	// Name identifies the provider in logs and metrics. Default: "cerebras".
	Name string

	// APIKey is sent as a bearer token.
	APIKey string

	// BaseURL is the API root, up to and including the version segment.
	// Default: DefaultBaseURL
	BaseURL string

	// RequestTimeout bounds each HTTP request. Default: 120s.
	RequestTimeout time.Duration

	// MaxRetries and RetryDelay control linear retry of transient failures.
	MaxRetries int
	RetryDelay time.Duration

	// Stream requests server-sent events and accumulates them into a
	// complete message.
	Stream bool

	// HTTPClient overrides the HTTP client. RequestTimeout is ignored when set.
	HTTPClient *http.Client
}

// OpenAIProvider implements agent.LLMProvider for any endpoint that speaks
// the OpenAI chat-completions protocol, Cerebras by default.
//
// Key behavior:
//   - The system prompt is sent as the first message
//   - Tool calls are returned on the assistant message
//   - Transient failures (429, 5xx, timeouts) are retried with linear backoff
//   - In stream mode, text and tool-call deltas are accumulated before returning
//
// OpenAIProvider is safe for concurrent use.
//
// Example:
//
//	provider := NewOpenAIProvider(OpenAIConfig{APIKey: os.Getenv("CEREBRAS_API_KEY")})
//	resp, err := provider.Complete(ctx, &agent.CompletionRequest{
//	    Model:    "qwen-3-235b-a22b",
//	    Messages: []models.Message{{Role: models.RoleUser, Content: "Hello!"}},
//	})
type OpenAIProvider struct {
	BaseProvider
	client *openai.Client
	stream bool
}

// NewOpenAIProvider creates a provider. An empty API key yields a provider
// whose Complete calls fail, allowing delayed configuration.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = "cerebras"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}

	p := &OpenAIProvider{
		BaseProvider: NewBaseProvider(cfg.Name, cfg.MaxRetries, cfg.RetryDelay),
		stream:       cfg.Stream,
	}
	if cfg.APIKey == "" {
		return p
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

// Complete sends one chat-completion request and returns the assistant reply.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.CompletionResponse, error) {
	if p.client == nil {
		return nil, NewProviderError(p.name, req.Model, errors.New("API key not configured")).
			withReason(ReasonAuth)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toolconv.ToOpenAIMessages(req.System, req.Messages),
		Tools:       toolconv.ToOpenAITools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: wireTemperature(req.Temperature),
		TopP:        req.TopP,
	}

	var resp *agent.CompletionResponse
	err := p.Retry(ctx, IsRetryable, func() error {
		var err error
		if p.stream {
			resp, err = p.completeStream(ctx, chatReq)
		} else {
			resp, err = p.completeOnce(ctx, chatReq)
		}
		if err != nil {
			return NewProviderError(p.name, req.Model, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return resp, nil
}

func (p *OpenAIProvider) completeOnce(ctx context.Context, chatReq openai.ChatCompletionRequest) (*agent.CompletionResponse, error) {
	out, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}

	resp := &agent.CompletionResponse{
		Model: out.Model,
		Usage: agent.Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}
	if len(out.Choices) == 0 {
		return resp, nil
	}
	choice := out.Choices[0]
	resp.FinishReason = string(choice.FinishReason)
	resp.Message = &models.Message{
		Role:      models.RoleAssistant,
		Content:   choice.Message.Content,
		ToolCalls: toolconv.FromOpenAIToolCalls(choice.Message.ToolCalls),
	}
	return resp, nil
}

// completeStream consumes the event stream and assembles the reply.
//
// Tool calls arrive in fragments keyed by index: the first fragment carries
// the ID and name, later ones append to the JSON arguments.
func (p *OpenAIProvider) completeStream(ctx context.Context, chatReq openai.ChatCompletionRequest) (*agent.CompletionResponse, error) {
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	resp := &agent.CompletionResponse{Model: chatReq.Model}
	var text strings.Builder
	toolCalls := make(map[int]*models.ToolCall)
	args := make(map[int]*strings.Builder)
	sawChoice := false

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = agent.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		sawChoice = true

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			resp.FinishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content != "" {
			if text.Len()+len(choice.Delta.Content) > MaxResponseTextSize {
				return nil, fmt.Errorf("response text exceeds maximum size of %d bytes", MaxResponseTextSize)
			}
			text.WriteString(choice.Delta.Content)
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
				args[index] = &strings.Builder{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			args[index].WriteString(tc.Function.Arguments)
		}
	}

	if !sawChoice {
		return resp, nil
	}

	msg := &models.Message{Role: models.RoleAssistant, Content: text.String()}
	indexes := make([]int, 0, len(toolCalls))
	for i := range toolCalls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		tc := toolCalls[i]
		if tc.Name == "" {
			continue
		}
		tc.Input = json.RawMessage(args[i].String())
		msg.ToolCalls = append(msg.ToolCalls, *tc)
	}
	resp.Message = msg
	return resp, nil
}

func (e *ProviderError) withReason(reason ErrorReason) *ProviderError {
	e.Reason = reason
	return e
}

// wireTemperature maps zero to the smallest positive value, since the
// client omits a zero temperature and the server would apply its default.
func wireTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
