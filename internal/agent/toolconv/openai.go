// Package toolconv converts agent types to provider wire formats.
package toolconv

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zapdoslabs/relay/internal/agent"
	"github.com/zapdoslabs/relay/pkg/models"
)

// ToOpenAITools converts tool definitions to OpenAI function schemas.
// A tool whose schema does not decode is offered with an empty object schema.
func ToOpenAITools(tools []agent.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil || schemaMap == nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
			},
		}
	}
	return result
}

// ToOpenAIMessages converts a conversation to chat-completion messages. The
// system prompt, when set, becomes the first message.
func ToOpenAIMessages(system string, messages []models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		switch msg.Role {
		case models.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					args := string(tc.Input)
					if args == "" {
						args = "{}"
					}
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: args,
						},
					}
				}
			}
		case models.RoleTool:
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		result = append(result, oaiMsg)
	}
	return result
}

// FromOpenAIToolCalls converts response tool calls back to agent form.
func FromOpenAIToolCalls(calls []openai.ToolCall) []models.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]models.ToolCall, 0, len(calls))
	for _, tc := range calls {
		if tc.Function.Name == "" {
			continue
		}
		out = append(out, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}
