package toolconv

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/zapdoslabs/relay/internal/agent"
	"github.com/zapdoslabs/relay/pkg/models"
)

type schemaTool struct {
	schema string
}

func (s schemaTool) Name() string            { return "search_tool" }
func (s schemaTool) Description() string     { return "Search recent news" }
func (s schemaTool) Schema() json.RawMessage { return json.RawMessage(s.schema) }
func (s schemaTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return nil, nil
}

func TestToOpenAITools(t *testing.T) {
	tools := ToOpenAITools([]agent.Tool{
		schemaTool{schema: `{"type":"object","properties":{"query":{"type":"string"}}}`},
		schemaTool{schema: `not json`},
	})
	if len(tools) != 2 {
		t.Fatalf("got %d tools", len(tools))
	}
	if tools[0].Type != openai.ToolTypeFunction || tools[0].Function.Name != "search_tool" {
		t.Errorf("tool = %+v", tools[0])
	}
	params, ok := tools[1].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("invalid schema should fall back to an empty object, got %v", tools[1].Function.Parameters)
	}
	if ToOpenAITools(nil) != nil {
		t.Error("no tools should yield nil")
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := ToOpenAIMessages("system prompt", []models.Message{
		{Role: models.RoleUser, Content: "find news"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{{ID: "call_1", Name: "search_tool"}}},
		{Role: models.RoleTool, ToolCallID: "call_1", Content: `{"results":[]}`},
	})

	if len(msgs) != 4 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem || msgs[0].Content != "system prompt" {
		t.Errorf("system = %+v", msgs[0])
	}
	if len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].Function.Arguments != "{}" {
		t.Errorf("assistant tool calls = %+v", msgs[2].ToolCalls)
	}
	if msgs[3].Role != openai.ChatMessageRoleTool || msgs[3].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", msgs[3])
	}
}

func TestToOpenAIMessages_NoSystem(t *testing.T) {
	msgs := ToOpenAIMessages("", []models.Message{{Role: models.RoleUser, Content: "hi"}})
	if len(msgs) != 1 || msgs[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestFromOpenAIToolCalls(t *testing.T) {
	calls := FromOpenAIToolCalls([]openai.ToolCall{
		{ID: "a", Function: openai.FunctionCall{Name: "search_tool", Arguments: `{"query":"x"}`}},
		{ID: "b"},
	})
	if len(calls) != 1 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].ID != "a" || string(calls[0].Input) != `{"query":"x"}` {
		t.Errorf("call = %+v", calls[0])
	}
}
