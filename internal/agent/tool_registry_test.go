package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestToolRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		tool    *mockTool
		wantErr error
	}{
		{"valid", &mockTool{name: "search_tool"}, nil},
		{"dashes allowed", &mockTool{name: "web-search"}, nil},
		{"empty name", &mockTool{name: ""}, ErrInvalidToolName},
		{"spaces", &mockTool{name: "search tool"}, ErrInvalidToolName},
		{"too long", &mockTool{name: strings.Repeat("a", MaxToolNameLength+1)}, ErrInvalidToolName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewToolRegistry().Register(tt.tool)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestToolRegistry_RegisterRejectsBadSchema(t *testing.T) {
	err := NewToolRegistry().Register(&mockTool{name: "bad", schema: json.RawMessage(`{"type": 12}`)})
	if err == nil {
		t.Fatal("expected schema compile error")
	}
}

func TestToolRegistry_Execute(t *testing.T) {
	registry := NewToolRegistry()
	var got json.RawMessage
	mustRegister(t, registry, &mockTool{
		name:   "search_tool",
		schema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","minLength":1}},"required":["query"]}`),
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			got = params
			return &ToolResult{Content: "ok"}, nil
		},
	})

	res, err := registry.Execute(context.Background(), "search_tool", json.RawMessage(`{"query":"zapdos"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Content != "ok" || string(got) != `{"query":"zapdos"}` {
		t.Errorf("result = %+v, params = %s", res, got)
	}

	tests := []struct {
		name   string
		params string
	}{
		{"missing required", `{}`},
		{"wrong type", `{"query": 5}`},
		{"empty string", `{"query": ""}`},
		{"not json", `{query}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Execute(context.Background(), "search_tool", json.RawMessage(tt.params))
			if !errors.Is(err, ErrInvalidArgs) {
				t.Errorf("error = %v, want ErrInvalidArgs", err)
			}
		})
	}
}

func TestToolRegistry_ExecuteUnknown(t *testing.T) {
	_, err := NewToolRegistry().Execute(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("error = %v, want ErrToolNotFound", err)
	}
}

func TestToolRegistry_EmptyParamsBecomeObject(t *testing.T) {
	registry := NewToolRegistry()
	var got json.RawMessage
	mustRegister(t, registry, &mockTool{
		name:   "clock",
		schema: json.RawMessage(`{"type":"object","properties":{}}`),
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			got = params
			return &ToolResult{Content: "now"}, nil
		},
	})

	if _, err := registry.Execute(context.Background(), "clock", nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(got) != `{}` {
		t.Errorf("params = %s, want {}", got)
	}
}

func TestToolRegistry_AsLLMToolsSorted(t *testing.T) {
	registry := NewToolRegistry()
	mustRegister(t, registry, &mockTool{name: "zeta"}, &mockTool{name: "alpha"}, &mockTool{name: "mid"})

	tools := registry.AsLLMTools()
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name()
	}
	if strings.Join(names, ",") != "alpha,mid,zeta" {
		t.Errorf("order = %v", names)
	}
	if registry.Len() != 3 {
		t.Errorf("Len() = %d", registry.Len())
	}
}
