package context

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/zapdoslabs/relay/pkg/models"
)

func user(content string) models.Message {
	return models.Message{Role: models.RoleUser, Content: content}
}

func assistant(content string) models.Message {
	return models.Message{Role: models.RoleAssistant, Content: content}
}

func sameMessage(a, b models.Message) bool {
	return a.Role == b.Role && a.Content == b.Content && a.ToolCallID == b.ToolCallID && len(a.ToolCalls) == len(b.ToolCalls)
}

func TestBudgeter_KeepsEverythingWithinBudget(t *testing.T) {
	msgs := []models.Message{user("hello"), assistant("hi there"), user("how are you?")}

	got := NewBudgeter(1000).Fit(msgs)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i := range msgs {
		if !sameMessage(got[i], msgs[i]) {
			t.Errorf("message %d = %+v, want %+v", i, got[i], msgs[i])
		}
	}
}

func TestBudgeter_TrimsTrailingAssistantRun(t *testing.T) {
	msgs := []models.Message{user("q1"), assistant("a1"), user("q2"), assistant("a2"), assistant("a3")}

	got := NewBudgeter(1000).Fit(msgs)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(got), got)
	}
	if got[len(got)-1].Content != "q2" {
		t.Errorf("last message = %q, want q2", got[len(got)-1].Content)
	}
}

func TestBudgeter_AllAssistantYieldsEmpty(t *testing.T) {
	got := NewBudgeter(1000).Fit([]models.Message{assistant("a"), assistant("b")})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestBudgeter_TruncatesOverflowingMessage(t *testing.T) {
	msgs := []models.Message{
		user("this is an old message that will not fit"),
		assistant("0123456789"),
		user("abcdefghij"),
	}

	got := NewBudgeter(25).Fit(msgs)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(got), got)
	}
	// 20 chars used by the two newest messages; 5 remain: marker + 2 runes.
	if got[0].Content != "...it" {
		t.Errorf("truncated head = %q, want %q", got[0].Content, "...it")
	}
	if got[0].Role != models.RoleUser {
		t.Errorf("truncated head role = %q", got[0].Role)
	}
	if total := TotalChars(got); total != 25 {
		t.Errorf("total chars = %d, want 25", total)
	}
}

func TestBudgeter_StopsAfterTruncation(t *testing.T) {
	msgs := []models.Message{user("oldest"), user(strings.Repeat("x", 50)), user("new")}

	got := NewBudgeter(20).Fit(msgs)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(got), got)
	}
	if !strings.HasPrefix(got[0].Content, DefaultTruncationMarker) {
		t.Errorf("expected truncation marker, got %q", got[0].Content)
	}
	if got[1].Content != "new" {
		t.Errorf("newest message = %q", got[1].Content)
	}
}

func TestBudgeter_CountsRunes(t *testing.T) {
	msgs := []models.Message{user("ééééé")}
	got := NewBudgeter(5).Fit(msgs)
	if len(got) != 1 || got[0].Content != "ééééé" {
		t.Fatalf("multi-byte content should fit by rune count, got %+v", got)
	}
}

func toolCalls(ids ...string) models.Message {
	m := models.Message{Role: models.RoleAssistant}
	for _, id := range ids {
		m.ToolCalls = append(m.ToolCalls, models.ToolCall{ID: id, Name: "search_tool"})
	}
	return m
}

func toolResult(id, content string) models.Message {
	return models.Message{Role: models.RoleTool, ToolCallID: id, Content: content}
}

func TestBudgeter_CutsToolBatchAsOneUnit(t *testing.T) {
	msgs := []models.Message{
		user("search please"),
		toolCalls("call_1"),
		toolResult("call_1", strings.Repeat("r", 40)),
		user("thanks"),
	}

	// "thanks" leaves 14 runes: the batch keeps its call and a cut result.
	got := NewBudgeter(20).Fit(msgs)
	if len(got) != 3 {
		t.Fatalf("expected call, result and question, got %+v", got)
	}
	if len(got[0].ToolCalls) != 1 || got[1].ToolCallID != "call_1" {
		t.Errorf("batch not kept together: %+v", got)
	}
	if got[1].Content != "..."+strings.Repeat("r", 11) {
		t.Errorf("cut result = %q", got[1].Content)
	}
	if total := TotalChars(got); total != 20 {
		t.Errorf("total chars = %d, want 20", total)
	}
}

func TestBudgeter_OversizedNewestBatch(t *testing.T) {
	msgs := []models.Message{
		user("what happened today?"),
		toolCalls("a", "b", "c"),
		toolResult("a", strings.Repeat("x", 13000)),
		toolResult("b", `{"results":[]}`),
		toolResult("c", strings.Repeat("y", 13000)),
	}

	got := NewBudgeter(DefaultMaxChars).Fit(msgs)
	if len(got) != 4 {
		t.Fatalf("expected the whole batch, got %d messages", len(got))
	}
	if len(got[0].ToolCalls) != 3 {
		t.Fatalf("assistant calls = %+v", got[0].ToolCalls)
	}
	for i, id := range []string{"a", "b", "c"} {
		if got[1+i].ToolCallID != id {
			t.Errorf("result %d answers %q, want %q", i, got[1+i].ToolCallID, id)
		}
	}
	if got[2].Content != `{"results":[]}` {
		t.Errorf("short result should be kept whole, got %q", got[2].Content)
	}
	for _, m := range []models.Message{got[1], got[3]} {
		if !strings.HasPrefix(m.Content, DefaultTruncationMarker) {
			t.Errorf("long result should be cut, got %d chars", m.Chars())
		}
	}
	if total := TotalChars(got); total > DefaultMaxChars {
		t.Errorf("budget exceeded: %d", total)
	}
}

func TestBudgeter_DropsBatchThatCannotShrink(t *testing.T) {
	msgs := []models.Message{
		user("q"),
		toolCalls("a", "b"),
		toolResult("a", strings.Repeat("x", 50)),
		toolResult("b", strings.Repeat("y", 50)),
	}
	// Five runes cannot hold a marker plus content for two results.
	if got := NewBudgeter(5).Fit(msgs); len(got) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestBudgeter_DropsLeadingToolResults(t *testing.T) {
	msgs := []models.Message{
		toolResult("call_0", "stale"),
		user("hello"),
	}
	got := NewBudgeter(100).Fit(msgs)
	if len(got) != 1 || got[0].Content != "hello" {
		t.Errorf("got %+v", got)
	}
}

func TestBudgeter_CapBatch(t *testing.T) {
	b := NewBudgeter(100)

	small := []models.Message{toolResult("a", "tiny")}
	if got := b.CapBatch(small); got[0].Content != "tiny" {
		t.Errorf("small batch changed: %+v", got)
	}

	batch := []models.Message{
		toolResult("a", strings.Repeat("x", 80)),
		toolResult("b", "ok"),
	}
	got := b.CapBatch(batch)
	if total := TotalChars(got); total > 50 {
		t.Errorf("capped batch has %d chars, want at most 50", total)
	}
	if got[1].Content != "ok" {
		t.Errorf("short result should be kept, got %q", got[1].Content)
	}
	if !strings.HasSuffix(got[0].Content, DefaultTruncationMarker) || !strings.HasPrefix(got[0].Content, "xxx") {
		t.Errorf("long result should keep its head, got %q", got[0].Content)
	}
	if batch[0].Chars() != 80 {
		t.Error("input batch was modified")
	}
}

func TestBudgeter_DoesNotMutateInput(t *testing.T) {
	msgs := []models.Message{user(strings.Repeat("a", 30)), user("b")}
	_ = NewBudgeter(10).Fit(msgs)
	if msgs[0].Content != strings.Repeat("a", 30) {
		t.Error("input slice was modified")
	}
}

func TestBudgeter_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	roles := []models.Role{models.RoleUser, models.RoleAssistant}

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(12)
		msgs := make([]models.Message, n)
		for i := range msgs {
			msgs[i] = models.Message{
				Role:    roles[rng.Intn(len(roles))],
				Content: strings.Repeat("z", 1+rng.Intn(40)),
			}
		}
		budget := 1 + rng.Intn(120)

		got := NewBudgeter(budget).Fit(msgs)

		if total := TotalChars(got); total > budget {
			t.Fatalf("budget %d exceeded: %d", budget, total)
		}
		if len(got) > 0 && got[len(got)-1].Role == models.RoleAssistant {
			t.Fatalf("output ends with assistant: %+v", got)
		}
		// Output is a suffix of the trimmed input, apart from a cut head.
		trimmed := TrimTrailingAssistant(msgs)
		offset := len(trimmed) - len(got)
		for i := 1; i < len(got); i++ {
			if !sameMessage(got[i], trimmed[offset+i]) {
				t.Fatalf("order not preserved at %d", i)
			}
		}
	}
}

func TestWithFallback(t *testing.T) {
	got := WithFallback(nil, "hello")
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Role != models.RoleUser || got[0].Content != "hello" {
		t.Errorf("fallback = %+v, want {user hello}", got[0])
	}

	kept := []models.Message{user("x")}
	if got := WithFallback(kept, "hello"); len(got) != 1 || got[0].Content != "x" {
		t.Errorf("non-empty input should pass through, got %+v", got)
	}
}
