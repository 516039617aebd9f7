package agent

import (
	"fmt"
	"strings"
	"time"
)

// PromptBuilder renders the system prompt for each inference call.
type PromptBuilder struct {
	// BotName is how the assistant refers to itself.
	BotName string

	// Company is the organization the assistant works for.
	Company string

	// MaxIterations is the tool-round cap used to report remaining rounds.
	MaxIterations int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultPromptBuilder returns the builder for the "Za" persona.
func DefaultPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		BotName:       "Za",
		Company:       "Zapdos Labs",
		MaxIterations: DefaultMaxIterations,
	}
}

// Build returns the system prompt for the given zero-based iteration and
// tool catalog.
func (b *PromptBuilder) Build(iteration int, tools []Tool) string {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	name := b.BotName
	if name == "" {
		name = "Za"
	}
	company := b.Company
	if company == "" {
		company = "Zapdos Labs"
	}
	roundsLeft := b.MaxIterations - iteration
	if roundsLeft < 0 {
		roundsLeft = 0
	}

	var sb strings.Builder
	sb.WriteString("Focus on the latest message. If it is casual talk, answer casually and skip the steps below.\n\n")
	sb.WriteString("You are talking with your colleagues. Answer friendly but professionally, with no emoji. Keep it short, with no introduction.\n\n")
	fmt.Fprintf(&sb, "You are a virtual employee (AI) of %s, an early-stage startup building a multimodal AI video search engine. Your name is %q. Your strength is business development, but you are free to talk about anything.\n\n", company, name)
	sb.WriteString("Do not make up information. If you do not know something or cannot do something, say so and delegate to a human colleague when needed. Be skeptical about the information you provide.\n\n")

	fmt.Fprintf(&sb, "=== TOOLS ===\nYou have access to %d tools", len(tools))
	if len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name())
		}
		fmt.Fprintf(&sb, " (%s)", strings.Join(names, ", "))
	}
	fmt.Fprintf(&sb, ". You have %d tool rounds left for this answer.", roundsLeft)
	if roundsLeft <= 1 {
		sb.WriteString(" Answer now with what you already know.")
	}
	sb.WriteString("\n\n")

	sb.WriteString("=== HOW TO ANSWER ===\n")
	sb.WriteString("1. Understand the conversation and the context.\n")
	sb.WriteString("2. Ask clarifying questions if needed. Do not assume.\n")
	sb.WriteString("3. Point out what the user should think through or do before moving on.\n")
	sb.WriteString("4. Suggest specific, feasible next steps. Consider technical barriers and what an early-stage team can actually reach.\n\n")
	sb.WriteString("Lead with one or two key ideas. Use simple language with short sentences, paragraphs and lists.\n\n")

	fmt.Fprintf(&sb, "Today is %s", now().UTC().Format(time.RFC3339))
	return sb.String()
}
