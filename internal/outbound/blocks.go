package outbound

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Slack limits on text object length.
const (
	SectionTextLimit = 3000
	ContextTextLimit = 3000
)

// DefaultPlaceholder is shown while a turn is running.
const DefaultPlaceholder = "Thinking..."

// PlaceholderMessage renders the in-progress indicator.
func PlaceholderMessage(text string) Message {
	return Message{
		Text:   text,
		Blocks: []slack.Block{contextBlock(text)},
	}
}

// ProgressMessage renders the placeholder followed by tool progress lines,
// oldest first. When the lines do not fit a context block the oldest are
// dropped.
func ProgressMessage(placeholder string, lines []string) Message {
	msg := PlaceholderMessage(placeholder)
	if len(lines) == 0 {
		return msg
	}

	kept := lines
	for len(kept) > 1 && runeLen(strings.Join(kept, "\n")) > ContextTextLimit {
		kept = kept[1:]
	}
	body := truncateRunes(strings.Join(kept, "\n"), ContextTextLimit)

	msg.Blocks = append(msg.Blocks, contextBlock(body))
	msg.Text = placeholder + "\n" + body
	return msg
}

// TextMessage renders mrkdwn text as section blocks.
func TextMessage(text string) Message {
	return Message{
		Text:   text,
		Blocks: SectionBlocks(text),
	}
}

// SectionBlocks renders text as one or more mrkdwn sections, cutting at the
// section text limit.
func SectionBlocks(text string) []slack.Block {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	var blocks []slack.Block
	for len(runes) > 0 {
		n := min(len(runes), SectionTextLimit)
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, string(runes[:n]), false, false),
			nil, nil,
		))
		runes = runes[n:]
	}
	return blocks
}

// ReasoningBlocks renders the model's reasoning as a code section followed
// by a divider. Long reasoning keeps its tail.
func ReasoningBlocks(reasoning string) []slack.Block {
	reasoning = strings.TrimSpace(reasoning)
	if reasoning == "" {
		return nil
	}
	const fence = "```"
	budget := SectionTextLimit - 2*len(fence) - 2
	if runes := []rune(reasoning); len(runes) > budget {
		reasoning = "…" + string(runes[len(runes)-budget+1:])
	}
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, fence+"\n"+reasoning+"\n"+fence, false, false),
			nil, nil,
		),
		slack.NewDividerBlock(),
	}
}

// Usage is what the footer reports about a turn.
type Usage struct {
	Model           string
	Elapsed         time.Duration
	TotalTokens     int
	ContextMessages int
}

// FooterText renders usage as "model • 1.2 seconds • 345 tokens • 3 context
// messages". Unknown token usage renders as "?".
func FooterText(u Usage) string {
	tokens := "?"
	if u.TotalTokens > 0 {
		tokens = strconv.Itoa(u.TotalTokens)
	}
	return fmt.Sprintf("%s • %.1f seconds • %s tokens • %d context messages",
		u.Model, u.Elapsed.Seconds(), tokens, u.ContextMessages)
}

// FooterBlock renders usage as a context block.
func FooterBlock(u Usage) slack.Block {
	return contextBlock(FooterText(u))
}

func contextBlock(text string) *slack.ContextBlock {
	return slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
	)
}

func runeLen(s string) int {
	return len([]rune(s))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
