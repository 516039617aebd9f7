// Package history turns Slack conversation history into model messages.
package history

import (
	"regexp"
	"strings"

	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/pkg/models"
)

// Order describes how a raw history page is sorted.
type Order int

const (
	// OldestFirst is the order of conversations.replies.
	OldestFirst Order = iota
	// NewestFirst is the order of conversations.history.
	NewestFirst
)

// SubtypeAssistantThread marks the bookkeeping message Slack posts when an
// assistant thread is opened. It never carries conversation content.
const SubtypeAssistantThread = "assistant_app_thread"

// answeredFooter matches the usage line older bot replies appended to their
// rich text body.
var answeredFooter = regexp.MustCompile(`(?m)Answered in [\d.]+ seconds \([\d,]+ tokens\)\.?$`)

// Normalize converts a page of Slack messages into an oldest-first message
// list. Messages authored by a bot become assistant messages, everything else
// is a user message. Bookkeeping subtypes and messages without text are
// skipped.
func Normalize(msgs []slack.Message, order Order) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for i := range msgs {
		idx := i
		if order == NewestFirst {
			idx = len(msgs) - 1 - i
		}
		msg, ok := normalizeOne(msgs[idx])
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func normalizeOne(m slack.Message) (msg models.Message, ok bool) {
	defer func() {
		// Blocks decoded from unexpected payloads can carry nil elements.
		if recover() != nil {
			ok = false
		}
	}()

	if m.SubType == SubtypeAssistantThread {
		return models.Message{}, false
	}
	text := ExtractText(m)
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false
	}
	role := models.RoleUser
	if m.BotID != "" {
		role = models.RoleAssistant
	}
	return models.Message{Role: role, Content: text}, true
}

// ExtractText returns the plain text of a Slack message.
//
// The first section block with mrkdwn text wins. Otherwise the text spans of
// rich_text sections are concatenated, minus a trailing usage footer. The raw
// text field is the last resort.
func ExtractText(m slack.Message) string {
	if text, ok := sectionText(m.Blocks.BlockSet); ok {
		return text
	}
	if text := richText(m.Blocks.BlockSet); text != "" {
		return text
	}
	return m.Text
}

func sectionText(blocks []slack.Block) (string, bool) {
	for _, b := range blocks {
		section, ok := b.(*slack.SectionBlock)
		if !ok || section == nil || section.Text == nil {
			continue
		}
		if section.Text.Type != slack.MarkdownType {
			continue
		}
		return strings.TrimSpace(section.Text.Text), true
	}
	return "", false
}

func richText(blocks []slack.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		rich, ok := b.(*slack.RichTextBlock)
		if !ok || rich == nil {
			continue
		}
		for _, el := range rich.Elements {
			section, ok := el.(*slack.RichTextSection)
			if !ok || section == nil {
				continue
			}
			for _, sub := range section.Elements {
				if text, ok := sub.(*slack.RichTextSectionTextElement); ok && text != nil {
					sb.WriteString(text.Text)
				}
			}
		}
	}
	return strings.TrimSpace(answeredFooter.ReplaceAllString(sb.String(), ""))
}
