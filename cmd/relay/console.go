package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/internal/outbound"
)

// consoleSurface prints every post and edit a turn makes, in order.
type consoleSurface struct {
	mu   sync.Mutex
	out  io.Writer
	next int
}

var _ outbound.Surface = (*consoleSurface)(nil)

func newConsoleSurface(out io.Writer) *consoleSurface {
	return &consoleSurface{out: out}
}

func (c *consoleSurface) Post(ctx context.Context, msg outbound.Message) (outbound.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	h := outbound.Handle{Channel: "console", TS: fmt.Sprintf("%d", c.next)}
	_, err := fmt.Fprintf(c.out, "── message %s ──\n%s\n\n", h.TS, renderMessage(msg))
	return h, err
}

func (c *consoleSurface) Update(ctx context.Context, h outbound.Handle, msg outbound.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "── message %s (edited) ──\n%s\n\n", h.TS, renderMessage(msg))
	return err
}

// renderMessage prints blocks the way they read in Slack, falling back to
// the notification text.
func renderMessage(msg outbound.Message) string {
	if len(msg.Blocks) == 0 {
		return msg.Text
	}
	var parts []string
	for _, block := range msg.Blocks {
		switch b := block.(type) {
		case *slack.SectionBlock:
			if b.Text != nil {
				parts = append(parts, b.Text.Text)
			}
		case *slack.ContextBlock:
			for _, el := range b.ContextElements.Elements {
				if text, ok := el.(*slack.TextBlockObject); ok {
					parts = append(parts, "> "+text.Text)
				}
			}
		case *slack.DividerBlock:
			parts = append(parts, "──────────")
		}
	}
	return strings.Join(parts, "\n")
}
