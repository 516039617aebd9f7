// Package outbound delivers a turn's visible output to a chat surface: a
// placeholder, live progress, and the final answer units, in order.
package outbound

import (
	"context"

	"github.com/slack-go/slack"
)

// Handle identifies a posted message so it can be updated later.
type Handle struct {
	Channel string
	TS      string
}

// IsZero reports whether h refers to no message.
func (h Handle) IsZero() bool {
	return h.TS == ""
}

// Message is one chat message. Text is the notification and accessibility
// fallback for Blocks.
type Message struct {
	Text   string
	Blocks []slack.Block
}

// Surface posts and edits messages in one conversation.
type Surface interface {
	Post(ctx context.Context, msg Message) (Handle, error)
	Update(ctx context.Context, h Handle, msg Message) error
}
