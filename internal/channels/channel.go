// Package channels holds the platform-neutral pieces of chat integration:
// inbound events, adapter lifecycle, error codes and send-side rate limiting.
package channels

import (
	"context"
	"strings"
)

// Adapter connects to a chat platform and dispatches inbound events.
type Adapter interface {
	// Start authenticates and begins receiving events. It returns once the
	// connection loop is running.
	Start(ctx context.Context) error

	// Stop shuts the connection down and waits for in-flight turns, bounded
	// by ctx.
	Stop(ctx context.Context) error

	// Status returns the current connection status.
	Status() Status
}

// Handler runs one turn per inbound event. HandleEvent blocks until the
// turn's output has been delivered.
type Handler interface {
	HandleEvent(ctx context.Context, event Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event)

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// EventKind names the platform event that produced a turn.
type EventKind string

const (
	EventMention EventKind = "app_mention"
	EventMessage EventKind = "message"
)

// Event is one inbound chat message that starts a turn.
type Event struct {
	Kind      EventKind
	ChannelID string
	UserID    string
	Text      string

	// TS is the event message's own timestamp.
	TS string

	// ThreadTS is the thread the reply belongs to. Top-level messages start
	// a thread on themselves.
	ThreadTS string
}

// InThread reports whether the event was posted as a thread reply rather
// than a top-level message.
func (e Event) InThread() bool {
	return e.ThreadTS != "" && e.ThreadTS != e.TS
}

// IsDirect reports whether the event came from a direct message channel.
func (e Event) IsDirect() bool {
	return strings.HasPrefix(e.ChannelID, "D")
}

// Status represents the connection status of a channel.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"` // Unix timestamp
}
