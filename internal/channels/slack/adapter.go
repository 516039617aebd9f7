// Package slack connects relay to Slack: Socket Mode events in, Block Kit
// messages out.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/zapdoslabs/relay/internal/cache"
	"github.com/zapdoslabs/relay/internal/channels"
)

// Socket Mode redelivers events that were not acknowledged in time.
const dedupeTTL = 10 * time.Minute

// Config holds the configuration for the Slack adapter.
type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode

	// Debug turns on slack-go's Socket Mode debug output.
	Debug bool

	Logger *slog.Logger
}

// Validate checks that both tokens are present and of the right kind.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.BotToken, "xoxb-") {
		return channels.ErrConfig("bot_token must be an xoxb- bot token", nil)
	}
	if !strings.HasPrefix(c.AppToken, "xapp-") {
		return channels.ErrConfig("app_token must be an xapp- app-level token", nil)
	}
	return nil
}

// Adapter receives Socket Mode events and runs one turn per addressed
// message. Turns run concurrently; each owns its own delivery.
type Adapter struct {
	api     SlackAPIClient
	socket  SocketModeClient
	handler channels.Handler
	logger  *slog.Logger
	seen    *cache.DedupeCache

	status   channels.Status
	statusMu sync.RWMutex

	botUserID   string
	botUserIDMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
	turns  sync.WaitGroup
}

var _ channels.Adapter = (*Adapter)(nil)

// NewAdapter creates an adapter over the given clients.
func NewAdapter(cfg Config, api SlackAPIClient, socket SocketModeClient, handler channels.Handler) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		api:     api,
		socket:  socket,
		handler: handler,
		logger:  logger.With("adapter", "slack"),
		seen:    cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: dedupeTTL}),
	}
}

// Start authenticates, then reads events until ctx is cancelled or Stop is
// called.
func (a *Adapter) Start(ctx context.Context) error {
	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return channels.ErrAuthentication("failed to authenticate with Slack", err).WithOp("auth.test")
	}
	a.botUserIDMu.Lock()
	a.botUserID = auth.UserID
	a.botUserIDMu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.logger.Info("slack adapter started", "bot_user_id", auth.UserID, "team", auth.Team)

	a.loops.Add(2)
	go a.handleEvents()
	go func() {
		defer a.loops.Done()
		if err := a.socket.RunContext(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.updateStatus(false, fmt.Sprintf("socket mode error: %v", err))
			a.logger.Error("socket mode stopped", "error", err)
		}
	}()

	return nil
}

// Stop cancels the connection and waits for running turns to deliver.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.loops.Wait()
		a.turns.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.updateStatus(false, "")
		return nil
	case <-ctx.Done():
		a.updateStatus(false, "shutdown timeout")
		return channels.ErrTimeout("shutdown timeout", ctx.Err())
	}
}

// Status returns the current connection status.
func (a *Adapter) Status() channels.Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

// BotUserID returns the bot's own user id, known after Start.
func (a *Adapter) BotUserID() string {
	a.botUserIDMu.RLock()
	defer a.botUserIDMu.RUnlock()
	return a.botUserID
}

func (a *Adapter) handleEvents() {
	defer a.loops.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.socket.Events():
			if !ok {
				return
			}

			a.statusMu.Lock()
			a.status.LastPing = time.Now().Unix()
			a.statusMu.Unlock()

			switch event.Type {
			case socketmode.EventTypeConnecting:
				a.logger.Debug("connecting to socket mode")
			case socketmode.EventTypeConnectionError:
				a.logger.Warn("socket mode connection error", "data", event.Data)
				a.updateStatus(false, "connection error")
			case socketmode.EventTypeConnected:
				a.logger.Info("connected to socket mode")
				a.updateStatus(true, "")
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			default:
				// Slash commands and interactive payloads are not handled,
				// but Slack retries anything left unacknowledged.
				if event.Request != nil {
					a.socket.Ack(*event.Request)
				}
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	if event.Request != nil {
		a.socket.Ack(*event.Request)
	}

	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		a.logger.Warn("unexpected events api payload", "type", fmt.Sprintf("%T", event.Data))
		return
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}

	ev, ok := a.toEvent(apiEvent.InnerEvent.Data)
	if !ok {
		return
	}
	if a.seen.Check(cache.MessageDedupeKey(ev.ChannelID, ev.TS)) {
		a.logger.Debug("dropping redelivered event", "channel", ev.ChannelID, "ts", ev.TS)
		return
	}

	a.turns.Add(1)
	go func() {
		defer a.turns.Done()
		a.handler.HandleEvent(a.ctx, ev)
	}()
}

// toEvent converts an inner event into a turn. Mentions start turns in
// channels; plain messages only in direct messages, since a mention in a
// channel also arrives as a message event.
func (a *Adapter) toEvent(data interface{}) (channels.Event, bool) {
	botUserID := a.BotUserID()

	switch ev := data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == botUserID {
			return channels.Event{}, false
		}
		return newEvent(channels.EventMention, ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp, botUserID), true

	case *slackevents.MessageEvent:
		if ev.ChannelType != "im" {
			return channels.Event{}, false
		}
		if ev.BotID != "" || ev.User == "" || ev.User == botUserID {
			return channels.Event{}, false
		}
		if ev.SubType != "" && ev.SubType != "file_share" && ev.SubType != "thread_broadcast" {
			return channels.Event{}, false
		}
		return newEvent(channels.EventMessage, ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp, botUserID), true
	}
	return channels.Event{}, false
}

func newEvent(kind channels.EventKind, channel, user, text, ts, threadTS, botUserID string) channels.Event {
	if threadTS == "" {
		threadTS = ts
	}
	return channels.Event{
		Kind:      kind,
		ChannelID: channel,
		UserID:    user,
		Text:      StripMention(text, botUserID),
		TS:        ts,
		ThreadTS:  threadTS,
	}
}

var mentionRe = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)

// StripMention removes mentions of the bot from text. Mentions of other
// users are kept.
func StripMention(text, botUserID string) string {
	text = mentionRe.ReplaceAllStringFunc(text, func(m string) string {
		if sub := mentionRe.FindStringSubmatch(m); sub != nil && sub[1] == botUserID {
			return ""
		}
		return m
	})
	return strings.TrimSpace(text)
}

func (a *Adapter) updateStatus(connected bool, errMsg string) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.Connected = connected
	a.status.Error = errMsg
	if connected {
		a.status.LastPing = time.Now().Unix()
	}
}
