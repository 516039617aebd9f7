package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/pkg/models"
)

// Client is the subset of the Slack Web API used to read history.
type Client interface {
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

// Target identifies where a turn's history lives. A non-empty ThreadTS reads
// the thread; otherwise the channel timeline is read.
type Target struct {
	ChannelID string
	ThreadTS  string
}

// Fetcher reads and normalizes recent history for a turn.
type Fetcher struct {
	client  Client
	limit   int
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Limit   int
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewFetcher creates a history fetcher. Limit defaults to 10 and Timeout to 3s.
func NewFetcher(client Client, cfg FetcherConfig) *Fetcher {
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client:  client,
		limit:   cfg.Limit,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With("component", "history"),
		metrics: cfg.Metrics,
	}
}

type page struct {
	msgs  []slack.Message
	order Order
	err   error
}

// Fetch returns the normalized history for target, oldest first.
//
// The Slack call races the configured timeout. A timeout or API error is
// logged and yields an empty history; it is never returned to the caller.
func (f *Fetcher) Fetch(ctx context.Context, target Target) []models.Message {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan page, 1)
	go func() {
		done <- f.read(ctx, target)
	}()

	select {
	case <-ctx.Done():
		f.logger.WarnContext(ctx, "history fetch timed out", "timeout", f.timeout, "channel", target.ChannelID)
		f.metrics.RecordHistoryFetch("timeout")
		return nil
	case p := <-done:
		if p.err != nil {
			if errors.Is(p.err, context.DeadlineExceeded) {
				f.metrics.RecordHistoryFetch("timeout")
			} else {
				f.metrics.RecordHistoryFetch("error")
			}
			f.logger.WarnContext(ctx, "history fetch failed", "error", p.err, "channel", target.ChannelID)
			return nil
		}
		f.metrics.RecordHistoryFetch("ok")
		return Normalize(p.msgs, p.order)
	}
}

func (f *Fetcher) read(ctx context.Context, target Target) page {
	if target.ThreadTS != "" {
		msgs, _, _, err := f.client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: target.ChannelID,
			Timestamp: target.ThreadTS,
			Limit:     f.limit,
		})
		return page{msgs: msgs, order: OldestFirst, err: err}
	}

	resp, err := f.client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: target.ChannelID,
		Limit:     f.limit,
	})
	if err != nil {
		return page{err: err}
	}
	if resp == nil {
		return page{order: NewestFirst}
	}
	return page{msgs: resp.Messages, order: NewestFirst}
}
