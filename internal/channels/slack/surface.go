package slack

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/internal/channels"
	"github.com/zapdoslabs/relay/internal/outbound"
	"github.com/zapdoslabs/relay/internal/retry"
)

// DefaultSendRetry retries throttled chat calls, waiting as long as Slack's
// Retry-After asks up to MaxDelay.
var DefaultSendRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
	Factor:       2,
	Jitter:       true,
}

// Surface posts and edits messages in one Slack thread. It implements
// outbound.Surface.
type Surface struct {
	client   SlackAPIClient
	channel  string
	threadTS string
	limiter  *channels.RateLimiter
	retry    retry.Config
}

var _ outbound.Surface = (*Surface)(nil)

// NewSurface returns a surface replying in threadTS of channel. limiter may
// be shared across surfaces and may be nil.
func NewSurface(client SlackAPIClient, channel, threadTS string, limiter *channels.RateLimiter) *Surface {
	return &Surface{
		client:   client,
		channel:  channel,
		threadTS: threadTS,
		limiter:  limiter,
		retry:    DefaultSendRetry,
	}
}

// Post sends msg as a new thread reply.
func (s *Surface) Post(ctx context.Context, msg outbound.Message) (outbound.Handle, error) {
	options := messageOptions(msg)
	if s.threadTS != "" {
		options = append(options, slack.MsgOptionTS(s.threadTS))
	}

	var h outbound.Handle
	err := s.call(ctx, "chat.postMessage", func() error {
		channel, ts, err := s.client.PostMessageContext(ctx, s.channel, options...)
		if err != nil {
			return err
		}
		h = outbound.Handle{Channel: channel, TS: ts}
		return nil
	})
	return h, err
}

// Update replaces the content of a message posted earlier.
func (s *Surface) Update(ctx context.Context, h outbound.Handle, msg outbound.Message) error {
	channel := h.Channel
	if channel == "" {
		channel = s.channel
	}
	options := messageOptions(msg)
	return s.call(ctx, "chat.update", func() error {
		_, _, _, err := s.client.UpdateMessageContext(ctx, channel, h.TS, options...)
		return err
	})
}

func (s *Surface) call(ctx context.Context, op string, fn func() error) error {
	res := retry.Do(ctx, s.retry, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(channels.ErrTimeout("waiting for send slot", err).WithOp(op))
		}
		if err := fn(); err != nil {
			return classify(op, err)
		}
		return nil
	})
	return res.Err
}

func messageOptions(msg outbound.Message) []slack.MsgOption {
	options := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		options = append(options, slack.MsgOptionBlocks(msg.Blocks...))
	}
	return options
}

// classify maps a Slack Web API failure to a channel error. Only throttling
// is retried, after the delay Slack asked for.
func classify(op string, err error) error {
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return retry.After(limited.RetryAfter, channels.ErrRateLimit("throttled", err).WithOp(op))
	}

	var chErr *channels.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		chErr = channels.ErrTimeout("request abandoned", err)
	default:
		chErr = channels.NewError(codeFor(err.Error()), "request failed", err)
	}
	return retry.Permanent(chErr.WithOp(op))
}

// codeFor maps Slack's error strings to codes.
func codeFor(slackErr string) channels.ErrorCode {
	switch strings.TrimSpace(slackErr) {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired", "missing_scope":
		return channels.ErrCodeAuthentication
	case "channel_not_found", "message_not_found", "thread_not_found", "not_in_channel", "is_archived":
		return channels.ErrCodeNotFound
	case "msg_too_long", "no_text", "invalid_blocks", "invalid_blocks_format", "too_many_attachments":
		return channels.ErrCodeInvalidInput
	case "ratelimited":
		return channels.ErrCodeRateLimit
	default:
		return channels.ErrCodeInternal
	}
}
