package slack

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/internal/agent"
	agentctx "github.com/zapdoslabs/relay/internal/agent/context"
	"github.com/zapdoslabs/relay/internal/channels"
	"github.com/zapdoslabs/relay/internal/history"
	"github.com/zapdoslabs/relay/internal/observability"
	"github.com/zapdoslabs/relay/internal/outbound"
	"github.com/zapdoslabs/relay/internal/reply"
	"github.com/zapdoslabs/relay/pkg/models"
)

// DefaultExhaustedText is shown when the context budget leaves nothing to
// send to the model.
const DefaultExhaustedText = "This conversation is too long for me to answer here. Please start a new thread."

// Turn outcomes recorded in relay_turns_total.
const (
	OutcomeOK        = "ok"
	OutcomeFallback  = "fallback"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// SurfaceFactory returns the surface a turn replies on.
type SurfaceFactory func(event channels.Event) outbound.Surface

// TurnConfig configures a TurnHandler.
type TurnConfig struct {
	// Model names the model in the usage footer when no inference ran.
	Model string

	// ShowThink renders the reasoning segment above the answer.
	ShowThink bool

	// NoHistoryFlag in the event text skips the history lookup.
	// Default: "--no-history"
	NoHistoryFlag string

	Reply       reply.Options
	Placeholder string

	// ExhaustedText replaces the placeholder when the context budget is
	// exhausted.
	ExhaustedText string

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// TurnHandler runs one conversation turn per event:
//
//	history -> normalize -> loop (progress) -> post-process -> deliver
//
// The placeholder is posted before history is read and resolved on every
// path.
type TurnHandler struct {
	history  *history.Fetcher
	loop     *agent.Loop
	surfaces SurfaceFactory
	config   TurnConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ channels.Handler = (*TurnHandler)(nil)

// NewTurnHandler creates a turn handler. fetcher may be nil, in which case
// every turn runs on the event text alone.
func NewTurnHandler(fetcher *history.Fetcher, loop *agent.Loop, surfaces SurfaceFactory, config TurnConfig) *TurnHandler {
	if config.NoHistoryFlag == "" {
		config.NoHistoryFlag = "--no-history"
	}
	if config.ExhaustedText == "" {
		config.ExhaustedText = DefaultExhaustedText
	}
	if config.Model == "" {
		config.Model = agent.DefaultModel
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnHandler{
		history:  fetcher,
		loop:     loop,
		surfaces: surfaces,
		config:   config,
		logger:   logger.With("component", "turn"),
		now:      time.Now,
	}
}

// ThreadSurfaces replies through client, sharing limiter across turns.
func ThreadSurfaces(client SlackAPIClient, limiter *channels.RateLimiter) SurfaceFactory {
	return func(event channels.Event) outbound.Surface {
		return NewSurface(client, event.ChannelID, ReplyThread(event), limiter)
	}
}

// ReplyThread is the thread a turn answers in. Top-level direct messages are
// answered in the conversation itself; everything else in the event's thread.
func ReplyThread(event channels.Event) string {
	if event.IsDirect() && !event.InThread() {
		return ""
	}
	return event.ThreadTS
}

// HistoryTarget is where a turn's context is read from. It follows
// ReplyThread so earlier answers are part of the history.
func HistoryTarget(event channels.Event) history.Target {
	return history.Target{ChannelID: event.ChannelID, ThreadTS: ReplyThread(event)}
}

// HandleEvent runs one turn and blocks until its output is delivered.
func (h *TurnHandler) HandleEvent(ctx context.Context, event channels.Event) {
	start := h.now()
	turnID := uuid.NewString()

	ctx = observability.AddTurnID(ctx, turnID)
	ctx = observability.AddChannel(ctx, event.ChannelID)
	ctx = observability.AddThread(ctx, event.ThreadTS)
	ctx, span := h.config.Tracer.TraceTurn(ctx, event.ChannelID, event.ThreadTS)
	defer span.End()

	h.logger.InfoContext(ctx, "turn started", "kind", event.Kind, "user", event.UserID)

	// Delivery logs without a context, so it carries the correlation fields.
	delivery := outbound.NewDelivery(ctx, h.surfaces(event), outbound.DeliveryConfig{
		Placeholder: h.config.Placeholder,
		Logger:      h.logger.With("turn_id", turnID, "channel", event.ChannelID, "thread_ts", event.ThreadTS),
		Metrics:     h.config.Metrics,
	})
	defer delivery.Close()
	delivery.Start()

	text, skipHistory := StripFlag(event.Text, h.config.NoHistoryFlag)

	var msgs []models.Message
	if !skipHistory && h.history != nil {
		msgs = h.history.Fetch(ctx, HistoryTarget(event))
	}
	msgs = agentctx.WithFallback(msgs, text)

	state, err := h.loop.Run(ctx, msgs, func(ctx context.Context, lines []string) {
		delivery.Progress(lines)
	})

	outcome := OutcomeOK
	switch {
	case errors.Is(err, agent.ErrContextExhausted):
		outcome = OutcomeExhausted
		delivery.Fail(h.config.ExhaustedText)
	case err != nil && ctx.Err() != nil:
		outcome = OutcomeCancelled
		h.logger.WarnContext(ctx, "turn cancelled", "error", err)
	case err != nil:
		outcome = OutcomeError
		h.config.Tracer.RecordError(span, err)
		h.logger.ErrorContext(ctx, "turn failed", "error", err)
	default:
		if state.Final.Message == nil {
			outcome = OutcomeFallback
		}
		res := reply.Process(state.Text, h.config.Reply)
		delivery.Final(res.Units, h.extras(res, state, h.now().Sub(start)))
	}

	iterations := 0
	if state != nil {
		iterations = state.Iteration
	}
	elapsed := h.now().Sub(start)
	h.config.Metrics.RecordTurn(outcome, elapsed.Seconds(), iterations)
	h.logger.InfoContext(ctx, "turn finished",
		"outcome", outcome,
		"iterations", iterations,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func (h *TurnHandler) extras(res reply.Result, state *agent.LoopState, elapsed time.Duration) outbound.Extras {
	model := state.Final.Model
	if model == "" {
		model = h.config.Model
	}
	footer := outbound.FooterBlock(outbound.Usage{
		Model:           model,
		Elapsed:         elapsed,
		TotalTokens:     state.Usage.TotalTokens,
		ContextMessages: state.ContextMessages,
	})

	extras := outbound.Extras{After: []slack.Block{footer}}
	if h.config.ShowThink {
		extras.Before = outbound.ReasoningBlocks(res.Reasoning)
	}
	return extras
}

// StripFlag removes every occurrence of flag from text. It reports whether
// the flag was present.
func StripFlag(text, flag string) (string, bool) {
	if flag == "" || !strings.Contains(text, flag) {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, flag, "")), true
}
