package outbound

import (
	"context"
	"log/slog"
	"sync"

	"github.com/slack-go/slack"

	"github.com/zapdoslabs/relay/internal/channels/chunk"
	"github.com/zapdoslabs/relay/internal/observability"
)

// DefaultFailureText resolves a placeholder that was never answered.
const DefaultFailureText = "Sorry, something went wrong while answering."

// DefaultMovedText replaces a placeholder that could not take the answer
// after the answer was posted below it.
const DefaultMovedText = "Answer posted below."

// DeliveryConfig configures a Delivery.
type DeliveryConfig struct {
	// Placeholder is the in-progress text.
	// Default: "Thinking..."
	Placeholder string

	// FailureText resolves a placeholder left open at Close.
	FailureText string

	// MovedText replaces the placeholder when the answer had to be posted
	// as a new message.
	// Default: "Answer posted below."
	MovedText string

	// QueueSize bounds pending operations before callers block.
	// Default: 32
	QueueSize int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Extras are blocks placed around the final answer.
type Extras struct {
	// Before is prepended to the first unit, e.g. reasoning.
	Before []slack.Block
	// After is appended to the last unit, e.g. the usage footer.
	After []slack.Block
}

type opKind int

const (
	opStart opKind = iota
	opProgress
	opFinal
	opFail
)

type op struct {
	kind   opKind
	lines  []string
	units  []chunk.Unit
	extras Extras
	text   string
}

// Delivery is an ordered actor owning one turn's messages. Operations are
// queued and applied one at a time by a single goroutine, so the surface
// sees them in call order. Surface errors are logged and counted; they never
// stop later operations.
type Delivery struct {
	surface Surface
	config  DeliveryConfig
	logger  *slog.Logger
	ctx     context.Context

	ops  chan op
	done chan struct{}

	mu     sync.Mutex
	closed bool

	// Owned by the run goroutine.
	placeholder Handle
	resolved    bool
}

// NewDelivery starts a delivery actor. Surface calls run on a context that
// keeps ctx's values but not its cancellation, so the placeholder is still
// resolved when the turn is cancelled.
func NewDelivery(ctx context.Context, surface Surface, config DeliveryConfig) *Delivery {
	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}
	if config.FailureText == "" {
		config.FailureText = DefaultFailureText
	}
	if config.MovedText == "" {
		config.MovedText = DefaultMovedText
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 32
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Delivery{
		surface: surface,
		config:  config,
		logger:  logger.With("component", "delivery"),
		ctx:     context.WithoutCancel(ctx),
		ops:     make(chan op, config.QueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Start posts the placeholder.
func (d *Delivery) Start() {
	d.enqueue(op{kind: opStart})
}

// Progress replaces the placeholder with the accumulated tool log lines.
func (d *Delivery) Progress(lines []string) {
	d.enqueue(op{kind: opProgress, lines: append([]string(nil), lines...)})
}

// Final delivers the answer. The first unit overwrites the placeholder; the
// rest are posted as new messages.
func (d *Delivery) Final(units []chunk.Unit, extras Extras) {
	d.enqueue(op{kind: opFinal, units: units, extras: extras})
}

// Fail replaces the placeholder with a plain explanation.
func (d *Delivery) Fail(text string) {
	d.enqueue(op{kind: opFail, text: text})
}

// Close drains the queue and waits for the actor to exit. A placeholder that
// no operation resolved is replaced with the failure text. Close is safe to
// call more than once.
func (d *Delivery) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ops)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Delivery) enqueue(o op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("delivery operation after close dropped", "op", o.kind)
		return
	}
	d.ops <- o
}

func (d *Delivery) run() {
	defer close(d.done)
	for o := range d.ops {
		switch o.kind {
		case opStart:
			d.start()
		case opProgress:
			d.progress(o.lines)
		case opFinal:
			d.final(o.units, o.extras)
		case opFail:
			d.fail(o.text)
		}
	}
	if !d.placeholder.IsZero() && !d.resolved {
		d.fail(d.config.FailureText)
	}
}

func (d *Delivery) start() {
	if !d.placeholder.IsZero() {
		return
	}
	h, err := d.surface.Post(d.ctx, PlaceholderMessage(d.config.Placeholder))
	if err != nil {
		d.recordError("post", "placeholder", err)
		return
	}
	d.placeholder = h
}

func (d *Delivery) progress(lines []string) {
	if d.placeholder.IsZero() || d.resolved {
		return
	}
	if err := d.surface.Update(d.ctx, d.placeholder, ProgressMessage(d.config.Placeholder, lines)); err != nil {
		d.recordError("update", "progress", err)
	}
}

func (d *Delivery) final(units []chunk.Unit, extras Extras) {
	for i, u := range units {
		msg := TextMessage(u.Text)
		if i == 0 && len(extras.Before) > 0 {
			msg.Blocks = append(append([]slack.Block(nil), extras.Before...), msg.Blocks...)
		}
		if i == len(units)-1 {
			msg.Blocks = append(msg.Blocks, extras.After...)
		}

		if i == 0 && d.overwritePlaceholder(msg) {
			continue
		}
		if _, err := d.surface.Post(d.ctx, msg); err != nil {
			d.recordError("post", "unit", err, "unit", u.Index)
			continue
		}
		if i == 0 {
			d.retirePlaceholder()
		}
	}
}

// overwritePlaceholder puts msg in place of the placeholder. It reports
// false when there is no open placeholder or the update failed, in which
// case the caller posts msg as a new message.
func (d *Delivery) overwritePlaceholder(msg Message) bool {
	if d.placeholder.IsZero() || d.resolved {
		return false
	}
	if err := d.surface.Update(d.ctx, d.placeholder, msg); err != nil {
		d.recordError("update", "first unit", err)
		return false
	}
	d.resolved = true
	return true
}

// retirePlaceholder marks the turn answered after the answer was posted as a
// new message, and replaces a placeholder still showing progress with
// MovedText. Close must not add a failure notice afterwards.
func (d *Delivery) retirePlaceholder() {
	open := !d.placeholder.IsZero() && !d.resolved
	d.resolved = true
	if !open {
		return
	}
	if err := d.surface.Update(d.ctx, d.placeholder, PlaceholderMessage(d.config.MovedText)); err != nil {
		d.recordError("update", "moved notice", err)
	}
}

func (d *Delivery) fail(text string) {
	msg := TextMessage(text)
	if d.overwritePlaceholder(msg) {
		return
	}
	if _, err := d.surface.Post(d.ctx, msg); err != nil {
		d.recordError("post", "failure notice", err)
		return
	}
	d.retirePlaceholder()
}

func (d *Delivery) recordError(opName, what string, err error, args ...any) {
	d.config.Metrics.RecordDeliveryError(opName)
	d.logger.Error("delivery failed",
		append([]any{"op", opName, "message", what, "error", err}, args...)...,
	)
}
