// Package context bounds the conversation sent to the model.
//
// The Budgeter keeps the most recent messages that fit a character budget,
// preserving their order and never ending on an unanswered assistant turn.
// An assistant message that requested tools and the tool results answering
// it are budgeted as one unit, so a call is never sent without its result.
package context

import (
	"sort"

	"github.com/zapdoslabs/relay/pkg/models"
)

const (
	// DefaultMaxChars is the default character budget.
	DefaultMaxChars = 24000

	// DefaultTruncationMarker prefixes a message whose head was cut.
	DefaultTruncationMarker = "..."
)

// Budgeter trims a message list to a character budget. Lengths are counted
// in runes over message content only.
type Budgeter struct {
	maxChars int
	marker   string
}

// NewBudgeter creates a budgeter. A non-positive maxChars selects
// DefaultMaxChars.
func NewBudgeter(maxChars int) *Budgeter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Budgeter{maxChars: maxChars, marker: DefaultTruncationMarker}
}

// Fit returns the suffix of msgs that fits the budget.
//
//  1. The trailing run of assistant messages is dropped.
//  2. Units are taken newest first while they fit whole. A unit is a single
//     message, or an assistant message with tool calls plus the tool
//     messages that follow it.
//  3. The first unit that does not fit contributes only its tail and
//     selection stops there. A plain message keeps its last runes behind
//     the truncation marker. A tool unit keeps the assistant message and
//     every result, each result cut the same way to a fair share of what
//     is left. The marker counts against the budget.
//  4. Tool messages left at the head without their requesting assistant
//     message are dropped so every tool result stays paired.
//
// The returned slice is a copy in the original order; msgs is not modified.
func (b *Budgeter) Fit(msgs []models.Message) []models.Message {
	msgs = TrimTrailingAssistant(msgs)

	total := 0
	start := len(msgs)
	var head []models.Message

	for end := len(msgs); end > 0; {
		from := unitStart(msgs, end)
		n := TotalChars(msgs[from:end])
		if total+n <= b.maxChars {
			total += n
			start = from
			end = from
			continue
		}
		head = b.cutUnit(msgs[from:end], b.maxChars-total)
		break
	}

	out := make([]models.Message, 0, len(head)+len(msgs)-start)
	out = append(out, head...)
	out = append(out, msgs[start:]...)
	return dropOrphanedToolResults(out)
}

// CapBatch shortens tool results so a whole batch uses at most half the
// budget, leaving room for the question that led to it. Each result keeps
// its head followed by the truncation marker.
func (b *Budgeter) CapBatch(results []models.Message) []models.Message {
	limit := b.maxChars / 2
	if len(results) == 0 || TotalChars(results) <= limit {
		return results
	}

	out := append([]models.Message(nil), results...)
	shares, ok := fairShares(out, limit, b.markerLen())
	if !ok {
		shares = make([]int, len(out))
		for i := range shares {
			shares[i] = limit / len(out)
		}
	}
	for i := range out {
		if out[i].Chars() <= shares[i] {
			continue
		}
		keep := shares[i] - b.markerLen()
		if keep < 0 {
			keep = 0
		}
		runes := []rune(out[i].Content)
		out[i].Content = string(runes[:keep]) + b.marker
	}
	return out
}

// unitStart returns the index where the unit ending just before end begins.
func unitStart(msgs []models.Message, end int) int {
	i := end - 1
	if msgs[i].Role != models.RoleTool {
		return i
	}
	for i > 0 && msgs[i-1].Role == models.RoleTool {
		i--
	}
	if i > 0 && msgs[i-1].Role == models.RoleAssistant && len(msgs[i-1].ToolCalls) > 0 {
		i--
	}
	return i
}

// cutUnit fits unit into remaining runes, or returns nil when it cannot be
// kept in any form.
func (b *Budgeter) cutUnit(unit []models.Message, remaining int) []models.Message {
	if len(unit) == 1 {
		if remaining <= b.markerLen() {
			return nil
		}
		return []models.Message{b.keepTail(unit[0], remaining)}
	}

	out := append([]models.Message(nil), unit...)
	results := out
	if out[0].Role == models.RoleAssistant {
		remaining -= out[0].Chars()
		results = out[1:]
	}
	if remaining < 0 {
		return nil
	}

	shares, ok := fairShares(results, remaining, b.markerLen())
	if !ok {
		return nil
	}
	for i := range results {
		if results[i].Chars() > shares[i] {
			results[i] = b.keepTail(results[i], shares[i])
		}
	}
	return out
}

// fairShares splits limit across msgs. Short messages keep their full length
// and the rest is divided evenly among the longer ones. It reports false
// when a message that must be cut would get no more than the marker.
func fairShares(msgs []models.Message, limit, markerLen int) ([]int, bool) {
	order := make([]int, len(msgs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return msgs[order[a]].Chars() < msgs[order[b]].Chars()
	})

	shares := make([]int, len(msgs))
	left := limit
	for k, i := range order {
		share := left / (len(order) - k)
		n := msgs[i].Chars()
		if n <= share {
			shares[i] = n
			left -= n
			continue
		}
		if share <= markerLen {
			return nil, false
		}
		shares[i] = share
		left -= share
	}
	return shares, true
}

// keepTail returns m with only its last n runes of content, marker included.
func (b *Budgeter) keepTail(m models.Message, n int) models.Message {
	runes := []rune(m.Content)
	keep := n - b.markerLen()
	m.Content = b.marker + string(runes[len(runes)-keep:])
	return m
}

func (b *Budgeter) markerLen() int {
	return len([]rune(b.marker))
}

// TrimTrailingAssistant drops the trailing run of assistant messages. An
// assistant turn with no user message after it belongs to an aborted or
// superseded exchange and must not be replayed as settled context.
func TrimTrailingAssistant(msgs []models.Message) []models.Message {
	end := len(msgs)
	for end > 0 && msgs[end-1].Role == models.RoleAssistant {
		end--
	}
	return msgs[:end]
}

// WithFallback returns msgs, or a single user message holding eventText when
// msgs is empty.
func WithFallback(msgs []models.Message, eventText string) []models.Message {
	if len(msgs) > 0 {
		return msgs
	}
	return []models.Message{{Role: models.RoleUser, Content: eventText}}
}

// TotalChars returns the summed content length of msgs in runes.
func TotalChars(msgs []models.Message) int {
	total := 0
	for _, m := range msgs {
		total += m.Chars()
	}
	return total
}

func dropOrphanedToolResults(msgs []models.Message) []models.Message {
	i := 0
	for i < len(msgs) && msgs[i].Role == models.RoleTool {
		i++
	}
	return msgs[i:]
}
