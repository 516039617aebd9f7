package reply

import (
	"github.com/zapdoslabs/relay/internal/channels/chunk"
	"github.com/zapdoslabs/relay/internal/markdown"
)

// DefaultFallback is shown when nothing displayable is left.
const DefaultFallback = "(No response)"

// Options configures Process.
type Options struct {
	// Tables selects how markdown tables are rendered.
	// Default: markdown.TableModeCode
	Tables markdown.TableMode

	// Limit is the per-unit length limit in runes, marker included.
	// Default: chunk.DefaultLimit
	Limit int

	// Marker is appended to every unit except the last.
	// Default: chunk.DefaultMarker
	Marker string

	// Fallback replaces an empty display text.
	// Default: "(No response)"
	Fallback string
}

// Result is a post-processed answer.
type Result struct {
	// Reasoning is the extracted reasoning segment, empty when absent.
	Reasoning string

	// DisplayText is the answer rendered as Slack mrkdwn.
	DisplayText string

	// Units is DisplayText split for delivery. Never empty.
	Units []chunk.Unit
}

// Process extracts reasoning from content, renders the rest as mrkdwn and
// splits it into delivery units.
func Process(content string, opts Options) Result {
	if opts.Tables == "" {
		opts.Tables = markdown.TableModeCode
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}

	reasoning, display := ExtractReasoning(content)
	if display == "" {
		display = opts.Fallback
	}
	display = markdown.FormatSlack(display, opts.Tables)

	return Result{
		Reasoning:   reasoning,
		DisplayText: display,
		Units:       chunk.Units(display, chunk.Options{Limit: opts.Limit, Marker: opts.Marker}),
	}
}
