// Package chunk splits an outbound answer into display units that each fit a
// Slack text object.
package chunk

import (
	"strings"
	"unicode"
)

const (
	// DefaultLimit is the maximum length of a unit in runes, continuation
	// marker included. It matches the Slack section text limit.
	DefaultLimit = 3000

	// DefaultMarker is appended to every unit except the last.
	DefaultMarker = "..."
)

// Unit is one message-sized piece of the answer.
type Unit struct {
	// Text is the content, followed by the continuation marker unless Last.
	Text  string
	Index int
	First bool
	Last  bool
}

// Options controls splitting. Zero values select the defaults.
type Options struct {
	Limit  int
	Marker string
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	return o
}

// Units splits text into units of at most Limit runes. The continuation
// marker counts against the limit, so a non-final unit holds at most Limit
// minus the marker length runes of content.
//
// Each cut falls just after the last whitespace inside the window, so the
// whitespace stays with the earlier unit. A window without whitespace is cut
// hard at Limit. No content is dropped or rewritten: stripping the markers
// and concatenating the units yields text again.
//
// Empty text yields no units.
func Units(text string, opts Options) []Unit {
	if text == "" {
		return nil
	}
	opts = opts.withDefaults()

	runes := []rune(text)
	room := max(opts.Limit-len([]rune(opts.Marker)), 1)
	var pieces []string
	for len(runes) > opts.Limit {
		cut := breakIndex(runes[:room])
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
	}
	pieces = append(pieces, string(runes))

	units := make([]Unit, len(pieces))
	for i, p := range pieces {
		last := i == len(pieces)-1
		if !last {
			p += opts.Marker
		}
		units[i] = Unit{
			Text:  p,
			Index: i,
			First: i == 0,
			Last:  last,
		}
	}
	return units
}

// breakIndex returns the cut position within window: one past the last
// whitespace rune, or len(window) when the only whitespace is the first rune
// or there is none.
func breakIndex(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return len(window)
}

// Join reverses Units: it strips the continuation marker from every
// non-final unit and concatenates the content.
func Join(units []Unit, marker string) string {
	if marker == "" {
		marker = DefaultMarker
	}
	var sb strings.Builder
	for _, u := range units {
		if u.Last {
			sb.WriteString(u.Text)
			continue
		}
		sb.WriteString(strings.TrimSuffix(u.Text, marker))
	}
	return sb.String()
}
