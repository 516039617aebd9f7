// Package reply turns a raw model answer into what the user sees: the
// reasoning segment is split off, markdown is rendered as Slack mrkdwn, and
// the result is cut into display units.
package reply

import (
	"regexp"
	"strings"
)

// Reasoning tags emitted by thinking models.
const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

var closedThinkRe = regexp.MustCompile(`(?s)^\s*` + regexp.QuoteMeta(thinkOpen) + `(.*?)` + regexp.QuoteMeta(thinkClose))

// ExtractReasoning splits a leading reasoning segment from content.
//
// A closed <think>...</think> block at the start is removed whole. An
// unclosed <think> runs to the first blank line, or to the end of content
// when there is none. The returned display text is trimmed; content without
// a leading reasoning tag is returned trimmed with empty reasoning.
func ExtractReasoning(content string) (reasoning, display string) {
	if m := closedThinkRe.FindStringSubmatchIndex(content); m != nil {
		reasoning = content[m[2]:m[3]]
		return strings.TrimSpace(reasoning), strings.TrimSpace(content[m[1]:])
	}

	trimmed := strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(trimmed, thinkOpen) {
		return "", strings.TrimSpace(content)
	}
	rest := trimmed[len(thinkOpen):]
	if idx := strings.Index(rest, "\n\n"); idx >= 0 {
		return strings.TrimSpace(rest[:idx]), strings.TrimSpace(rest[idx+2:])
	}
	return strings.TrimSpace(rest), ""
}
