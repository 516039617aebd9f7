package markdown

import (
	"regexp"
	"strconv"
	"strings"
)

// Glyphs used by the mrkdwn rendering.
const (
	Bullet         = "• "
	TaskOpen       = "• ☐ "
	TaskDone       = "• ☑ "
	HorizontalRule = "──────────"
)

const (
	// boldMark stands in for a Slack bold marker until emphasis is converted.
	boldMark = "\x01"
	// holdMark delimits the index of a protected segment.
	holdMark = "\x02"
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`\n]+`")
	heldRe       = regexp.MustCompile(holdMark + `(\d+)` + holdMark)

	headingRe  = regexp.MustCompile(`^\s{0,3}#{1,6}\s+(.+?)(?:\s+#+)?\s*$`)
	ruleRe     = regexp.MustCompile(`^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
	taskOpenRe = regexp.MustCompile(`^(\s*)[-*]\s+\[ \]\s+`)
	taskDoneRe = regexp.MustCompile(`^(\s*)[-*]\s+\[[xX]\]\s+`)
	bulletRe   = regexp.MustCompile(`^(\s*)[-*]\s+`)

	imageRe      = regexp.MustCompile(`!\[([^\[\]]*)\]\(([^\s()]*)(?:\s+"[^"]*")?\)`)
	linkRe       = regexp.MustCompile(`\[([^\[\]]*)\]\(([^\s()]*)(?:\s+"[^"]*")?\)`)
	boldItalicRe = regexp.MustCompile(`\*\*\*([^*\n]+)\*\*\*`)
	boldStarRe   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__([^_\n]+)__`)
	italicRe     = regexp.MustCompile(`\*([^*\s](?:[^*\n]*[^*\s])?)\*`)
	strikeRe     = regexp.MustCompile(`~~([^~\n]+)~~`)

	// looseBoldRe catches bold spans the first pass could not resolve, such
	// as ones that wrap lines or contain single markers.
	looseBoldRe = regexp.MustCompile(`(?s)\*\*(.+?)\*\*`)
)

// held stores segments that must pass through conversion untouched.
type held struct {
	parts []string
}

func (h *held) hold(s string) string {
	h.parts = append(h.parts, s)
	return holdMark + strconv.Itoa(len(h.parts)-1) + holdMark
}

func (h *held) holdAll(re *regexp.Regexp, text string) string {
	return re.ReplaceAllStringFunc(text, h.hold)
}

// restore expands placeholders, including ones nested inside held segments.
func (h *held) restore(text string) string {
	for i := 0; i <= len(h.parts) && strings.Contains(text, holdMark); i++ {
		text = heldRe.ReplaceAllStringFunc(text, func(m string) string {
			idx, err := strconv.Atoi(strings.Trim(m, holdMark))
			if err != nil || idx >= len(h.parts) {
				return m
			}
			return h.parts[idx]
		})
	}
	return text
}

// ToMrkdwn converts generic markdown into Slack mrkdwn. Fenced and inline
// code pass through unchanged. Ordered lists and blockquotes already match
// mrkdwn and are left alone.
func ToMrkdwn(text string, tables TableMode) string {
	if text == "" {
		return text
	}

	h := &held{}
	text = h.holdAll(fencedCodeRe, text)
	if tables == TableModeCode || tables == TableModeBullets {
		text = ConvertTables(text, tables)
		text = h.holdAll(fencedCodeRe, text)
	}
	text = h.holdAll(inlineCodeRe, text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = convertLine(line)
	}
	text = strings.Join(lines, "\n")

	text = imageRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := imageRe.FindStringSubmatch(m)
		return h.hold("<" + sub[2] + ">")
	})
	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := linkRe.FindStringSubmatch(m)
		if sub[2] == "" {
			return sub[1]
		}
		if sub[1] == "" || sub[1] == sub[2] {
			return h.hold("<" + sub[2] + ">")
		}
		return h.hold("<" + sub[2] + "|" + sub[1] + ">")
	})

	text = boldItalicRe.ReplaceAllString(text, boldMark+"_${1}_"+boldMark)
	text = boldStarRe.ReplaceAllString(text, boldMark+"${1}"+boldMark)
	text = boldUnderRe.ReplaceAllString(text, boldMark+"${1}"+boldMark)
	text = italicRe.ReplaceAllString(text, "_${1}_")
	text = strikeRe.ReplaceAllString(text, "~${1}~")

	text = strings.ReplaceAll(text, boldMark, "*")
	return h.restore(text)
}

func convertLine(line string) string {
	if ruleRe.MatchString(line) {
		return HorizontalRule
	}
	if m := headingRe.FindStringSubmatch(line); m != nil {
		title := strings.NewReplacer("**", "", "__", "").Replace(m[1])
		return boldMark + title + boldMark
	}
	if taskDoneRe.MatchString(line) {
		return taskDoneRe.ReplaceAllString(line, "${1}"+TaskDone)
	}
	if taskOpenRe.MatchString(line) {
		return taskOpenRe.ReplaceAllString(line, "${1}"+TaskOpen)
	}
	return bulletRe.ReplaceAllString(line, "${1}"+Bullet)
}

// FormatSlack renders model output for a Slack text object. It converts the
// markdown once, resolves any double-asterisk bold left over, and turns
// escaped newlines into real ones. The second pass only rewrites "**" pairs,
// so bold markers produced by the first pass are never reinterpreted.
//
// The input is markdown and the output is mrkdwn, where "*x*" means bold
// rather than italic. FormatSlack must therefore run once per answer: feeding
// its output back in turns every bold span into italics. Use ResolveBold to
// clean up text that is already mrkdwn.
func FormatSlack(text string, tables TableMode) string {
	out := ToMrkdwn(text, tables)
	if hasOutsideCode(out, "**") {
		out = ResolveBold(out)
	}
	return foldEscapedNewlines(out)
}

// ResolveBold rewrites remaining "**x**" spans, across lines if needed, to
// single-marker bold. It is a fixed point on its own output.
func ResolveBold(text string) string {
	h := &held{}
	text = h.holdAll(fencedCodeRe, text)
	text = h.holdAll(inlineCodeRe, text)
	text = looseBoldRe.ReplaceAllString(text, "*${1}*")
	return h.restore(text)
}

func foldEscapedNewlines(text string) string {
	h := &held{}
	text = h.holdAll(fencedCodeRe, text)
	text = h.holdAll(inlineCodeRe, text)
	text = strings.ReplaceAll(text, "\\\n", "\n")
	text = strings.ReplaceAll(text, `\n`, "\n")
	return h.restore(text)
}

func hasOutsideCode(text, substr string) bool {
	h := &held{}
	text = h.holdAll(fencedCodeRe, text)
	text = h.holdAll(inlineCodeRe, text)
	return strings.Contains(text, substr)
}
