package markdown

import (
	"strings"
	"testing"
)

func TestToMrkdwn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "Just plain text.", "Just plain text."},
		{"heading", "# Heading", "*Heading*"},
		{"deep heading", "### Next steps ###", "*Next steps*"},
		{"heading with bold", "## **Intro**", "*Intro*"},
		{"hashtag is not a heading", "#general is busy", "#general is busy"},
		{"bold stars", "**Bold**", "*Bold*"},
		{"bold underscores", "__Bold__", "*Bold*"},
		{"italic", "*Italic*", "_Italic_"},
		{"underscore italic kept", "_Italic_", "_Italic_"},
		{"bold italic", "***Both***", "*_Both_*"},
		{"bold around italic", "**_Bold Italic_**", "*_Bold Italic_*"},
		{"italic around bold", "_**Italic Bold**_", "_*Italic Bold*_"},
		{"arithmetic stars", "2 * 3 * 4", "2 * 3 * 4"},
		{"strikethrough", "~~Strike~~", "~Strike~"},
		{"link", "[Link](https://example.com)", "<https://example.com|Link>"},
		{"link with title", `[Docs](https://example.com "Docs")`, "<https://example.com|Docs>"},
		{"image", "![Alt](https://img.com/x.png)", "<https://img.com/x.png>"},
		{"link url keeps underscores", "[a](https://x.com/a__b__c)", "<https://x.com/a__b__c|a>"},
		{"dash list", "- Item", "• Item"},
		{"star list", "* Item", "• Item"},
		{"nested list keeps indent", "  - Child", "  • Child"},
		{"ordered list", "1. First", "1. First"},
		{"task open", "- [ ] Task", "• ☐ Task"},
		{"task done", "- [x] Done", "• ☑ Done"},
		{"blockquote", "> Quote", "> Quote"},
		{"rule dashes", "---", HorizontalRule},
		{"rule stars", "***", HorizontalRule},
		{"rule underscores", "___", HorizontalRule},
		{"inline code", "`code`", "`code`"},
		{"inline code with markup", "use `**kwargs` here", "use `**kwargs` here"},
		{"fenced code", "```js\nlet x = 1;\n```", "```js\nlet x = 1;\n```"},
		{"fenced code with markup", "```\n# not a heading\n- not a list\n```", "```\n# not a heading\n- not a list\n```"},
		{
			"mixed",
			"# Title\n- [ ] Task\n**Bold** and *Italic*\n[Link](url)",
			"*Title*\n• ☐ Task\n*Bold* and _Italic_\n<url|Link>",
		},
		{
			"list with mixed content",
			"- **Bold Item**\n- _Italic Item_\n- `Code Item`",
			"• *Bold Item*\n• _Italic Item_\n• `Code Item`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToMrkdwn(tt.input, TableModeCode); got != tt.want {
				t.Errorf("ToMrkdwn(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToMrkdwn_Tables(t *testing.T) {
	md := "|Header|Col2|\n|---|---|\n|A|B|"

	if got := ToMrkdwn(md, TableModeCode); got != "```\n|Header|Col2|\n|---|---|\n|A|B|\n```" {
		t.Errorf("code mode = %q", got)
	}
	if got := ToMrkdwn(md, TableModeBullets); got != "• Header: A | Col2: B" {
		t.Errorf("bullets mode = %q", got)
	}
	if got := ToMrkdwn(md, TableModeOff); got != md {
		t.Errorf("off mode = %q", got)
	}

	emptyCells := "| A |   | C |\n|---|---|---|\n| 1 | 2 | 3 |"
	if got := ToMrkdwn(emptyCells, TableModeCode); got != "```\n"+emptyCells+"\n```" {
		t.Errorf("empty cells = %q", got)
	}
}

func TestToMrkdwn_TableCellsNotRewritten(t *testing.T) {
	md := "| **Name** | *Role* |\n|---|---|\n| a | b |"
	got := ToMrkdwn(md, TableModeCode)
	if !strings.Contains(got, "| **Name** | *Role* |") {
		t.Errorf("code-mode table should be verbatim, got %q", got)
	}
}

func TestFormatSlack(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single pass", "**Bold** text", "*Bold* text"},
		{"bold across lines", "**first\nsecond**", "*first\nsecond*"},
		{"bold around italic star", "**a *b* c**", "*a _b_ c*"},
		{"escaped newline", `one\ntwo`, "one\ntwo"},
		{"backslash newline", "one\\\ntwo", "one\ntwo"},
		{"escapes in code kept", "`a\\nb`", "`a\\nb`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSlack(tt.input, TableModeCode); got != tt.want {
				t.Errorf("FormatSlack(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveBold_FixedPoint(t *testing.T) {
	inputs := []string{
		"**Bold** and *kept*",
		"*already bold* with _italic_",
		"**multi\nline** then `**code**`",
		"no markup at all",
	}
	for _, in := range inputs {
		once := ResolveBold(in)
		if twice := ResolveBold(once); twice != once {
			t.Errorf("ResolveBold not stable for %q: %q then %q", in, once, twice)
		}
		if strings.Contains(strings.ReplaceAll(once, "`**code**`", ""), "**") {
			t.Errorf("ResolveBold(%q) left double markers: %q", in, once)
		}
	}
}

func TestFormatSlack_KeepsConvertedBold(t *testing.T) {
	out := FormatSlack("**Revenue** grew, see **Q3** numbers", TableModeCode)
	if out != "*Revenue* grew, see *Q3* numbers" {
		t.Errorf("FormatSlack = %q", out)
	}
	if ResolveBold(out) != out {
		t.Errorf("resolving again changed %q", out)
	}
}

func TestFormatSlack_OutputIsMrkdwn(t *testing.T) {
	tests := []struct {
		name  string
		input string
		once  string
		twice string
	}{
		{"bold", "**Revenue** grew", "*Revenue* grew", "_Revenue_ grew"},
		{"heading", "## Status", "*Status*", "_Status_"},
		{"plain", "all green", "all green", "all green"},
		{"bullets", "- a\n- b", "• a\n• b", "• a\n• b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := FormatSlack(tt.input, TableModeCode)
			if once != tt.once {
				t.Fatalf("FormatSlack(%q) = %q, want %q", tt.input, once, tt.once)
			}
			if got := FormatSlack(once, TableModeCode); got != tt.twice {
				t.Errorf("second FormatSlack = %q, want %q", got, tt.twice)
			}
			if got := ResolveBold(once); got != once {
				t.Errorf("ResolveBold changed mrkdwn %q to %q", once, got)
			}
		})
	}
}
