// Package markdown converts model output written in generic markdown into
// Slack mrkdwn, including tables, which Slack cannot render.
package markdown

import (
	"regexp"
	"strings"
)

// TableMode selects how markdown tables are rendered.
type TableMode string

const (
	// TableModeOff leaves tables as written.
	TableModeOff TableMode = "off"
	// TableModeBullets flattens each data row into a "header: value" bullet.
	TableModeBullets TableMode = "bullets"
	// TableModeCode wraps each table in a fenced block so its columns line up.
	TableModeCode TableMode = "code"
)

func lookupTableMode(s string) (TableMode, bool) {
	m := TableMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case TableModeOff, TableModeBullets, TableModeCode:
		return m, true
	}
	return "", false
}

// IsValidTableMode reports whether s names a table mode. Empty is valid and
// selects the default.
func IsValidTableMode(s string) bool {
	_, ok := lookupTableMode(s)
	return ok || strings.TrimSpace(s) == ""
}

// ParseTableMode returns the mode s names, or def when s is empty or unknown.
func ParseTableMode(s string, def TableMode) TableMode {
	if m, ok := lookupTableMode(s); ok {
		return m
	}
	return def
}

var (
	pipeRowRe   = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	alignCellRe = regexp.MustCompile(`^:?-+:?$`)
)

// table is a header row, its alignment row and the data rows after them,
// held as the line range [start, end).
type table struct {
	start, end int
	header     []string
	rows       [][]string
}

// ConvertTables rewrites every markdown table in text according to mode. A
// table is a pipe row followed by an alignment row such as "|---|:-:|". Data
// rows are optional. Lines outside tables are returned unchanged.
func ConvertTables(text string, mode TableMode) string {
	if mode != TableModeBullets && mode != TableModeCode {
		return text
	}
	lines := strings.Split(text, "\n")
	tables := scanTables(lines)
	if len(tables) == 0 {
		return text
	}

	out := make([]string, 0, len(lines)+2*len(tables))
	next := 0
	for _, t := range tables {
		out = append(out, lines[next:t.start]...)
		if mode == TableModeCode {
			out = append(out, "```")
			out = append(out, lines[t.start:t.end]...)
			out = append(out, "```")
		} else {
			out = append(out, t.bullets()...)
		}
		next = t.end
	}
	out = append(out, lines[next:]...)
	return strings.Join(out, "\n")
}

func scanTables(lines []string) []table {
	var found []table
	for i := 0; i+1 < len(lines); i++ {
		if !pipeRowRe.MatchString(lines[i]) || !isAlignRow(lines[i+1]) {
			continue
		}
		t := table{start: i, header: splitRow(lines[i])}
		end := i + 2
		for end < len(lines) && pipeRowRe.MatchString(lines[end]) {
			t.rows = append(t.rows, splitRow(lines[end]))
			end++
		}
		t.end = end
		found = append(found, t)
		i = end - 1
	}
	return found
}

func isAlignRow(line string) bool {
	if !pipeRowRe.MatchString(line) {
		return false
	}
	for _, cell := range splitRow(line) {
		if !alignCellRe.MatchString(cell) {
			return false
		}
	}
	return true
}

// splitRow returns the trimmed cells of a pipe row. An escaped "\|" is a
// literal pipe inside a cell.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")

	var cells []string
	var cell strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cell.WriteByte('|')
			i++
		case line[i] == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(line[i])
		}
	}
	return append(cells, strings.TrimSpace(cell.String()))
}

// bullets renders one bullet per data row. A table without data rows lists
// its headers instead, so the column names are not lost.
func (t table) bullets() []string {
	if len(t.rows) == 0 {
		if line := joinCells(t.header, nil); line != "" {
			return []string{Bullet + line}
		}
		return nil
	}
	var out []string
	for _, row := range t.rows {
		if line := joinCells(row, t.header); line != "" {
			out = append(out, Bullet+line)
		}
	}
	return out
}

// joinCells joins the non-empty cells with " | ", prefixing each with its
// label when there is one.
func joinCells(cells, labels []string) string {
	parts := make([]string, 0, len(cells))
	for i, c := range cells {
		if c == "" {
			continue
		}
		if i < len(labels) && labels[i] != "" {
			c = labels[i] + ": " + c
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, " | ")
}
