package convert

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/notebridge/internal/document"
)

// MarkdownOptions controls ToMarkdown.
type MarkdownOptions struct {
	// Frontmatter writes a YAML metadata header. Without it the title is
	// written as a first-level heading.
	Frontmatter bool
}

const headerDelim = "---"

var orderedPrefixRe = regexp.MustCompile(`^(\s*\d{1,9})([.)])(\s|$)`)

// ToMarkdown renders doc as Markdown. Underline has no Markdown syntax and is
// written as <u>…</u>; code-colored runs render like monospace ones.
func ToMarkdown(doc *document.Document, opts MarkdownOptions) ([]byte, error) {
	var buf bytes.Buffer
	if opts.Frontmatter {
		header, err := yaml.Marshal(headerNode(doc))
		if err != nil {
			return nil, fmt.Errorf("convert: markdown header: %w", err)
		}
		buf.WriteString(headerDelim + "\n")
		buf.Write(header)
		buf.WriteString(headerDelim + "\n")
	} else {
		buf.WriteString(headingLine(1, document.Plain(doc.Title)) + "\n")
	}
	for _, line := range markdownLines(doc.Blocks) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func headerNode(doc *document.Document) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, v *yaml.Node) {
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	}
	add("title", quoted(doc.Title))
	if doc.Folder != "" {
		add("folder", quoted(doc.Folder))
	}
	if len(doc.Hashtags) > 0 {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, tag := range doc.Hashtags {
			seq.Content = append(seq.Content, quoted(tag))
		}
		add("hashtags", seq)
	}
	if doc.CreatedAt != nil {
		add("created", quoted(formatTime(doc.CreatedAt)))
	}
	if doc.ModifiedAt != nil {
		add("modified", quoted(formatTime(doc.ModifiedAt)))
	}
	if doc.ID != "" {
		add("id", quoted(doc.ID))
	}
	return m
}

func quoted(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: s}
}

func markdownLines(blocks []document.Block) []string {
	var (
		lines   []string
		ordinal int
	)
	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		if li, ok := b.(document.ListItem); ok && li.Ordered {
			ordinal++
		} else {
			ordinal = 0
		}
		switch v := b.(type) {
		case document.Paragraph:
			lines = append(lines, paragraphLine(v.Runs))
		case document.Heading:
			lines = append(lines, headingLine(min(max(v.Level, 1), 6), v.Runs))
		case document.ListItem:
			prefix := "-"
			if v.Ordered {
				prefix = strconv.Itoa(ordinal) + "."
			}
			lines = append(lines, itemLine(prefix, v.Runs))
		case document.Checklist:
			box := "[ ]"
			if v.Checked {
				box = "[x]"
			}
			lines = append(lines, itemLine("- "+box, v.Runs))
		case document.CodeLine:
			j := i
			for j < len(blocks) {
				if _, ok := blocks[j].(document.CodeLine); !ok {
					break
				}
				j++
			}
			lines = append(lines, codeFence(blocks[i:j])...)
			i = j - 1
		case document.Table:
			lines = append(lines, tableLines(v)...)
		}
	}
	return lines
}

// headingLine renders a heading. Leading whitespace of the text is escaped
// since the parser skips the blanks after the marker.
func headingLine(level int, runs []document.Run) string {
	marker := strings.Repeat("#", level)
	text := renderInline(runs)
	if text == "" {
		return marker
	}
	if text[0] == ' ' || text[0] == '\t' {
		text = `\` + text
	}
	return marker + " " + text
}

func itemLine(prefix string, runs []document.Run) string {
	if len(runs) == 0 {
		return prefix
	}
	return prefix + " " + renderInline(runs)
}

// paragraphLine renders a paragraph, escaping a leading character the block
// parser would read as a marker.
func paragraphLine(runs []document.Run) string {
	if len(runs) > 0 && allQuoted(runs) {
		inner := make([]document.Run, len(runs))
		for i, r := range runs {
			r.Attrs.Color = document.ColorDefault
			inner[i] = r
		}
		return strings.TrimRight("> "+renderInline(inner), " ")
	}
	line := renderInline(runs)
	if line == "" {
		return ""
	}
	if strings.TrimSpace(line) == "" {
		// A whitespace-only line would read back as a blank one.
		return `\` + line
	}
	if m := orderedPrefixRe.FindStringSubmatchIndex(line); m != nil {
		return line[:m[4]] + `\` + line[m[4]:]
	}
	k := len(line) - len(strings.TrimLeft(line, " \t"))
	switch line[k] {
	case '#', '-', '+', '>', '|':
		return line[:k] + `\` + line[k:]
	}
	return line
}

func allQuoted(runs []document.Run) bool {
	for _, r := range runs {
		if r.Attrs.Color != document.ColorQuote {
			return false
		}
	}
	return true
}

func codeFence(blocks []document.Block) []string {
	longest := 2
	for _, b := range blocks {
		text := b.(document.CodeLine).Text
		trimmed := strings.TrimLeft(text, " ")
		longest = max(longest, runLength(trimmed, 0, '`'), runLength(trimmed, 0, '~'))
	}
	fence := strings.Repeat("`", longest+1)
	lines := []string{fence}
	for _, b := range blocks {
		lines = append(lines, b.(document.CodeLine).Text)
	}
	return append(lines, fence)
}

func tableLines(t document.Table) []string {
	if len(t.Rows) == 0 {
		return nil
	}
	var lines []string
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cellMarkdown(cell)
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			sep := make([]string, max(len(row), 1))
			for j := range sep {
				sep[j] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return lines
}

func cellMarkdown(c document.Cell) string {
	parts := make([]string, 0, len(c))
	for _, b := range c {
		switch v := b.(type) {
		case document.CodeLine:
			parts = append(parts, codeSpan(v.Text))
		case document.Table:
			parts = append(parts, mdEscaper.Replace(document.CellText(document.Cell{v})))
		default:
			parts = append(parts, renderInline(document.Runs(b)))
		}
	}
	return strings.ReplaceAll(strings.Join(parts, "<br>"), "|", `\|`)
}
