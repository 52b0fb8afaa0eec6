package convert

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/starford/notebridge/internal/document"
)

var (
	headingRe   = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*))?$`)
	checklistRe = regexp.MustCompile(`^\s*[-*+] \[([ xX])\](?: (.*))?$`)
	bulletRe    = regexp.MustCompile(`^\s*[-*+](?: (.*))?$`)
	orderedRe   = regexp.MustCompile(`^\s*\d{1,9}[.)](?: (.*))?$`)
	quoteRe     = regexp.MustCompile(`^\s*> ?(.*)$`)
	fenceRe     = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")
	separatorRe = regexp.MustCompile(`^\s*:?-+:?\s*$`)
	cellBreakRe = regexp.MustCompile(`<br\s*/?>`)
)

var yamlFormat = frontmatter.NewFormat(headerDelim, headerDelim, yaml.Unmarshal)

// ParsedMarkdown is the result of ParseMarkdown.
type ParsedMarkdown struct {
	Document document.Document
	// HeaderTags are the hashtags listed in the header. They are informative
	// only; Document.Hashtags is always derived from the body.
	HeaderTags []string
}

type markdownHeader struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Folder     string   `yaml:"folder"`
	Hashtags   []string `yaml:"hashtags"`
	Tags       []string `yaml:"tags"`
	Created    string   `yaml:"created"`
	CreatedAt  string   `yaml:"createdAt"`
	Modified   string   `yaml:"modified"`
	ModifiedAt string   `yaml:"modifiedAt"`
}

// ParseMarkdown parses a Markdown artifact. The title is taken from the
// header, then from the first level-one heading, then from fallbackTitle.
// Only a broken header is an error; unknown body constructs become
// paragraphs.
func ParseMarkdown(data []byte, fallbackTitle string) (*ParsedMarkdown, error) {
	var h markdownHeader
	body, err := frontmatter.Parse(bytes.NewReader(data), &h, yamlFormat)
	if err != nil {
		return nil, malformed("markdown header", err)
	}
	created, err := parseTime(firstNonEmpty(h.Created, h.CreatedAt))
	if err != nil {
		return nil, malformed("markdown header", err)
	}
	modified, err := parseTime(firstNonEmpty(h.Modified, h.ModifiedAt))
	if err != nil {
		return nil, malformed("markdown header", err)
	}

	blocks := parseBlocks(string(body))
	title := h.Title
	if title == "" {
		for i, b := range blocks {
			if hd, ok := b.(document.Heading); ok && hd.Level == 1 {
				title = document.BlockText(hd)
				if i == 0 {
					blocks = blocks[1:]
				}
				break
			}
		}
	}
	if title == "" {
		title = fallbackTitle
	}
	if len(blocks) == 0 {
		blocks = nil
	}

	return &ParsedMarkdown{
		Document: document.Document{
			ID:         h.ID,
			Title:      title,
			Folder:     h.Folder,
			Blocks:     blocks,
			CreatedAt:  created,
			ModifiedAt: modified,
		}.Derive(),
		HeaderTags: dedupe(append(h.Hashtags, h.Tags...)),
	}, nil
}

func parseBlocks(body string) []document.Block {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	var blocks []document.Block
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if m := fenceRe.FindStringSubmatch(line); m != nil {
			fence := m[1]
			for i++; i < len(lines) && !closesFence(lines[i], fence); i++ {
				blocks = append(blocks, document.CodeLine{Text: lines[i]})
			}
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			j := i
			for j < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[j]), "|") {
				j++
			}
			blocks = append(blocks, parseTable(lines[i:j]))
			i = j - 1
			continue
		}
		blocks = append(blocks, parseLine(line))
	}
	return blocks
}

func parseLine(line string) document.Block {
	if strings.TrimSpace(line) == "" {
		return document.Paragraph{}
	}
	if m := headingRe.FindStringSubmatch(line); m != nil {
		return document.Heading{Level: len(m[1]), Runs: parseInline(m[2])}
	}
	if m := checklistRe.FindStringSubmatch(line); m != nil {
		return document.Checklist{Checked: m[1] != " ", Runs: parseInline(m[2])}
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return document.ListItem{Runs: parseInline(m[1])}
	}
	if m := orderedRe.FindStringSubmatch(line); m != nil {
		return document.ListItem{Ordered: true, Runs: parseInline(m[1])}
	}
	if m := quoteRe.FindStringSubmatch(line); m != nil {
		runs := parseInline(m[1])
		for i := range runs {
			if runs[i].Attrs.Color == document.ColorDefault {
				runs[i].Attrs.Color = document.ColorQuote
			}
		}
		return document.Paragraph{Runs: document.MergeRuns(runs)}
	}
	return document.Paragraph{Runs: parseInline(line)}
}

func closesFence(line, fence string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= len(fence) && strings.Trim(t, fence[:1]) == ""
}

func parseTable(lines []string) document.Table {
	var t document.Table
	for i, line := range lines {
		cells := splitCells(line)
		if i == 1 && isSeparatorRow(cells) {
			continue
		}
		row := make([]document.Cell, len(cells))
		for j, c := range cells {
			row[j] = parseCell(c)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// splitCells splits a pipe-table row on unescaped pipes; escaped pipes are
// unescaped, other escapes are left for the inline parser.
func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	var (
		cells []string
		cur   strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && i+1 < len(line):
			if line[i+1] != '|' {
				cur.WriteByte(c)
			}
			cur.WriteByte(line[i+1])
			i++
		case c == '|':
			cells = append(cells, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if rest := cur.String(); strings.TrimSpace(rest) != "" || len(cells) == 0 {
		cells = append(cells, rest)
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if !separatorRe.MatchString(c) {
			return false
		}
	}
	return len(cells) > 0
}

func parseCell(s string) document.Cell {
	var cell document.Cell
	for _, part := range cellBreakRe.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cell = append(cell, document.Paragraph{Runs: parseInline(part)})
	}
	return cell
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(strings.TrimPrefix(v, "#"))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
