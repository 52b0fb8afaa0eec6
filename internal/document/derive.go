package document

import (
	"regexp"
	"strings"
)

// hashtagRe matches '#' plus word characters when preceded by start of text
// or a non-word character.
var hashtagRe = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_#])#([\p{L}\p{N}_]+)`)

// ExtractHashtags returns the hashtags found in blocks, without the leading
// '#', case-preserving, de-duplicated in first-occurrence order. Code lines
// and monospace runs are not scanned.
func ExtractHashtags(blocks []Block) []string {
	var out []string
	seen := make(map[string]struct{})
	walkText(blocks, func(text string) {
		for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
			tag := m[1]
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	})
	return out
}

// ExtractInternalLinks returns one Link per link-colored run, recursing into
// table cells, de-duplicated in first-occurrence order.
func ExtractInternalLinks(blocks []Block) []Link {
	var out []Link
	seen := make(map[Link]struct{})
	walkRuns(blocks, func(r Run) {
		if r.Attrs.Color != ColorLink || r.Attrs.Link == "" {
			return
		}
		l := Link{Text: r.Text, Target: r.Attrs.Link}
		if _, dup := seen[l]; dup {
			return
		}
		seen[l] = struct{}{}
		out = append(out, l)
	})
	return out
}

// walkText calls fn with the scannable text of every block. Monospace runs
// are blanked so tags never straddle them.
func walkText(blocks []Block, fn func(string)) {
	for _, b := range blocks {
		switch v := b.(type) {
		case CodeLine:
			continue
		case Table:
			for _, row := range v.Rows {
				for _, cell := range row {
					walkText(cell, fn)
				}
			}
		default:
			var sb strings.Builder
			for _, r := range Runs(b) {
				if r.Attrs.Monospace || r.Attrs.Color == ColorCode {
					sb.WriteString(strings.Repeat(" ", len(r.Text)))
					continue
				}
				sb.WriteString(r.Text)
			}
			fn(sb.String())
		}
	}
}

func walkRuns(blocks []Block, fn func(Run)) {
	for _, b := range blocks {
		if t, ok := b.(Table); ok {
			for _, row := range t.Rows {
				for _, cell := range row {
					walkRuns(cell, fn)
				}
			}
			continue
		}
		for _, r := range Runs(b) {
			fn(r)
		}
	}
}
