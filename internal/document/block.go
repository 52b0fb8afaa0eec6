package document

import "strings"

// Block is one structural unit of a document. The set of implementations is
// closed: Paragraph, Heading, ListItem, Checklist, CodeLine and Table.
type Block interface {
	isBlock()
}

// Paragraph is a plain line of styled text.
type Paragraph struct {
	Runs []Run
}

// Heading is a section heading; Level is 1 through 6.
type Heading struct {
	Level int
	Runs  []Run
}

// ListItem is one bulleted or numbered list entry.
type ListItem struct {
	Ordered bool
	Runs    []Run
}

// Checklist is one checkbox entry.
type Checklist struct {
	Checked bool
	Runs    []Run
}

// CodeLine is one line of monospaced code. It carries no styling.
type CodeLine struct {
	Text string
}

// Table is a grid of cells; each cell holds its own block sequence.
type Table struct {
	Rows [][]Cell

	// CellExtensions parallels Rows with the unrecognised wire fields of each
	// cell. It is nil when no cell carries any.
	CellExtensions [][][]RawField
}

// Cell is the block sequence of one table cell.
type Cell []Block

func (Paragraph) isBlock() {}
func (Heading) isBlock()   {}
func (ListItem) isBlock()  {}
func (Checklist) isBlock() {}
func (CodeLine) isBlock()  {}
func (Table) isBlock()     {}

// ColorTag is the closed palette a run may be drawn in.
type ColorTag uint8

const (
	ColorDefault ColorTag = iota
	ColorCode
	ColorQuote
	ColorLink
)

// Valid reports whether c is part of the palette.
func (c ColorTag) Valid() bool { return c <= ColorLink }

func (c ColorTag) String() string {
	switch c {
	case ColorDefault:
		return "default"
	case ColorCode:
		return "code"
	case ColorQuote:
		return "quote"
	case ColorLink:
		return "link"
	}
	return "unknown"
}

// Attrs is the attribute set of a run. Link is only meaningful for ColorLink.
type Attrs struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Monospace     bool
	Color         ColorTag
	Link          string
}

// IsPlain reports whether a has no styling at all.
func (a Attrs) IsPlain() bool { return a == Attrs{} }

// Run is a span of text sharing one attribute set.
type Run struct {
	Text  string
	Attrs Attrs
}

// Plain returns a single unstyled run for s, or nil when s is empty.
func Plain(s string) []Run {
	if s == "" {
		return nil
	}
	return []Run{{Text: s}}
}

// Runs returns the styled runs of b, or nil for blocks without runs.
func Runs(b Block) []Run {
	switch v := b.(type) {
	case Paragraph:
		return v.Runs
	case Heading:
		return v.Runs
	case ListItem:
		return v.Runs
	case Checklist:
		return v.Runs
	}
	return nil
}

// RunText concatenates the text of runs.
func RunText(runs []Run) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// BlockText returns the plain text of b. Table rows render one per line with
// cells separated by tabs.
func BlockText(b Block) string {
	switch v := b.(type) {
	case Paragraph:
		return RunText(v.Runs)
	case Heading:
		return RunText(v.Runs)
	case ListItem:
		return RunText(v.Runs)
	case Checklist:
		return RunText(v.Runs)
	case CodeLine:
		return v.Text
	case Table:
		rows := make([]string, 0, len(v.Rows))
		for _, row := range v.Rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				cells = append(cells, CellText(cell))
			}
			rows = append(rows, strings.Join(cells, "\t"))
		}
		return strings.Join(rows, "\n")
	}
	return ""
}

// CellText flattens a cell's blocks into a single line.
func CellText(c Cell) string {
	parts := make([]string, 0, len(c))
	for _, b := range c {
		parts = append(parts, strings.ReplaceAll(BlockText(b), "\n", " "))
	}
	return strings.Join(parts, " ")
}

// PlainText joins the plain text of blocks with newlines.
func PlainText(blocks []Block) string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		lines = append(lines, BlockText(b))
	}
	return strings.Join(lines, "\n")
}

// WithRuns returns a copy of b carrying runs. Blocks without runs are
// returned unchanged.
func WithRuns(b Block, runs []Run) Block {
	switch v := b.(type) {
	case Paragraph:
		v.Runs = runs
		return v
	case Heading:
		v.Runs = runs
		return v
	case ListItem:
		v.Runs = runs
		return v
	case Checklist:
		v.Runs = runs
		return v
	}
	return b
}

// MergeRuns canonicalises runs: empty runs are dropped and neighbours with
// identical attributes are joined. The result is nil when nothing remains.
func MergeRuns(runs []Run) []Run {
	var out []Run
	for _, r := range runs {
		if r.Text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Attrs == r.Attrs {
			out[n-1].Text += r.Text
			continue
		}
		out = append(out, r)
	}
	return out
}

// ValidateRuns reports whether the runs of b exactly cover its text. Blocks
// without runs always pass.
func ValidateRuns(b Block, text string) bool {
	switch b.(type) {
	case CodeLine, Table:
		return true
	}
	total := 0
	for _, r := range Runs(b) {
		total += len(r.Text)
	}
	return total == len(text)
}
