package convert

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/starford/notebridge/internal/document"
)

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// ParseMarkup parses an HTML fragment. A leading <h1> is taken as the title;
// the rest becomes blocks. Unknown elements are treated as inline containers.
func ParseMarkup(markup string) (*document.Document, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		return nil, malformed("markup", err)
	}

	start := 0
	for start < len(nodes) && ignorable(nodes[start]) {
		start++
	}
	var title string
	if start < len(nodes) && nodes[start].Type == html.ElementNode && nodes[start].DataAtom == atom.H1 {
		title = strings.TrimSpace(textContent(nodes[start]))
		start++
	}

	c := &collector{tables: true}
	for _, n := range nodes[start:] {
		c.node(n, document.Attrs{})
	}
	c.endParagraph(false)

	doc := document.Document{Title: title, Blocks: c.blocks}.Derive()
	return &doc, nil
}

// collector turns a node tree into blocks. Inline content accumulates in runs
// until a block element or <br> ends the paragraph.
type collector struct {
	blocks []document.Block
	runs   []document.Run
	open   bool
	loose  bool // paragraph contains source line breaks
	tables bool
}

func (c *collector) endParagraph(force bool) {
	if !c.open && !force {
		return
	}
	runs := document.MergeRuns(c.runs)
	if c.loose {
		runs = trimRuns(runs)
	}
	blank := strings.TrimSpace(document.RunText(runs)) == ""
	switch {
	case !blank:
		c.blocks = append(c.blocks, document.Paragraph{Runs: runs})
	case force:
		c.blocks = append(c.blocks, document.Paragraph{})
	}
	c.runs, c.open, c.loose = nil, false, false
}

func (c *collector) children(n *html.Node, a document.Attrs) {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.node(ch, a)
	}
}

// container handles a block element holding paragraphs. An element that
// produced nothing still stands for one empty line when emptyLine is set.
func (c *collector) container(n *html.Node, a document.Attrs, emptyLine bool) {
	before := len(c.blocks)
	c.children(n, a)
	c.endParagraph(false)
	if emptyLine && len(c.blocks) == before {
		c.blocks = append(c.blocks, document.Paragraph{})
	}
}

func (c *collector) node(n *html.Node, a document.Attrs) {
	switch n.Type {
	case html.TextNode:
		c.text(n.Data, a)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Br:
		c.endParagraph(true)
	case atom.Div, atom.P:
		c.endParagraph(false)
		c.container(n, a, true)
	case atom.Section, atom.Article, atom.Main, atom.Header, atom.Footer, atom.Body, atom.Html:
		c.endParagraph(false)
		c.container(n, a, false)
	case atom.Blockquote:
		c.endParagraph(false)
		if a.Color == document.ColorDefault {
			a.Color = document.ColorQuote
		}
		c.container(n, a, true)
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		c.endParagraph(false)
		level, _ := strconv.Atoi(n.Data[1:])
		c.blocks = append(c.blocks, document.Heading{Level: level, Runs: inlineRuns(n, a)})
	case atom.Ul, atom.Ol:
		c.endParagraph(false)
		c.list(n, a)
	case atom.Li:
		c.endParagraph(false)
		c.item(n, a, false, false)
	case atom.Pre:
		c.endParagraph(false)
		for _, line := range strings.Split(textContent(n), "\n") {
			c.blocks = append(c.blocks, document.CodeLine{Text: line})
		}
	case atom.Table:
		c.endParagraph(false)
		c.table(n, a)
	case atom.Hr:
		c.endParagraph(false)
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Input:
	default:
		c.children(n, inlineAttrs(n, a))
	}
}

func (c *collector) text(s string, a document.Attrs) {
	if strings.ContainsAny(s, "\r\n") {
		collapsed := strings.Join(strings.Fields(s), " ")
		switch {
		case collapsed == "":
			collapsed = " "
		default:
			if strings.TrimLeftFunc(s, unicode.IsSpace) != s {
				collapsed = " " + collapsed
			}
			if strings.TrimRightFunc(s, unicode.IsSpace) != s {
				collapsed += " "
			}
		}
		s = collapsed
		c.loose = true
	}
	c.runs = append(c.runs, document.Run{Text: s, Attrs: a})
	c.open = true
}

func inlineAttrs(n *html.Node, a document.Attrs) document.Attrs {
	switch n.DataAtom {
	case atom.B, atom.Strong:
		a.Bold = true
	case atom.I, atom.Em:
		a.Italic = true
	case atom.U, atom.Ins:
		a.Underline = true
	case atom.S, atom.Strike, atom.Del:
		a.Strikethrough = true
	case atom.Tt, atom.Kbd, atom.Samp:
		a.Monospace = true
	case atom.Code:
		if a.Color != document.ColorLink {
			a.Color = document.ColorCode
		}
	case atom.A:
		if href, ok := attr(n, "href"); ok {
			a.Color, a.Link = document.ColorLink, href
		}
	}
	return a
}

func (c *collector) list(n *html.Node, a document.Attrs) {
	ordered := n.DataAtom == atom.Ol
	checklist := hasClass(n, "checklist")
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		switch {
		case li.Type == html.ElementNode && li.DataAtom == atom.Li:
			c.item(li, a, ordered, checklist)
		case li.Type == html.ElementNode:
			c.node(li, a)
		}
	}
}

// item emits one list entry. Extra paragraphs and nested lists inside the
// <li> follow it as sibling blocks.
func (c *collector) item(li *html.Node, a document.Attrs, ordered, checklist bool) {
	checked, isCheck := checkState(li)
	sub := &collector{}
	sub.children(li, a)
	sub.endParagraph(false)

	rest := sub.blocks
	var runs []document.Run
	if len(rest) > 0 {
		if p, ok := rest[0].(document.Paragraph); ok {
			runs, rest = p.Runs, rest[1:]
		}
	}
	if _, explicit := attr(li, "data-checked"); isCheck && !explicit {
		// Text following a checkbox input usually starts with a space.
		runs = trimRuns(runs)
	}
	if checklist || isCheck {
		c.blocks = append(c.blocks, document.Checklist{Checked: checked, Runs: runs})
	} else {
		c.blocks = append(c.blocks, document.ListItem{Ordered: ordered, Runs: runs})
	}
	c.blocks = append(c.blocks, rest...)
}

func (c *collector) table(n *html.Node, a document.Attrs) {
	if !c.tables {
		c.text(strings.Join(strings.Fields(textContent(n)), " "), a)
		c.endParagraph(false)
		return
	}
	var t document.Table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type != html.ElementNode {
				continue
			}
			switch ch.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				walk(ch)
			case atom.Tr:
				var row []document.Cell
				for td := ch.FirstChild; td != nil; td = td.NextSibling {
					if td.Type != html.ElementNode || (td.DataAtom != atom.Td && td.DataAtom != atom.Th) {
						continue
					}
					sub := &collector{}
					sub.container(td, a, false)
					row = append(row, document.Cell(sub.blocks))
				}
				t.Rows = append(t.Rows, row)
			}
		}
	}
	walk(n)
	c.blocks = append(c.blocks, t)
}

func inlineRuns(n *html.Node, a document.Attrs) []document.Run {
	sub := &collector{}
	sub.children(n, a)
	sub.endParagraph(false)
	var runs []document.Run
	for _, b := range sub.blocks {
		runs = append(runs, document.Runs(b)...)
	}
	return document.MergeRuns(runs)
}

func checkState(li *html.Node) (checked, ok bool) {
	if v, found := attr(li, "data-checked"); found {
		return v == "true", true
	}
	for ch := li.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && ch.DataAtom == atom.Input {
			if t, _ := attr(ch, "type"); strings.EqualFold(t, "checkbox") {
				_, on := attr(ch, "checked")
				return on, true
			}
		}
	}
	return false, false
}

func trimRuns(runs []document.Run) []document.Run {
	if len(runs) == 0 {
		return runs
	}
	runs[0].Text = strings.TrimLeft(runs[0].Text, " ")
	last := len(runs) - 1
	runs[last].Text = strings.TrimRight(runs[last].Text, " ")
	return document.MergeRuns(runs)
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && ch.DataAtom == atom.Br {
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(textContent(ch))
	}
	return sb.String()
}

func ignorable(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return true
	case html.TextNode:
		return strings.TrimSpace(n.Data) == ""
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, _ := attr(n, "class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}
