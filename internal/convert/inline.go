package convert

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/starford/notebridge/internal/document"
)

// mdEscaper escapes every character the inline parser treats as markup.
var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"`", "\\`",
	"~", `\~`,
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
)

// marks is the set of inline markers active at a point of the output.
type marks struct {
	bold, italic, strike, underline bool
}

func marksOf(a document.Attrs) marks {
	return marks{bold: a.Bold, italic: a.Italic, strike: a.Strikethrough, underline: a.Underline}
}

// renderInline writes runs as Markdown inline text. Markers are only emitted
// where an attribute changes, so a marker kind never closes and reopens at the
// same position.
func renderInline(runs []document.Run) string {
	runs = hugEmphasis(document.MergeRuns(runs))
	var (
		sb  strings.Builder
		cur marks
	)
	for i := 0; i < len(runs); {
		r := runs[i]
		if r.Attrs.Color == document.ColorLink {
			j := i
			var inner []document.Run
			for ; j < len(runs) && runs[j].Attrs.Color == document.ColorLink && runs[j].Attrs.Link == r.Attrs.Link; j++ {
				in := runs[j]
				in.Attrs.Color, in.Attrs.Link = document.ColorDefault, ""
				inner = append(inner, in)
			}
			transition(&sb, &cur, marks{})
			sb.WriteString("[" + renderInline(inner) + "](" + linkDestination(r.Attrs.Link) + ")")
			i = j
			continue
		}
		transition(&sb, &cur, marksOf(r.Attrs))
		if r.Attrs.Monospace || r.Attrs.Color == document.ColorCode {
			sb.WriteString(codeSpan(r.Text))
		} else {
			sb.WriteString(mdEscaper.Replace(r.Text))
		}
		i++
	}
	transition(&sb, &cur, marks{})
	return sb.String()
}

func transition(sb *strings.Builder, cur *marks, next marks) {
	if cur.underline && !next.underline {
		sb.WriteString("</u>")
	}
	if cur.strike && !next.strike {
		sb.WriteString("~~")
	}
	if cur.italic && !next.italic {
		sb.WriteString("*")
	}
	if cur.bold && !next.bold {
		sb.WriteString("**")
	}
	if !cur.bold && next.bold {
		sb.WriteString("**")
	}
	if !cur.italic && next.italic {
		sb.WriteString("*")
	}
	if !cur.strike && next.strike {
		sb.WriteString("~~")
	}
	if !cur.underline && next.underline {
		sb.WriteString("<u>")
	}
	*cur = next
}

// hugEmphasis moves leading and trailing whitespace of emphasised runs into
// unemphasised runs: a delimiter next to a space is not a delimiter.
func hugEmphasis(runs []document.Run) []document.Run {
	var out []document.Run
	for _, r := range runs {
		a := r.Attrs
		if !a.Bold && !a.Italic && !a.Strikethrough {
			out = append(out, r)
			continue
		}
		plain := a
		plain.Bold, plain.Italic, plain.Strikethrough = false, false, false
		core := strings.TrimFunc(r.Text, unicode.IsSpace)
		if core == "" {
			out = append(out, document.Run{Text: r.Text, Attrs: plain})
			continue
		}
		start := strings.Index(r.Text, core)
		out = append(out,
			document.Run{Text: r.Text[:start], Attrs: plain},
			document.Run{Text: core, Attrs: a},
			document.Run{Text: r.Text[start+len(core):], Attrs: plain},
		)
	}
	return document.MergeRuns(out)
}

func codeSpan(text string) string {
	longest, n := 0, 0
	for _, c := range text {
		if c == '`' {
			n++
			longest = max(longest, n)
		} else {
			n = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	pad := ""
	if strings.HasPrefix(text, "`") || strings.HasSuffix(text, "`") ||
		(len(text) > 1 && text[0] == ' ' && text[len(text)-1] == ' ' && strings.TrimSpace(text) != "") {
		pad = " "
	}
	return fence + pad + text + pad + fence
}

func linkDestination(dest string) string {
	if strings.ContainsAny(dest, " ()<>") {
		return "<" + strings.NewReplacer(`\`, `\\`, "<", `\<`, ">", `\>`).Replace(dest) + ">"
	}
	return strings.ReplaceAll(dest, `\`, `\\`)
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokCode
	tokDelim
	tokLink
)

type token struct {
	kind     tokenKind
	text     string
	canOpen  bool
	canClose bool
	role     int // +1 opener, -1 closer, 0 literal
	runs     []document.Run
	link     string
}

// parseInline is the inverse of renderInline. It accepts arbitrary text:
// unmatched delimiters stay literal.
func parseInline(s string) []document.Run {
	toks := tokenize(s)
	matchDelims(toks)

	var (
		out   []document.Run
		state marks
	)
	attrs := func() document.Attrs {
		return document.Attrs{Bold: state.bold, Italic: state.italic, Strikethrough: state.strike, Underline: state.underline}
	}
	for _, t := range toks {
		switch t.kind {
		case tokText:
			out = append(out, document.Run{Text: t.text, Attrs: attrs()})
		case tokCode:
			a := attrs()
			a.Monospace = true
			out = append(out, document.Run{Text: t.text, Attrs: a})
		case tokLink:
			for _, r := range t.runs {
				a := r.Attrs
				a.Bold = a.Bold || state.bold
				a.Italic = a.Italic || state.italic
				a.Strikethrough = a.Strikethrough || state.strike
				a.Underline = a.Underline || state.underline
				a.Color, a.Link = document.ColorLink, t.link
				out = append(out, document.Run{Text: r.Text, Attrs: a})
			}
		case tokDelim:
			on := t.role > 0
			switch t.text {
			case "<u>":
				state.underline = true
			case "</u>":
				state.underline = false
			case "**":
				if t.role == 0 {
					out = append(out, document.Run{Text: t.text, Attrs: attrs()})
				} else {
					state.bold = on
				}
			case "*":
				if t.role == 0 {
					out = append(out, document.Run{Text: t.text, Attrs: attrs()})
				} else {
					state.italic = on
				}
			case "~~":
				if t.role == 0 {
					out = append(out, document.Run{Text: t.text, Attrs: attrs()})
				} else {
					state.strike = on
				}
			}
		}
	}
	return document.MergeRuns(out)
}

// matchDelims pairs each closing delimiter with the nearest open delimiter of
// the same kind.
func matchDelims(toks []token) {
	var open []int
	for i := range toks {
		t := &toks[i]
		if t.kind != tokDelim || t.text == "<u>" || t.text == "</u>" {
			continue
		}
		if t.canClose {
			found := -1
			for k := len(open) - 1; k >= 0; k-- {
				if toks[open[k]].text == t.text {
					found = k
					break
				}
			}
			if found >= 0 {
				toks[open[found]].role = 1
				t.role = -1
				open = append(open[:found], open[found+1:]...)
				continue
			}
		}
		if t.canOpen {
			open = append(open, i)
		}
	}
}

func tokenize(s string) []token {
	var (
		toks []token
		text strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			toks = append(toks, token{kind: tokText, text: text.String()})
			text.Reset()
		}
	}
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s) && isASCIIPunct(s[i+1]):
			text.WriteByte(s[i+1])
			i += 2
		case c == '\\' && i == 0 && spaceWidth(s[1:]) > 0:
			// Escaped leading blank of a heading or whitespace-only line.
			n := spaceWidth(s[1:])
			text.WriteString(s[1 : 1+n])
			i += 1 + n
		case c == '`':
			n := runLength(s, i, '`')
			end := closingBackticks(s, i+n, n)
			if end < 0 {
				text.WriteString(s[i : i+n])
				i += n
				continue
			}
			flush()
			toks = append(toks, token{kind: tokCode, text: stripCodePadding(s[i+n : end])})
			i = end + n
		case c == '*' || c == '~':
			n := runLength(s, i, c)
			if c == '~' && n < 2 {
				text.WriteByte(c)
				i++
				continue
			}
			prev, _ := utf8.DecodeLastRuneInString(s[:i])
			next, _ := utf8.DecodeRuneInString(s[i+n:])
			canOpen := i+n < len(s) && !unicode.IsSpace(next)
			canClose := i > 0 && !unicode.IsSpace(prev)
			flush()
			unit := string([]byte{c, c})
			for k := 0; k < n/2; k++ {
				toks = append(toks, token{kind: tokDelim, text: unit, canOpen: canOpen, canClose: canClose})
			}
			if n%2 == 1 {
				if c == '*' {
					toks = append(toks, token{kind: tokDelim, text: "*", canOpen: canOpen, canClose: canClose})
				} else {
					text.WriteByte(c)
				}
			}
			i += n
		case strings.HasPrefix(s[i:], "<u>"):
			flush()
			toks = append(toks, token{kind: tokDelim, text: "<u>"})
			i += 3
		case strings.HasPrefix(s[i:], "</u>"):
			flush()
			toks = append(toks, token{kind: tokDelim, text: "</u>"})
			i += 4
		case c == '[':
			inner, dest, end, ok := scanLink(s, i)
			if !ok {
				text.WriteByte(c)
				i++
				continue
			}
			flush()
			toks = append(toks, token{kind: tokLink, runs: parseInline(inner), link: dest})
			i = end
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			text.WriteString(s[i : i+size])
			i += size
		}
	}
	flush()
	return toks
}

// scanLink recognises [inner](destination) starting at s[i] == '['. end is
// the index just past the closing parenthesis.
func scanLink(s string, i int) (inner, dest string, end int, ok bool) {
	depth := 0
	k := i
	for ; k < len(s); k++ {
		switch s[k] {
		case '\\':
			k++
			continue
		case '[':
			depth++
		case ']':
			depth--
		}
		if depth == 0 {
			break
		}
	}
	if k >= len(s) || k+1 >= len(s) || s[k+1] != '(' {
		return "", "", 0, false
	}
	inner = s[i+1 : k]
	j := k + 2
	var sb strings.Builder
	if j < len(s) && s[j] == '<' {
		for j++; j < len(s) && s[j] != '>'; j++ {
			if s[j] == '\\' && j+1 < len(s) {
				j++
			}
			sb.WriteByte(s[j])
		}
		if j+1 >= len(s) || s[j+1] != ')' {
			return "", "", 0, false
		}
		return inner, sb.String(), j + 2, true
	}
	parens := 0
	for ; j < len(s); j++ {
		switch c := s[j]; {
		case c == '\\' && j+1 < len(s) && isASCIIPunct(s[j+1]):
			j++
		case c == '(':
			parens++
		case c == ')':
			if parens == 0 {
				return inner, sb.String(), j + 1, true
			}
			parens--
		}
		sb.WriteByte(s[j])
	}
	return "", "", 0, false
}

func runLength(s string, i int, c byte) int {
	n := 0
	for i+n < len(s) && s[i+n] == c {
		n++
	}
	return n
}

// closingBackticks finds a backtick run of exactly n starting at or after
// from, returning its index or -1.
func closingBackticks(s string, from, n int) int {
	for j := from; j < len(s); {
		if s[j] != '`' {
			j++
			continue
		}
		m := runLength(s, j, '`')
		if m == n {
			return j
		}
		j += m
	}
	return -1
}

func stripCodePadding(s string) string {
	if len(s) > 1 && s[0] == ' ' && s[len(s)-1] == ' ' && strings.TrimSpace(s) != "" {
		return s[1 : len(s)-1]
	}
	return s
}

// spaceWidth returns the byte width of s's first rune when it is white space.
func spaceWidth(s string) int {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsSpace(r) {
		return 0
	}
	return size
}

func isASCIIPunct(c byte) bool {
	return strings.IndexByte("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", c) >= 0
}
