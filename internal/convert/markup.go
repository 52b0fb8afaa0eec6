package convert

import (
	"html"
	"strconv"
	"strings"

	"github.com/starford/notebridge/internal/document"
)

// ToMarkup renders doc as the HTML fragment the bridge writes: an <h1> title
// followed by one element per block. Nested tables are flattened to text.
func ToMarkup(doc *document.Document) string {
	var sb strings.Builder
	sb.WriteString("<h1>" + html.EscapeString(doc.Title) + "</h1>\n")
	writeMarkupBlocks(&sb, doc.Blocks, true)
	return sb.String()
}

func writeMarkupBlocks(sb *strings.Builder, blocks []document.Block, allowTables bool) {
	for i := 0; i < len(blocks); {
		switch v := blocks[i].(type) {
		case document.Paragraph:
			if len(v.Runs) > 0 && allQuoted(v.Runs) {
				sb.WriteString("<blockquote>" + markupInline(v.Runs) + "</blockquote>\n")
			} else if len(v.Runs) == 0 {
				sb.WriteString("<div><br></div>\n")
			} else {
				sb.WriteString("<div>" + markupInline(v.Runs) + "</div>\n")
			}
			i++
		case document.Heading:
			tag := "h" + strconv.Itoa(min(max(v.Level, 1), 6))
			sb.WriteString("<" + tag + ">" + markupInline(v.Runs) + "</" + tag + ">\n")
			i++
		case document.ListItem:
			j := i
			tag := "ul"
			if v.Ordered {
				tag = "ol"
			}
			sb.WriteString("<" + tag + ">\n")
			for ; j < len(blocks); j++ {
				li, ok := blocks[j].(document.ListItem)
				if !ok || li.Ordered != v.Ordered {
					break
				}
				sb.WriteString("<li>" + markupInline(li.Runs) + "</li>\n")
			}
			sb.WriteString("</" + tag + ">\n")
			i = j
		case document.Checklist:
			j := i
			sb.WriteString("<ul class=\"checklist\">\n")
			for ; j < len(blocks); j++ {
				ck, ok := blocks[j].(document.Checklist)
				if !ok {
					break
				}
				sb.WriteString("<li data-checked=\"" + strconv.FormatBool(ck.Checked) + "\">" + markupInline(ck.Runs) + "</li>\n")
			}
			sb.WriteString("</ul>\n")
			i = j
		case document.CodeLine:
			j := i
			var lines []string
			for ; j < len(blocks); j++ {
				cl, ok := blocks[j].(document.CodeLine)
				if !ok {
					break
				}
				lines = append(lines, html.EscapeString(cl.Text))
			}
			sb.WriteString("<pre>\n" + strings.Join(lines, "\n") + "</pre>\n")
			i = j
		case document.Table:
			if !allowTables {
				sb.WriteString("<div>" + html.EscapeString(document.CellText(document.Cell{v})) + "</div>\n")
				i++
				continue
			}
			sb.WriteString("<table>\n")
			for _, row := range v.Rows {
				sb.WriteString("<tr>")
				for _, cell := range row {
					var cb strings.Builder
					writeMarkupBlocks(&cb, cell, false)
					sb.WriteString("<td>" + strings.TrimSuffix(cb.String(), "\n") + "</td>")
				}
				sb.WriteString("</tr>\n")
			}
			sb.WriteString("</table>\n")
			i++
		default:
			i++
		}
	}
}

func markupInline(runs []document.Run) string {
	var sb strings.Builder
	for _, r := range document.MergeRuns(runs) {
		s := html.EscapeString(r.Text)
		a := r.Attrs
		if a.Monospace {
			s = "<tt>" + s + "</tt>"
		}
		if a.Color == document.ColorCode {
			s = "<code>" + s + "</code>"
		}
		if a.Strikethrough {
			s = "<s>" + s + "</s>"
		}
		if a.Underline {
			s = "<u>" + s + "</u>"
		}
		if a.Italic {
			s = "<i>" + s + "</i>"
		}
		if a.Bold {
			s = "<b>" + s + "</b>"
		}
		if a.Color == document.ColorLink {
			s = "<a href=\"" + html.EscapeString(a.Link) + "\">" + s + "</a>"
		}
		sb.WriteString(s)
	}
	return sb.String()
}
