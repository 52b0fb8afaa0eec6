package convert

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notebridge/internal/document"
)

func p(s string) document.Paragraph { return document.Paragraph{Runs: document.Plain(s)} }

func TestParseMarkdown_Groceries(t *testing.T) {
	src := "---\ntitle: \"Groceries\"\n---\n- [ ] Milk\n- [x] Eggs\n"

	parsed, err := ParseMarkdown([]byte(src), "ignored")
	require.NoError(t, err)

	doc := parsed.Document
	assert.Equal(t, "Groceries", doc.Title)
	assert.Equal(t, []document.Block{
		document.Checklist{Checked: false, Runs: document.Plain("Milk")},
		document.Checklist{Checked: true, Runs: document.Plain("Eggs")},
	}, doc.Blocks)
}

func TestMarkdown_RoundTrip(t *testing.T) {
	src := document.Document{
		Title:     `Plan "Q3": #1 - review`,
		Folder:    "Work/Projects",
		CreatedAt: document.TimePtr(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)),
		Blocks: []document.Block{
			p("Kick-off for #planning and #q3"),
			document.Paragraph{},
			document.ListItem{Runs: document.Plain("first")},
			document.ListItem{Runs: document.Plain("second")},
			document.ListItem{Ordered: true, Runs: document.Plain("one")},
			document.ListItem{Ordered: true, Runs: document.Plain("two")},
			document.Checklist{Runs: document.Plain("todo")},
			document.Checklist{Checked: true, Runs: document.Plain("done")},
			p("# not a heading"),
			p("- not a list"),
			p("3. not ordered"),
			p("> not a quote"),
			p("| not a table"),
			p(" \t"),
			p("   "),
			p("\u00a0"),
			document.ListItem{Runs: document.Plain("between")},
			p("stars * and _under_ [brackets] `ticks` ~tilde~ <tag> back\\slash"),
		},
	}.Derive()

	out, err := ToMarkdown(&src, MarkdownOptions{Frontmatter: true})
	require.NoError(t, err)

	parsed, err := ParseMarkdown(out, "fallback")
	require.NoError(t, err)
	got := parsed.Document

	assert.Equal(t, src.Title, got.Title)
	assert.Equal(t, src.Folder, got.Folder)
	assert.Equal(t, src.Hashtags, got.Hashtags)
	assert.Equal(t, []string{"planning", "q3"}, got.Hashtags)
	assert.Equal(t, src.Body(), got.Body())
	assert.Equal(t, src.Blocks, got.Blocks)
	require.NotNil(t, got.CreatedAt)
	assert.True(t, got.CreatedAt.Equal(*src.CreatedAt))
	assert.Nil(t, got.ModifiedAt)
	assert.Equal(t, src.Hashtags, parsed.HeaderTags)
}

func TestMarkdown_RoundTripStyledAndStructured(t *testing.T) {
	blocks := []document.Block{
		document.Heading{Level: 2, Runs: document.Plain("Section")},
		document.Paragraph{Runs: []document.Run{
			{Text: "ship "},
			{Text: "fast", Attrs: document.Attrs{Bold: true}},
			{Text: " and "},
			{Text: "safe", Attrs: document.Attrs{Bold: true, Italic: true}},
			{Text: "ly"},
		}},
		document.Paragraph{Runs: []document.Run{
			{Text: "see "},
			{Text: "Roadmap", Attrs: document.Attrs{Color: document.ColorLink, Link: "note-42"}},
			{Text: " or "},
			{Text: "Draft", Attrs: document.Attrs{Color: document.ColorLink, Link: "note (draft)"}},
			{Text: " then "},
			{Text: "go test", Attrs: document.Attrs{Monospace: true}},
			{Text: " "},
			{Text: "old", Attrs: document.Attrs{Strikethrough: true}},
			{Text: " "},
			{Text: "under", Attrs: document.Attrs{Underline: true}},
		}},
		document.Paragraph{Runs: []document.Run{{Text: "quoted", Attrs: document.Attrs{Color: document.ColorQuote}}}},
		document.CodeLine{Text: "func main() {"},
		document.CodeLine{Text: ""},
		document.CodeLine{Text: "```"},
		document.CodeLine{Text: "}"},
		document.Table{Rows: [][]document.Cell{
			{document.Cell{p("Name")}, document.Cell{p("Qty")}},
			{document.Cell{p("a|b")}, document.Cell{p("1"), p("2")}},
		}},
		p("after"),
	}
	src := document.Document{Title: "Styled", Blocks: blocks}

	out, err := ToMarkdown(&src, MarkdownOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "# Styled\n"))
	assert.Contains(t, string(out), "ship **fast** and ***safe***ly")
	assert.Contains(t, string(out), "[Draft](<note (draft)>)")
	assert.Contains(t, string(out), "| --- | --- |")

	parsed, err := ParseMarkdown(out, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "Styled", parsed.Document.Title)
	assert.Equal(t, blocks, parsed.Document.Blocks)
}

func TestMarkdown_WhitespaceOnlyParagraph(t *testing.T) {
	src := document.Document{Title: "T", Blocks: []document.Block{p("a"), p("   "), p("x")}}

	out, err := ToMarkdown(&src, MarkdownOptions{})
	require.NoError(t, err)
	assert.Equal(t, "# T\na\n\\   \nx\n", string(out))

	parsed, err := ParseMarkdown(out, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "a\n   \nx", parsed.Document.Body())
	assert.Equal(t, src.Blocks, parsed.Document.Blocks)
}

func TestMarkdown_TitleWhitespace(t *testing.T) {
	for _, title := range []string{"  padded  ", "\tTabbed", "trailing "} {
		t.Run(title, func(t *testing.T) {
			src := document.Document{
				Title: title,
				Blocks: []document.Block{
					document.Heading{Level: 2, Runs: document.Plain(" lead")},
					p("body"),
				},
			}
			out, err := ToMarkdown(&src, MarkdownOptions{})
			require.NoError(t, err)

			parsed, err := ParseMarkdown(out, "fallback")
			require.NoError(t, err)
			assert.Equal(t, title, parsed.Document.Title)
			assert.Equal(t, src.Blocks, parsed.Document.Blocks)
		})
	}
}

func TestToMarkdown_Layout(t *testing.T) {
	doc := document.Document{
		Title:  "List",
		Folder: "Home",
		Blocks: []document.Block{
			document.ListItem{Ordered: true, Runs: document.Plain("a")},
			document.ListItem{Ordered: true, Runs: document.Plain("b")},
			p("break"),
			document.ListItem{Ordered: true, Runs: document.Plain("c")},
			document.Heading{Level: 9, Runs: document.Plain("deep")},
		},
	}.Derive()

	out, err := ToMarkdown(&doc, MarkdownOptions{Frontmatter: true})
	require.NoError(t, err)
	want := "---\n" +
		"title: \"List\"\n" +
		"folder: \"Home\"\n" +
		"---\n" +
		"1. a\n" +
		"2. b\n" +
		"break\n" +
		"1. c\n" +
		"###### deep\n"
	assert.Equal(t, want, string(out))
}

func TestToMarkdown_HeaderHashtagsFlow(t *testing.T) {
	doc := document.Document{Title: "T", Blocks: []document.Block{p("#a #b")}}.Derive()
	out, err := ToMarkdown(&doc, MarkdownOptions{Frontmatter: true})
	require.NoError(t, err)
	assert.Contains(t, string(out), "hashtags: [\"a\", \"b\"]\n")
}

func TestParseMarkdown_TitlePriority(t *testing.T) {
	parsed, err := ParseMarkdown([]byte("# From Heading\nbody\n"), "file")
	require.NoError(t, err)
	assert.Equal(t, "From Heading", parsed.Document.Title)
	assert.Equal(t, []document.Block{p("body")}, parsed.Document.Blocks)

	parsed, err = ParseMarkdown([]byte("intro\n# Later\n"), "file")
	require.NoError(t, err)
	assert.Equal(t, "Later", parsed.Document.Title)
	assert.Len(t, parsed.Document.Blocks, 2)

	parsed, err = ParseMarkdown([]byte("just text\n"), "file-stem")
	require.NoError(t, err)
	assert.Equal(t, "file-stem", parsed.Document.Title)

	parsed, err = ParseMarkdown([]byte("---\ntitle: Header\n---\n# Body H1\n"), "file")
	require.NoError(t, err)
	assert.Equal(t, "Header", parsed.Document.Title)
	assert.Equal(t, []document.Block{document.Heading{Level: 1, Runs: document.Plain("Body H1")}}, parsed.Document.Blocks)
}

func TestParseMarkdown_Header(t *testing.T) {
	src := "---\n" +
		"title: Trip\n" +
		"folder: Travel\n" +
		"tags: [\"#beach\", sun]\n" +
		"hashtags: [sun]\n" +
		"createdAt: 2024-01-02T03:04:05Z\n" +
		"modified: \"2024-02-03\"\n" +
		"---\n" +
		"Packing #list\n"

	parsed, err := ParseMarkdown([]byte(src), "x")
	require.NoError(t, err)
	doc := parsed.Document
	assert.Equal(t, "Travel", doc.Folder)
	assert.Equal(t, []string{"sun", "beach"}, parsed.HeaderTags)
	assert.Equal(t, []string{"list"}, doc.Hashtags)
	require.NotNil(t, doc.CreatedAt)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), *doc.CreatedAt)
	require.NotNil(t, doc.ModifiedAt)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), *doc.ModifiedAt)
}

func TestParseMarkdown_InvalidHeader(t *testing.T) {
	_, err := ParseMarkdown([]byte("---\ntitle: [unclosed\n---\nbody\n"), "x")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseMarkdown([]byte("---\ncreated: someday\n---\nbody\n"), "x")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseMarkdown_Tolerant(t *testing.T) {
	src := "Some *unclosed and 2 * 3\n" +
		"  * nested bullet\n" +
		"1) paren item\n" +
		"***\n" +
		"[dangling](\n" +
		"```\n" +
		"unterminated fence\n"

	parsed, err := ParseMarkdown([]byte(src), "t")
	require.NoError(t, err)
	assert.Equal(t, []document.Block{
		p("Some *unclosed and 2 * 3"),
		document.ListItem{Runs: document.Plain("nested bullet")},
		document.ListItem{Ordered: true, Runs: document.Plain("paren item")},
		p("***"),
		p("[dangling]("),
		document.CodeLine{Text: "unterminated fence"},
	}, parsed.Document.Blocks)
}

func TestParseInline(t *testing.T) {
	tests := []struct {
		in   string
		want []document.Run
	}{
		{"plain", document.Plain("plain")},
		{"**b***i*", []document.Run{
			{Text: "b", Attrs: document.Attrs{Bold: true}},
			{Text: "i", Attrs: document.Attrs{Italic: true}},
		}},
		{"*a***b**", []document.Run{
			{Text: "a", Attrs: document.Attrs{Italic: true}},
			{Text: "b", Attrs: document.Attrs{Bold: true}},
		}},
		{"``a`b``", []document.Run{{Text: "a`b", Attrs: document.Attrs{Monospace: true}}}},
		{`\*lit\*`, document.Plain("*lit*")},
		{"[**x**](t)", []document.Run{{Text: "x", Attrs: document.Attrs{Bold: true, Color: document.ColorLink, Link: "t"}}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseInline(tt.in), "input %q", tt.in)
	}
}

func TestRenderPreview(t *testing.T) {
	out, err := RenderPreview([]byte("---\ntitle: \"x\"\n---\n- [x] done\n\n**bold**\n"))
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, "checkbox")
	assert.NotContains(t, html, "title:")
}

func TestFormatForPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a/b.md": FormatMarkdown, "x.MARKDOWN": FormatMarkdown, "n.txt": FormatMarkdown,
		"n.json": FormatJSON, "n.htm": FormatMarkup, "n.html": FormatMarkup,
	} {
		got, ok := FormatForPath(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
	_, ok := FormatForPath("n.pdf")
	assert.False(t, ok)
	_, ok = FormatForPath("noext")
	assert.False(t, ok)
}
