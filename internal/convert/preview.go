package convert

import (
	"bytes"
	"fmt"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// previewEngine is stateless and safe for concurrent use. Hard wraps keep the
// one-block-per-line layout of exported notes; raw HTML is omitted.
var previewEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.TaskList),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderPreview renders a Markdown artifact to HTML for display. The metadata
// header is dropped.
func RenderPreview(markdown []byte) ([]byte, error) {
	var meta map[string]any
	body, err := frontmatter.Parse(bytes.NewReader(markdown), &meta, yamlFormat)
	if err != nil {
		return nil, malformed("markdown header", err)
	}
	var buf bytes.Buffer
	if err := previewEngine.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("convert: preview: %w", err)
	}
	return buf.Bytes(), nil
}
