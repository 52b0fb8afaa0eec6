package wire

import (
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/starford/notebridge/internal/document"
)

type encodeConfig struct {
	attachments []document.Attachment
	extensions  []document.RawField
}

// EncodeOption customises Encode.
type EncodeOption func(*encodeConfig)

// WithExtensions reattaches opaque fields kept from an earlier decode.
func WithExtensions(fields []document.RawField) EncodeOption {
	return func(c *encodeConfig) { c.extensions = fields }
}

// WithAttachments writes attachment metadata records.
func WithAttachments(atts []document.Attachment) EncodeOption {
	return func(c *encodeConfig) { c.attachments = atts }
}

// Encode produces a minimal blob carrying title and a plain body; every body
// line becomes an unstyled paragraph.
func Encode(title, plainBody string, opts ...EncodeOption) ([]byte, error) {
	var cfg encodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var blocks []document.Block
	if plainBody != "" {
		for _, line := range strings.Split(plainBody, "\n") {
			blocks = append(blocks, document.Paragraph{Runs: document.Plain(line)})
		}
	}
	return EncodeDocument(&document.Document{
		Title:       title,
		Blocks:      blocks,
		Attachments: cfg.attachments,
		Extensions:  cfg.extensions,
	})
}

// EncodeDocument writes every structural feature of doc: block kinds, styled
// runs, tables, attachment metadata and preserved extensions.
func EncodeDocument(doc *document.Document) ([]byte, error) {
	if strings.Contains(doc.Title, "\n") {
		return nil, &EncodeError{Msg: "title contains a line break"}
	}
	var w writer
	if err := encodeBody(&w, doc.Title, true, doc.Blocks); err != nil {
		return nil, err
	}
	for _, a := range doc.Attachments {
		w.bytes(tagAttach, encodeAttachment(a))
	}
	for _, f := range doc.Extensions {
		w.bytes(f.Tag, f.Value)
	}
	if len(w.buf) > math.MaxUint32 {
		return nil, &EncodeError{Msg: "payload too large"}
	}

	out := make([]byte, 0, headerSize+len(w.buf))
	out = append(out, magic...)
	out = append(out, version1)
	out = binary.BigEndian.AppendUint32(out, uint32(len(w.buf)))
	return append(out, w.buf...), nil
}

func encodeBody(w *writer, title string, top bool, blocks []document.Block) error {
	var (
		lines   []string
		records writer
	)
	if top {
		lines = append(lines, title)
	}
	for _, b := range blocks {
		line := uint64(len(lines))
		text := document.BlockText(b)
		switch v := b.(type) {
		case document.Paragraph:
			encodeRuns(&records, line, v.Runs)
		case document.Heading:
			encodePara(&records, line, kindHeading, uint64(max(v.Level, 0)), false)
			encodeRuns(&records, line, v.Runs)
		case document.ListItem:
			kind := kindBulleted
			if v.Ordered {
				kind = kindNumbered
			}
			encodePara(&records, line, kind, 0, false)
			encodeRuns(&records, line, v.Runs)
		case document.Checklist:
			encodePara(&records, line, kindChecklist, 0, v.Checked)
			encodeRuns(&records, line, v.Runs)
		case document.CodeLine:
			encodePara(&records, line, kindCode, 0, false)
		case document.Table:
			tbl, err := encodeTable(line, v)
			if err != nil {
				return err
			}
			records.bytes(tagTable, tbl)
			text = tablePlaceholder
		default:
			return &EncodeError{Msg: "unknown block type"}
		}
		if strings.Contains(text, "\n") {
			return &EncodeError{Msg: "block text contains a line break"}
		}
		lines = append(lines, text)
	}
	if len(lines) > 0 {
		w.string(tagText, strings.Join(lines, "\n"))
	}
	w.buf = append(w.buf, records.buf...)
	return nil
}

func encodePara(w *writer, line, kind, level uint64, checked bool) {
	var rec writer
	rec.uint(paraLine, line)
	rec.uint(paraKind, kind)
	if level > 0 {
		rec.uint(paraLevel, level)
	}
	if checked {
		rec.uint(paraChecked, 1)
	}
	w.bytes(tagPara, rec.buf)
}

// encodeRuns writes one record per styled run; plain runs are implied by the
// gaps between records.
func encodeRuns(w *writer, line uint64, runs []document.Run) {
	offset := 0
	for _, r := range runs {
		n := len(r.Text)
		if n > 0 && !r.Attrs.IsPlain() {
			var rec writer
			rec.uint(runLine, line)
			rec.uint(runOffset, uint64(offset))
			rec.uint(runLength, uint64(n))
			if f := runFlagBits(r.Attrs); f != 0 {
				rec.uint(runFlags, f)
			}
			if r.Attrs.Color != document.ColorDefault {
				rec.uint(runColor, uint64(r.Attrs.Color))
			}
			if r.Attrs.Color == document.ColorLink && r.Attrs.Link != "" {
				rec.string(runLink, r.Attrs.Link)
			}
			w.bytes(tagRun, rec.buf)
		}
		offset += n
	}
}

func runFlagBits(a document.Attrs) uint64 {
	var f uint64
	if a.Bold {
		f |= flagBold
	}
	if a.Italic {
		f |= flagItalic
	}
	if a.Underline {
		f |= flagUnderline
	}
	if a.Strikethrough {
		f |= flagStrikethrough
	}
	if a.Monospace {
		f |= flagMonospace
	}
	return f
}

func encodeTable(line uint64, t document.Table) ([]byte, error) {
	var rec writer
	rec.uint(tableLine, line)
	for i, row := range t.Rows {
		var rw writer
		for j, cell := range row {
			var cw writer
			if err := encodeBody(&cw, "", false, cell); err != nil {
				return nil, err
			}
			for _, f := range cellExtensions(t, i, j) {
				cw.bytes(f.Tag, f.Value)
			}
			rw.bytes(rowCell, cw.buf)
		}
		rec.bytes(tableRow, rw.buf)
	}
	return rec.buf, nil
}

func cellExtensions(t document.Table, row, col int) []document.RawField {
	if row >= len(t.CellExtensions) || col >= len(t.CellExtensions[row]) {
		return nil
	}
	return t.CellExtensions[row][col]
}

func encodeAttachment(a document.Attachment) []byte {
	var rec writer
	rec.string(attachID, a.ID)
	rec.string(attachName, a.Name)
	rec.string(attachType, a.TypeTag)
	rec.uint(attachSize, uint64(max(a.Size, 0)))
	if a.CreatedAt != nil {
		rec.uint(attachCreated, unixMillis(*a.CreatedAt))
	}
	if a.ModifiedAt != nil {
		rec.uint(attachModified, unixMillis(*a.ModifiedAt))
	}
	return rec.buf
}

func unixMillis(t time.Time) uint64 {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}
