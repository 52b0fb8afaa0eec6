package wire

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/notebridge/internal/document"
)

// Decode parses a blob into a Document. Empty input yields an empty document.
// Hashtags and internal links are derived from the decoded blocks.
func Decode(data []byte) (*document.Document, error) {
	if len(data) == 0 {
		return &document.Document{}, nil
	}
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, &DecodeError{Offset: 0, Err: ErrMalformedHeader, Msg: "missing magic prefix"}
	}
	if v := data[len(magic)]; v != version1 {
		return nil, &DecodeError{Offset: len(magic), Err: ErrUnsupportedVersion, Msg: "version " + itoa(uint64(v))}
	}
	n := binary.BigEndian.Uint32(data[len(magic)+1 : headerSize])
	payload := data[headerSize:]
	switch {
	case uint64(n) > uint64(len(payload)):
		return nil, &DecodeError{Offset: len(magic) + 1, Err: ErrTruncatedStream,
			Msg: "payload declares " + itoa(uint64(n)) + " bytes, " + itoa(uint64(len(payload))) + " present"}
	case uint64(n) < uint64(len(payload)):
		return nil, &DecodeError{Offset: headerSize + int(n), Err: ErrMalformedHeader, Msg: "trailing bytes after payload"}
	}

	b, err := decodeBody(payload, headerSize, true)
	if err != nil {
		return nil, err
	}
	doc := document.Document{
		Title:       b.title,
		Blocks:      b.blocks,
		Attachments: b.attachments,
		Extensions:  b.extensions,
	}.Derive()
	return &doc, nil
}

type body struct {
	title       string
	blocks      []document.Block
	attachments []document.Attachment
	extensions  []document.RawField
}

type paraStyle struct {
	kind    uint64
	level   uint64
	checked bool
}

type runRecord struct {
	off    int
	offset uint64
	length uint64
	attrs  document.Attrs
}

// decodeBody decodes a body stream. The top-level stream reserves line 0 for
// the title and owns attachments; in cell streams an attachment record is
// kept as an opaque extension like any other unknown tag.
func decodeBody(data []byte, base int, top bool) (*body, error) {
	var (
		text     *field
		paras    = map[int]paraStyle{}
		runs     = map[int][]runRecord{}
		tables   = map[int]document.Table{}
		paraRecs []field
		runRecs  []field
		tblRecs  []field
		out      body
	)

	r := newReader(data, base)
	for r.more() {
		f, err := r.next()
		if err != nil {
			return nil, err
		}
		switch {
		case f.tag == tagText:
			if text != nil {
				return nil, &DecodeError{Offset: f.off, Err: ErrMalformedHeader, Msg: "duplicate text field"}
			}
			t := f
			text = &t
		case f.tag == tagPara:
			paraRecs = append(paraRecs, f)
		case f.tag == tagRun:
			runRecs = append(runRecs, f)
		case f.tag == tagTable:
			tblRecs = append(tblRecs, f)
		case f.tag == tagAttach && top:
			a, err := decodeAttachment(f)
			if err != nil {
				return nil, err
			}
			out.attachments = append(out.attachments, a)
		default:
			out.extensions = append(out.extensions, document.RawField{Tag: f.tag, Value: append([]byte(nil), f.value...)})
		}
	}

	var lines []string
	if text != nil {
		if !utf8.Valid(text.value) {
			return nil, &DecodeError{Offset: text.off, Err: ErrMalformedHeader, Msg: "text is not valid UTF-8"}
		}
		lines = strings.Split(string(text.value), "\n")
	}

	for _, f := range paraRecs {
		line, st, err := decodePara(f, len(lines))
		if err != nil {
			return nil, err
		}
		paras[line] = st
	}
	for _, f := range runRecs {
		line, rec, err := decodeRun(f, lines)
		if err != nil {
			return nil, err
		}
		if prev := runs[line]; len(prev) > 0 {
			last := prev[len(prev)-1]
			if rec.offset < last.offset+last.length {
				return nil, &DecodeError{Offset: f.off, Err: ErrCorruptRunTable, Msg: "overlapping or unordered run"}
			}
		}
		runs[line] = append(runs[line], rec)
	}
	for _, f := range tblRecs {
		line, tbl, err := decodeTable(f, len(lines))
		if err != nil {
			return nil, err
		}
		tables[line] = tbl
	}

	first := 0
	if top && len(lines) > 0 {
		out.title = lines[0]
		first = 1
	}
	for i := first; i < len(lines); i++ {
		if tbl, ok := tables[i]; ok {
			out.blocks = append(out.blocks, tbl)
			continue
		}
		out.blocks = append(out.blocks, buildBlock(lines[i], paras[i], runs[i]))
	}
	return &out, nil
}

func buildBlock(line string, st paraStyle, recs []runRecord) document.Block {
	if st.kind == kindCode {
		return document.CodeLine{Text: line}
	}
	runs := spanRuns(line, recs)
	switch st.kind {
	case kindHeading:
		level := int(st.level)
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return document.Heading{Level: level, Runs: runs}
	case kindBulleted:
		return document.ListItem{Runs: runs}
	case kindNumbered:
		return document.ListItem{Ordered: true, Runs: runs}
	case kindChecklist:
		return document.Checklist{Checked: st.checked, Runs: runs}
	}
	return document.Paragraph{Runs: runs}
}

// spanRuns turns validated run records into runs covering the whole line.
func spanRuns(line string, recs []runRecord) []document.Run {
	var out []document.Run
	pos := 0
	for _, rec := range recs {
		start, end := int(rec.offset), int(rec.offset+rec.length)
		if start > pos {
			out = append(out, document.Run{Text: line[pos:start]})
		}
		out = append(out, document.Run{Text: line[start:end], Attrs: rec.attrs})
		pos = end
	}
	if pos < len(line) {
		out = append(out, document.Run{Text: line[pos:]})
	}
	return document.MergeRuns(out)
}

func decodePara(f field, nlines int) (int, paraStyle, error) {
	subs, err := fields(f)
	if err != nil {
		return 0, paraStyle{}, err
	}
	line := -1
	var st paraStyle
	for _, s := range subs {
		switch s.tag {
		case paraLine, paraKind, paraLevel, paraChecked:
			v, err := uvarint(s)
			if err != nil {
				return 0, paraStyle{}, err
			}
			switch s.tag {
			case paraLine:
				line = lineIndex(v)
			case paraKind:
				st.kind = v
			case paraLevel:
				st.level = v
			case paraChecked:
				st.checked = v != 0
			}
		}
	}
	if line < 0 || line >= nlines {
		return 0, paraStyle{}, &DecodeError{Offset: f.off, Err: ErrCorruptRunTable, Msg: "paragraph style outside text"}
	}
	return line, st, nil
}

func decodeRun(f field, lines []string) (int, runRecord, error) {
	subs, err := fields(f)
	if err != nil {
		return 0, runRecord{}, err
	}
	line := -1
	rec := runRecord{off: f.off}
	var flags, color uint64
	var link string
	for _, s := range subs {
		if s.tag == runLink {
			link = string(s.value)
			continue
		}
		switch s.tag {
		case runLine, runOffset, runLength, runFlags, runColor:
		default:
			continue
		}
		v, err := uvarint(s)
		if err != nil {
			return 0, runRecord{}, err
		}
		switch s.tag {
		case runLine:
			line = lineIndex(v)
		case runOffset:
			rec.offset = v
		case runLength:
			rec.length = v
		case runFlags:
			flags = v
		case runColor:
			color = v
		}
	}
	corrupt := func(msg string) (int, runRecord, error) {
		return 0, runRecord{}, &DecodeError{Offset: f.off, Err: ErrCorruptRunTable, Msg: msg}
	}
	if line < 0 || line >= len(lines) {
		return corrupt("run outside text")
	}
	text := lines[line]
	if rec.offset > uint64(len(text)) || rec.length > uint64(len(text))-rec.offset {
		return corrupt("run exceeds line length")
	}
	if !runeBoundary(text, int(rec.offset)) || !runeBoundary(text, int(rec.offset+rec.length)) {
		return corrupt("run splits a character")
	}
	if color > uint64(document.ColorLink) {
		return corrupt("unknown color tag " + itoa(color))
	}
	rec.attrs = document.Attrs{
		Bold:          flags&flagBold != 0,
		Italic:        flags&flagItalic != 0,
		Underline:     flags&flagUnderline != 0,
		Strikethrough: flags&flagStrikethrough != 0,
		Monospace:     flags&flagMonospace != 0,
		Color:         document.ColorTag(color),
	}
	if rec.attrs.Color == document.ColorLink {
		rec.attrs.Link = link
	}
	return line, rec, nil
}

func decodeTable(f field, nlines int) (int, document.Table, error) {
	subs, err := fields(f)
	if err != nil {
		return 0, document.Table{}, err
	}
	line := -1
	var (
		tbl     document.Table
		exts    [][][]document.RawField
		hasExts bool
	)
	for _, s := range subs {
		switch s.tag {
		case tableLine:
			v, err := uvarint(s)
			if err != nil {
				return 0, document.Table{}, err
			}
			line = lineIndex(v)
		case tableRow:
			cells, err := fields(s)
			if err != nil {
				return 0, document.Table{}, err
			}
			var (
				row    []document.Cell
				rowExt [][]document.RawField
			)
			for _, c := range cells {
				if c.tag != rowCell {
					continue
				}
				cb, err := decodeBody(c.value, c.off, false)
				if err != nil {
					return 0, document.Table{}, err
				}
				row = append(row, document.Cell(cb.blocks))
				rowExt = append(rowExt, cb.extensions)
				hasExts = hasExts || len(cb.extensions) > 0
			}
			tbl.Rows = append(tbl.Rows, row)
			exts = append(exts, rowExt)
		}
	}
	if hasExts {
		tbl.CellExtensions = exts
	}
	if line < 0 || line >= nlines {
		return 0, document.Table{}, &DecodeError{Offset: f.off, Err: ErrCorruptRunTable, Msg: "table anchor outside text"}
	}
	return line, tbl, nil
}

func decodeAttachment(f field) (document.Attachment, error) {
	subs, err := fields(f)
	if err != nil {
		return document.Attachment{}, err
	}
	var a document.Attachment
	for _, s := range subs {
		switch s.tag {
		case attachID:
			a.ID = string(s.value)
		case attachName:
			a.Name = string(s.value)
		case attachType:
			a.TypeTag = string(s.value)
		case attachSize, attachCreated, attachModified:
			v, err := uvarint(s)
			if err != nil {
				return document.Attachment{}, err
			}
			if v > math.MaxInt64 {
				return document.Attachment{}, &DecodeError{Offset: s.off, Err: ErrMalformedHeader,
					Msg: "attachment field 0x" + strconv.FormatUint(uint64(s.tag), 16) + " out of range"}
			}
			switch s.tag {
			case attachSize:
				a.Size = int64(v)
			case attachCreated:
				a.CreatedAt = millis(v)
			case attachModified:
				a.ModifiedAt = millis(v)
			}
		}
	}
	return a, nil
}

func millis(v uint64) *time.Time {
	t := time.UnixMilli(int64(v)).UTC()
	return &t
}

func runeBoundary(s string, i int) bool {
	return i == len(s) || utf8.RuneStart(s[i])
}

// lineIndex maps a wire line number to an int, saturating absurd values so
// the range check rejects them.
func lineIndex(v uint64) int {
	if v > uint64(^uint32(0)) {
		return -1
	}
	return int(v)
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
