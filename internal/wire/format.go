// Package wire decodes and encodes the binary note blob.
//
// A blob is an envelope
//
//	magic "NOTE" | version (1 byte) | payload length (uint32, big endian) | payload
//
// whose payload is a stream of tag/length/value fields. Lengths are uvarints,
// so unknown tags can always be skipped; unknown top-level fields are kept on
// the document and written back by the encoder.
package wire

import (
	"errors"
	"fmt"
)

const (
	magic      = "NOTE"
	version1   = 1
	headerSize = len(magic) + 1 + 4
)

// Body stream tags.
const (
	tagText   byte = 0x01
	tagPara   byte = 0x02
	tagRun    byte = 0x03
	tagTable  byte = 0x04
	tagAttach byte = 0x05
)

// Paragraph record fields.
const (
	paraLine    byte = 0x01
	paraKind    byte = 0x02
	paraLevel   byte = 0x03
	paraChecked byte = 0x04
)

// Run record fields.
const (
	runLine   byte = 0x01
	runOffset byte = 0x02
	runLength byte = 0x03
	runFlags  byte = 0x04
	runColor  byte = 0x05
	runLink   byte = 0x06
)

// Table record fields.
const (
	tableLine byte = 0x01
	tableRow  byte = 0x02
	rowCell   byte = 0x01
)

// Attachment record fields.
const (
	attachID       byte = 0x01
	attachName     byte = 0x02
	attachType     byte = 0x03
	attachSize     byte = 0x04
	attachCreated  byte = 0x05
	attachModified byte = 0x06
)

// Paragraph kinds.
const (
	kindBody uint64 = iota
	kindHeading
	kindBulleted
	kindNumbered
	kindChecklist
	kindCode
)

// Run flag bits.
const (
	flagBold uint64 = 1 << iota
	flagItalic
	flagUnderline
	flagStrikethrough
	flagMonospace
)

// tablePlaceholder is written on the text line a table is anchored to.
const tablePlaceholder = "\uFFFC"

var (
	ErrMalformedHeader    = errors.New("malformed header")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrTruncatedStream    = errors.New("truncated stream")
	ErrCorruptRunTable    = errors.New("corrupt run table")
	ErrInvalidDocument    = errors.New("invalid document")
)

// DecodeError reports where decoding stopped. Err is one of the sentinel
// errors above.
type DecodeError struct {
	Offset int
	Msg    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: decode at offset %d: %v: %s", e.Offset, e.Err, e.Msg)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a document the encoder cannot represent.
type EncodeError struct {
	Msg string
}

func (e *EncodeError) Error() string { return "wire: encode: " + e.Msg }

func (e *EncodeError) Unwrap() error { return ErrInvalidDocument }
