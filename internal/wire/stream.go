package wire

import (
	"encoding/binary"
	"fmt"
)

// field is one tag/value pair; off is its absolute offset in the blob.
type field struct {
	tag   byte
	value []byte
	off   int
}

// reader walks a field stream. base is the absolute offset of data[0].
type reader struct {
	data []byte
	pos  int
	base int
}

func newReader(data []byte, base int) *reader {
	return &reader{data: data, base: base}
}

func (r *reader) more() bool { return r.pos < len(r.data) }

func (r *reader) next() (field, error) {
	start := r.pos
	tag := r.data[r.pos]
	r.pos++
	n, size := binary.Uvarint(r.data[r.pos:])
	if size <= 0 {
		return field{}, r.errAt(start, ErrTruncatedStream, "bad length for tag 0x%02x", tag)
	}
	r.pos += size
	if n > uint64(len(r.data)-r.pos) {
		return field{}, r.errAt(start, ErrTruncatedStream, "tag 0x%02x declares %d bytes, %d remain", tag, n, len(r.data)-r.pos)
	}
	v := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return field{tag: tag, value: v, off: r.base + start}, nil
}

func (r *reader) errAt(pos int, sentinel error, format string, args ...any) error {
	return &DecodeError{Offset: r.base + pos, Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}

// fields reads every field of a nested record.
func fields(f field) ([]field, error) {
	r := newReader(f.value, f.off)
	var out []field
	for r.more() {
		sub, err := r.next()
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func uvarint(f field) (uint64, error) {
	v, n := binary.Uvarint(f.value)
	if n <= 0 || n != len(f.value) {
		return 0, &DecodeError{Offset: f.off, Err: ErrTruncatedStream, Msg: fmt.Sprintf("bad varint in tag 0x%02x", f.tag)}
	}
	return v, nil
}

// writer builds a field stream.
type writer struct {
	buf []byte
}

func (w *writer) bytes(tag byte, v []byte) {
	w.buf = append(w.buf, tag)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *writer) string(tag byte, s string) { w.bytes(tag, []byte(s)) }

func (w *writer) uint(tag byte, v uint64) {
	w.bytes(tag, binary.AppendUvarint(nil, v))
}
