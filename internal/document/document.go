// Package document defines the structural note model shared by every
// conversion path: documents, blocks, styled runs and attachment metadata.
package document

import "time"

// Document is the canonical structural representation of one note.
type Document struct {
	ID     string
	Title  string
	Folder string
	Blocks []Block

	// Attachments carries metadata only; payload bytes stay with the store.
	Attachments []Attachment

	// Hashtags and InternalLinks are derived from Blocks; see Derive.
	Hashtags      []string
	InternalLinks []Link

	CreatedAt  *time.Time
	ModifiedAt *time.Time

	// Extensions holds wire fields the codec did not recognise, in order.
	Extensions []RawField
}

// Attachment describes a file embedded in a note.
type Attachment struct {
	ID         string
	Name       string
	TypeTag    string
	Size       int64
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

// Link is an internal link extracted from a link-colored run.
type Link struct {
	Text   string
	Target string
}

// RawField is an opaque tag/value pair preserved across decode and encode.
type RawField struct {
	Tag   byte
	Value []byte
}

// Derive returns a copy of d with Hashtags and InternalLinks recomputed from
// its blocks. Calling it repeatedly yields the same result.
func (d Document) Derive() Document {
	d.Hashtags = ExtractHashtags(d.Blocks)
	d.InternalLinks = ExtractInternalLinks(d.Blocks)
	return d
}

// Body returns the plain text of the document's blocks.
func (d Document) Body() string {
	return PlainText(d.Blocks)
}

// TimePtr returns a pointer to t, or nil when t is zero.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
