package convert

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/starford/notebridge/internal/document"
)

// JSONMode selects the JSON export shape.
type JSONMode string

const (
	// JSONMinimal writes id, title, content, folder and timestamps.
	JSONMinimal JSONMode = "minimal"
	// JSONFull adds attachments, hashtags, internal links and markup.
	JSONFull JSONMode = "full"
)

// Valid reports whether m is a known mode.
func (m JSONMode) Valid() bool { return m == JSONMinimal || m == JSONFull }

//go:embed note.schema.json
var noteSchemaJSON []byte

var noteSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("note.schema.json", bytes.NewReader(noteSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("note.schema.json")
})

type jsonNote struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Folder     string  `json:"folder"`
	CreatedAt  *string `json:"createdAt,omitempty"`
	ModifiedAt *string `json:"modifiedAt,omitempty"`

	Attachments   *[]jsonAttachment `json:"attachments,omitempty"`
	Hashtags      *[]string         `json:"hashtags,omitempty"`
	InternalLinks *[]jsonLink       `json:"internalLinks,omitempty"`
	Markup        *string           `json:"markup,omitempty"`
}

type jsonAttachment struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Size       int64   `json:"size"`
	CreatedAt  *string `json:"createdAt,omitempty"`
	ModifiedAt *string `json:"modifiedAt,omitempty"`
}

type jsonLink struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

// ToJSON renders doc in the given mode. Every key of the minimal shape is
// present with the same value in the full shape.
func ToJSON(doc *document.Document, mode JSONMode) ([]byte, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("convert: unknown json mode %q", mode)
	}
	n := jsonNote{
		ID:         doc.ID,
		Title:      doc.Title,
		Content:    doc.Body(),
		Folder:     doc.Folder,
		CreatedAt:  timeString(doc.CreatedAt),
		ModifiedAt: timeString(doc.ModifiedAt),
	}
	if mode == JSONFull {
		atts := make([]jsonAttachment, 0, len(doc.Attachments))
		for _, a := range doc.Attachments {
			atts = append(atts, jsonAttachment{
				ID: a.ID, Name: a.Name, Type: a.TypeTag, Size: a.Size,
				CreatedAt: timeString(a.CreatedAt), ModifiedAt: timeString(a.ModifiedAt),
			})
		}
		tags := append([]string{}, doc.Hashtags...)
		links := make([]jsonLink, 0, len(doc.InternalLinks))
		for _, l := range doc.InternalLinks {
			links = append(links, jsonLink{Text: l.Text, Target: l.Target})
		}
		markup := ToMarkup(doc)
		n.Attachments, n.Hashtags, n.InternalLinks, n.Markup = &atts, &tags, &links, &markup
	}
	out, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("convert: json: %w", err)
	}
	return append(out, '\n'), nil
}

// ParseJSON parses either JSON shape. Blocks come from markup when present,
// otherwise from the content lines.
func ParseJSON(data []byte) (*document.Document, error) {
	schema, err := noteSchema()
	if err != nil {
		return nil, fmt.Errorf("convert: json schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("json", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, malformed("json", err)
	}
	var n jsonNote
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, malformed("json", err)
	}

	doc := document.Document{ID: n.ID, Title: n.Title, Folder: n.Folder}
	switch {
	case n.Markup != nil && *n.Markup != "":
		parsed, err := ParseMarkup(*n.Markup)
		if err != nil {
			return nil, err
		}
		doc.Blocks = parsed.Blocks
		if doc.Title == "" {
			doc.Title = parsed.Title
		}
	case n.Content != "":
		for _, line := range strings.Split(n.Content, "\n") {
			doc.Blocks = append(doc.Blocks, document.Paragraph{Runs: document.Plain(line)})
		}
	}
	if doc.CreatedAt, err = parseTimePtr(n.CreatedAt); err != nil {
		return nil, malformed("json", err)
	}
	if doc.ModifiedAt, err = parseTimePtr(n.ModifiedAt); err != nil {
		return nil, malformed("json", err)
	}
	if n.Attachments != nil {
		for _, a := range *n.Attachments {
			att := document.Attachment{ID: a.ID, Name: a.Name, TypeTag: a.Type, Size: a.Size}
			if att.CreatedAt, err = parseTimePtr(a.CreatedAt); err != nil {
				return nil, malformed("json", err)
			}
			if att.ModifiedAt, err = parseTimePtr(a.ModifiedAt); err != nil {
				return nil, malformed("json", err)
			}
			doc.Attachments = append(doc.Attachments, att)
		}
	}
	doc = doc.Derive()
	return &doc, nil
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(t)
	return &s
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return parseTime(*s)
}
