// Package convert maps documents to and from their text representations:
// Markdown with a metadata header, JSON and the HTML markup accepted by the
// bridge.
package convert

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed is wrapped by every parse error.
var ErrMalformed = errors.New("malformed input")

func malformed(format string, err error) error {
	return fmt.Errorf("convert: %s: %w: %v", format, ErrMalformed, err)
}

// Format names a text representation.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatMarkup   Format = "markup"
)

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, bool) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", false
	}
	switch strings.ToLower(path[i+1:]) {
	case "md", "markdown", "txt":
		return FormatMarkdown, true
	case "json":
		return FormatJSON, true
	case "html", "htm":
		return FormatMarkup, true
	}
	return "", false
}

// Extension returns the file extension written for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkup:
		return "html"
	}
	return "md"
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func formatTime(t *time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised date %q", s)
}
