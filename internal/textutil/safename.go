// Package textutil derives file-system safe names from note titles.
package textutil

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxNameBytes caps the length of a safe name, excluding any extension.
const MaxNameBytes = 180

// Untitled is used for titles that are empty after normalisation.
const Untitled = "Untitled"

// unsafe lists the characters escaped by SafeName. '%' is included so the
// mapping stays injective.
const unsafe = "%/\\:*?\"<>|"

// SafeName maps a title to a file-system safe name. Unsafe characters and
// control characters become %XX escapes, as do a leading dot and trailing
// dots or spaces. The input is NFC-normalised first; distinct normalised
// titles never share an escaped form unless truncated to MaxNameBytes.
func SafeName(title string) string {
	title = norm.NFC.String(title)
	if title == "" {
		return Untitled
	}

	var b strings.Builder
	trailing := len(strings.TrimRight(title, ". "))
	for i, r := range title {
		var tok string
		switch {
		case r < 0x20 || r == 0x7f || strings.ContainsRune(unsafe, r):
			tok = fmt.Sprintf("%%%02X", r)
		case i == 0 && r == '.':
			tok = "%2E"
		case i >= trailing:
			tok = fmt.Sprintf("%%%02X", r)
		default:
			tok = string(r)
		}
		if b.Len()+len(tok) > MaxNameBytes {
			break
		}
		b.WriteString(tok)
	}
	return b.String()
}

// FoldKey returns the case-insensitive key used to detect names that collide
// on case-insensitive file systems.
func FoldKey(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// Disambiguate appends the escaped identifier to name.
func Disambiguate(name, id string) string {
	return name + "-" + SafeName(id)
}
