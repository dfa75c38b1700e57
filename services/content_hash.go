package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// contentHashSeparator joins title and description in the hashed composite
const contentHashSeparator = "|"

// ContentHash fingerprints a (title, description) pair for exact-duplicate
// lookups. Only trimming and lowercasing are applied, so paraphrases and
// punctuation changes produce different hashes.
//
// The polynomial hash runs over UTF-16 code units with int32 wraparound so the
// value matches hashes already stored by the web client. Trimming and
// lowercasing follow the client's string semantics for the same reason.
func ContentHash(title, description string) string {
	composite := contentHashComposite(title, description)

	var hash int32
	for _, unit := range utf16.Encode([]rune(composite)) {
		hash = hash*31 + int32(unit)
	}

	// Widen before abs so math.MinInt32 stays positive
	value := int64(hash)
	if value < 0 {
		value = -value
	}

	return fmt.Sprintf("%08x", value)
}

func contentHashComposite(title, description string) string {
	return lowerFull(trimClientSpace(title)) + contentHashSeparator + lowerFull(trimClientSpace(description))
}

// sameContent reports whether two (title, description) pairs produce the same
// hash composite, which rules out a 32-bit collision.
func sameContent(titleA, descriptionA, titleB, descriptionB string) bool {
	return contentHashComposite(titleA, descriptionA) == contentHashComposite(titleB, descriptionB)
}

// isClientSpace reports whether r is whitespace to the web client's trim and
// \s class: unicode.IsSpace without U+0085, plus U+FEFF.
func isClientSpace(r rune) bool {
	if r == '\uFEFF' {
		return true
	}
	return r != '\u0085' && unicode.IsSpace(r)
}

func trimClientSpace(s string) string {
	return strings.TrimFunc(s, isClientSpace)
}

// lowerFull applies the full Unicode lowercase mapping. Unlike strings.ToLower
// it maps U+0130 to "i̇" and a word-final capital sigma to ς.
func lowerFull(s string) string {
	return cases.Lower(language.Und).String(s)
}
