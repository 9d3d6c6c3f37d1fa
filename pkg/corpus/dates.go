package corpus

import (
	"strings"
	"time"
	"unicode/utf8"
)

// dateWireFormat is the fixed UTC instant form every date field is
// normalized to: YYYY-MM-DDTHH:MM:SS.ffffffZ.
const dateWireFormat = "2006-01-02T15:04:05.000000Z"

// sourceDateLayouts are the input formats the loader recognizes coming out
// of the columnar file. Invalid timestamps and empty strings normalize to
// the empty string rather than erroring.
var sourceDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// normalizeDate converts a source date string to the fixed UTC instant
// wire format. Empty input and unparseable input both produce "".
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range sourceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return cleanXML(t.UTC().Format(dateWireFormat))
		}
	}
	return ""
}

// cleanXML strips characters outside the legal XML code-point ranges
// (Char ::= #x9 | #xA | #xD | [#x20-#xD7FF] | [#xE000-#xFFFD] |
// [#x10000-#x10FFFF]), since the engine's XML parser rejects them. It is
// applied to every string value a document carries; the common all-clean
// case returns the input without allocating.
func cleanXML(s string) string {
	clean := true
	for _, r := range s {
		if !isValidXMLChar(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isValidXMLChar(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isValidXMLChar(r rune) bool {
	switch {
	case r == 0x9 || r == 0xA || r == 0xD:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	default:
		return false
	}
}

// looksLikeTimestamp is a light heuristic used to detect "every column
// whose element type is a timestamp" from a streamed CSV, where there is
// no schema to consult: a column is treated as a timestamp column if its
// first non-empty observed value parses under one of sourceDateLayouts.
func looksLikeTimestamp(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !utf8.ValidString(s) {
		return false
	}
	for _, layout := range sourceDateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
