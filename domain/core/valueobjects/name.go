package valueobjects

import (
	"strings"
	"unicode"
)

// NormalizeName folds a concept display name into the key used by the
// parent-link index: trimmed, lower-cased, inner whitespace collapsed.
func NormalizeName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), unicode.IsSpace)
	return strings.Join(fields, " ")
}
