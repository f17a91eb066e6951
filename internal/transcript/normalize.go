package transcript

import (
	"regexp"
	"strings"
)

// whitespaceRegex matches one or more whitespace characters
var whitespaceRegex = regexp.MustCompile(`\s+`)

// punctuationRegex matches everything that is neither a word character nor
// whitespace, plus the underscore.
var punctuationRegex = regexp.MustCompile(`[^\w\s]|_`)

// DisplayText collapses whitespace runs to a single space and trims.
// Identifiers are never passed through here.
func DisplayText(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// NormalizeText produces the fuzzy-matching key for s:
// 1. Lowercase
// 2. Collapse whitespace to single spaces
// 3. Strip punctuation and underscores
// 4. Trim leading/trailing whitespace
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = punctuationRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
