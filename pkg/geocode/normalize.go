package geocode

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// collapseWhitespace trims the query and collapses internal whitespace runs
// to single spaces. Case is preserved; this is the form sent to providers.
func collapseWhitespace(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// normalizeQuery produces the canonical cache-key form of a query: NFC
// normalized, whitespace collapsed, Unicode case folded.
func normalizeQuery(q string) string {
	return fold(collapseWhitespace(q))
}

// fold lower-cases a string using full Unicode case folding so that match
// comparisons behave for non-ASCII place names.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// queryLength counts non-whitespace runes; queries shorter than MinQueryLen
// are rejected before any cache or network interaction.
func queryLength(q string) int {
	n := 0
	for _, r := range q {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// MinQueryLen is the minimum number of non-whitespace characters a query
// must have before the pipeline will attempt resolution.
const MinQueryLen = 2
