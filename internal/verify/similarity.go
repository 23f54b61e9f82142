package verify

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/sells-group/docverify/internal/extract"
)

// Fuzzy match thresholds.
const (
	PassSimilarity = 0.85
	NearSimilarity = 0.60
)

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes. Two
// empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.Distance(a, b, nil)
	return 1 - float64(d)/float64(longest)
}

// foldName prepares a party name for fuzzy comparison: diacritics, case,
// punctuation and whitespace are dropped.
func foldName(s string) string {
	return strings.ReplaceAll(extract.Fold(s), " ", "")
}

// normalizeID prepares an identifier for exact comparison.
func normalizeID(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
