package torrentcombine

import (
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FilenamesFuzzyMatch reports whether two file names plausibly name the
// same payload. Identical names always match. Otherwise both names need at
// least FuzzyMinNameLength characters and a normalized Levenshtein
// similarity of at least FuzzySimilarityThreshold.
func FilenamesFuzzyMatch(a, b string) bool {
	if a == b {
		return true
	}

	lenA := utf8.RuneCountInString(a)
	lenB := utf8.RuneCountInString(b)
	if lenA < FuzzyMinNameLength || lenB < FuzzyMinNameLength {
		return false
	}

	return nameSimilarity(a, b, max(lenA, lenB)) >= FuzzySimilarityThreshold
}

func nameSimilarity(a, b string, maxLen int) float64 {
	if maxLen == 0 {
		return 1
	}
	distance := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(distance)/float64(maxLen)
}
