package analysis

import "strings"

// similarityThreshold is the minimum word-overlap ratio for two fee
// descriptions to count as the same fee.
const similarityThreshold = 0.7

// minAbbreviationLen keeps very short prefixes ("fee" vs "feed") from
// counting as abbreviations.
const minAbbreviationLen = 4

// similarDescriptions reports whether two free-text descriptions name
// the same fee: the Jaccard ratio of their matched words, where a word
// also matches its abbreviation ("admin" for "administrative").
// Descriptions with no words are never similar.
func similarDescriptions(a, b string) bool {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	used := make([]bool, len(wordsB))
	matched := 0
	for _, wa := range wordsA {
		for i, wb := range wordsB {
			if used[i] || !wordsMatch(wa, wb) {
				continue
			}
			used[i] = true
			matched++
			break
		}
	}
	union := len(wordsA) + len(wordsB) - matched

	return float64(matched)/float64(union) >= similarityThreshold
}

func wordsMatch(a, b string) bool {
	if a == b {
		return true
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	return len(shorter) >= minAbbreviationLen && strings.HasPrefix(longer, shorter)
}
