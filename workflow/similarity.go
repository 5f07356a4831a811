package workflow

import (
	"strings"

	"github.com/propfolio/recon_backend/utils"
	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// Tunable fuzzy-matching parameters. The 0.75 floor is an empirical setting,
// not a hard requirement.
const (
	FuzzySimilarityThreshold = 0.75
	MinMatchConfidence       = 0.5
)

// TokenSortRatio compares two account names after normalizing and sorting
// their tokens, so word order and punctuation do not matter:
// "Income, Net" vs "Net Income" scores 1.0.
func TokenSortRatio(a, b string) float64 {
	sortedA := strings.Join(utils.SortedTokens(a), " ")
	sortedB := strings.Join(utils.SortedTokens(b), " ")
	if sortedA == "" || sortedB == "" {
		return 0
	}
	if sortedA == sortedB {
		return 1
	}
	distance := levenshtein.DistanceForStrings([]rune(sortedA), []rune(sortedB), levenshtein.DefaultOptions)
	maxLen := len([]rune(sortedA))
	if l := len([]rune(sortedB)); l > maxLen {
		maxLen = l
	}
	return 1 - float64(distance)/float64(maxLen)
}

// TokenOverlap is the Jaccard overlap of normalized token sets. Used by the
// taxonomy builder to score name variants seen for the same account code.
func TokenOverlap(a, b string) float64 {
	tokensA := utils.SortedTokens(a)
	tokensB := utils.SortedTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	both := 0
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		if setB[t] {
			continue
		}
		setB[t] = true
		if setA[t] {
			both++
		}
	}
	union := len(setA) + len(setB) - both
	return float64(both) / float64(union)
}
