package workflow

import (
	"fmt"

	"github.com/propfolio/recon_backend/models"
)

// fuzzyMatcher: token-sort name similarity at or above the threshold combined
// with an amount inside the materiality tolerance. Confidence is
// similarity x amount closeness, where closeness decays from 1.0 (equal
// amounts) to 0.5 (difference right at the tolerance).
type fuzzyMatcher struct{}

func (m *fuzzyMatcher) Name() models.MatchStrategy {
	return models.MatchStrategyFuzzy
}

func (m *fuzzyMatcher) TryMatch(source *models.LineItem, candidates []*models.LineItem, env *MatchEnv) []*MatchCandidate {
	var found []*MatchCandidate
	for _, cand := range candidates {
		similarity := TokenSortRatio(source.AccountName, cand.AccountName)
		if similarity < FuzzySimilarityThreshold {
			continue
		}
		tolerance := env.Tolerance(source, cand.DocumentType)
		if tolerance.IsZero() {
			continue
		}
		diff := source.Amount.Sub(cand.Amount).Abs()
		if diff.GreaterThan(tolerance) {
			continue
		}
		ratio, _ := diff.Div(tolerance).Float64()
		closeness := 1 - 0.5*ratio
		found = append(found, &MatchCandidate{
			Source:           source,
			Target:           cand,
			Strategy:         models.MatchStrategyFuzzy,
			Confidence:       similarity * closeness,
			AmountDifference: diff,
			Explanation: fmt.Sprintf("name similarity %.2f between %q and %q, amounts within tolerance %s",
				similarity, source.AccountName, cand.AccountName, tolerance.StringFixed(2)),
		})
	}
	return found
}
