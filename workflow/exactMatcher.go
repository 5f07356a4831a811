package workflow

import (
	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
)

// exactMatcher: same canonical account code (post-synonym resolution) and
// amounts within one cent. Confidence is always 1.0.
type exactMatcher struct{}

var exactAmountTolerance = decimal.NewFromFloat(0.01)

func (m *exactMatcher) Name() models.MatchStrategy {
	return models.MatchStrategyExact
}

func (m *exactMatcher) TryMatch(source *models.LineItem, candidates []*models.LineItem, env *MatchEnv) []*MatchCandidate {
	srcCode := env.Snapshot.CanonicalCode(source)
	if srcCode == "" {
		return nil
	}
	var found []*MatchCandidate
	for _, cand := range candidates {
		if env.Snapshot.CanonicalCode(cand) != srcCode {
			continue
		}
		diff := source.Amount.Sub(cand.Amount).Abs()
		if diff.GreaterThan(exactAmountTolerance) {
			continue
		}
		found = append(found, &MatchCandidate{
			Source:           source,
			Target:           cand,
			Strategy:         models.MatchStrategyExact,
			Confidence:       1.0,
			AmountDifference: diff,
			Explanation:      "same canonical account code, amounts equal within $0.01",
		})
	}
	return found
}
