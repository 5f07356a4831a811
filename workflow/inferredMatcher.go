package workflow

import (
	"fmt"

	"github.com/propfolio/recon_backend/models"
)

// inferredMatcher: an active learned pattern exists for the (doc-type pair,
// account-name pair). Confidence is the pattern's success rate, discounted by
// 0.1 when the amount variance exceeds the materiality tolerance.
type inferredMatcher struct{}

const inferredVarianceDiscount = 0.1

func (m *inferredMatcher) Name() models.MatchStrategy {
	return models.MatchStrategyInferred
}

func (m *inferredMatcher) TryMatch(source *models.LineItem, candidates []*models.LineItem, env *MatchEnv) []*MatchCandidate {
	var found []*MatchCandidate
	for _, cand := range candidates {
		pattern := env.Snapshot.Pattern(source.DocumentType, cand.DocumentType, source.AccountName, cand.AccountName)
		if pattern == nil {
			continue
		}
		confidence := pattern.SuccessRate
		diff := source.Amount.Sub(cand.Amount).Abs()
		tolerance := env.Tolerance(source, cand.DocumentType)
		if diff.GreaterThan(tolerance) {
			confidence -= inferredVarianceDiscount
		}
		if confidence < 0 {
			confidence = 0
		}
		found = append(found, &MatchCandidate{
			Source:           source,
			Target:           cand,
			Strategy:         models.MatchStrategyInferred,
			Confidence:       confidence,
			AmountDifference: diff,
			Explanation: fmt.Sprintf("learned pattern %q -> %q (success rate %.2f over %d matches)",
				pattern.SourceAccountName, pattern.TargetAccountName, pattern.SuccessRate, pattern.MatchCount),
		})
	}
	return found
}
