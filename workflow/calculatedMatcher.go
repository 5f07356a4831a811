package workflow

import (
	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
)

// calculatedMatcher: source and target are operands of an active calculated
// rule whose formula holds within materiality tolerance. Confidence is
// 1 - difference/tolerance, floored at 0. A rule that cannot be evaluated
// (missing operand) is skipped with a warning; matching continues for all
// other rules and pairs.
type calculatedMatcher struct{}

func (m *calculatedMatcher) Name() models.MatchStrategy {
	return models.MatchStrategyCalculated
}

func (m *calculatedMatcher) TryMatch(source *models.LineItem, candidates []*models.LineItem, env *MatchEnv) []*MatchCandidate {
	var found []*MatchCandidate
	for _, rule := range env.Snapshot.CalculatedRules {
		formula, err := rule.ParseFormula()
		if err != nil {
			env.Warn("calculatedMatcher.TryMatch", err.Error(), rule.Name)
			continue
		}
		for _, cand := range candidates {
			if !pairCoversFormula(source, cand, formula, env) {
				continue
			}
			difference, expected, actual, err := rule.Evaluate(env.amountLookup())
			if err != nil {
				env.Warn("calculatedMatcher.TryMatch", err.Error(), map[string]interface{}{
					"rule":                rule.Name,
					"source_line_item_id": source.ID,
				})
				break // a missing operand fails the rule for every pair
			}
			tolerance := env.Tolerance(source, cand.DocumentType)
			if tolerance.IsZero() {
				continue
			}
			confidence, _ := decimal.NewFromInt(1).
				Sub(difference.Div(tolerance)).Float64()
			if confidence < 0 {
				confidence = 0
			}
			found = append(found, &MatchCandidate{
				Source:           source,
				Target:           cand,
				Strategy:         models.MatchStrategyCalculated,
				Confidence:       confidence,
				AmountDifference: difference,
				RuleName:         rule.Name,
				Explanation:      rule.ExplainFailure(expected, actual, difference),
			})
		}
	}
	return found
}

// pairCoversFormula reports whether source and candidate sit on opposite
// sides of the rule: one is the target operand, the other a term.
func pairCoversFormula(source, cand *models.LineItem, formula *models.RuleFormula, env *MatchEnv) bool {
	return (itemMatchesOperand(source, formula.Target, env) && itemMatchesAnyTerm(cand, formula.Terms, env)) ||
		(itemMatchesOperand(cand, formula.Target, env) && itemMatchesAnyTerm(source, formula.Terms, env))
}

func itemMatchesOperand(item *models.LineItem, operand models.FormulaOperand, env *MatchEnv) bool {
	if item.DocumentType != operand.DocumentType {
		return false
	}
	return item.AccountCode == operand.AccountCode || env.Snapshot.CanonicalCode(item) == operand.AccountCode
}

func itemMatchesAnyTerm(item *models.LineItem, terms []models.FormulaOperand, env *MatchEnv) bool {
	for _, term := range terms {
		if itemMatchesOperand(item, term, env) {
			return true
		}
	}
	return false
}

// amountLookup resolves formula operands against the session arena by
// (document type, account code), summing matching lines.
func (e *MatchEnv) amountLookup() models.AmountLookup {
	return func(docType models.DocumentType, accountCode string) (decimal.Decimal, bool) {
		sum := decimal.Zero
		foundAny := false
		for _, item := range e.Arena.Items {
			if item.DocumentType != docType {
				continue
			}
			if item.AccountCode == accountCode || e.Snapshot.CanonicalCode(item) == accountCode {
				sum = sum.Add(item.Amount)
				foundAny = true
			}
		}
		return sum, foundAny
	}
}
