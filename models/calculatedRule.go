package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/utils"
	"github.com/shopspring/decimal"
)

// CalculatedRule is a versioned cross-document formula, e.g. the balance
// sheet mortgage payable should equal the mortgage statement principal
// balance. Rules are append-only by version: a new version supersedes the
// old, rows are never mutated in place. Relationship discovery inserts draft
// candidates with is_active=false for human review.
type CalculatedRule struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	Name                string    `gorm:"uniqueIndex:idx_calc_rule_version;size:128;not null" json:"name" validate:"required"`
	Version             int       `gorm:"uniqueIndex:idx_calc_rule_version;not null" json:"version" validate:"required,min=1"`
	Formula             string    `gorm:"type:text;not null" json:"formula" validate:"required"`
	ExplanationTemplate string    `gorm:"type:text" json:"explanation_template"`
	IsActive            *bool     `gorm:"not null;default:false" json:"is_active"`
	ProposedBy          string    `gorm:"size:64" json:"proposed_by"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FormulaOperand references one line by document type and account code.
type FormulaOperand struct {
	DocumentType DocumentType `json:"document_type"`
	AccountCode  string       `json:"account_code"`
	Sign         int          `json:"sign,omitempty"` // +1 or -1, defaults to +1
}

// RuleFormula is the parsed Formula payload: target = sum(signed terms).
type RuleFormula struct {
	Target FormulaOperand   `json:"target"`
	Terms  []FormulaOperand `json:"terms"`
}

func (r *CalculatedRule) ParseFormula() (*RuleFormula, error) {
	var f RuleFormula
	if err := json.Unmarshal([]byte(r.Formula), &f); err != nil {
		return nil, &utils.RuleEvaluationError{RuleName: r.Name, Version: r.Version, Reason: "bad formula payload"}
	}
	if len(f.Terms) == 0 {
		return nil, &utils.RuleEvaluationError{RuleName: r.Name, Version: r.Version, Reason: "formula has no terms"}
	}
	return &f, nil
}

// AmountLookup resolves an operand to an amount within one period's snapshot.
type AmountLookup func(docType DocumentType, accountCode string) (decimal.Decimal, bool)

// Evaluate computes |target - sum(terms)| for one period. A missing operand
// yields RuleEvaluationError; the caller skips the rule and keeps matching.
func (r *CalculatedRule) Evaluate(lookup AmountLookup) (difference decimal.Decimal, expected decimal.Decimal, actual decimal.Decimal, err error) {
	f, err := r.ParseFormula()
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}

	actual, ok := lookup(f.Target.DocumentType, f.Target.AccountCode)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, &utils.RuleEvaluationError{
			RuleName: r.Name, Version: r.Version,
			Reason: fmt.Sprintf("missing target operand %s.%s", f.Target.DocumentType, f.Target.AccountCode),
		}
	}

	expected = decimal.Zero
	for _, term := range f.Terms {
		amount, ok := lookup(term.DocumentType, term.AccountCode)
		if !ok {
			return decimal.Zero, decimal.Zero, decimal.Zero, &utils.RuleEvaluationError{
				RuleName: r.Name, Version: r.Version,
				Reason: fmt.Sprintf("missing operand %s.%s", term.DocumentType, term.AccountCode),
			}
		}
		if term.Sign < 0 {
			expected = expected.Sub(amount)
		} else {
			expected = expected.Add(amount)
		}
	}
	return actual.Sub(expected).Abs(), expected, actual, nil
}

// ExplainFailure renders the human-readable failure template. Placeholders:
// {rule}, {expected}, {actual}, {difference}.
func (r *CalculatedRule) ExplainFailure(expected, actual, difference decimal.Decimal) string {
	template := r.ExplanationTemplate
	if template == "" {
		template = "{rule}: expected {expected}, found {actual} (difference {difference})"
	}
	replacer := strings.NewReplacer(
		"{rule}", r.Name,
		"{expected}", expected.StringFixed(2),
		"{actual}", actual.StringFixed(2),
		"{difference}", difference.StringFixed(2),
	)
	return replacer.Replace(template)
}

// GetActiveCalculatedRules returns the latest active version per rule name.
func GetActiveCalculatedRules(ctx context.Context) ([]*CalculatedRule, error) {
	db := config.GetDB()
	var rules []*CalculatedRule
	err := db.WithContext(ctx).Model(&CalculatedRule{}).
		Where("is_active = 1").Order("name, version").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]*CalculatedRule)
	var names []string
	for _, rule := range rules {
		if _, seen := latest[rule.Name]; !seen {
			names = append(names, rule.Name)
		}
		latest[rule.Name] = rule
	}
	result := make([]*CalculatedRule, 0, len(names))
	for _, name := range names {
		result = append(result, latest[name])
	}
	return result, nil
}

// NextRuleVersion returns version+1 of the newest row for a rule name, or 1.
func NextRuleVersion(ctx context.Context, name string) (int, error) {
	db := config.GetDB()
	var maxVersion int
	err := db.WithContext(ctx).Model(&CalculatedRule{}).
		Where("name = ?", name).
		Select("COALESCE(MAX(version), 0)").Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}
	return maxVersion + 1, nil
}

// RuleExists reports whether any version of a rule name exists.
func RuleExists(ctx context.Context, name string) (bool, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&CalculatedRule{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
