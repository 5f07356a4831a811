package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/propfolio/recon_backend/config"
	"github.com/shopspring/decimal"
)

// AutoResolutionRule is a side-effect-free predicate evaluated during
// exception triage. Static seeds plus learned additions; on match the rule
// either closes the item outright or attaches a suggested fix.
type AutoResolutionRule struct {
	ID                  int                  `gorm:"primary_key" json:"id"`
	Name                string               `gorm:"uniqueIndex;size:128;not null" json:"name" validate:"required"`
	PatternType         string               `gorm:"size:64;not null" json:"pattern_type" validate:"required"`
	Condition           string               `gorm:"type:text;not null" json:"condition" validate:"required"`
	Action              AutoResolutionAction `gorm:"size:16;not null" json:"action" validate:"required,oneof=auto_close auto_suggest"`
	ConfidenceThreshold float64              `gorm:"not null;default:0.9" json:"confidence_threshold"`
	SuggestedFix        string               `gorm:"type:text" json:"suggested_fix"`
	IsActive            *bool                `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// RuleCondition is the structured predicate stored in Condition as JSON.
// Field is one of amount_difference, confidence, strategy, risk_class;
// Operator is one of lte, lt, gte, gt, eq.
type RuleCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

func (r *AutoResolutionRule) Conditions() ([]RuleCondition, error) {
	var conds []RuleCondition
	if err := json.Unmarshal([]byte(r.Condition), &conds); err != nil {
		return nil, fmt.Errorf("rule %s: bad condition payload: %w", r.Name, err)
	}
	return conds, nil
}

// Matches evaluates the predicate against a match row. Purely read-only;
// unknown fields or operators fail the condition rather than erroring so one
// malformed rule cannot abort triage.
func (r *AutoResolutionRule) Matches(m *ForensicMatch) bool {
	if m.ConfidenceScore < r.ConfidenceThreshold {
		return false
	}
	conds, err := r.Conditions()
	if err != nil {
		return false
	}
	for _, cond := range conds {
		if !evalCondition(cond, m) {
			return false
		}
	}
	return true
}

func evalCondition(cond RuleCondition, m *ForensicMatch) bool {
	switch cond.Field {
	case "amount_difference":
		limit, err := decimal.NewFromString(cond.Value)
		if err != nil {
			return false
		}
		return compareDecimal(m.AmountDifference.Abs(), cond.Operator, limit)
	case "confidence":
		limit, err := decimal.NewFromString(cond.Value)
		if err != nil {
			return false
		}
		return compareDecimal(decimal.NewFromFloat(m.ConfidenceScore), cond.Operator, limit)
	case "strategy":
		return cond.Operator == "eq" && string(m.Strategy) == cond.Value
	case "risk_class":
		return cond.Operator == "eq" && string(m.RiskClass) == cond.Value
	}
	return false
}

func compareDecimal(v decimal.Decimal, operator string, limit decimal.Decimal) bool {
	switch operator {
	case "lte":
		return v.LessThanOrEqual(limit)
	case "lt":
		return v.LessThan(limit)
	case "gte":
		return v.GreaterThanOrEqual(limit)
	case "gt":
		return v.GreaterThan(limit)
	case "eq":
		return v.Equal(limit)
	}
	return false
}

func GetActiveAutoResolutionRules(ctx context.Context) ([]*AutoResolutionRule, error) {
	db := config.GetDB()
	var rules []*AutoResolutionRule
	err := db.WithContext(ctx).Model(&AutoResolutionRule{}).
		Where("is_active = 1").Order("id").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
