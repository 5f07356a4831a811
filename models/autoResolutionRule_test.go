package models_test

import (
	"testing"

	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/shopspring/decimal"
)

func TestAutoResolutionRuleMatches(t *testing.T) {
	rule := &models.AutoResolutionRule{
		Name: "rounding-variance",
		Condition: `[{"field":"amount_difference","operator":"lte","value":"0.50"},` +
			`{"field":"risk_class","operator":"eq","value":"low"}]`,
		ConfidenceThreshold: 0.9,
	}

	match := &models.ForensicMatch{
		ConfidenceScore:  0.95,
		AmountDifference: decimal.NewFromFloat(0.25),
		RiskClass:        models.RiskClassLow,
	}
	if !rule.Matches(match) {
		t.Error("expected rule to match")
	}

	over := *match
	over.AmountDifference = decimal.NewFromFloat(0.51)
	if rule.Matches(&over) {
		t.Error("difference over the band must not match")
	}

	wrongRisk := *match
	wrongRisk.RiskClass = models.RiskClassHigh
	if rule.Matches(&wrongRisk) {
		t.Error("all conditions must hold")
	}

	lowConfidence := *match
	lowConfidence.ConfidenceScore = 0.8
	if rule.Matches(&lowConfidence) {
		t.Error("confidence threshold gates every rule")
	}
}

// Malformed rules fail closed: they never match, and never abort triage.
func TestAutoResolutionRuleMalformed(t *testing.T) {
	m := &models.ForensicMatch{ConfidenceScore: 1.0}
	for _, condition := range []string{
		`not json`,
		`[{"field":"no_such_field","operator":"eq","value":"x"}]`,
		`[{"field":"amount_difference","operator":"between","value":"1"}]`,
		`[{"field":"amount_difference","operator":"lte","value":"abc"}]`,
	} {
		rule := &models.AutoResolutionRule{Name: "bad", Condition: condition}
		if rule.Matches(m) {
			t.Errorf("malformed rule %q must not match", condition)
		}
	}
}

func TestAutoResolutionRuleValidation(t *testing.T) {
	rule := &models.AutoResolutionRule{
		Name:        "rounding-variance",
		PatternType: "amount_band",
		Condition:   `[{"field":"amount_difference","operator":"lte","value":"0.50"}]`,
		Action:      models.AutoResolutionActionClose,
	}
	if err := utils.ValidateStruct(rule); err != nil {
		t.Errorf("well-formed rule must validate: %v", err)
	}

	rule.Action = "delete_everything"
	if err := utils.ValidateStruct(rule); err == nil {
		t.Error("unknown action must fail validation")
	}
}
