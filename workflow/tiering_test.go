package workflow

import (
	"testing"

	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
)

func TestClassifyTier(t *testing.T) {
	cases := []struct {
		name       string
		confidence float64
		material   bool
		risk       models.RiskClass
		want       int
	}{
		{"high confidence immaterial", 0.99, false, models.RiskClassMedium, models.TierAutoClose},
		{"exactly at auto-close floor", 0.98, false, models.RiskClassLow, models.TierAutoClose},
		{"high confidence but material", 0.99, true, models.RiskClassMedium, models.TierRoute},
		{"just under auto-close floor", 0.979, false, models.RiskClassMedium, models.TierRoute},
		{"mid confidence", 0.85, true, models.RiskClassHigh, models.TierRoute},
		{"exactly at route floor", 0.70, false, models.RiskClassMedium, models.TierRoute},
		{"below route floor", 0.69, false, models.RiskClassLow, models.TierEscalate},
		{"critical always escalates", 1.0, false, models.RiskClassCritical, models.TierEscalate},
		{"zero confidence", 0.0, true, models.RiskClassMedium, models.TierEscalate},
	}
	for _, tc := range cases {
		if got := ClassifyTier(tc.confidence, tc.material, tc.risk); got != tc.want {
			t.Errorf("%s: ClassifyTier(%v, %v, %s) = %d, want %d",
				tc.name, tc.confidence, tc.material, tc.risk, got, tc.want)
		}
	}
}

// Holding materiality and risk fixed, rising confidence must never worsen the
// tier.
func TestClassifyTierMonotonicInConfidence(t *testing.T) {
	for _, material := range []bool{false, true} {
		for _, risk := range []models.RiskClass{models.RiskClassLow, models.RiskClassMedium, models.RiskClassHigh, models.RiskClassCritical} {
			prev := models.TierEscalate
			for c := 0; c <= 100; c++ {
				confidence := float64(c) / 100
				tier := ClassifyTier(confidence, material, risk)
				if tier > prev {
					t.Fatalf("tier worsened from %d to %d at confidence %v (material=%v risk=%s)",
						prev, tier, confidence, material, risk)
				}
				prev = tier
			}
		}
	}
}

func TestApplyTieringAutoCloseRule(t *testing.T) {
	rule := &models.AutoResolutionRule{
		Name:                "rounding-variance",
		Condition:           `[{"field":"amount_difference","operator":"lte","value":"0.50"}]`,
		Action:              models.AutoResolutionActionClose,
		ConfidenceThreshold: 0.90,
	}
	match := &models.ForensicMatch{
		ConfidenceScore:  0.95,
		AmountDifference: decimal.NewFromFloat(0.30),
		IsMaterial:       true, // material, so tier 0 is not reached on confidence alone
		RiskClass:        models.RiskClassMedium,
	}
	ApplyTiering(match, []*models.AutoResolutionRule{rule})
	if match.Status != models.MatchStatusAutoClosed {
		t.Errorf("expected auto_closed, got %s", match.Status)
	}
	if match.Tier != models.TierAutoClose {
		t.Errorf("expected tier 0 after rule close, got %d", match.Tier)
	}
	if match.AuditNote == "" {
		t.Error("rule-based close must leave an audit note")
	}
}

func TestApplyTieringSuggestRule(t *testing.T) {
	rule := &models.AutoResolutionRule{
		Name:                "timing-difference",
		Condition:           `[{"field":"strategy","operator":"eq","value":"exact"}]`,
		Action:              models.AutoResolutionActionSuggest,
		ConfidenceThreshold: 0.90,
		SuggestedFix:        "check posting dates",
	}
	match := &models.ForensicMatch{
		Strategy:         models.MatchStrategyExact,
		ConfidenceScore:  0.92,
		AmountDifference: decimal.NewFromInt(5000),
		IsMaterial:       true,
		RiskClass:        models.RiskClassMedium,
	}
	ApplyTiering(match, []*models.AutoResolutionRule{rule})
	if match.Tier != models.TierAutoSuggest {
		t.Errorf("expected promotion to tier 1, got %d", match.Tier)
	}
	if match.Status != models.MatchStatusPending {
		t.Errorf("suggestions stay pending, got %s", match.Status)
	}
	if match.SuggestedFix != "check posting dates" || match.RuleName != rule.Name {
		t.Errorf("suggested fix not attached: fix=%q rule=%q", match.SuggestedFix, match.RuleName)
	}
}

func TestApplyTieringEscalatedIgnoresRules(t *testing.T) {
	rule := &models.AutoResolutionRule{
		Name:      "rounding-variance",
		Condition: `[{"field":"amount_difference","operator":"lte","value":"100000"}]`,
		Action:    models.AutoResolutionActionClose,
	}
	match := &models.ForensicMatch{
		ConfidenceScore:  0.60,
		AmountDifference: decimal.NewFromInt(10),
		RiskClass:        models.RiskClassMedium,
	}
	ApplyTiering(match, []*models.AutoResolutionRule{rule})
	if match.Tier != models.TierEscalate {
		t.Errorf("expected tier 3, got %d", match.Tier)
	}
	if match.Status != models.MatchStatusPending {
		t.Errorf("escalated items must not be auto-closed, got %s", match.Status)
	}
}

func TestApplyTieringRuleBelowConfidenceThreshold(t *testing.T) {
	rule := &models.AutoResolutionRule{
		Name:                "rounding-variance",
		Condition:           `[{"field":"amount_difference","operator":"lte","value":"0.50"}]`,
		Action:              models.AutoResolutionActionClose,
		ConfidenceThreshold: 0.90,
	}
	match := &models.ForensicMatch{
		ConfidenceScore:  0.80,
		AmountDifference: decimal.NewFromFloat(0.10),
		IsMaterial:       true,
		RiskClass:        models.RiskClassMedium,
	}
	ApplyTiering(match, []*models.AutoResolutionRule{rule})
	if match.Status != models.MatchStatusPending {
		t.Errorf("rule below its confidence threshold must not fire, got %s", match.Status)
	}
	if match.Tier != models.TierRoute {
		t.Errorf("expected tier 2, got %d", match.Tier)
	}
}
