package workflow

import (
	"fmt"

	"github.com/propfolio/recon_backend/models"
)

// Tier thresholds from the triage policy: auto-close needs near-certain
// confidence on an immaterial, non-critical item; anything under 0.70 or on
// a critical account escalates.
const (
	tierAutoCloseConfidence = 0.98
	tierSuggestConfidence   = 0.90
	tierRouteConfidence     = 0.70
)

// ClassifyTier assigns the escalation tier for a match or discrepancy.
func ClassifyTier(confidence float64, isMaterial bool, risk models.RiskClass) int {
	if confidence < tierRouteConfidence || risk == models.RiskClassCritical {
		return models.TierEscalate
	}
	if confidence >= tierAutoCloseConfidence && !isMaterial {
		return models.TierAutoClose
	}
	return models.TierRoute
}

// ApplyTiering finalizes tier, status, suggested fix and audit note for one
// match row. Tier 0 closes immediately; a matching auto-resolution rule can
// close trivial material cases (rounding) or attach a suggested fix and
// promote the row to tier 1. Rule evaluation is a side-effect-free predicate
// check against the row's fields.
func ApplyTiering(match *models.ForensicMatch, rules []*models.AutoResolutionRule) {
	match.Tier = ClassifyTier(match.ConfidenceScore, match.IsMaterial, match.RiskClass)
	match.Status = models.MatchStatusPending

	if match.Tier == models.TierAutoClose {
		match.Status = models.MatchStatusAutoClosed
		match.AuditNote = "auto-closed: confidence at or above 0.98, not material, risk class below critical"
		return
	}
	if match.Tier == models.TierEscalate {
		return
	}

	// Tier-1 window: high confidence but material, eligible for rules.
	for _, rule := range rules {
		if !rule.Matches(match) {
			continue
		}
		switch rule.Action {
		case models.AutoResolutionActionClose:
			match.Status = models.MatchStatusAutoClosed
			match.AuditNote = fmt.Sprintf("auto-closed by rule %q", rule.Name)
			if match.Tier > models.TierAutoClose {
				match.Tier = models.TierAutoClose
			}
		case models.AutoResolutionActionSuggest:
			if match.ConfidenceScore >= tierSuggestConfidence && match.IsMaterial {
				match.Tier = models.TierAutoSuggest
			}
			match.SuggestedFix = rule.SuggestedFix
			match.RuleName = rule.Name
			match.AuditNote = fmt.Sprintf("suggested fix attached by rule %q", rule.Name)
		}
		return
	}
}
