package workflow

import (
	"context"

	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
)

// SynonymMinConfidence: a synonym below this confidence does not override the
// extracted account code during canonicalization.
const SynonymMinConfidence = 0.7

type patternKey struct {
	srcDoc  models.DocumentType
	tgtDoc  models.DocumentType
	srcName string
	tgtName string
}

// RuleSnapshot is the read-only learned/configured state one session matches
// against. Writes to the underlying tables happen only in the background
// learning pass; a session never observes them mid-flight.
type RuleSnapshot struct {
	Synonyms        map[string][]*models.AccountSynonym
	Patterns        []*models.LearnedMatchPattern
	CalculatedRules []*models.CalculatedRule
	AutoRules       []*models.AutoResolutionRule
	Materiality     *models.MaterialityIndex

	patternIdx map[patternKey]*models.LearnedMatchPattern
}

// NewRuleSnapshot assembles a snapshot from already-loaded state. Synonym
// lists are indexed by normalized source name; patterns by their normalized
// (doc pair, name pair) key.
func NewRuleSnapshot(
	synonyms []*models.AccountSynonym,
	patterns []*models.LearnedMatchPattern,
	calcRules []*models.CalculatedRule,
	autoRules []*models.AutoResolutionRule,
	materiality *models.MaterialityIndex,
) *RuleSnapshot {
	snap := &RuleSnapshot{
		Synonyms:        make(map[string][]*models.AccountSynonym),
		Patterns:        patterns,
		CalculatedRules: calcRules,
		AutoRules:       autoRules,
		Materiality:     materiality,
		patternIdx:      make(map[patternKey]*models.LearnedMatchPattern),
	}
	for _, syn := range synonyms {
		name := utils.NormalizeName(syn.SourceName)
		snap.Synonyms[name] = append(snap.Synonyms[name], syn)
	}
	for _, p := range patterns {
		if !utils.DereferencePtr(p.IsActive) {
			continue
		}
		key := patternKey{
			srcDoc:  p.SourceDocumentType,
			tgtDoc:  p.TargetDocumentType,
			srcName: utils.NormalizeName(p.SourceAccountName),
			tgtName: utils.NormalizeName(p.TargetAccountName),
		}
		snap.patternIdx[key] = p
	}
	return snap
}

// LoadRuleSnapshot reads the snapshot for one session in a single pass.
func LoadRuleSnapshot(ctx context.Context, propertyId string) (*RuleSnapshot, error) {
	synonyms, err := models.GetAllAccountSynonyms(ctx)
	if err != nil {
		return nil, err
	}
	patterns, err := models.GetLearnedMatchPatterns(ctx, models.LearnedPatternFilters{OnlyActive: true})
	if err != nil {
		return nil, err
	}
	calcRules, err := models.GetActiveCalculatedRules(ctx)
	if err != nil {
		return nil, err
	}
	autoRules, err := models.GetActiveAutoResolutionRules(ctx)
	if err != nil {
		return nil, err
	}
	configs, err := models.GetMaterialityConfigs(ctx, propertyId)
	if err != nil {
		return nil, err
	}
	return NewRuleSnapshot(synonyms, patterns, calcRules, autoRules, models.NewMaterialityIndex(configs)), nil
}

// CanonicalCode resolves a line item's account code post-synonym resolution:
// the best synonym for the normalized account name wins when its confidence
// clears the floor, otherwise the extracted code stands.
func (s *RuleSnapshot) CanonicalCode(item *models.LineItem) string {
	candidates := s.Synonyms[utils.NormalizeName(item.AccountName)]
	best := ""
	bestConfidence := 0.0
	for _, syn := range candidates {
		if syn.Confidence >= SynonymMinConfidence && syn.Confidence > bestConfidence {
			best = syn.CanonicalCode
			bestConfidence = syn.Confidence
		}
	}
	if best != "" {
		return best
	}
	return item.AccountCode
}

// Pattern looks up an active learned pattern for the pair, trying both
// orientations.
func (s *RuleSnapshot) Pattern(srcDoc, tgtDoc models.DocumentType, srcName, tgtName string) *models.LearnedMatchPattern {
	key := patternKey{srcDoc: srcDoc, tgtDoc: tgtDoc, srcName: utils.NormalizeName(srcName), tgtName: utils.NormalizeName(tgtName)}
	if p, ok := s.patternIdx[key]; ok {
		return p
	}
	reverse := patternKey{srcDoc: tgtDoc, tgtDoc: srcDoc, srcName: key.tgtName, tgtName: key.srcName}
	if p, ok := s.patternIdx[reverse]; ok {
		return p
	}
	return nil
}
