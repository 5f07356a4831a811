package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Diagnosis explains why a line item did not reconcile: which counterpart
// documents were even present, the closest miss per strategy, and what a
// reviewer could teach the system to fix it.
type Diagnosis struct {
	LineItemId      int                   `json:"line_item_id"`
	AccountName     string                `json:"account_name"`
	AccountCode     string                `json:"account_code"`
	CanonicalCode   string                `json:"canonical_code"`
	DocumentType    models.DocumentType   `json:"document_type"`
	Amount          decimal.Decimal       `json:"amount"`
	MissingDocs     []models.DocumentType `json:"missing_documents,omitempty"`
	NearMisses      []NearMiss            `json:"near_misses,omitempty"`
	SynonymHints    []SynonymHint         `json:"synonym_hints,omitempty"`
	PatternHints    []PatternHint         `json:"pattern_hints,omitempty"`
	Summary         string                `json:"summary"`
}

// NearMiss is the best candidate one strategy produced, even below the
// acceptance floor.
type NearMiss struct {
	Strategy         models.MatchStrategy `json:"strategy"`
	TargetLineItemId int                  `json:"target_line_item_id"`
	TargetName       string               `json:"target_name"`
	Confidence       float64              `json:"confidence"`
	AmountDifference decimal.Decimal      `json:"amount_difference"`
	Explanation      string               `json:"explanation"`
}

type SynonymHint struct {
	CanonicalCode string  `json:"canonical_code"`
	Confidence    float64 `json:"confidence"`
}

type PatternHint struct {
	TargetDocumentType models.DocumentType `json:"target_document_type"`
	TargetAccountName  string              `json:"target_account_name"`
	SuccessRate        float64             `json:"success_rate"`
}

// DiagnoseLineItem rebuilds the matching context for the item's period and
// reports everything the engine saw. Read-only; never mutates session state.
func DiagnoseLineItem(ctx context.Context, logger *logrus.Logger, lineItemId int) (*Diagnosis, error) {
	item, err := models.GetLineItemById(ctx, lineItemId)
	if err != nil {
		return nil, err
	}

	items, err := models.GetLineItemsForPeriod(ctx, item.PropertyId, item.PeriodId)
	if err != nil {
		return nil, err
	}
	snap, err := LoadRuleSnapshot(ctx, item.PropertyId)
	if err != nil {
		return nil, err
	}

	arena, err := models.BuildLineItemArena(items)
	if err != nil {
		return nil, err
	}
	byDoc := arena.ByDocumentType()
	totals := make(map[models.DocumentType]decimal.Decimal, len(byDoc))
	for docType := range byDoc {
		totals[docType] = arena.DocumentTotal(docType)
	}
	env := &MatchEnv{Snapshot: snap, Arena: arena, Totals: totals, Logger: logger}

	diag := &Diagnosis{
		LineItemId:    item.ID,
		AccountName:   item.AccountName,
		AccountCode:   item.AccountCode,
		CanonicalCode: snap.CanonicalCode(item),
		DocumentType:  item.DocumentType,
		Amount:        item.Amount,
	}

	// Which counterpart documents are absent entirely for this period.
	for _, docType := range models.AllDocumentTypes {
		if docType == item.DocumentType {
			continue
		}
		if len(byDoc[docType]) == 0 {
			diag.MissingDocs = append(diag.MissingDocs, docType)
		}
	}

	var candidates []*models.LineItem
	docTypes := make([]models.DocumentType, 0, len(byDoc))
	for docType := range byDoc {
		docTypes = append(docTypes, docType)
	}
	sort.Slice(docTypes, func(i, j int) bool { return docTypes[i] < docTypes[j] })
	for _, docType := range docTypes {
		if docType == item.DocumentType {
			continue
		}
		candidates = append(candidates, byDoc[docType]...)
	}

	for _, strategy := range defaultStrategies() {
		found := strategy.TryMatch(item, candidates, env)
		if len(found) == 0 {
			continue
		}
		sortCandidates(item, found, env)
		best := found[0]
		diag.NearMisses = append(diag.NearMisses, NearMiss{
			Strategy:         best.Strategy,
			TargetLineItemId: best.Target.ID,
			TargetName:       best.Target.AccountName,
			Confidence:       best.Confidence,
			AmountDifference: best.AmountDifference,
			Explanation:      best.Explanation,
		})
	}

	// Synonym hints come fresh from storage rather than the session snapshot:
	// a reviewer diagnosing an item should see bindings learned after the
	// session ran. Learned and seeded rows both store normalized names.
	normalized := utils.NormalizeName(item.AccountName)
	synonyms, err := models.GetSynonymsForName(ctx, normalized)
	if err != nil {
		return nil, err
	}
	for _, syn := range synonyms {
		diag.SynonymHints = append(diag.SynonymHints, SynonymHint{
			CanonicalCode: syn.CanonicalCode,
			Confidence:    syn.Confidence,
		})
	}

	for _, p := range snap.Patterns {
		if !utils.DereferencePtr(p.IsActive) {
			continue
		}
		var hint *PatternHint
		if p.SourceDocumentType == item.DocumentType && utils.NormalizeName(p.SourceAccountName) == normalized {
			hint = &PatternHint{TargetDocumentType: p.TargetDocumentType, TargetAccountName: p.TargetAccountName, SuccessRate: p.SuccessRate}
		} else if p.TargetDocumentType == item.DocumentType && utils.NormalizeName(p.TargetAccountName) == normalized {
			hint = &PatternHint{TargetDocumentType: p.SourceDocumentType, TargetAccountName: p.SourceAccountName, SuccessRate: p.SuccessRate}
		}
		if hint != nil {
			diag.PatternHints = append(diag.PatternHints, *hint)
		}
	}
	sort.Slice(diag.PatternHints, func(i, j int) bool {
		if diag.PatternHints[i].SuccessRate != diag.PatternHints[j].SuccessRate {
			return diag.PatternHints[i].SuccessRate > diag.PatternHints[j].SuccessRate
		}
		return diag.PatternHints[i].TargetAccountName < diag.PatternHints[j].TargetAccountName
	})

	diag.Summary = summarize(diag)
	return diag, nil
}

func summarize(d *Diagnosis) string {
	switch {
	case len(d.MissingDocs) > 0 && len(d.NearMisses) == 0:
		return fmt.Sprintf("no candidates: %d counterpart document(s) missing for this period", len(d.MissingDocs))
	case len(d.NearMisses) > 0:
		best := d.NearMisses[0]
		for _, nm := range d.NearMisses[1:] {
			if nm.Confidence > best.Confidence {
				best = nm
			}
		}
		if best.Confidence >= MinMatchConfidence {
			return fmt.Sprintf("best candidate %q (%.2f via %s) was consumed by another match", best.TargetName, best.Confidence, best.Strategy)
		}
		return fmt.Sprintf("best candidate %q scored %.2f via %s, below the %.2f floor", best.TargetName, best.Confidence, best.Strategy, MinMatchConfidence)
	default:
		return "no strategy produced a candidate for this item"
	}
}
