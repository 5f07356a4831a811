package workflow

import (
	"sort"
	"sync"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MatchCandidate is one scored pairing proposed by a strategy.
type MatchCandidate struct {
	Source           *models.LineItem
	Target           *models.LineItem
	Strategy         models.MatchStrategy
	Confidence       float64
	AmountDifference decimal.Decimal
	RuleName         string
	Explanation      string
}

// DiscrepancyRecord is a line item no strategy could match above the minimum
// confidence. BestCandidate/BestScore keep the closest miss so diagnostics
// can explain the failure.
type DiscrepancyRecord struct {
	Item          *models.LineItem
	BestCandidate *models.LineItem
	BestScore     float64
	BestStrategy  models.MatchStrategy
	Reason        string
}

type MatchResult struct {
	Matches       []*MatchCandidate
	Discrepancies []*DiscrepancyRecord
	Warnings      []string
	// Totals are the per-document totals the tolerance bands were computed
	// from; persisted materiality must judge against the same base.
	Totals map[models.DocumentType]decimal.Decimal
}

// MatchEnv is the read-only evaluation context shared by all strategies
// within one session. Warn is safe for concurrent use.
type MatchEnv struct {
	Snapshot *RuleSnapshot
	Arena    *models.LineItemArena
	Totals   map[models.DocumentType]decimal.Decimal
	Logger   *logrus.Logger

	warnMu   sync.Mutex
	warnings []string
}

func (e *MatchEnv) Warn(funcName string, context string, data any) {
	e.warnMu.Lock()
	e.warnings = append(e.warnings, context)
	e.warnMu.Unlock()
	if e.Logger != nil {
		config.LogWarn(e.Logger, "matcher", funcName, context, data)
	}
}

// BaseMetric returns the larger of the two documents' totals, the base for
// relative materiality thresholds.
func (e *MatchEnv) BaseMetric(a, b models.DocumentType) decimal.Decimal {
	totalA := e.Totals[a]
	totalB := e.Totals[b]
	if totalA.GreaterThan(totalB) {
		return totalA
	}
	return totalB
}

// Tolerance resolves the materiality band for a source item against a target
// document.
func (e *MatchEnv) Tolerance(source *models.LineItem, targetDoc models.DocumentType) decimal.Decimal {
	cfg := e.Snapshot.Materiality.Resolve(source.DocumentType, e.Snapshot.CanonicalCode(source))
	return cfg.Tolerance(e.BaseMetric(source.DocumentType, targetDoc))
}

// MatcherStrategy proposes scored candidates for one source line item.
// Implementations must be read-only against the env: candidate evaluation
// runs in parallel across source items.
type MatcherStrategy interface {
	Name() models.MatchStrategy
	// TryMatch returns candidates at or above the strategy's own floor,
	// best first. An empty result passes the source to the next strategy.
	TryMatch(source *models.LineItem, candidates []*models.LineItem, env *MatchEnv) []*MatchCandidate
}

// Strategies in fixed priority order: the first strategy that yields an
// acceptable candidate wins for a given source item.
func defaultStrategies() []MatcherStrategy {
	return []MatcherStrategy{
		&exactMatcher{},
		&calculatedMatcher{},
		&fuzzyMatcher{},
		&inferredMatcher{},
	}
}

// sortCandidates orders by confidence desc, |amount difference| asc, then
// target line item id as the stable tiebreak. A tie on both confidence and
// difference is ambiguous: logged, resolved by id, never a hard failure.
func sortCandidates(source *models.LineItem, cands []*MatchCandidate, env *MatchEnv) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		cmp := cands[i].AmountDifference.Abs().Cmp(cands[j].AmountDifference.Abs())
		if cmp != 0 {
			return cmp < 0
		}
		return cands[i].Target.ID < cands[j].Target.ID
	})
	if len(cands) >= 2 &&
		cands[0].Confidence == cands[1].Confidence &&
		cands[0].AmountDifference.Abs().Equal(cands[1].AmountDifference.Abs()) {
		env.Warn("sortCandidates", "ambiguous match tie resolved by line item id", map[string]interface{}{
			"source_line_item_id": source.ID,
			"target_a":            cands[0].Target.ID,
			"target_b":            cands[1].Target.ID,
		})
	}
}

// sourceProposal holds one source item's ranked candidates per strategy, in
// strategy priority order.
type sourceProposal struct {
	source     *models.LineItem
	byStrategy [][]*MatchCandidate
	best       *MatchCandidate // best-scoring candidate overall, even below threshold
}

// RunMatching executes the matching engine over one period's line items.
// Phase 1 scores every source item in parallel (read-only against the
// snapshot); phase 2 commits greedily in deterministic source order so the
// output never depends on goroutine scheduling or map iteration order.
func RunMatching(items []*models.LineItem, snap *RuleSnapshot, logger *logrus.Logger) (*MatchResult, error) {
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
	strategies := defaultStrategies()

	// Deterministic source order: document type, line number, id.
	sources := make([]*models.LineItem, 0, len(items))
	docTypes := make([]models.DocumentType, 0, len(byDoc))
	for docType := range byDoc {
		docTypes = append(docTypes, docType)
	}
	sort.Slice(docTypes, func(i, j int) bool { return docTypes[i] < docTypes[j] })
	for _, docType := range docTypes {
		sources = append(sources, byDoc[docType]...)
	}

	// Phase 1: parallel scoring per source item.
	proposals := make([]*sourceProposal, len(sources))
	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source *models.LineItem) {
			defer wg.Done()
			proposals[i] = scoreSource(source, byDoc, strategies, env)
		}(i, source)
	}
	wg.Wait()

	// Phase 2: sequential greedy commit.
	result := &MatchResult{Totals: totals}
	consumed := make(map[int]bool, len(sources))
	for _, prop := range proposals {
		if consumed[prop.source.ID] {
			continue
		}
		committed := false
		for _, ranked := range prop.byStrategy {
			for _, cand := range ranked {
				if consumed[cand.Target.ID] {
					continue
				}
				consumed[prop.source.ID] = true
				consumed[cand.Target.ID] = true
				result.Matches = append(result.Matches, cand)
				committed = true
				break
			}
			if committed {
				break
			}
		}
		if !committed {
			record := &DiscrepancyRecord{Item: prop.source, Reason: "no candidate above threshold"}
			if prop.best != nil {
				record.BestCandidate = prop.best.Target
				record.BestScore = prop.best.Confidence
				record.BestStrategy = prop.best.Strategy
			}
			result.Discrepancies = append(result.Discrepancies, record)
		}
	}

	env.warnMu.Lock()
	result.Warnings = append(result.Warnings, env.warnings...)
	env.warnMu.Unlock()
	return result, nil
}

func scoreSource(source *models.LineItem, byDoc map[models.DocumentType][]*models.LineItem, strategies []MatcherStrategy, env *MatchEnv) *sourceProposal {
	// Candidates come from every other document of the period, in
	// deterministic order.
	var candidates []*models.LineItem
	docTypes := make([]models.DocumentType, 0, len(byDoc))
	for docType := range byDoc {
		docTypes = append(docTypes, docType)
	}
	sort.Slice(docTypes, func(i, j int) bool { return docTypes[i] < docTypes[j] })
	for _, docType := range docTypes {
		if docType == source.DocumentType {
			continue
		}
		candidates = append(candidates, byDoc[docType]...)
	}

	prop := &sourceProposal{source: source}
	for _, strategy := range strategies {
		found := strategy.TryMatch(source, candidates, env)
		for _, cand := range found {
			if prop.best == nil || cand.Confidence > prop.best.Confidence {
				prop.best = cand
			}
		}
		accepted := make([]*MatchCandidate, 0, len(found))
		for _, cand := range found {
			if cand.Confidence >= MinMatchConfidence {
				accepted = append(accepted, cand)
			}
		}
		if len(accepted) > 0 {
			sortCandidates(source, accepted, env)
			prop.byStrategy = append(prop.byStrategy, accepted)
		}
	}
	return prop
}
