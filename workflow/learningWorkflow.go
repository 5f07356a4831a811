package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	learningHandlerName = "pattern_learning"
	learningLeaseKey    = "recon:learning:lease"
	learningLeaseTTL    = 5 * time.Minute
	learningBatchSize   = 500
)

// LearningDecision is one reviewer decision reduced to the fields learning
// cares about. Discrepancy decisions carry no target and are filtered out
// before this point.
type LearningDecision struct {
	SourceDocumentType models.DocumentType
	TargetDocumentType models.DocumentType
	SourceAccountName  string
	TargetAccountName  string
	SourceAccountCode  string
	TargetAccountCode  string
	Approved           bool
}

// LearningState is the in-memory working set of one learning pass: the
// pattern and synonym rows touched by the batch, keyed the same way the rule
// snapshot keys them. Apply is pure so the counter math is testable without
// storage.
type LearningState struct {
	Patterns map[patternKey]*models.LearnedMatchPattern
	Synonyms map[string]*models.AccountSynonym
}

func NewLearningState() *LearningState {
	return &LearningState{
		Patterns: make(map[patternKey]*models.LearnedMatchPattern),
		Synonyms: make(map[string]*models.AccountSynonym),
	}
}

func synonymStateKey(sourceName, canonicalCode string) string {
	return sourceName + "|" + canonicalCode
}

// Apply folds one decision into the state. An approval reinforces the
// (doc pair, name pair) pattern and the cross-document synonym bindings; a
// rejection counts against both. Recompute runs immediately so deactivation
// takes effect within the same pass.
func (s *LearningState) Apply(d LearningDecision) {
	key := patternKey{
		srcDoc:  d.SourceDocumentType,
		tgtDoc:  d.TargetDocumentType,
		srcName: utils.NormalizeName(d.SourceAccountName),
		tgtName: utils.NormalizeName(d.TargetAccountName),
	}
	pattern, ok := s.Patterns[key]
	if !ok {
		active := true
		pattern = &models.LearnedMatchPattern{
			SourceDocumentType: d.SourceDocumentType,
			TargetDocumentType: d.TargetDocumentType,
			SourceAccountName:  key.srcName,
			TargetAccountName:  key.tgtName,
			IsActive:           &active,
		}
		s.Patterns[key] = pattern
	}
	pattern.MatchCount++
	if d.Approved {
		pattern.ApprovalCount++
	} else {
		pattern.RejectionCount++
	}
	pattern.Recompute()

	s.applySynonym(key.srcName, d.TargetAccountCode, d.Approved)
	s.applySynonym(key.tgtName, d.SourceAccountCode, d.Approved)
}

func (s *LearningState) applySynonym(sourceName, canonicalCode string, approved bool) {
	if sourceName == "" || canonicalCode == "" {
		return
	}
	k := synonymStateKey(sourceName, canonicalCode)
	syn, ok := s.Synonyms[k]
	if !ok {
		syn = &models.AccountSynonym{
			SourceName:    sourceName,
			CanonicalCode: canonicalCode,
		}
		s.Synonyms[k] = syn
	}
	if approved {
		syn.ApprovalCount++
	} else {
		syn.RejectionCount++
	}
	syn.Recompute()
}

// RunPatternLearning consumes reviewer decisions made since the last
// watermark and folds them into learned patterns and synonyms. A Redis lease
// keeps concurrent schedulers from double-counting; per-decision idempotency
// keys keep a watermark reset from double-counting. Returns the number of
// decisions consumed.
func RunPatternLearning(ctx context.Context, logger *logrus.Logger) (int, error) {
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, learningLeaseKey, learningLeaseTTL, nil)
		if err == redislock.ErrNotObtained {
			logger.WithField("module", "learningWorkflow").Info("learning lease held elsewhere, skipping run")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer lock.Release(ctx)
	}

	db := config.GetDB()
	watermark, err := models.GetLearningWatermark(db, ctx, models.PatternLearningConsumerKey)
	if err != nil {
		return 0, err
	}

	// Rows sharing the watermark timestamp are re-read at the start of every
	// run; the idempotency keys skip the ones already consumed.
	cursor := learningCursor{decidedAt: watermark}
	consumed := 0
	for {
		decided, err := models.GetDecidedMatchesSince(ctx, cursor.decidedAt, cursor.afterId, learningBatchSize)
		if err != nil {
			return consumed, err
		}
		if len(decided) == 0 {
			return consumed, nil
		}

		n, err := consumeLearningBatch(ctx, logger, decided)
		consumed += n
		if err != nil {
			config.LogError(logger, "learningWorkflow", "RunPatternLearning", "consuming batch", cursor.decidedAt, err)
			return consumed, fmt.Errorf("pattern learning batch: %w", err)
		}
		cursor = cursor.advance(decided[len(decided)-1])
		if len(decided) < learningBatchSize {
			return consumed, nil
		}
	}
}

// learningCursor is the keyset position in the (decided_at, id) ordered
// decision stream. A timestamp-only watermark would drop the rest of a
// same-timestamp group whenever a batch boundary split it.
type learningCursor struct {
	decidedAt time.Time
	afterId   int
}

func (c learningCursor) advance(last *models.ForensicMatch) learningCursor {
	next := learningCursor{decidedAt: c.decidedAt, afterId: last.ID}
	if last.DecidedAt != nil {
		next.decidedAt = *last.DecidedAt
	}
	return next
}

// consumeLearningBatch processes one batch in a single transaction: the
// counter updates, the idempotency markers and the watermark advance commit
// together or not at all.
func consumeLearningBatch(ctx context.Context, logger *logrus.Logger, decided []*models.ForensicMatch) (int, error) {
	db := config.GetDB()
	applied := 0

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state := NewLearningState()
		var lastDecidedAt time.Time
		var succeededKeys []string

		for _, match := range decided {
			if match.DecidedAt != nil {
				lastDecidedAt = *match.DecidedAt
			}
			if match.IsDiscrepancy() {
				continue // no counterpart, nothing to learn from
			}

			messageId := fmt.Sprintf("match:%d", match.ID)
			skip, err := BeginIdempotency(tx, learningHandlerName, messageId)
			if err != nil {
				return err
			}
			if skip {
				continue
			}

			decision, err := decisionFromMatch(tx, ctx, match)
			if err != nil {
				_ = MarkIdempotencyFailed(tx, learningHandlerName, messageId, err)
				return err
			}

			if err := seedLearningState(tx, ctx, state, decision); err != nil {
				return err
			}
			state.Apply(*decision)
			succeededKeys = append(succeededKeys, messageId)
			applied++
		}

		if err := persistLearningState(tx, ctx, state); err != nil {
			return err
		}
		for _, messageId := range succeededKeys {
			if err := MarkIdempotencySucceeded(tx, learningHandlerName, messageId); err != nil {
				return err
			}
		}
		if !lastDecidedAt.IsZero() {
			return models.SetLearningWatermark(tx, ctx, models.PatternLearningConsumerKey, lastDecidedAt)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.WithFields(logrus.Fields{
		"module":  "learningWorkflow",
		"decided": len(decided),
		"applied": applied,
	}).Info("learning batch consumed")
	return applied, nil
}

// decisionFromMatch resolves the decided match back to its two line items.
func decisionFromMatch(tx *gorm.DB, ctx context.Context, match *models.ForensicMatch) (*LearningDecision, error) {
	source, err := getLineItem(tx, ctx, match.SourceLineItemId)
	if err != nil {
		return nil, err
	}
	target, err := getLineItem(tx, ctx, *match.TargetLineItemId)
	if err != nil {
		return nil, err
	}
	return &LearningDecision{
		SourceDocumentType: source.DocumentType,
		TargetDocumentType: target.DocumentType,
		SourceAccountName:  source.AccountName,
		TargetAccountName:  target.AccountName,
		SourceAccountCode:  source.AccountCode,
		TargetAccountCode:  target.AccountCode,
		Approved:           match.Status == models.MatchStatusApproved,
	}, nil
}

func getLineItem(tx *gorm.DB, ctx context.Context, id int) (*models.LineItem, error) {
	var item models.LineItem
	if err := tx.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// seedLearningState loads the stored rows a decision will touch into the
// state, so Apply increments on top of existing counters.
func seedLearningState(tx *gorm.DB, ctx context.Context, state *LearningState, d *LearningDecision) error {
	pKey := patternKey{
		srcDoc:  d.SourceDocumentType,
		tgtDoc:  d.TargetDocumentType,
		srcName: utils.NormalizeName(d.SourceAccountName),
		tgtName: utils.NormalizeName(d.TargetAccountName),
	}
	if _, ok := state.Patterns[pKey]; !ok {
		var pattern models.LearnedMatchPattern
		err := tx.WithContext(ctx).
			Where("source_document_type = ? AND target_document_type = ? AND source_account_name = ? AND target_account_name = ?",
				pKey.srcDoc, pKey.tgtDoc, pKey.srcName, pKey.tgtName).
			First(&pattern).Error
		if err == nil {
			state.Patterns[pKey] = &pattern
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
	}

	seedSyn := func(name, code string) error {
		if name == "" || code == "" {
			return nil
		}
		k := synonymStateKey(name, code)
		if _, ok := state.Synonyms[k]; ok {
			return nil
		}
		var syn models.AccountSynonym
		err := tx.WithContext(ctx).
			Where("source_name = ? AND canonical_code = ?", name, code).
			First(&syn).Error
		if err == nil {
			state.Synonyms[k] = &syn
		} else if err != gorm.ErrRecordNotFound {
			return err
		}
		return nil
	}
	if err := seedSyn(pKey.srcName, d.TargetAccountCode); err != nil {
		return err
	}
	return seedSyn(pKey.tgtName, d.SourceAccountCode)
}

func persistLearningState(tx *gorm.DB, ctx context.Context, state *LearningState) error {
	for _, pattern := range state.Patterns {
		if err := tx.WithContext(ctx).Save(pattern).Error; err != nil {
			return err
		}
	}
	for _, syn := range state.Synonyms {
		if err := tx.WithContext(ctx).Save(syn).Error; err != nil {
			return err
		}
	}
	return nil
}
