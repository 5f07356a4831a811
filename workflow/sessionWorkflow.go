package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/propfolio/recon_backend/appctx"
	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StartSession runs one reconciliation unit-of-work for a property/period and
// returns the new session id. Concurrent requests for the same key are
// rejected with ErrorSessionAlreadyRunning; requests with no line items fail
// with ErrorNoDataAvailable. Different keys run fully in parallel.
//
// The session commit is all-or-nothing: a storage failure marks the session
// failed and leaves no partial match rows.
func StartSession(ctx context.Context, logger *logrus.Logger, propertyId, periodId string) (string, error) {
	db := config.GetDB()

	// GET_LOCK and RELEASE_LOCK are connection-scoped, so the whole run pins
	// one connection: acquire and release always address the same lock owner,
	// and a pooled connection serving two concurrent starts can never
	// re-enter the lock for the same key.
	var sessionId string
	err := db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireSessionLock(conn, propertyId, periodId); err != nil {
			return err
		}
		defer ReleaseSessionLock(conn, propertyId, periodId)

		id, err := runSession(ctx, logger, propertyId, periodId)
		sessionId = id
		return err
	})
	return sessionId, err
}

func runSession(ctx context.Context, logger *logrus.Logger, propertyId, periodId string) (string, error) {
	db := config.GetDB()

	items, err := models.GetLineItemsForPeriod(ctx, propertyId, periodId)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", utils.ErrorNoDataAvailable
	}

	session := &models.ReconciliationSession{
		ID:            uuid.NewString(),
		PropertyId:    propertyId,
		PeriodId:      periodId,
		Status:        models.SessionStatusRunning,
		CorrelationId: correlationIdFromContextOrNew(ctx),
		StartedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(session).Error; err != nil {
		return "", err
	}

	snap, err := LoadRuleSnapshot(ctx, propertyId)
	if err != nil {
		markSessionFailed(ctx, logger, session.ID, err)
		return session.ID, err
	}

	result, err := RunMatching(items, snap, logger)
	if err != nil {
		markSessionFailed(ctx, logger, session.ID, err)
		return session.ID, err
	}

	rows := buildMatchRows(session.ID, result, snap)

	// Single transactional write for all match rows plus session completion.
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		return tx.Model(&models.ReconciliationSession{}).
			Where("id = ?", session.ID).
			Updates(map[string]interface{}{
				"status":          models.SessionStatusCompleted,
				"matched_count":   len(result.Matches),
				"unmatched_count": len(result.Discrepancies),
				"completed_at":    now,
			}).Error
	})
	if err != nil {
		markSessionFailed(ctx, logger, session.ID, err)
		return session.ID, err
	}

	logger.WithFields(logrus.Fields{
		"module":      "sessionWorkflow",
		"session_id":  session.ID,
		"property_id": propertyId,
		"period_id":   periodId,
		"matched":     len(result.Matches),
		"unmatched":   len(result.Discrepancies),
		"warnings":    len(result.Warnings),
	}).Info("reconciliation session completed")
	return session.ID, nil
}

// buildMatchRows annotates matching output with materiality and tier and
// shapes it into persistable rows. Discrepancies share the row type with a
// nil target. The matched-row materiality base is the larger of the two
// document totals, the same base the matcher's tolerance used.
func buildMatchRows(sessionId string, result *MatchResult, snap *RuleSnapshot) []*models.ForensicMatch {
	rows := make([]*models.ForensicMatch, 0, len(result.Matches)+len(result.Discrepancies))

	for _, m := range result.Matches {
		cfg := snap.Materiality.Resolve(m.Source.DocumentType, snap.CanonicalCode(m.Source))
		row := &models.ForensicMatch{
			SessionId:        sessionId,
			SourceLineItemId: m.Source.ID,
			TargetLineItemId: &m.Target.ID,
			Strategy:         m.Strategy,
			ConfidenceScore:  m.Confidence,
			AmountDifference: m.AmountDifference,
			RiskClass:        cfg.RiskClass,
			RuleName:         m.RuleName,
			Explanation:      m.Explanation,
		}
		base := utils.DecimalMax(result.Totals[m.Source.DocumentType], result.Totals[m.Target.DocumentType])
		row.IsMaterial = cfg.IsMaterial(m.AmountDifference, base)
		ApplyTiering(row, snap.AutoRules)
		rows = append(rows, row)
	}

	for _, d := range result.Discrepancies {
		cfg := snap.Materiality.Resolve(d.Item.DocumentType, snap.CanonicalCode(d.Item))
		row := &models.ForensicMatch{
			SessionId:        sessionId,
			SourceLineItemId: d.Item.ID,
			Strategy:         d.BestStrategy,
			ConfidenceScore:  d.BestScore,
			AmountDifference: d.Item.Amount.Abs(),
			RiskClass:        cfg.RiskClass,
			Explanation:      d.Reason,
		}
		row.IsMaterial = cfg.IsMaterial(row.AmountDifference, d.Item.Amount)
		ApplyTiering(row, snap.AutoRules)
		rows = append(rows, row)
	}
	return rows
}

func markSessionFailed(ctx context.Context, logger *logrus.Logger, sessionId string, cause error) {
	db := config.GetDB()
	now := time.Now().UTC()
	err := db.WithContext(ctx).Model(&models.ReconciliationSession{}).
		Where("id = ?", sessionId).
		Updates(map[string]interface{}{
			"status":         models.SessionStatusFailed,
			"failure_reason": cause.Error(),
			"completed_at":   now,
		}).Error
	if err != nil {
		config.LogError(logger, "sessionWorkflow", "markSessionFailed", "updating session status", sessionId, err)
	}
	config.LogError(logger, "sessionWorkflow", "StartSession", "session failed", sessionId, cause)
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// GetMatches returns a session's matches and discrepancies with optional
// filters, highest tier first.
func GetMatches(ctx context.Context, sessionId string, filters models.MatchFilters) ([]*models.ForensicMatch, error) {
	if _, err := models.GetSessionById(ctx, sessionId); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return models.GetMatchesBySession(ctx, sessionId, filters)
}

// Decide records an approve/reject decision for one match; the decision
// feeds the pattern learning watermark.
func Decide(ctx context.Context, matchId int, decision models.DecisionType, note string) error {
	return models.DecideMatch(ctx, matchId, decision, note)
}

// GetLearnedRules lists learned match patterns for review surfaces.
func GetLearnedRules(ctx context.Context, filters models.LearnedPatternFilters) ([]*models.LearnedMatchPattern, error) {
	return models.GetLearnedMatchPatterns(ctx, filters)
}
