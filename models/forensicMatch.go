package models

import (
	"context"
	"errors"
	"time"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ForensicMatch pairs two line items from different documents of the same
// period. TargetLineItemId is nil for discrepancies (a line item with no
// acceptable match above the minimum matcher threshold). Rows are never
// deleted, only superseded by new sessions.
type ForensicMatch struct {
	ID               int             `gorm:"primary_key" json:"id"`
	SessionId        string          `gorm:"index;size:64;not null" json:"session_id"`
	SourceLineItemId int             `gorm:"index;not null" json:"source_line_item_id"`
	TargetLineItemId *int            `gorm:"index" json:"target_line_item_id"`
	Strategy         MatchStrategy   `gorm:"size:16;index" json:"strategy"`
	ConfidenceScore  float64         `gorm:"not null" json:"confidence_score"`
	AmountDifference decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_difference"`
	IsMaterial       bool            `gorm:"not null;default:false" json:"is_material"`
	Tier             int             `gorm:"index;not null" json:"tier"`
	Status           MatchStatus     `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	RiskClass        RiskClass       `gorm:"size:16;not null;default:'medium'" json:"risk_class"`
	RuleName         string          `gorm:"size:128" json:"rule_name"`
	SuggestedFix     string          `gorm:"type:text" json:"suggested_fix"`
	AuditNote        string          `gorm:"type:text" json:"audit_note"`
	Explanation      string          `gorm:"type:text" json:"explanation"`
	DecisionNote     string          `gorm:"type:text" json:"decision_note"`
	DecidedAt        *time.Time      `gorm:"index" json:"decided_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsDiscrepancy reports whether this row records an unmatched line item.
func (m *ForensicMatch) IsDiscrepancy() bool {
	return m.TargetLineItemId == nil
}

type MatchFilters struct {
	Status          MatchStatus
	Strategy        MatchStrategy
	Tier            *int
	OnlyMaterial    bool
	OnlyDiscrepancy bool
}

func GetMatchesBySession(ctx context.Context, sessionId string, filters MatchFilters) ([]*ForensicMatch, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&ForensicMatch{}).Where("session_id = ?", sessionId)
	if filters.Status != "" {
		dbCtx = dbCtx.Where("status = ?", filters.Status)
	}
	if filters.Strategy != "" {
		dbCtx = dbCtx.Where("strategy = ?", filters.Strategy)
	}
	if filters.Tier != nil {
		dbCtx = dbCtx.Where("tier = ?", *filters.Tier)
	}
	if filters.OnlyMaterial {
		dbCtx = dbCtx.Where("is_material = 1")
	}
	if filters.OnlyDiscrepancy {
		dbCtx = dbCtx.Where("target_line_item_id IS NULL")
	}
	var matches []*ForensicMatch
	if err := dbCtx.Order("tier DESC, confidence_score, id").Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

func GetMatchById(ctx context.Context, matchId int) (*ForensicMatch, error) {
	db := config.GetDB()
	var match ForensicMatch
	err := db.WithContext(ctx).Model(&ForensicMatch{}).Where("id = ?", matchId).First(&match).Error
	if err == gorm.ErrRecordNotFound {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// DecideMatch records a human approve/reject decision. The DecidedAt stamp is
// what the pattern learning watermark advances over.
func DecideMatch(ctx context.Context, matchId int, decision DecisionType, note string) error {
	match, err := GetMatchById(ctx, matchId)
	if err != nil {
		return err
	}
	if match.Status == MatchStatusApproved || match.Status == MatchStatusRejected {
		return errors.New("match already decided")
	}

	status := MatchStatusApproved
	if decision == DecisionReject {
		status = MatchStatusRejected
	} else if decision != DecisionApprove {
		return errors.New("invalid decision")
	}

	now := time.Now().UTC()
	db := config.GetDB()
	return db.WithContext(ctx).Model(&ForensicMatch{}).
		Where("id = ?", matchId).
		Updates(map[string]interface{}{
			"status":        status,
			"decision_note": note,
			"decided_at":    now,
		}).Error
}

// GetDecidedMatchesSince returns approved/rejected matches past the keyset
// cursor (decided_at, id), in cursor order so repeated learning runs see the
// same stream. Cursoring on both columns lets a batch boundary fall inside a
// group of decisions sharing one timestamp without skipping the stragglers.
func GetDecidedMatchesSince(ctx context.Context, decidedAfter time.Time, afterId int, limit int) ([]*ForensicMatch, error) {
	db := config.GetDB()
	var matches []*ForensicMatch
	err := db.WithContext(ctx).Model(&ForensicMatch{}).
		Where("status IN ? AND (decided_at > ? OR (decided_at = ? AND id > ?))",
			[]MatchStatus{MatchStatusApproved, MatchStatusRejected}, decidedAfter, decidedAfter, afterId).
		Order("decided_at, id").Limit(limit).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}
