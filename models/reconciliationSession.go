package models

import (
	"context"
	"time"

	"github.com/propfolio/recon_backend/config"
	"gorm.io/gorm"
)

// ReconciliationSession is one reconciliation run scoped to a single property
// and period. A session is immutable once completed; re-running the same
// property/period creates a new session and prior sessions remain as audit
// history.
type ReconciliationSession struct {
	ID             string        `gorm:"primary_key;size:64" json:"id"`
	PropertyId     string        `gorm:"index:idx_sessions_scope;size:64;not null" json:"property_id"`
	PeriodId       string        `gorm:"index:idx_sessions_scope;size:32;not null" json:"period_id"`
	Status         SessionStatus `gorm:"size:16;index;not null" json:"status"`
	MatchedCount   int           `gorm:"not null;default:0" json:"matched_count"`
	UnmatchedCount int           `gorm:"not null;default:0" json:"unmatched_count"`
	CorrelationId  string        `gorm:"size:64;index" json:"correlation_id"`
	FailureReason  string        `gorm:"type:text" json:"failure_reason"`
	StartedAt      time.Time     `gorm:"not null" json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at"`
}

func GetSessionById(ctx context.Context, sessionId string) (*ReconciliationSession, error) {
	db := config.GetDB()
	var session ReconciliationSession
	err := db.WithContext(ctx).Model(&ReconciliationSession{}).
		Where("id = ?", sessionId).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetLatestCompletedSession returns the most recent completed session for a
// property/period, or nil when none exists.
func GetLatestCompletedSession(ctx context.Context, propertyId, periodId string) (*ReconciliationSession, error) {
	db := config.GetDB()
	var session ReconciliationSession
	err := db.WithContext(ctx).Model(&ReconciliationSession{}).
		Where("property_id = ? AND period_id = ? AND status = ?", propertyId, periodId, SessionStatusCompleted).
		Order("started_at DESC").First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListCompletedPeriods returns the period ids that have at least one completed
// session for a property, ascending. Period ids sort chronologically (YYYY-MM).
func ListCompletedPeriods(ctx context.Context, propertyId string) ([]string, error) {
	db := config.GetDB()
	var periods []string
	err := db.WithContext(ctx).Model(&ReconciliationSession{}).
		Where("property_id = ? AND status = ?", propertyId, SessionStatusCompleted).
		Distinct("period_id").Order("period_id").Pluck("period_id", &periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}
