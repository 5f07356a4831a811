package models

import (
	"context"
	"time"

	"github.com/propfolio/recon_backend/config"
)

// LearnedMatchPattern drives the inferred matcher strategy: once reviewers
// have approved enough (doc-type pair, account-name pair) matches, future
// pairs match on the pattern alone. Patterns are deactivated, never deleted,
// when their success rate falls below the floor after enough samples.
type LearnedMatchPattern struct {
	ID                 int          `gorm:"primary_key" json:"id"`
	SourceDocumentType DocumentType `gorm:"uniqueIndex:idx_learned_pattern;size:32;not null" json:"source_document_type"`
	TargetDocumentType DocumentType `gorm:"uniqueIndex:idx_learned_pattern;size:32;not null" json:"target_document_type"`
	SourceAccountName  string       `gorm:"uniqueIndex:idx_learned_pattern;size:255;not null" json:"source_account_name"`
	TargetAccountName  string       `gorm:"uniqueIndex:idx_learned_pattern;size:255;not null" json:"target_account_name"`
	SuccessRate        float64      `gorm:"not null;default:0" json:"success_rate"`
	MatchCount         int          `gorm:"not null;default:0" json:"match_count"`
	ApprovalCount      int          `gorm:"not null;default:0" json:"approval_count"`
	RejectionCount     int          `gorm:"not null;default:0" json:"rejection_count"`
	IsActive           *bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	// PatternDeactivationFloor: success rate below which a pattern is turned
	// off once it has PatternMinObservations samples.
	PatternDeactivationFloor = 0.5
	PatternMinObservations   = 10
)

// Recompute refreshes success rate and active flag from the counters.
func (p *LearnedMatchPattern) Recompute() {
	total := p.ApprovalCount + p.RejectionCount
	if total > 0 {
		p.SuccessRate = float64(p.ApprovalCount) / float64(total)
	}
	if total >= PatternMinObservations && p.SuccessRate < PatternDeactivationFloor {
		f := false
		p.IsActive = &f
	}
}

type LearnedPatternFilters struct {
	SourceDocumentType DocumentType
	TargetDocumentType DocumentType
	OnlyActive         bool
}

func GetLearnedMatchPatterns(ctx context.Context, filters LearnedPatternFilters) ([]*LearnedMatchPattern, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&LearnedMatchPattern{})
	if filters.SourceDocumentType != "" {
		dbCtx = dbCtx.Where("source_document_type = ?", filters.SourceDocumentType)
	}
	if filters.TargetDocumentType != "" {
		dbCtx = dbCtx.Where("target_document_type = ?", filters.TargetDocumentType)
	}
	if filters.OnlyActive {
		dbCtx = dbCtx.Where("is_active = 1")
	}
	var patterns []*LearnedMatchPattern
	err := dbCtx.Order("source_document_type, target_document_type, source_account_name, target_account_name").
		Find(&patterns).Error
	if err != nil {
		return nil, err
	}
	return patterns, nil
}
