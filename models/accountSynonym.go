package models

import (
	"context"
	"time"

	"github.com/propfolio/recon_backend/config"
)

// AccountSynonym maps a free-text account name to a canonical account code.
// Rows grow monotonically via pattern learning; the taxonomy builder seeds
// candidates at confidence 0.5.
type AccountSynonym struct {
	ID             int       `gorm:"primary_key" json:"id"`
	SourceName     string    `gorm:"uniqueIndex:idx_synonym_name_code;size:255;not null" json:"source_name"`
	CanonicalCode  string    `gorm:"uniqueIndex:idx_synonym_name_code;size:64;not null" json:"canonical_code"`
	Confidence     float64   `gorm:"not null;default:0.5" json:"confidence"`
	ApprovalCount  int       `gorm:"not null;default:0" json:"approval_count"`
	RejectionCount int       `gorm:"not null;default:0" json:"rejection_count"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SynonymConfidence computes approvals/(approvals+rejections), decayed toward
// 0.5 when the evidence is thin (fewer than 3 observations).
func SynonymConfidence(approvals, rejections int) float64 {
	total := approvals + rejections
	if total == 0 {
		return 0.5
	}
	raw := float64(approvals) / float64(total)
	if total < 3 {
		// Blend with the neutral prior proportionally to sample size.
		weight := float64(total) / 3.0
		return raw*weight + 0.5*(1-weight)
	}
	return raw
}

// Recompute refreshes the stored confidence from the counters.
func (s *AccountSynonym) Recompute() {
	s.Confidence = SynonymConfidence(s.ApprovalCount, s.RejectionCount)
}

func GetAllAccountSynonyms(ctx context.Context) ([]*AccountSynonym, error) {
	db := config.GetDB()
	var synonyms []*AccountSynonym
	err := db.WithContext(ctx).Model(&AccountSynonym{}).Order("source_name, canonical_code").Find(&synonyms).Error
	if err != nil {
		return nil, err
	}
	return synonyms, nil
}

// GetSynonymsForName returns candidate codes for one normalized name, best
// confidence first.
func GetSynonymsForName(ctx context.Context, sourceName string) ([]*AccountSynonym, error) {
	db := config.GetDB()
	var synonyms []*AccountSynonym
	err := db.WithContext(ctx).Model(&AccountSynonym{}).
		Where("source_name = ?", sourceName).
		Order("confidence DESC, canonical_code").Find(&synonyms).Error
	if err != nil {
		return nil, err
	}
	return synonyms, nil
}
