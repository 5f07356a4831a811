package models

import (
	"context"
	"time"

	"github.com/propfolio/recon_backend/config"
)

// DiscoveredAccountCode is a derived, rebuildable cache row produced by the
// taxonomy builder. Safe to truncate and regenerate entirely from LineItem
// history; never hand-edited.
type DiscoveredAccountCode struct {
	ID              int          `gorm:"primary_key" json:"id"`
	PropertyId      string       `gorm:"index:idx_discovered_codes;size:64;not null" json:"property_id"`
	DocumentType    DocumentType `gorm:"index:idx_discovered_codes;size:32;not null" json:"document_type"`
	AccountCode     string       `gorm:"index:idx_discovered_codes;size:64;not null" json:"account_code"`
	Frequency       int          `gorm:"not null" json:"frequency"`
	FirstSeenPeriod string       `gorm:"size:32" json:"first_seen_period"`
	LastSeenPeriod  string       `gorm:"size:32" json:"last_seen_period"`
	CreatedAt       time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// AccountCodePattern is a synthesized regex describing the shape shared by
// discovered codes of one document type, e.g. `^\d{4}-\d{4}$`.
type AccountCodePattern struct {
	ID           int          `gorm:"primary_key" json:"id"`
	PropertyId   string       `gorm:"index;size:64;not null" json:"property_id"`
	DocumentType DocumentType `gorm:"index;size:32;not null" json:"document_type"`
	PatternRegex string       `gorm:"size:255;not null" json:"pattern_regex"`
	Frequency    int          `gorm:"not null" json:"frequency"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func GetDiscoveredAccountCodes(ctx context.Context, propertyId string, docType DocumentType) ([]*DiscoveredAccountCode, error) {
	db := config.GetDB()
	var codes []*DiscoveredAccountCode
	dbCtx := db.WithContext(ctx).Model(&DiscoveredAccountCode{}).Where("property_id = ?", propertyId)
	if docType != "" {
		dbCtx = dbCtx.Where("document_type = ?", docType)
	}
	if err := dbCtx.Order("document_type, account_code").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}
