package models

import (
	"context"
	"sort"
	"time"

	"github.com/propfolio/recon_backend/config"
	"github.com/shopspring/decimal"
)

// MaterialityConfig defines the tolerance band for one scope. AccountCode and
// StatementType may be empty: an empty field widens the scope, and lookup is
// most-specific-wins (account > statement > property default).
type MaterialityConfig struct {
	ID                       int             `gorm:"primary_key" json:"id"`
	PropertyId               string          `gorm:"index:idx_materiality_scope;size:64;not null" json:"property_id"`
	StatementType            DocumentType    `gorm:"index:idx_materiality_scope;size:32" json:"statement_type"`
	AccountCode              string          `gorm:"index:idx_materiality_scope;size:64" json:"account_code"`
	AbsoluteThreshold        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"absolute_threshold" validate:"required"`
	RelativeThresholdPercent decimal.Decimal `gorm:"type:decimal(8,4);not null" json:"relative_threshold_percent" validate:"required"`
	RiskClass                RiskClass       `gorm:"size:16;not null;default:'medium'" json:"risk_class" validate:"required"`
	CreatedAt                time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Global fallback: $1,000 absolute, 1% relative, medium risk. Resolution
// fails closed to this default rather than erroring.
func GlobalDefaultMaterialityConfig() MaterialityConfig {
	return MaterialityConfig{
		AbsoluteThreshold:        decimal.NewFromInt(1000),
		RelativeThresholdPercent: decimal.NewFromInt(1),
		RiskClass:                RiskClassMedium,
	}
}

// riskMultiplier tightens the relative tolerance for risky accounts:
// critical x0.5, high x0.75, medium x1.0, low x1.5.
func riskMultiplier(risk RiskClass) decimal.Decimal {
	switch risk {
	case RiskClassCritical:
		return decimal.NewFromFloat(0.5)
	case RiskClassHigh:
		return decimal.NewFromFloat(0.75)
	case RiskClassLow:
		return decimal.NewFromFloat(1.5)
	default:
		return decimal.NewFromInt(1)
	}
}

// Tolerance returns the effective band for a base metric:
// max(absolute, relative% x base x risk multiplier).
func (c MaterialityConfig) Tolerance(baseMetric decimal.Decimal) decimal.Decimal {
	relative := c.RelativeThresholdPercent.
		Div(decimal.NewFromInt(100)).
		Mul(baseMetric.Abs()).
		Mul(riskMultiplier(c.RiskClass))
	if relative.GreaterThan(c.AbsoluteThreshold) {
		return relative
	}
	return c.AbsoluteThreshold
}

// IsMaterial applies the strict-> boundary: a difference exactly equal to the
// tolerance is NOT material, one cent above is.
func (c MaterialityConfig) IsMaterial(difference, baseMetric decimal.Decimal) bool {
	return difference.Abs().GreaterThan(c.Tolerance(baseMetric))
}

// MaterialityIndex resolves configs most-specific-wins without further DB
// access. Sessions build it once and treat it as read-only.
type MaterialityIndex struct {
	byAccount   map[string]MaterialityConfig // statementType|accountCode
	byStatement map[DocumentType]MaterialityConfig
	propDefault *MaterialityConfig
	fallback    MaterialityConfig
}

func NewMaterialityIndex(configs []MaterialityConfig) *MaterialityIndex {
	idx := &MaterialityIndex{
		byAccount:   make(map[string]MaterialityConfig),
		byStatement: make(map[DocumentType]MaterialityConfig),
		fallback:    GlobalDefaultMaterialityConfig(),
	}
	// Stable iteration: later rows must not silently shadow earlier ones
	// depending on query order.
	sorted := make([]MaterialityConfig, len(configs))
	copy(sorted, configs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	for _, cfg := range sorted {
		switch {
		case cfg.AccountCode != "":
			idx.byAccount[string(cfg.StatementType)+"|"+cfg.AccountCode] = cfg
		case cfg.StatementType != "":
			idx.byStatement[cfg.StatementType] = cfg
		default:
			c := cfg
			idx.propDefault = &c
		}
	}
	return idx
}

// Resolve walks account > statement > property default > global default.
func (idx *MaterialityIndex) Resolve(statementType DocumentType, accountCode string) MaterialityConfig {
	if accountCode != "" {
		if cfg, ok := idx.byAccount[string(statementType)+"|"+accountCode]; ok {
			return cfg
		}
		// Account-scoped config with no statement restriction.
		if cfg, ok := idx.byAccount["|"+accountCode]; ok {
			return cfg
		}
	}
	if cfg, ok := idx.byStatement[statementType]; ok {
		return cfg
	}
	if idx.propDefault != nil {
		return *idx.propDefault
	}
	return idx.fallback
}

func GetMaterialityConfigs(ctx context.Context, propertyId string) ([]MaterialityConfig, error) {
	db := config.GetDB()
	var configs []MaterialityConfig
	err := db.WithContext(ctx).Model(&MaterialityConfig{}).
		Where("property_id = ?", propertyId).
		Order("id").Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}
