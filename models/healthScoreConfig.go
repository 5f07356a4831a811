package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/propfolio/recon_backend/config"
	"gorm.io/gorm"
)

// HealthScoreConfig weights the session health score per persona (asset
// manager, controller, lender...). One active config per persona.
type HealthScoreConfig struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	Persona             string    `gorm:"uniqueIndex;size:64;not null" json:"persona" validate:"required"`
	ApprovalWeight      float64   `gorm:"not null" json:"approval_weight"`
	ConfidenceWeight    float64   `gorm:"not null" json:"confidence_weight"`
	DiscrepancyWeight   float64   `gorm:"not null" json:"discrepancy_weight"`
	TrendWeight         float64   `gorm:"not null;default:0" json:"trend_weight"`
	VolatilityWeight    float64   `gorm:"not null;default:0" json:"volatility_weight"`
	BlockedCloseRules   string    `gorm:"type:text" json:"blocked_close_rules"`
	BlockedScoreCeiling float64   `gorm:"not null;default:50" json:"blocked_score_ceiling"`
	IsActive            *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BlockedCloseRule names a blocking condition. Supported kinds:
// unresolved_critical (any pending tier-3 item), material_discrepancy
// (any pending material discrepancy).
type BlockedCloseRule struct {
	Kind string `json:"kind"`
}

func (c *HealthScoreConfig) ParseBlockedCloseRules() []BlockedCloseRule {
	if c.BlockedCloseRules == "" {
		return nil
	}
	var rules []BlockedCloseRule
	if err := json.Unmarshal([]byte(c.BlockedCloseRules), &rules); err != nil {
		return nil
	}
	return rules
}

// DefaultHealthScoreConfig is the fallback when a persona has no stored
// config: balanced weights, moderate trend sensitivity.
func DefaultHealthScoreConfig(persona string) HealthScoreConfig {
	return HealthScoreConfig{
		Persona:             persona,
		ApprovalWeight:      0.4,
		ConfidenceWeight:    0.4,
		DiscrepancyWeight:   0.2,
		TrendWeight:         0.1,
		VolatilityWeight:    0.05,
		BlockedCloseRules:   `[{"kind":"unresolved_critical"}]`,
		BlockedScoreCeiling: 50,
	}
}

func GetHealthScoreConfig(ctx context.Context, persona string) (HealthScoreConfig, error) {
	db := config.GetDB()
	var cfg HealthScoreConfig
	err := db.WithContext(ctx).Model(&HealthScoreConfig{}).
		Where("persona = ? AND is_active = 1", persona).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return DefaultHealthScoreConfig(persona), nil
	}
	if err != nil {
		return HealthScoreConfig{}, err
	}
	return cfg, nil
}
