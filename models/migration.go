package models

import (
	"log"

	"github.com/propfolio/recon_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&LineItem{},
		&ReconciliationSession{}, &ForensicMatch{},
		&MaterialityConfig{},
		&DiscoveredAccountCode{}, &AccountCodePattern{},
		&AccountSynonym{}, &LearnedMatchPattern{},
		&AutoResolutionRule{}, &CalculatedRule{},
		&HealthScoreConfig{},
		&LearningWatermark{}, &IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
