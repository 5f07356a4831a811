// seed-rules installs the baseline rule set a fresh deployment needs:
// auto-resolution rules for trivial variances, the standard cross-document
// calculated rules, and per-persona health score configs. Idempotent; rows
// that already exist (by name/persona) are left alone.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	go run ./cmd/seed-rules
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/propfolio/recon_backend/config"
	"github.com/propfolio/recon_backend/models"
	"github.com/propfolio/recon_backend/utils"
	"gorm.io/gorm"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	seeded := 0
	seeded += seedAutoResolutionRules(ctx, db)
	seeded += seedCalculatedRules(ctx, db)
	seeded += seedHealthScoreConfigs(ctx, db)
	fmt.Printf("seed-rules done: %d new rows\n", seeded)
}

func seedAutoResolutionRules(ctx context.Context, db *gorm.DB) int {
	mustJSON := func(conds []models.RuleCondition) string {
		b, err := json.Marshal(conds)
		if err != nil {
			panic(err)
		}
		return string(b)
	}

	rules := []models.AutoResolutionRule{
		{
			Name:        "rounding-variance",
			PatternType: "amount_band",
			Condition: mustJSON([]models.RuleCondition{
				{Field: "amount_difference", Operator: "lte", Value: "0.50"},
			}),
			Action:              models.AutoResolutionActionClose,
			ConfidenceThreshold: 0.90,
		},
		{
			Name:        "timing-difference-suggestion",
			PatternType: "amount_band",
			Condition: mustJSON([]models.RuleCondition{
				{Field: "strategy", Operator: "eq", Value: "exact"},
			}),
			Action:              models.AutoResolutionActionSuggest,
			ConfidenceThreshold: 0.95,
			SuggestedFix:        "Amounts agree on matched accounts; verify posting dates for a timing difference before closing.",
		},
		{
			Name:        "low-risk-small-variance-suggestion",
			PatternType: "amount_band",
			Condition: mustJSON([]models.RuleCondition{
				{Field: "risk_class", Operator: "eq", Value: "low"},
				{Field: "amount_difference", Operator: "lte", Value: "100.00"},
			}),
			Action:              models.AutoResolutionActionSuggest,
			ConfidenceThreshold: 0.90,
			SuggestedFix:        "Low-risk account with a small variance; accrual true-up is the usual cause.",
		},
	}

	created := 0
	for _, rule := range rules {
		created += createIfMissing(ctx, db, &models.AutoResolutionRule{}, "name = ?", rule.Name, &rule)
	}
	return created
}

func seedCalculatedRules(ctx context.Context, db *gorm.DB) int {
	mustJSON := func(f models.RuleFormula) string {
		b, err := json.Marshal(f)
		if err != nil {
			panic(err)
		}
		return string(b)
	}
	active := true

	rules := []models.CalculatedRule{
		{
			Name:    "mortgage-payable-ties-to-principal",
			Version: 1,
			Formula: mustJSON(models.RuleFormula{
				Target: models.FormulaOperand{DocumentType: models.DocumentTypeBalanceSheet, AccountCode: "2400"},
				Terms:  []models.FormulaOperand{{DocumentType: models.DocumentTypeMortgageStatement, AccountCode: "PRINCIPAL"}},
			}),
			ExplanationTemplate: "{rule}: balance sheet mortgage payable should equal the statement principal balance; expected {expected}, found {actual} (difference {difference})",
			IsActive:            &active,
			ProposedBy:          "seed",
		},
		{
			Name:    "net-income-ties-to-income-statement",
			Version: 1,
			Formula: mustJSON(models.RuleFormula{
				Target: models.FormulaOperand{DocumentType: models.DocumentTypeBalanceSheet, AccountCode: "3900"},
				Terms:  []models.FormulaOperand{{DocumentType: models.DocumentTypeIncomeStatement, AccountCode: "9000"}},
			}),
			ExplanationTemplate: "{rule}: balance sheet current-period earnings should equal income statement net income; expected {expected}, found {actual} (difference {difference})",
			IsActive:            &active,
			ProposedBy:          "seed",
		},
		{
			Name:    "noi-equals-revenue-less-opex",
			Version: 1,
			Formula: mustJSON(models.RuleFormula{
				Target: models.FormulaOperand{DocumentType: models.DocumentTypeIncomeStatement, AccountCode: "8000"},
				Terms: []models.FormulaOperand{
					{DocumentType: models.DocumentTypeIncomeStatement, AccountCode: "4000"},
					{DocumentType: models.DocumentTypeIncomeStatement, AccountCode: "6000", Sign: -1},
				},
			}),
			ExplanationTemplate: "{rule}: NOI should equal total revenue less operating expenses; expected {expected}, found {actual} (difference {difference})",
			IsActive:            &active,
			ProposedBy:          "seed",
		},
	}

	created := 0
	for _, rule := range rules {
		created += seedCalculatedRule(ctx, db, rule)
	}
	return created
}

// seedCalculatedRule installs a baseline rule, or appends it as the next
// version when the stored formula for the name is out of date. Versions are
// append-only: an upgrade never mutates a row a past session matched against.
func seedCalculatedRule(ctx context.Context, db *gorm.DB, rule models.CalculatedRule) int {
	var latest models.CalculatedRule
	err := db.WithContext(ctx).Model(&models.CalculatedRule{}).
		Where("name = ?", rule.Name).Order("version DESC").First(&latest).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "lookup failed for %q: %v\n", rule.Name, err)
		os.Exit(1)
	}
	if err == nil {
		if latest.Formula == rule.Formula {
			return 0
		}
		version, verr := models.NextRuleVersion(ctx, rule.Name)
		if verr != nil {
			fmt.Fprintf(os.Stderr, "version lookup failed for %q: %v\n", rule.Name, verr)
			os.Exit(1)
		}
		rule.Version = version
	}
	if verr := utils.ValidateStruct(&rule); verr != nil {
		fmt.Fprintf(os.Stderr, "invalid seed rule %q: %v\n", rule.Name, verr)
		os.Exit(1)
	}
	if cerr := db.WithContext(ctx).Create(&rule).Error; cerr != nil {
		fmt.Fprintf(os.Stderr, "create failed for %q: %v\n", rule.Name, cerr)
		os.Exit(1)
	}
	fmt.Printf("seeded %q v%d\n", rule.Name, rule.Version)
	return 1
}

func seedHealthScoreConfigs(ctx context.Context, db *gorm.DB) int {
	configs := []models.HealthScoreConfig{
		models.DefaultHealthScoreConfig("controller"),
		{
			Persona:             "asset_manager",
			ApprovalWeight:      0.3,
			ConfidenceWeight:    0.3,
			DiscrepancyWeight:   0.4,
			TrendWeight:         0.2,
			VolatilityWeight:    0.1,
			BlockedCloseRules:   `[{"kind":"unresolved_critical"},{"kind":"material_discrepancy"}]`,
			BlockedScoreCeiling: 50,
		},
		{
			Persona:             "lender",
			ApprovalWeight:      0.5,
			ConfidenceWeight:    0.3,
			DiscrepancyWeight:   0.2,
			TrendWeight:         0.05,
			VolatilityWeight:    0.15,
			BlockedCloseRules:   `[{"kind":"unresolved_critical"},{"kind":"material_discrepancy"}]`,
			BlockedScoreCeiling: 40,
		},
	}

	created := 0
	for _, cfg := range configs {
		created += createIfMissing(ctx, db, &models.HealthScoreConfig{}, "persona = ?", cfg.Persona, &cfg)
	}
	return created
}

func createIfMissing(ctx context.Context, db *gorm.DB, model interface{}, query, arg string, row interface{}) int {
	var count int64
	if err := db.WithContext(ctx).Model(model).Where(query, arg).Count(&count).Error; err != nil {
		fmt.Fprintf(os.Stderr, "lookup failed for %q: %v\n", arg, err)
		os.Exit(1)
	}
	if count > 0 {
		return 0
	}
	if err := utils.ValidateStruct(row); err != nil {
		fmt.Fprintf(os.Stderr, "invalid seed row %q: %v\n", arg, err)
		os.Exit(1)
	}
	if err := db.WithContext(ctx).Create(row).Error; err != nil {
		fmt.Fprintf(os.Stderr, "create failed for %q: %v\n", arg, err)
		os.Exit(1)
	}
	fmt.Printf("seeded %q\n", arg)
	return 1
}
