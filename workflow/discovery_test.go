package workflow

import (
	"testing"

	"github.com/propfolio/recon_backend/models"
)

func series(doc models.DocumentType, code string, amounts ...float64) *OperandSeries {
	return &OperandSeries{DocumentType: doc, AccountCode: code, Amounts: amounts}
}

func TestProposeRelationshipsFindsTrackingPair(t *testing.T) {
	input := []*OperandSeries{
		series(models.DocumentTypeBalanceSheet, "2400", 2500000, 2495000, 2490000, 2485000),
		series(models.DocumentTypeMortgageStatement, "PRINCIPAL", 2500100, 2495100, 2490100, 2485100),
		series(models.DocumentTypeIncomeStatement, "4000", 120000, 90000, 150000, 70000),
	}
	candidates := ProposeRelationships(input, DiscoveryMinPeriods, DiscoveryCorrelationThreshold)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Source.AccountCode != "2400" || c.Target.AccountCode != "PRINCIPAL" {
		t.Errorf("unexpected pair: %s ~ %s", c.Source.AccountCode, c.Target.AccountCode)
	}
	if c.Correlation < DiscoveryCorrelationThreshold {
		t.Errorf("correlation %v below threshold", c.Correlation)
	}
	if c.Periods != 4 {
		t.Errorf("expected 4 shared periods, got %d", c.Periods)
	}
}

func TestProposeRelationshipsSkipsSameDocument(t *testing.T) {
	input := []*OperandSeries{
		series(models.DocumentTypeIncomeStatement, "4000", 100, 200, 300),
		series(models.DocumentTypeIncomeStatement, "4100", 100, 200, 300),
	}
	if got := ProposeRelationships(input, DiscoveryMinPeriods, DiscoveryCorrelationThreshold); len(got) != 0 {
		t.Fatalf("same-document pairs must not be proposed, got %d", len(got))
	}
}

func TestProposeRelationshipsNeedsEnoughPeriods(t *testing.T) {
	input := []*OperandSeries{
		series(models.DocumentTypeBalanceSheet, "2400", 100, 200),
		series(models.DocumentTypeMortgageStatement, "PRINCIPAL", 100, 200),
	}
	if got := ProposeRelationships(input, DiscoveryMinPeriods, DiscoveryCorrelationThreshold); len(got) != 0 {
		t.Fatalf("two periods of evidence must not draft a rule, got %d", len(got))
	}
}

func TestProposeRelationshipsRejectsWeakCorrelation(t *testing.T) {
	input := []*OperandSeries{
		series(models.DocumentTypeBalanceSheet, "1300", 100, 900, 150, 800),
		series(models.DocumentTypeIncomeStatement, "4000", 500, 480, 900, 100),
	}
	if got := ProposeRelationships(input, DiscoveryMinPeriods, DiscoveryCorrelationThreshold); len(got) != 0 {
		t.Fatalf("weakly correlated series must not be proposed, got %d", len(got))
	}
}

func TestProposeRelationshipsStableOrder(t *testing.T) {
	input := []*OperandSeries{
		series(models.DocumentTypeBalanceSheet, "2400", 100, 200, 300),
		series(models.DocumentTypeMortgageStatement, "PRINCIPAL", 100, 200, 300),
		series(models.DocumentTypeBalanceSheet, "1300", 10, 20, 30),
		series(models.DocumentTypeMortgageStatement, "ESCROW", 10, 20, 30),
	}
	first := ProposeRelationships(input, DiscoveryMinPeriods, DiscoveryCorrelationThreshold)
	for run := 0; run < 10; run++ {
		again := ProposeRelationships(input, DiscoveryMinPeriods, DiscoveryCorrelationThreshold)
		if len(again) != len(first) {
			t.Fatalf("candidate count changed across runs")
		}
		for i := range first {
			if first[i].ruleName() != again[i].ruleName() {
				t.Fatalf("candidate order changed: %s vs %s", first[i].ruleName(), again[i].ruleName())
			}
		}
	}
}
