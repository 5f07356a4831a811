package workflow

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NOTE: These tests are intentionally DB-free. The matching engine runs
// against in-memory line items and an in-memory rule snapshot; storage is
// exercised separately.

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func emptySnapshot() *RuleSnapshot {
	return NewRuleSnapshot(nil, nil, nil, nil, models.NewMaterialityIndex(nil))
}

func li(id int, doc models.DocumentType, code, name string, amount float64) *models.LineItem {
	return &models.LineItem{
		ID:           id,
		PropertyId:   "prop-1",
		PeriodId:     "2026-07",
		DocumentType: doc,
		AccountCode:  code,
		AccountName:  name,
		Amount:       decimal.NewFromFloat(amount),
		LineNumber:   id,
	}
}

func TestExactMatchNetIncome(t *testing.T) {
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "3900", "Net Income", 50000),
		li(2, models.DocumentTypeIncomeStatement, "3900", "Net Income", 50000),
	}

	result, err := RunMatching(items, emptySnapshot(), testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 1 || len(result.Discrepancies) != 0 {
		t.Fatalf("expected 1 match, 0 discrepancies, got %d/%d", len(result.Matches), len(result.Discrepancies))
	}
	m := result.Matches[0]
	if m.Strategy != models.MatchStrategyExact {
		t.Errorf("expected exact strategy, got %s", m.Strategy)
	}
	if m.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", m.Confidence)
	}

	rows := buildMatchRows("session-1", result, emptySnapshot())
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Tier != models.TierAutoClose {
		t.Errorf("expected tier 0, got %d", rows[0].Tier)
	}
	if rows[0].Status != models.MatchStatusAutoClosed {
		t.Errorf("expected auto_closed, got %s", rows[0].Status)
	}
	if rows[0].IsMaterial {
		t.Errorf("zero difference must not be material")
	}
}

func TestMirrorMatchNotDoubleReported(t *testing.T) {
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "1000", "Cash", 10000),
		li(2, models.DocumentTypeCashFlow, "1000", "Cash", 10000),
	}
	result, err := RunMatching(items, emptySnapshot(), testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	// The cash flow item must not reappear as a second match or discrepancy.
	if len(result.Matches) != 1 {
		t.Fatalf("expected exactly 1 match, got %d", len(result.Matches))
	}
	if len(result.Discrepancies) != 0 {
		t.Fatalf("expected no discrepancies, got %d", len(result.Discrepancies))
	}
}

func TestCalculatedMatchMortgagePrincipal(t *testing.T) {
	active := true
	rule := &models.CalculatedRule{
		Name:    "mortgage-payable-ties-to-principal",
		Version: 1,
		Formula: `{"target":{"document_type":"BalanceSheet","account_code":"2400"},` +
			`"terms":[{"document_type":"MortgageStatement","account_code":"PRINCIPAL"}]}`,
		IsActive: &active,
	}
	snap := NewRuleSnapshot(nil, nil, []*models.CalculatedRule{rule}, nil, models.NewMaterialityIndex(nil))

	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "2400", "Mortgage Payable", 2500000),
		li(2, models.DocumentTypeMortgageStatement, "PRINCIPAL", "Principal Balance", 2500100),
	}

	result, err := RunMatching(items, snap, testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d (discrepancies %d)", len(result.Matches), len(result.Discrepancies))
	}
	m := result.Matches[0]
	if m.Strategy != models.MatchStrategyCalculated {
		t.Fatalf("expected calculated strategy, got %s", m.Strategy)
	}
	if m.Confidence < 0.9 {
		t.Errorf("expected confidence >= 0.9, got %v", m.Confidence)
	}
	if !m.AmountDifference.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected difference 100, got %s", m.AmountDifference)
	}
	if m.RuleName != rule.Name {
		t.Errorf("expected rule name on match, got %q", m.RuleName)
	}

	rows := buildMatchRows("session-1", result, snap)
	if rows[0].IsMaterial {
		t.Errorf("a $100 variance on a $2.5M base must not be material under defaults")
	}
	if rows[0].Tier > models.TierAutoSuggest {
		t.Errorf("expected tier 0 or 1, got %d", rows[0].Tier)
	}
}

func TestFuzzyMatchReorderedName(t *testing.T) {
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "", "Prepaid Insurance", 1200),
		li(2, models.DocumentTypeIncomeStatement, "", "Insurance, Prepaid", 1150),
	}
	result, err := RunMatching(items, emptySnapshot(), testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 fuzzy match, got %d matches, %d discrepancies", len(result.Matches), len(result.Discrepancies))
	}
	m := result.Matches[0]
	if m.Strategy != models.MatchStrategyFuzzy {
		t.Fatalf("expected fuzzy strategy, got %s", m.Strategy)
	}
	// similarity 1.0, diff 50 against tolerance 1000: 1.0 * (1 - 0.5*0.05)
	if m.Confidence < 0.97 || m.Confidence > 0.98 {
		t.Errorf("expected confidence ~0.975, got %v", m.Confidence)
	}
}

func TestInferredMatchUsesPatternSuccessRate(t *testing.T) {
	active := true
	pattern := &models.LearnedMatchPattern{
		SourceDocumentType: models.DocumentTypeBalanceSheet,
		TargetDocumentType: models.DocumentTypeMortgageStatement,
		SourceAccountName:  "escrow balance",
		TargetAccountName:  "tax escrow",
		SuccessRate:        0.8,
		MatchCount:         12,
		IsActive:           &active,
	}
	snap := NewRuleSnapshot(nil, []*models.LearnedMatchPattern{pattern}, nil, nil, models.NewMaterialityIndex(nil))

	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "", "Escrow Balance", 5000),
		li(2, models.DocumentTypeMortgageStatement, "", "Tax Escrow", 5000),
	}
	result, err := RunMatching(items, snap, testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 inferred match, got %d", len(result.Matches))
	}
	m := result.Matches[0]
	if m.Strategy != models.MatchStrategyInferred {
		t.Fatalf("expected inferred strategy, got %s", m.Strategy)
	}
	if m.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8 (pattern success rate), got %v", m.Confidence)
	}
}

func TestInferredMatchDiscountsLargeVariance(t *testing.T) {
	active := true
	pattern := &models.LearnedMatchPattern{
		SourceDocumentType: models.DocumentTypeBalanceSheet,
		TargetDocumentType: models.DocumentTypeMortgageStatement,
		SourceAccountName:  "escrow balance",
		TargetAccountName:  "tax escrow",
		SuccessRate:        0.8,
		IsActive:           &active,
	}
	snap := NewRuleSnapshot(nil, []*models.LearnedMatchPattern{pattern}, nil, nil, models.NewMaterialityIndex(nil))

	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "", "Escrow Balance", 5000),
		li(2, models.DocumentTypeMortgageStatement, "", "Tax Escrow", 9000),
	}
	result, err := RunMatching(items, snap, testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 inferred match, got %d", len(result.Matches))
	}
	got := result.Matches[0].Confidence
	if got < 0.69 || got > 0.71 {
		t.Errorf("expected discounted confidence ~0.7, got %v", got)
	}
}

func TestUnmatchedBecomesDiscrepancyWithBestMiss(t *testing.T) {
	active := true
	weakPattern := &models.LearnedMatchPattern{
		SourceDocumentType: models.DocumentTypeBalanceSheet,
		TargetDocumentType: models.DocumentTypeIncomeStatement,
		SourceAccountName:  "sundry receivable",
		TargetAccountName:  "misc income",
		SuccessRate:        0.45,
		IsActive:           &active,
	}
	snap := NewRuleSnapshot(nil, []*models.LearnedMatchPattern{weakPattern}, nil, nil, models.NewMaterialityIndex(nil))

	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "", "Sundry Receivable", 15000),
		li(2, models.DocumentTypeIncomeStatement, "", "Misc Income", 15000),
	}
	result, err := RunMatching(items, snap, testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("a 0.45 candidate must not be committed, got %d matches", len(result.Matches))
	}
	if len(result.Discrepancies) != 2 {
		t.Fatalf("expected 2 discrepancies, got %d", len(result.Discrepancies))
	}
	d := result.Discrepancies[0]
	if d.BestCandidate == nil || d.BestScore != 0.45 || d.BestStrategy != models.MatchStrategyInferred {
		t.Errorf("expected best-miss diagnostics (0.45 inferred), got score=%v strategy=%s", d.BestScore, d.BestStrategy)
	}

	rows := buildMatchRows("session-1", result, snap)
	for _, row := range rows {
		if !row.IsDiscrepancy() {
			t.Fatalf("expected discrepancy rows only")
		}
		if row.Tier != models.TierEscalate {
			t.Errorf("a $15k material unexplained item must escalate, got tier %d", row.Tier)
		}
		if !row.IsMaterial {
			t.Errorf("a $15k difference exceeds the default $1000 threshold")
		}
	}
}

func TestConsumedTargetFallsToNextCandidate(t *testing.T) {
	// Two sources exact-match the same pair of targets. The first source takes
	// the lower-id target; the second must fall through to the remaining one.
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "5100", "Management Fees", 800),
		li(2, models.DocumentTypeBalanceSheet, "5100", "Management Fees", 800),
		li(3, models.DocumentTypeIncomeStatement, "5100", "Management Fees", 800),
		li(4, models.DocumentTypeIncomeStatement, "5100", "Management Fees", 800),
	}
	result, err := RunMatching(items, emptySnapshot(), testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}
	if len(result.Matches) != 2 || len(result.Discrepancies) != 0 {
		t.Fatalf("expected 2 matches, 0 discrepancies, got %d/%d", len(result.Matches), len(result.Discrepancies))
	}
	if result.Matches[0].Source.ID != 1 || result.Matches[0].Target.ID != 3 {
		t.Errorf("first commit should pair 1->3, got %d->%d", result.Matches[0].Source.ID, result.Matches[0].Target.ID)
	}
	if result.Matches[1].Source.ID != 2 || result.Matches[1].Target.ID != 4 {
		t.Errorf("second commit should pair 2->4, got %d->%d", result.Matches[1].Source.ID, result.Matches[1].Target.ID)
	}
}

func TestRunMatchingDeterministic(t *testing.T) {
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "3900", "Net Income", 50000),
		li(2, models.DocumentTypeBalanceSheet, "1000", "Cash and Equivalents", 82000),
		li(3, models.DocumentTypeBalanceSheet, "", "Prepaid Insurance", 1200),
		li(4, models.DocumentTypeBalanceSheet, "5100", "Management Fees", 800),
		li(5, models.DocumentTypeBalanceSheet, "5100", "Management Fees", 800),
		li(6, models.DocumentTypeIncomeStatement, "3900", "Net Income", 50000),
		li(7, models.DocumentTypeIncomeStatement, "", "Insurance Prepaid", 1150),
		li(8, models.DocumentTypeIncomeStatement, "5100", "Management Fees", 800),
		li(9, models.DocumentTypeIncomeStatement, "5100", "Management Fees", 800),
		li(10, models.DocumentTypeCashFlow, "1000", "Cash and Equivalents", 82000),
		li(11, models.DocumentTypeCashFlow, "", "Sundry Receivable", 15000),
	}

	fingerprint := func(r *MatchResult) string {
		var b strings.Builder
		for _, m := range r.Matches {
			fmt.Fprintf(&b, "M:%d->%d:%s:%.6f;", m.Source.ID, m.Target.ID, m.Strategy, m.Confidence)
		}
		for _, d := range r.Discrepancies {
			fmt.Fprintf(&b, "D:%d;", d.Item.ID)
		}
		return b.String()
	}

	first := ""
	for run := 0; run < 50; run++ {
		result, err := RunMatching(items, emptySnapshot(), testLogger())
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		fp := fingerprint(result)
		if run == 0 {
			first = fp
			continue
		}
		if fp != first {
			t.Fatalf("run %d produced different output:\n%s\nvs\n%s", run, fp, first)
		}
	}
}

// The persisted materiality flag must use the same base the matcher's
// tolerance band used: the larger of the two document totals, not the two
// line amounts.
func TestMatchedRowMaterialityUsesStatementTotals(t *testing.T) {
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "1000", "Total Assets", 990000),
		li(2, models.DocumentTypeBalanceSheet, "", "Escrow Deposits", 10000),
		li(3, models.DocumentTypeIncomeStatement, "4000", "Total Revenue", 995000),
		li(4, models.DocumentTypeIncomeStatement, "", "Deposits Escrow", 5000),
	}

	result, err := RunMatching(items, emptySnapshot(), testLogger())
	if err != nil {
		t.Fatalf("RunMatching: %v", err)
	}

	rows := buildMatchRows("session-1", result, emptySnapshot())
	var matched *models.ForensicMatch
	for _, row := range rows {
		if row.SourceLineItemId == 2 && !row.IsDiscrepancy() {
			matched = row
		}
	}
	if matched == nil {
		t.Fatal("expected the escrow deposit lines to fuzzy-match")
	}
	if !matched.AmountDifference.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected amount difference 5000, got %s", matched.AmountDifference)
	}
	// Both document totals are 1,000,000, so the default tolerance band is
	// max($1,000, 1% x 1,000,000) = $10,000 and the $5,000 variance sits
	// inside it. Judged against the line amounts the band would shrink to
	// $1,000 and the same variance would flip to material.
	if matched.IsMaterial {
		t.Error("variance inside the statement-total tolerance must not be material")
	}
}

func TestRunMatchingRejectsDuplicateIds(t *testing.T) {
	items := []*models.LineItem{
		li(1, models.DocumentTypeBalanceSheet, "1000", "Cash", 10),
		li(1, models.DocumentTypeIncomeStatement, "1000", "Cash", 10),
	}
	if _, err := RunMatching(items, emptySnapshot(), testLogger()); err == nil {
		t.Fatal("expected error for duplicate line item ids")
	}
}
