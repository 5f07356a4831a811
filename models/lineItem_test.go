package models_test

import (
	"testing"

	"github.com/propfolio/recon_backend/models"
	"github.com/shopspring/decimal"
)

func arenaItem(id int, doc models.DocumentType, amount int64, parent *int) *models.LineItem {
	return &models.LineItem{
		ID:           id,
		PropertyId:   "prop-1",
		PeriodId:     "2026-07",
		DocumentType: doc,
		AccountName:  "item",
		Amount:       decimal.NewFromInt(amount),
		LineNumber:   id,
		ParentLineId: parent,
	}
}

func intPtr(v int) *int { return &v }

func TestBuildLineItemArenaTree(t *testing.T) {
	items := []*models.LineItem{
		arenaItem(1, models.DocumentTypeBalanceSheet, 100, nil),
		arenaItem(2, models.DocumentTypeBalanceSheet, 60, intPtr(1)),
		arenaItem(3, models.DocumentTypeBalanceSheet, 40, intPtr(1)),
		arenaItem(4, models.DocumentTypeIncomeStatement, 500, nil),
	}
	arena, err := models.BuildLineItemArena(items)
	if err != nil {
		t.Fatalf("BuildLineItemArena: %v", err)
	}

	roots := arena.Roots()
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	children := arena.Children(1)
	if len(children) != 2 {
		t.Fatalf("expected 2 children of item 1, got %d", len(children))
	}
	if len(arena.Children(2)) != 0 {
		t.Error("leaf must have no children")
	}
}

func TestBuildLineItemArenaRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		items []*models.LineItem
	}{
		{
			"duplicate id",
			[]*models.LineItem{
				arenaItem(1, models.DocumentTypeBalanceSheet, 1, nil),
				arenaItem(1, models.DocumentTypeIncomeStatement, 1, nil),
			},
		},
		{
			"dangling parent",
			[]*models.LineItem{
				arenaItem(1, models.DocumentTypeBalanceSheet, 1, intPtr(99)),
			},
		},
		{
			"self parent",
			[]*models.LineItem{
				arenaItem(1, models.DocumentTypeBalanceSheet, 1, intPtr(1)),
			},
		},
		{
			"two-node cycle",
			[]*models.LineItem{
				arenaItem(1, models.DocumentTypeBalanceSheet, 1, intPtr(2)),
				arenaItem(2, models.DocumentTypeBalanceSheet, 1, intPtr(1)),
			},
		},
	}
	for _, tc := range cases {
		if _, err := models.BuildLineItemArena(tc.items); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

// DocumentTotal sums only top-level lines: subtotals hang off parents and
// counting them would double the base metric.
func TestDocumentTotalSumsRootsOnly(t *testing.T) {
	items := []*models.LineItem{
		arenaItem(1, models.DocumentTypeBalanceSheet, 100, nil),
		arenaItem(2, models.DocumentTypeBalanceSheet, 60, intPtr(1)),
		arenaItem(3, models.DocumentTypeBalanceSheet, -40, nil),
		arenaItem(4, models.DocumentTypeIncomeStatement, 500, nil),
	}
	arena, err := models.BuildLineItemArena(items)
	if err != nil {
		t.Fatalf("BuildLineItemArena: %v", err)
	}
	// |100| + |-40|, child 60 excluded.
	if got := arena.DocumentTotal(models.DocumentTypeBalanceSheet); !got.Equal(decimal.NewFromInt(140)) {
		t.Errorf("expected 140, got %s", got)
	}
	if got := arena.DocumentTotal(models.DocumentTypeCashFlow); !got.IsZero() {
		t.Errorf("expected 0 for absent document, got %s", got)
	}
}

func TestByDocumentTypeOrdering(t *testing.T) {
	items := []*models.LineItem{
		{ID: 5, DocumentType: models.DocumentTypeBalanceSheet, AccountName: "b", Amount: decimal.NewFromInt(1), LineNumber: 2},
		{ID: 3, DocumentType: models.DocumentTypeBalanceSheet, AccountName: "a", Amount: decimal.NewFromInt(1), LineNumber: 1},
		{ID: 4, DocumentType: models.DocumentTypeBalanceSheet, AccountName: "c", Amount: decimal.NewFromInt(1), LineNumber: 2},
	}
	arena, err := models.BuildLineItemArena(items)
	if err != nil {
		t.Fatalf("BuildLineItemArena: %v", err)
	}
	got := arena.ByDocumentType()[models.DocumentTypeBalanceSheet]
	wantIds := []int{3, 4, 5}
	for i, item := range got {
		if item.ID != wantIds[i] {
			t.Fatalf("position %d: expected id %d, got %d", i, wantIds[i], item.ID)
		}
	}
}
