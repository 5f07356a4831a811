package models

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/propfolio/recon_backend/config"
	"github.com/shopspring/decimal"
)

// LineItem is an extracted financial statement line, owned by the extraction
// subsystem. This core treats rows as an immutable input snapshot per session
// and never writes them.
type LineItem struct {
	ID           int             `gorm:"primary_key" json:"id"`
	PropertyId   string          `gorm:"index:idx_line_items_scope;size:64;not null" json:"property_id"`
	PeriodId     string          `gorm:"index:idx_line_items_scope;size:32;not null" json:"period_id"`
	DocumentType DocumentType    `gorm:"index:idx_line_items_scope;size:32;not null" json:"document_type"`
	AccountCode  string          `gorm:"index;size:64" json:"account_code"`
	AccountName  string          `gorm:"size:255;not null" json:"account_name"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	LineNumber   int             `gorm:"not null" json:"line_number"`
	ParentLineId *int            `gorm:"index" json:"parent_line_id"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// GetLineItemsForPeriod loads the immutable input snapshot for one session,
// ordered deterministically (document type, line number, id).
func GetLineItemsForPeriod(ctx context.Context, propertyId, periodId string) ([]*LineItem, error) {
	db := config.GetDB()
	var items []*LineItem
	err := db.WithContext(ctx).Model(&LineItem{}).
		Where("property_id = ? AND period_id = ?", propertyId, periodId).
		Order("document_type, line_number, id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func GetLineItemById(ctx context.Context, id int) (*LineItem, error) {
	db := config.GetDB()
	var item LineItem
	err := db.WithContext(ctx).Model(&LineItem{}).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// LineItemArena holds a period's line items as an index-based tree: items in
// a flat slice with integer parent references instead of live pointers, so
// the structure is serializable and cycle-free by construction.
type LineItemArena struct {
	Items    []*LineItem
	byID     map[int]int   // line item id -> arena index
	parent   []int         // arena index -> parent arena index, -1 for roots
	children map[int][]int // arena index -> child arena indexes
}

// BuildLineItemArena validates parent references and rejects any
// parent_line_id that is dangling or would create a cycle.
func BuildLineItemArena(items []*LineItem) (*LineItemArena, error) {
	arena := &LineItemArena{
		Items:    items,
		byID:     make(map[int]int, len(items)),
		parent:   make([]int, len(items)),
		children: make(map[int][]int),
	}
	for i, item := range items {
		if _, dup := arena.byID[item.ID]; dup {
			return nil, fmt.Errorf("duplicate line item id %d", item.ID)
		}
		arena.byID[item.ID] = i
	}
	for i, item := range items {
		arena.parent[i] = -1
		if item.ParentLineId == nil {
			continue
		}
		pIdx, ok := arena.byID[*item.ParentLineId]
		if !ok {
			return nil, fmt.Errorf("line item %d references missing parent %d", item.ID, *item.ParentLineId)
		}
		if pIdx == i {
			return nil, fmt.Errorf("line item %d references itself as parent", item.ID)
		}
		arena.parent[i] = pIdx
		arena.children[pIdx] = append(arena.children[pIdx], i)
	}
	// Walk parent chains; any chain longer than the arena means a cycle.
	for i := range items {
		steps := 0
		for j := arena.parent[i]; j != -1; j = arena.parent[j] {
			steps++
			if steps > len(items) {
				return nil, fmt.Errorf("cycle detected in line item hierarchy at id %d", items[i].ID)
			}
		}
	}
	return arena, nil
}

// Roots returns top-level items (no parent) in input order.
func (a *LineItemArena) Roots() []*LineItem {
	var roots []*LineItem
	for i, item := range a.Items {
		if a.parent[i] == -1 {
			roots = append(roots, item)
		}
	}
	return roots
}

// Children returns the direct children of a line item id.
func (a *LineItemArena) Children(lineItemId int) []*LineItem {
	idx, ok := a.byID[lineItemId]
	if !ok {
		return nil
	}
	var out []*LineItem
	for _, c := range a.children[idx] {
		out = append(out, a.Items[c])
	}
	return out
}

// ByDocumentType partitions the arena's items per document, each partition
// kept in (line number, id) order.
func (a *LineItemArena) ByDocumentType() map[DocumentType][]*LineItem {
	byDoc := make(map[DocumentType][]*LineItem)
	for _, item := range a.Items {
		byDoc[item.DocumentType] = append(byDoc[item.DocumentType], item)
	}
	for _, items := range byDoc {
		sort.Slice(items, func(i, j int) bool {
			if items[i].LineNumber != items[j].LineNumber {
				return items[i].LineNumber < items[j].LineNumber
			}
			return items[i].ID < items[j].ID
		})
	}
	return byDoc
}

// DocumentTotal sums a document's top-level lines. Used as the base metric
// for relative materiality thresholds.
func (a *LineItemArena) DocumentTotal(docType DocumentType) decimal.Decimal {
	total := decimal.Zero
	for i, item := range a.Items {
		if item.DocumentType == docType && a.parent[i] == -1 {
			total = total.Add(item.Amount.Abs())
		}
	}
	return total
}
