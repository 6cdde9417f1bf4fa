package purchasing

import (
	"context"
	"errors"
	"math"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

// SelectionTotals are the derived figures of the current selection,
// recomputed on every queue mutation.
type SelectionTotals struct {
	LineCount  int             `json:"line_count"`
	TotalUnits int             `json:"total_units"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

// RecommendationQueue holds per-outlet selection and quantity-override state
// on top of the latest recommendation fetch. It is an explicit value object,
// one per outlet, so multi-outlet sessions stay isolated.
type RecommendationQueue struct {
	OutletId int

	lines     []*models.RecommendationLine
	byProduct map[int]*models.RecommendationLine
	selected  map[int]bool
	overrides map[int]int
	totals    SelectionTotals
}

func NewRecommendationQueue(outletId int) *RecommendationQueue {
	return &RecommendationQueue{
		OutletId:  outletId,
		byProduct: map[int]*models.RecommendationLine{},
		selected:  map[int]bool{},
		overrides: map[int]int{},
	}
}

// normalizeQty coerces arbitrary quantity input to an integer of at least 1.
// Non-finite, negative, zero and fractional inputs all land on a usable value.
func normalizeQty(qty float64) int {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 1
	}
	n := int(math.Floor(qty))
	if n < 1 {
		return 1
	}
	return n
}

// Refresh replaces the underlying lines with a new fetch. Selections for
// products no longer present are dropped; quantity overrides for products
// still present are preserved, everything else resets to the new
// recommended quantity.
func (q *RecommendationQueue) Refresh(lines []*models.RecommendationLine) {
	q.lines = lines
	q.byProduct = map[int]*models.RecommendationLine{}
	for _, line := range lines {
		q.byProduct[line.ProductId] = line
	}
	for productId := range q.selected {
		if _, ok := q.byProduct[productId]; !ok {
			delete(q.selected, productId)
		}
	}
	for productId := range q.overrides {
		if _, ok := q.byProduct[productId]; !ok {
			delete(q.overrides, productId)
		}
	}
	q.recompute()
}

func (q *RecommendationQueue) Lines() []*models.RecommendationLine { return q.lines }

func (q *RecommendationQueue) IsSelected(productId int) bool { return q.selected[productId] }

func (q *RecommendationQueue) Totals() SelectionTotals { return q.totals }

// DraftQty returns the effective draft quantity for a line: the user's
// override when present, the recommended quantity otherwise, floored at 1.
func (q *RecommendationQueue) DraftQty(productId int) int {
	if qty, ok := q.overrides[productId]; ok {
		return qty
	}
	line, ok := q.byProduct[productId]
	if !ok {
		return 1
	}
	if line.RecommendedQty < 1 {
		return 1
	}
	return line.RecommendedQty
}

// ToggleSelect flips selection for one product. Absent products are a no-op.
func (q *RecommendationQueue) ToggleSelect(productId int) {
	if _, ok := q.byProduct[productId]; !ok {
		return
	}
	if q.selected[productId] {
		delete(q.selected, productId)
	} else {
		q.selected[productId] = true
	}
	q.recompute()
}

// UpdateQuantity sets the draft quantity override for one product.
func (q *RecommendationQueue) UpdateQuantity(productId int, qty float64) {
	if _, ok := q.byProduct[productId]; !ok {
		return
	}
	q.overrides[productId] = normalizeQty(qty)
	q.recompute()
}

// SelectAllVisible selects every selectable line (recommended qty > 0).
// Returns false when nothing qualifies, so the caller can report a no-op
// instead of silently selecting nothing.
func (q *RecommendationQueue) SelectAllVisible() bool {
	any := false
	for _, line := range q.lines {
		if line.RecommendedQty > 0 {
			q.selected[line.ProductId] = true
			any = true
		}
	}
	if any {
		q.recompute()
	}
	return any
}

// ClearAll drops every selection. Returns false when nothing was selected,
// so the caller can report a no-op instead of pretending to clear.
func (q *RecommendationQueue) ClearAll() bool {
	if len(q.selected) == 0 {
		return false
	}
	q.selected = map[int]bool{}
	q.recompute()
	return true
}

func (q *RecommendationQueue) recompute() {
	totals := SelectionTotals{}
	for _, line := range q.lines {
		if !q.selected[line.ProductId] {
			continue
		}
		qty := q.DraftQty(line.ProductId)
		totals.LineCount++
		totals.TotalUnits += qty
		totals.TotalCost = totals.TotalCost.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(qty))))
	}
	q.totals = totals
}

// SelectedDraftLines materializes the current selection as builder input,
// in the queue's line order.
func (q *RecommendationQueue) SelectedDraftLines() []models.DraftOrderLine {
	var out []models.DraftOrderLine
	for _, line := range q.lines {
		if !q.selected[line.ProductId] {
			continue
		}
		out = append(out, models.DraftOrderLine{
			ProductId:  line.ProductId,
			Quantity:   q.DraftQty(line.ProductId),
			VendorId:   line.VendorId,
			VendorName: line.VendorName,
			UnitCost:   line.UnitCost,
		})
	}
	return out
}

// BuildDraftOrders submits the current selection to the draft builder.
// Empty selection fails before any service call. Selection state is cleared
// only after the service reports success; the caller then reloads the
// recommendation view to pick up the new on-order figures.
func (q *RecommendationQueue) BuildDraftOrders(ctx context.Context, svc Service, source string, department string) (*models.DraftPurchaseOrdersResult, error) {
	lines := q.SelectedDraftLines()
	if len(lines) == 0 {
		return nil, errors.New("no lines selected")
	}

	result, err := svc.CreateDraftPurchaseOrders(ctx, &models.NewDraftPurchaseOrders{
		OutletId:   q.OutletId,
		Source:     source,
		Department: department,
		Lines:      lines,
	})
	if err != nil {
		return nil, err
	}

	q.ClearAll()
	return result, nil
}
