package purchasing

import (
	"context"
	"math"
	"testing"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

func recLine(productId int, recommended int, cost string) *models.RecommendationLine {
	c, err := decimal.NewFromString(cost)
	if err != nil {
		panic(err)
	}
	return &models.RecommendationLine{
		ProductId:      productId,
		RecommendedQty: recommended,
		UnitCost:       c,
	}
}

func TestNormalizeQty(t *testing.T) {
	cases := []struct {
		in       float64
		expected int
	}{
		{12, 12},
		{-3, 1},
		{0, 1},
		{0.4, 1},
		{7.9, 7},
		{math.NaN(), 1},
		{math.Inf(1), 1},
		{math.Inf(-1), 1},
	}
	for _, tc := range cases {
		if got := normalizeQty(tc.in); got != tc.expected {
			t.Fatalf("normalizeQty(%v) expected %d, got %d", tc.in, tc.expected, got)
		}
	}
}

func TestQueueToggleAndTotals(t *testing.T) {
	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{
		recLine(10, 5, "2"),
		recLine(11, 3, "4"),
	})

	q.ToggleSelect(10)
	q.ToggleSelect(11)
	totals := q.Totals()
	if totals.LineCount != 2 || totals.TotalUnits != 8 {
		t.Fatalf("expected 2 lines / 8 units, got %d / %d", totals.LineCount, totals.TotalUnits)
	}
	if totals.TotalCost.String() != "22" {
		t.Fatalf("expected total cost 22, got %s", totals.TotalCost.String())
	}

	q.ToggleSelect(11)
	if q.IsSelected(11) {
		t.Fatalf("second toggle must deselect")
	}
	if q.Totals().LineCount != 1 {
		t.Fatalf("totals must recompute after deselect")
	}

	// Unknown product is a no-op.
	q.ToggleSelect(999)
	if q.Totals().LineCount != 1 {
		t.Fatalf("toggling an absent product must not change state")
	}
}

func TestQueueUpdateQuantityNormalizes(t *testing.T) {
	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{recLine(10, 12, "1")})

	q.UpdateQuantity(10, -3)
	if q.DraftQty(10) != 1 {
		t.Fatalf("negative override must normalize to 1, got %d", q.DraftQty(10))
	}

	q.UpdateQuantity(10, 6.7)
	if q.DraftQty(10) != 6 {
		t.Fatalf("fractional override must floor, got %d", q.DraftQty(10))
	}
}

func TestQueueSelectAllVisible(t *testing.T) {
	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{
		recLine(10, 5, "1"),
		recLine(11, 0, "1"),
	})

	if !q.SelectAllVisible() {
		t.Fatalf("expected select-all to report lines selected")
	}
	if !q.IsSelected(10) {
		t.Fatalf("selectable line must be selected")
	}
	if q.IsSelected(11) {
		t.Fatalf("zero-recommendation line is not selectable")
	}

	q.Refresh([]*models.RecommendationLine{recLine(12, 0, "1")})
	if q.SelectAllVisible() {
		t.Fatalf("expected no-op report when nothing is selectable")
	}
}

func TestQueueClearAllReportsNoOp(t *testing.T) {
	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{recLine(10, 5, "1")})

	if q.ClearAll() {
		t.Fatalf("clearing an empty selection must report a no-op")
	}

	q.ToggleSelect(10)
	if !q.ClearAll() {
		t.Fatalf("clearing a non-empty selection must report it cleared")
	}
	if q.Totals().LineCount != 0 || q.IsSelected(10) {
		t.Fatalf("selection must be empty after clear")
	}
}

func TestQueueRefreshMergesSelectionState(t *testing.T) {
	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{
		recLine(10, 5, "1"),
		recLine(11, 3, "1"),
	})
	q.ToggleSelect(10)
	q.ToggleSelect(11)
	q.UpdateQuantity(10, 9)

	// Product 11 disappears; product 10 survives with its override.
	q.Refresh([]*models.RecommendationLine{
		recLine(10, 7, "1"),
		recLine(12, 2, "1"),
	})

	if !q.IsSelected(10) {
		t.Fatalf("surviving product must stay selected")
	}
	if q.IsSelected(11) {
		t.Fatalf("dropped product must lose its selection")
	}
	if q.DraftQty(10) != 9 {
		t.Fatalf("surviving product must keep its override, got %d", q.DraftQty(10))
	}
	if q.DraftQty(12) != 2 {
		t.Fatalf("new product must default to its recommended qty, got %d", q.DraftQty(12))
	}
}

func TestQueueBuildDraftOrders(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{}

	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{recLine(10, 5, "2")})

	// Empty selection fails before any service call.
	if _, err := q.BuildDraftOrders(ctx, svc, "reorder", ""); err == nil {
		t.Fatalf("empty selection must be rejected")
	}
	if len(svc.createdDrafts) != 0 {
		t.Fatalf("no service call expected on validation failure")
	}

	q.ToggleSelect(10)
	q.UpdateQuantity(10, 8)
	result, err := q.BuildDraftOrders(ctx, svc, "reorder", "Grocery")
	if err != nil {
		t.Fatalf("BuildDraftOrders: %v", err)
	}
	if result == nil || len(svc.createdDrafts) != 1 {
		t.Fatalf("expected one create call")
	}
	sent := svc.createdDrafts[0]
	if sent.OutletId != 1 || sent.Source != "reorder" || len(sent.Lines) != 1 || sent.Lines[0].Quantity != 8 {
		t.Fatalf("unexpected draft payload: %+v", sent)
	}
	if q.Totals().LineCount != 0 {
		t.Fatalf("selection must clear after successful build")
	}
}

func TestQueueBuildDraftOrdersKeepsSelectionOnError(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{draftErr: errTest}

	q := NewRecommendationQueue(1)
	q.Refresh([]*models.RecommendationLine{recLine(10, 5, "2")})
	q.ToggleSelect(10)

	if _, err := q.BuildDraftOrders(ctx, svc, "reorder", ""); err == nil {
		t.Fatalf("expected service error to propagate")
	}
	if !q.IsSelected(10) {
		t.Fatalf("selection must survive a failed build")
	}
}
