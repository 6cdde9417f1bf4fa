package models

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
)

// RecommendationLine is the per-product reorder suggestion. It is recomputed
// from the outlet product cache on every fetch and never persisted.
type RecommendationLine struct {
	ProductId      int              `json:"product_id"`
	Sku            string           `json:"sku"`
	Name           string           `json:"name"`
	Department     string           `json:"department"`
	VendorId       int              `json:"vendor_id"`
	VendorName     string           `json:"vendor_name"`
	OnHandQty      decimal.Decimal  `json:"on_hand_qty"`
	OnOrderQty     decimal.Decimal  `json:"on_order_qty"`
	QtySoldPeriod  decimal.Decimal  `json:"qty_sold_period"`
	AvgDailySales  decimal.Decimal  `json:"avg_daily_sales"`
	RecommendedQty int              `json:"recommended_qty"`
	UnitCost       decimal.Decimal  `json:"unit_cost"`
	IsLowStock     bool             `json:"is_low_stock"`
	StockoutRisk   bool             `json:"stockout_risk"`
	ReasonCodes    []ReasonCode     `json:"reason_codes"`
	DaysOfCover    *decimal.Decimal `json:"days_of_cover,omitempty"`
}

type RecommendationSummary struct {
	ItemCount         int             `json:"item_count"`
	TotalUnits        int             `json:"total_units"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	LowStockCount     int             `json:"low_stock_count"`
	StockoutRiskCount int             `json:"stockout_risk_count"`
}

type DepartmentSummary struct {
	Department string          `json:"department"`
	ItemCount  int             `json:"item_count"`
	TotalUnits int             `json:"total_units"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

type VendorSummary struct {
	VendorId   int             `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	ItemCount  int             `json:"item_count"`
	TotalUnits int             `json:"total_units"`
	TotalCost  decimal.Decimal `json:"total_cost"`
}

type RecommendationFilter struct {
	Mode       RecommendationMode `json:"mode"`
	Department string             `json:"department,omitempty"`
	VendorId   int                `json:"vendor_id,omitempty"`
}

type RecommendationResult struct {
	Items               []*RecommendationLine `json:"items"`
	Summary             RecommendationSummary `json:"summary"`
	DepartmentSummaries []*DepartmentSummary  `json:"department_summary"`
	VendorSummaries     []*VendorSummary      `json:"vendor_summary"`
	DraftPurchaseOrders []*PurchaseOrder      `json:"draft_purchase_orders"`
	CacheVersion        int64                 `json:"cache_version"`
}

// Reorder tuning. Lead time and cover window are business-wide knobs, not
// per-product master data (vendor master data is owned externally).
type reorderParams struct {
	leadTimeDays    decimal.Decimal
	targetCoverDays decimal.Decimal
	fastMoverMinQty decimal.Decimal
}

func loadReorderParams() reorderParams {
	return reorderParams{
		leadTimeDays:    decimal.NewFromInt(int64(intFromEnv("REORDER_LEAD_TIME_DAYS", 3))),
		targetCoverDays: decimal.NewFromInt(int64(intFromEnv("REORDER_TARGET_COVER_DAYS", 14))),
		fastMoverMinQty: decimal.NewFromInt(int64(intFromEnv("FAST_MOVER_MIN_DAILY_QTY", 5))),
	}
}

// buildRecommendationLine derives one suggestion from a cached product row.
//
// reorder point = avg daily sales * lead time
// recommended   = ceil(avg daily sales * target cover) - on hand - on order, floored at 0
// days of cover = on hand / avg daily sales (omitted when there are no sales)
func buildRecommendationLine(p *Product, params reorderParams) *RecommendationLine {
	line := &RecommendationLine{
		ProductId:     p.ID,
		Sku:           p.Sku,
		Name:          p.Name,
		Department:    p.Department,
		VendorId:      p.VendorId,
		VendorName:    p.VendorName,
		OnHandQty:     p.OnHandQty,
		OnOrderQty:    p.OnOrderQty,
		QtySoldPeriod: p.QtySoldPeriod,
		AvgDailySales: p.AvgDailySales,
		UnitCost:      p.UnitCost,
	}

	reorderPoint := p.AvgDailySales.Mul(params.leadTimeDays)
	targetQty := p.AvgDailySales.Mul(params.targetCoverDays).Ceil()
	recommended := targetQty.Sub(p.OnHandQty).Sub(p.OnOrderQty)
	if recommended.IsNegative() {
		recommended = decimal.Zero
	}
	line.RecommendedQty = int(recommended.Ceil().IntPart())

	if p.AvgDailySales.IsPositive() {
		cover := p.OnHandQty.DivRound(p.AvgDailySales, 2)
		line.DaysOfCover = &cover
	}

	if p.OnHandQty.LessThanOrEqual(reorderPoint) {
		line.IsLowStock = true
		line.ReasonCodes = append(line.ReasonCodes, ReasonCodeLowStock)
	}
	if p.AvgDailySales.GreaterThanOrEqual(params.fastMoverMinQty) {
		line.ReasonCodes = append(line.ReasonCodes, ReasonCodeFastMover)
	}
	// Projected to run out before replenishment can land: on hand plus what is
	// already inbound does not survive the lead time.
	if p.AvgDailySales.IsPositive() &&
		p.OnHandQty.Add(p.OnOrderQty).LessThan(p.AvgDailySales.Mul(params.leadTimeDays)) {
		line.StockoutRisk = true
		line.ReasonCodes = append(line.ReasonCodes, ReasonCodeStockoutRisk)
	}

	return line
}

func (line *RecommendationLine) matchesMode(mode RecommendationMode, params reorderParams) bool {
	switch mode {
	case RecommendationModeLowStock:
		return line.IsLowStock
	case RecommendationModeFastMovers:
		return line.AvgDailySales.GreaterThanOrEqual(params.fastMoverMinQty)
	default:
		return true
	}
}

// GetPurchasingRecommendations computes the recommendation queue content for
// one outlet. Read only. An unknown/empty outlet yields an empty result, not
// an error: the caller renders an empty state.
func GetPurchasingRecommendations(ctx context.Context, outletId int, filter RecommendationFilter) (*RecommendationResult, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if filter.Mode == "" {
		filter.Mode = RecommendationModeAll
	}
	if !filter.Mode.IsValid() {
		return nil, errors.New("invalid recommendation mode")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).
		Where("business_id = ? AND outlet_id = ? AND is_active = ?", businessId, outletId, true)
	if filter.Department != "" {
		dbCtx = dbCtx.Where("department = ?", filter.Department)
	}
	if filter.VendorId > 0 {
		dbCtx = dbCtx.Where("vendor_id = ?", filter.VendorId)
	}

	var products []*Product
	if err := dbCtx.Order("name ASC").Find(&products).Error; err != nil {
		return nil, err
	}

	params := loadReorderParams()
	result := &RecommendationResult{Items: []*RecommendationLine{}}
	for _, p := range products {
		line := buildRecommendationLine(p, params)
		if !line.matchesMode(filter.Mode, params) {
			continue
		}
		result.Items = append(result.Items, line)
		if p.CacheVersion > result.CacheVersion {
			result.CacheVersion = p.CacheVersion
		}
	}

	result.Summary, result.DepartmentSummaries, result.VendorSummaries = rollupRecommendations(result.Items)

	openOrders, err := ListOpenPurchaseOrders(ctx, outletId)
	if err != nil {
		return nil, err
	}
	result.DraftPurchaseOrders = openOrders

	return result, nil
}

// GetPurchasingAnalytics returns the rollups and open orders without the
// per-line queue content.
func GetPurchasingAnalytics(ctx context.Context, outletId int) (*RecommendationResult, error) {
	result, err := GetPurchasingRecommendations(ctx, outletId, RecommendationFilter{Mode: RecommendationModeAll})
	if err != nil {
		return nil, err
	}
	result.Items = nil
	return result, nil
}

func rollupRecommendations(items []*RecommendationLine) (RecommendationSummary, []*DepartmentSummary, []*VendorSummary) {
	var summary RecommendationSummary
	deptIndex := map[string]*DepartmentSummary{}
	vendorIndex := map[int]*VendorSummary{}
	var deptOrder []string
	var vendorOrder []int

	for _, line := range items {
		if line.RecommendedQty <= 0 {
			continue
		}
		lineCost := line.UnitCost.Mul(decimal.NewFromInt(int64(line.RecommendedQty)))

		summary.ItemCount++
		summary.TotalUnits += line.RecommendedQty
		summary.TotalCost = summary.TotalCost.Add(lineCost)
		if line.IsLowStock {
			summary.LowStockCount++
		}
		if line.StockoutRisk {
			summary.StockoutRiskCount++
		}

		dept, ok := deptIndex[line.Department]
		if !ok {
			dept = &DepartmentSummary{Department: line.Department}
			deptIndex[line.Department] = dept
			deptOrder = append(deptOrder, line.Department)
		}
		dept.ItemCount++
		dept.TotalUnits += line.RecommendedQty
		dept.TotalCost = dept.TotalCost.Add(lineCost)

		vendor, ok := vendorIndex[line.VendorId]
		if !ok {
			vendor = &VendorSummary{VendorId: line.VendorId, VendorName: line.VendorName}
			vendorIndex[line.VendorId] = vendor
			vendorOrder = append(vendorOrder, line.VendorId)
		}
		vendor.ItemCount++
		vendor.TotalUnits += line.RecommendedQty
		vendor.TotalCost = vendor.TotalCost.Add(lineCost)
	}

	depts := make([]*DepartmentSummary, 0, len(deptOrder))
	for _, name := range deptOrder {
		depts = append(depts, deptIndex[name])
	}
	vendors := make([]*VendorSummary, 0, len(vendorOrder))
	for _, id := range vendorOrder {
		vendors = append(vendors, vendorIndex[id])
	}
	return summary, depts, vendors
}
