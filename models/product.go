package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is the outlet-scoped cached catalog entry written by the catalog
// sync worker. On-hand/on-order figures here are a cache of the external
// catalog's truth, not a ledger: the sync overwrites them wholesale and bumps
// CacheVersion, so any optimistic local mutation must carry the version it
// was computed against (see ApplyOptimisticOnHandDecrement).
type Product struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"index:idx_products_outlet;not null" json:"business_id" binding:"required"`
	OutletId      int             `gorm:"index:idx_products_outlet;not null" json:"outlet_id" binding:"required"`
	ExternalId    string          `gorm:"size:100;index" json:"external_id"`
	Sku           string          `gorm:"size:100" json:"sku"`
	Name          string          `gorm:"size:255;not null" json:"name" binding:"required"`
	Department    string          `gorm:"size:100;default:null" json:"department"`
	VendorId      int             `gorm:"index;default:null" json:"vendor_id"`
	VendorName    string          `gorm:"size:255;default:null" json:"vendor_name"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	SellingPrice  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"selling_price"`
	OnHandQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"on_hand_qty"`
	OnOrderQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"on_order_qty"`
	QtySoldPeriod decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_sold_period"`
	AvgDailySales decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"avg_daily_sales"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CacheVersion  int64           `gorm:"not null;default:0" json:"cache_version"`
	SyncedAt      *time.Time      `gorm:"default:null" json:"synced_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ProductsPage struct {
	Items    []*Product `json:"items"`
	PageInfo PageInfo   `json:"pageInfo"`
}

func GetCachedProducts(ctx context.Context, outletId int, activeOnly bool, page, size int) (*ProductsPage, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	page, size, offset := NormalizePage(page, size)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Product{}).
		Where("business_id = ? AND outlet_id = ?", businessId, outletId)
	if activeOnly {
		dbCtx = dbCtx.Where("is_active = ?", true)
	}

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []*Product
	if err := dbCtx.Order("name ASC").Offset(offset).Limit(size).Find(&items).Error; err != nil {
		return nil, err
	}

	return &ProductsPage{
		Items:    items,
		PageInfo: PageInfo{Page: page, Size: size, Total: total},
	}, nil
}

func GetProduct(ctx context.Context, outletId int, productId int) (*Product, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var product Product
	err := db.WithContext(ctx).
		Where("business_id = ? AND outlet_id = ?", businessId, outletId).
		First(&product, productId).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &product, nil
}

// return current stock on hand for one cached product
func GetProductOnHand(tx *gorm.DB, ctx context.Context, businessId string, outletId int, productId int) (decimal.Decimal, error) {
	currentStock := decimal.Zero
	err := tx.WithContext(ctx).Model(&Product{}).
		Where("business_id = ? AND outlet_id = ? AND id = ?", businessId, outletId, productId).
		Select("on_hand_qty").Scan(&currentStock).Error
	if err != nil {
		return currentStock, err
	}
	return currentStock, nil
}

// adjustProductOnOrderQty shifts the cached "on order" figure when draft
// purchase orders are placed (delta > 0) or goods are received (delta < 0).
// The cached figure is floored at zero; the next catalog sync re-baselines it.
func adjustProductOnOrderQty(tx *gorm.DB, ctx context.Context, businessId string, outletId int, productId int, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	return tx.WithContext(ctx).Model(&Product{}).
		Where("business_id = ? AND outlet_id = ? AND id = ?", businessId, outletId, productId).
		Update("on_order_qty", gorm.Expr("GREATEST(on_order_qty + ?, 0)", delta)).Error
}

// ApplyOptimisticOnHandDecrement applies the transfer manager's best-effort
// local stock decrement. When the guard is on, the write lands only if the
// row's CacheVersion still matches what the submitter observed; a row the
// catalog sync has re-baselined since then keeps the synced truth instead.
// Returns the number of rows actually decremented.
func ApplyOptimisticOnHandDecrement(tx *gorm.DB, ctx context.Context, businessId string, outletId int, productId int, qty decimal.Decimal, observedVersion int64) (int64, error) {
	if qty.LessThanOrEqual(decimal.Zero) {
		return 0, nil
	}
	dbCtx := tx.WithContext(ctx).Model(&Product{}).
		Where("business_id = ? AND outlet_id = ? AND id = ?", businessId, outletId, productId).
		Where("on_hand_qty >= ?", qty)
	if config.GuardedStockDecrement() {
		dbCtx = dbCtx.Where("cache_version = ?", observedVersion)
	}
	res := dbCtx.Update("on_hand_qty", gorm.Expr("on_hand_qty - ?", qty))
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// OutletCacheVersion returns the highest cache version across the outlet's
// products: the snapshot identity a submitting operation should carry.
func OutletCacheVersion(ctx context.Context, outletId int) (int64, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return 0, errors.New("business id is required")
	}
	db := config.GetDB()
	var version int64
	err := db.WithContext(ctx).Model(&Product{}).
		Where("business_id = ? AND outlet_id = ?", businessId, outletId).
		Select("COALESCE(MAX(cache_version), 0)").Scan(&version).Error
	return version, err
}
