package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type SyncResult struct {
	OutletId     int   `json:"outlet_id"`
	ItemsSynced  int   `json:"items_synced"`
	Deactivated  int64 `json:"deactivated"`
	CacheVersion int64 `json:"cache_version"`
	FullSync     bool  `json:"full_sync"`
}

func lastSyncKey(businessId string, outletId int) string {
	return fmt.Sprintf("catalog:last_sync:%s:%d", businessId, outletId)
}

// SyncProductCatalog pulls the outlet's catalog from the POS and rewrites the
// product cache. Incremental by default (items updated since the last run);
// forceFull re-pulls everything and deactivates cached rows the POS no longer
// returns. Every row written by one run carries the same, freshly bumped
// cache version, so optimistic local mutations computed against the previous
// version are rejected (see models.ApplyOptimisticOnHandDecrement).
func SyncProductCatalog(ctx context.Context, outletId int, forceFull bool) (*SyncResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	client, err := newCatalogClient()
	if err != nil {
		return nil, err
	}

	currentVersion, err := models.OutletCacheVersion(ctx, outletId)
	if err != nil {
		return nil, err
	}
	newVersion := currentVersion + 1

	updatedSince := ""
	if !forceFull {
		if v, ok, err := config.GetRedisValue(lastSyncKey(businessId, outletId)); err == nil && ok {
			updatedSince = v
		}
	}
	startedAt := time.Now()

	synced := 0
	cursor := ""
	for {
		page, err := client.listItems(ctx, fmt.Sprint(outletId), cursor, updatedSince)
		if err != nil {
			return nil, err
		}
		for i := range page.Items {
			if err := upsertCatalogItem(ctx, db, businessId, outletId, &page.Items[i], newVersion); err != nil {
				config.LogError(logger, "catalogsync", "SyncProductCatalog", "upsert item", page.Items[i].ID, err)
				return nil, err
			}
			synced++
		}
		if page.NextCursor == "" || (page.HasMore != nil && !*page.HasMore) {
			break
		}
		cursor = page.NextCursor
	}

	// On a full pull, anything the POS stopped returning is gone from the
	// catalog: deactivate it rather than delete, open orders may still
	// reference it.
	var deactivated int64
	if forceFull {
		res := db.WithContext(ctx).Model(&models.Product{}).
			Where("business_id = ? AND outlet_id = ? AND cache_version < ?", businessId, outletId, newVersion).
			Updates(map[string]interface{}{"is_active": false, "cache_version": newVersion})
		if res.Error != nil {
			return nil, res.Error
		}
		deactivated = res.RowsAffected
	}

	if err := config.SetRedisValue(lastSyncKey(businessId, outletId), startedAt.UTC().Format(time.RFC3339), 0); err != nil {
		config.LogError(logger, "catalogsync", "SyncProductCatalog", "store last sync marker", outletId, err)
	}

	logger.WithFields(logrus.Fields{
		"module":        "catalogsync",
		"business_id":   businessId,
		"outlet_id":     outletId,
		"items_synced":  synced,
		"deactivated":   deactivated,
		"cache_version": newVersion,
		"full_sync":     forceFull,
	}).Info("product catalog synced")

	return &SyncResult{
		OutletId:     outletId,
		ItemsSynced:  synced,
		Deactivated:  deactivated,
		CacheVersion: newVersion,
		FullSync:     forceFull,
	}, nil
}

func upsertCatalogItem(ctx context.Context, db *gorm.DB, businessId string, outletId int, item *catalogItem, version int64) error {
	unitCost, err := utils.ParseDecimal(item.CostPrice.String())
	if err != nil {
		unitCost = decimal.Zero
	}
	sellingPrice, err := utils.ParseDecimal(item.SellingPrice.String())
	if err != nil {
		sellingPrice = decimal.Zero
	}
	onHand, err := utils.ParseDecimal(item.OnHand.String())
	if err != nil {
		onHand = decimal.Zero
	}
	onOrder, err := utils.ParseDecimal(item.OnOrder.String())
	if err != nil {
		onOrder = decimal.Zero
	}
	soldPeriod, err := utils.ParseDecimal(item.QtySoldPeriod.String())
	if err != nil {
		soldPeriod = decimal.Zero
	}
	avgDaily, err := utils.ParseDecimal(item.AvgDailySales.String())
	if err != nil {
		avgDaily = decimal.Zero
	}

	now := time.Now()
	isActive := item.Active
	fields := map[string]interface{}{
		"sku":             item.Sku,
		"name":            item.Name,
		"department":      item.Department,
		"vendor_id":       item.VendorId,
		"vendor_name":     item.VendorName,
		"unit_cost":       unitCost,
		"selling_price":   sellingPrice,
		"on_hand_qty":     onHand,
		"on_order_qty":    onOrder,
		"qty_sold_period": soldPeriod,
		"avg_daily_sales": avgDaily,
		"is_active":       isActive,
		"cache_version":   version,
		"synced_at":       &now,
	}

	var existing models.Product
	err = db.WithContext(ctx).
		Where("business_id = ? AND outlet_id = ? AND external_id = ?", businessId, outletId, item.ID).
		First(&existing).Error
	if err == nil {
		return db.WithContext(ctx).Model(&models.Product{}).
			Where("id = ?", existing.ID).
			Updates(fields).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	product := models.Product{
		BusinessId:    businessId,
		OutletId:      outletId,
		ExternalId:    item.ID,
		Sku:           item.Sku,
		Name:          item.Name,
		Department:    item.Department,
		VendorId:      item.VendorId,
		VendorName:    item.VendorName,
		UnitCost:      unitCost,
		SellingPrice:  sellingPrice,
		OnHandQty:     onHand,
		OnOrderQty:    onOrder,
		QtySoldPeriod: soldPeriod,
		AvgDailySales: avgDaily,
		IsActive:      &isActive,
		CacheVersion:  version,
		SyncedAt:      &now,
	}
	return db.WithContext(ctx).Create(&product).Error
}
