package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// UnassignedVendorName is the bucket for draft lines whose product carries no
// vendor reference. They still have to land on some order so the buyer can
// assign a vendor later.
const UnassignedVendorName = "Unassigned Vendor"

// PurchaseOrder is an invoice specialization: a vendor-directed order whose
// lines track how much of the ordered quantity is still outstanding. The
// order is open while any line has remaining_qty > 0 and closed once all
// lines reach zero; closure is derived, never a delete.
type PurchaseOrder struct {
	ID            int                   `gorm:"primary_key" json:"id"`
	BusinessId    string                `gorm:"index;not null" json:"business_id" binding:"required"`
	OutletId      int                   `gorm:"index;not null" json:"outlet_id" binding:"required"`
	VendorId      int                   `gorm:"index;default:null" json:"vendor_id"`
	VendorName    string                `gorm:"size:255;not null" json:"vendor_name"`
	OrderNumber   string                `gorm:"size:255;not null" json:"order_number"`
	SequenceNo    int64                 `gorm:"not null;default:0" json:"sequence_no"`
	Source        string                `gorm:"size:100;default:null" json:"source"`
	Department    string                `gorm:"size:100;default:null" json:"department"`
	PaymentStatus PaymentStatus         `gorm:"type:enum('Paid','Unpaid');not null;default:'Unpaid'" json:"payment_status"`
	PaymentDate   *time.Time            `gorm:"default:null" json:"payment_date"`
	Details       []PurchaseOrderDetail `gorm:"foreignKey:PurchaseOrderId" json:"purchase_order_details"`
	CreatedAt     time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderDetail struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	Name            string          `gorm:"size:255;not null" json:"name"`
	Description     string          `gorm:"size:255;default:null" json:"description"`
	OrderedQty      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	RemainingQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"remaining_quantity"`
	CostPrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
}

// IsClosed reports whether every line has been fully received.
func (po *PurchaseOrder) IsClosed() bool {
	for _, detail := range po.Details {
		if detail.RemainingQty.IsPositive() {
			return false
		}
	}
	return true
}

// OpenLineCount counts lines that still expect goods.
func (po *PurchaseOrder) OpenLineCount() int {
	n := 0
	for _, detail := range po.Details {
		if detail.RemainingQty.IsPositive() {
			n++
		}
	}
	return n
}

type NewDraftPurchaseOrders struct {
	OutletId   int              `json:"outlet_id" binding:"required"`
	Source     string           `json:"source"`
	Department string           `json:"department"`
	Lines      []DraftOrderLine `json:"lines" binding:"required"`
}

type DraftOrderLine struct {
	ProductId  int             `json:"product_id" binding:"required"`
	Quantity   int             `json:"quantity" binding:"required"`
	VendorId   int             `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

type DraftPurchaseOrdersResult struct {
	CreatedOrderIds []int  `json:"created_order_ids"`
	Message         string `json:"message"`
}

type vendorGroup struct {
	vendorId   int
	vendorName string
	lines      []DraftOrderLine
}

// groupDraftLinesByVendor buckets lines per vendor, preserving first-seen
// vendor order. Lines without a vendor id share the unassigned bucket.
func groupDraftLinesByVendor(lines []DraftOrderLine) []vendorGroup {
	index := map[int]int{}
	var groups []vendorGroup
	for _, line := range lines {
		pos, ok := index[line.VendorId]
		if !ok {
			name := line.VendorName
			if line.VendorId == 0 {
				name = UnassignedVendorName
			} else if name == "" {
				name = fmt.Sprintf("Vendor #%d", line.VendorId)
			}
			pos = len(groups)
			index[line.VendorId] = pos
			groups = append(groups, vendorGroup{vendorId: line.VendorId, vendorName: name})
		}
		groups[pos].lines = append(groups[pos].lines, line)
	}
	return groups
}

func validateDraftLines(lines []DraftOrderLine) error {
	if len(lines) == 0 {
		return errors.New("at least one line must be selected")
	}
	for _, line := range lines {
		if line.ProductId <= 0 {
			return errors.New("line product id is required")
		}
		if line.Quantity < 1 {
			return errors.New("line quantity must be at least 1")
		}
		if line.UnitCost.IsNegative() {
			return errors.New("line unit cost cannot be negative")
		}
	}
	return nil
}

func (input NewDraftPurchaseOrders) validate(ctx context.Context, businessId string) error {
	if err := validateDraftLines(input.Lines); err != nil {
		return err
	}
	return validateOutletExists(ctx, businessId, input.OutletId)
}

// CreateDraftPurchaseOrders turns the selected recommendation lines into one
// purchase order per vendor, all-or-nothing: every order is created in the
// same transaction, with ordered_qty = remaining_qty = quantity on each line,
// and the outlet cache's on-order figures bumped to match.
func CreateDraftPurchaseOrders(ctx context.Context, input *NewDraftPurchaseOrders) (*DraftPurchaseOrdersResult, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	groups := groupDraftLinesByVendor(input.Lines)

	tx := db.Begin()

	var createdIds []int
	for _, group := range groups {
		orderNumber, seqNo, err := nextOrderNumber[PurchaseOrder](ctx, businessId, "PO-")
		if err != nil {
			tx.Rollback()
			return nil, err
		}

		order := PurchaseOrder{
			BusinessId:    businessId,
			OutletId:      input.OutletId,
			VendorId:      group.vendorId,
			VendorName:    group.vendorName,
			OrderNumber:   orderNumber,
			SequenceNo:    seqNo,
			Source:        input.Source,
			Department:    input.Department,
			PaymentStatus: PaymentStatusUnpaid,
		}
		for _, line := range group.lines {
			qty := decimal.NewFromInt(int64(line.Quantity))
			name, description := draftLineNaming(tx.WithContext(ctx), businessId, input.OutletId, line.ProductId)
			order.Details = append(order.Details, PurchaseOrderDetail{
				ProductId:    line.ProductId,
				Name:         name,
				Description:  description,
				OrderedQty:   qty,
				RemainingQty: qty,
				CostPrice:    line.UnitCost,
			})
		}

		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			tx.Rollback()
			return nil, err
		}

		for _, line := range group.lines {
			qty := decimal.NewFromInt(int64(line.Quantity))
			if err := adjustProductOnOrderQty(tx, ctx, businessId, input.OutletId, line.ProductId, qty); err != nil {
				tx.Rollback()
				return nil, err
			}
		}

		createdIds = append(createdIds, order.ID)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger := config.GetLogger()
	logger.WithFields(logrus.Fields{
		"module":         "purchaseOrder",
		"business_id":    businessId,
		"outlet_id":      input.OutletId,
		"source":         input.Source,
		"orders_created": len(createdIds),
		"lines":          len(input.Lines),
		"correlation_id": correlationIdFromContextOrNew(ctx),
	}).Info("draft purchase orders created")

	return &DraftPurchaseOrdersResult{
		CreatedOrderIds: createdIds,
		Message:         fmt.Sprintf("Created %d purchase order(s) from %d line(s)", len(createdIds), len(input.Lines)),
	}, nil
}

// draftLineNaming resolves the display name/description from the cached
// product row; a product missing from the cache still orders fine with a
// placeholder name.
func draftLineNaming(dbCtx *gorm.DB, businessId string, outletId int, productId int) (string, string) {
	var product Product
	err := dbCtx.Where("business_id = ? AND outlet_id = ?", businessId, outletId).
		First(&product, productId).Error
	if err != nil {
		return fmt.Sprintf("Product #%d", productId), ""
	}
	return product.Name, product.Sku
}

// GetPurchaseOrder reads one order with its lines, via the redis object
// cache. The cache is invalidated on every goods receipt; receiving itself
// always reads the row inside its transaction, never this cache.
func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if cached, err := utils.RetrieveRedis[PurchaseOrder](id); err == nil && cached != nil && cached.BusinessId == businessId {
		return cached, nil
	}

	order, err := utils.FetchModel[PurchaseOrder](ctx, businessId, id, "Details")
	if err != nil {
		return nil, err
	}
	_ = utils.StoreRedis[PurchaseOrder](order, order.ID)
	return order, nil
}

// ListOpenPurchaseOrders returns orders that still have at least one line
// with remaining quantity, newest first. Fully received orders drop out of
// this view; they stay queryable by id.
func ListOpenPurchaseOrders(ctx context.Context, outletId int) ([]*PurchaseOrder, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var orders []*PurchaseOrder
	err := db.WithContext(ctx).Preload("Details").
		Where("business_id = ? AND outlet_id = ?", businessId, outletId).
		Where("id IN (?)", db.Model(&PurchaseOrderDetail{}).
			Select("purchase_order_id").
			Where("remaining_qty > 0")).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
