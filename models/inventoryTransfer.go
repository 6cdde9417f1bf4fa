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
)

// InventoryTransfer moves stock between two outlets of the same business.
// The stock guard runs once, at submission, against the source outlet's
// cached on-hand figures; the transfer itself is a two-state record
// (Requested then Received) with no partial fulfilment.
type InventoryTransfer struct {
	ID             int                       `gorm:"primary_key" json:"id"`
	BusinessId     string                    `gorm:"index;not null" json:"business_id" binding:"required"`
	FromOutletId   int                       `gorm:"index;not null" json:"from_outlet_id" binding:"required"`
	ToOutletId     int                       `gorm:"index;not null" json:"to_outlet_id" binding:"required"`
	TransferNumber string                    `gorm:"size:255;not null" json:"transfer_number"`
	SequenceNo     int64                     `gorm:"not null;default:0" json:"sequence_no"`
	Status         TransferStatus            `gorm:"type:enum('Requested','Received');not null;default:'Requested'" json:"status"`
	TransferReason string                    `gorm:"size:255;default:null" json:"transfer_reason"`
	Note           string                    `gorm:"size:255;default:null" json:"note"`
	RequestedBy    string                    `gorm:"size:255;default:null" json:"requested_by"`
	RequestedAt    time.Time                 `gorm:"autoCreateTime" json:"requested_at"`
	ReceivedAt     *time.Time                `gorm:"default:null" json:"received_at"`
	Details        []InventoryTransferDetail `gorm:"foreignKey:InventoryTransferId" json:"inventory_transfer_details"`
	CreatedAt      time.Time                 `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                 `gorm:"autoUpdateTime" json:"updated_at"`
}

type InventoryTransferDetail struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	InventoryTransferId int             `gorm:"index;not null" json:"inventory_transfer_id"`
	ProductId           int             `gorm:"index;not null" json:"product_id"`
	Name                string          `gorm:"size:255;not null" json:"name"`
	Quantity            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	UnitCost            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
}

// TotalItems sums the requested quantity across all lines.
func (it *InventoryTransfer) TotalItems() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range it.Details {
		total = total.Add(detail.Quantity)
	}
	return total
}

// TotalValue sums quantity times unit cost across all lines, priced at the
// cached cost captured when the transfer was requested.
func (it *InventoryTransfer) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, detail := range it.Details {
		total = total.Add(detail.Quantity.Mul(detail.UnitCost))
	}
	return total
}

type NewInventoryTransfer struct {
	FromOutletId   int               `json:"from_outlet_id" binding:"required"`
	ToOutletId     int               `json:"to_outlet_id" binding:"required"`
	TransferReason string            `json:"transfer_reason"`
	Note           string            `json:"note"`
	CacheVersion   int64             `json:"cache_version"`
	Lines          []NewTransferLine `json:"lines" binding:"required"`
}

type NewTransferLine struct {
	ProductId int `json:"product_id" binding:"required"`
	Quantity  int `json:"quantity" binding:"required"`
}

type InventoryTransfersPage struct {
	Items    []*InventoryTransfer `json:"items"`
	PageInfo PageInfo             `json:"pageInfo"`
}

func validateTransferLines(lines []NewTransferLine) error {
	if len(lines) == 0 {
		return errors.New("at least one line is required")
	}
	seen := map[int]bool{}
	for _, line := range lines {
		if line.ProductId <= 0 {
			return errors.New("line product id is required")
		}
		if line.Quantity < 1 {
			return errors.New("line quantity must be at least 1")
		}
		if seen[line.ProductId] {
			return errors.New("duplicate product in transfer lines")
		}
		seen[line.ProductId] = true
	}
	return nil
}

func (input NewInventoryTransfer) validate(ctx context.Context, businessId string) error {
	if input.FromOutletId == input.ToOutletId {
		return errors.New("source and destination outlet must differ")
	}
	if err := validateTransferLines(input.Lines); err != nil {
		return err
	}
	if err := validateOutletExists(ctx, businessId, input.FromOutletId); err != nil {
		return errors.New("source outlet not found")
	}
	if err := validateOutletExists(ctx, businessId, input.ToOutletId); err != nil {
		return errors.New("destination outlet not found")
	}
	return nil
}

// CreateInventoryTransfer submits a transfer request. The whole request is
// rejected if any line asks for more than the source outlet currently has on
// hand; the error names the first offending product. On success the source
// outlet's cached on-hand figures are decremented optimistically, guarded by
// the cache version the submitter observed (a concurrent catalog sync wins).
func CreateInventoryTransfer(ctx context.Context, input *NewInventoryTransfer) (*InventoryTransfer, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId); err != nil {
		return nil, err
	}

	tx := db.Begin()

	// Stock guard: every line checked before anything is written.
	names := map[int]string{}
	costs := map[int]decimal.Decimal{}
	for _, line := range input.Lines {
		var product Product
		err := tx.WithContext(ctx).
			Where("business_id = ? AND outlet_id = ?", businessId, input.FromOutletId).
			First(&product, line.ProductId).Error
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("product #%d not found at source outlet", line.ProductId)
		}
		names[line.ProductId] = product.Name
		costs[line.ProductId] = product.UnitCost

		qty := decimal.NewFromInt(int64(line.Quantity))
		if product.OnHandQty.LessThan(qty) {
			tx.Rollback()
			return nil, fmt.Errorf("insufficient stock for %s: %s on hand, %d requested",
				product.Name, product.OnHandQty.String(), line.Quantity)
		}
	}

	transferNumber, seqNo, err := nextOrderNumber[InventoryTransfer](ctx, businessId, "TRF-")
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	userName, _ := utils.GetUserNameFromContext(ctx)
	transfer := InventoryTransfer{
		BusinessId:     businessId,
		FromOutletId:   input.FromOutletId,
		ToOutletId:     input.ToOutletId,
		TransferNumber: transferNumber,
		SequenceNo:     seqNo,
		Status:         TransferStatusRequested,
		TransferReason: input.TransferReason,
		Note:           input.Note,
		RequestedBy:    userName,
	}
	for _, line := range input.Lines {
		transfer.Details = append(transfer.Details, InventoryTransferDetail{
			ProductId: line.ProductId,
			Name:      names[line.ProductId],
			Quantity:  decimal.NewFromInt(int64(line.Quantity)),
			UnitCost:  costs[line.ProductId],
		})
	}

	if err := tx.WithContext(ctx).Create(&transfer).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, line := range input.Lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		affected, err := ApplyOptimisticOnHandDecrement(tx, ctx, businessId, input.FromOutletId, line.ProductId, qty, input.CacheVersion)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if affected == 0 {
			// Cache re-baselined by a sync between read and submit, or stock
			// dropped below the requested amount. The transfer record still
			// stands; the synced truth owns the figure now.
			onHand, _ := GetProductOnHand(tx, ctx, businessId, input.FromOutletId, line.ProductId)
			logger.WithFields(logrus.Fields{
				"module":        "inventoryTransfer",
				"business_id":   businessId,
				"outlet_id":     input.FromOutletId,
				"product_id":    line.ProductId,
				"cache_version": input.CacheVersion,
				"on_hand_qty":   onHand.String(),
			}).Warn("skipped optimistic on-hand decrement, cache version moved")
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"module":          "inventoryTransfer",
		"business_id":     businessId,
		"from_outlet_id":  input.FromOutletId,
		"to_outlet_id":    input.ToOutletId,
		"transfer_number": transferNumber,
		"lines":           len(input.Lines),
		"correlation_id":  correlationIdFromContextOrNew(ctx),
	}).Info("inventory transfer requested")

	return &transfer, nil
}

// MarkInventoryTransferReceived moves a transfer from Requested to Received.
// Received is terminal.
func MarkInventoryTransferReceived(ctx context.Context, transferId int) (*InventoryTransfer, error) {
	db := config.GetDB()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	tx := db.Begin()

	var transfer InventoryTransfer
	err := tx.WithContext(ctx).Preload("Details").
		Where("business_id = ?", businessId).
		First(&transfer, transferId).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if transfer.Status.IsFulfilled() {
		tx.Rollback()
		return nil, errors.New("transfer is already received")
	}

	now := time.Now()
	err = tx.WithContext(ctx).Model(&InventoryTransfer{}).
		Where("id = ? AND business_id = ?", transfer.ID, businessId).
		Updates(map[string]interface{}{
			"status":      TransferStatusReceived,
			"received_at": &now,
		}).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	transfer.Status = TransferStatusReceived
	transfer.ReceivedAt = &now
	return &transfer, nil
}

// GetInventoryTransfers lists transfers touching one outlet (as source or
// destination), newest first.
func GetInventoryTransfers(ctx context.Context, outletId int, page, size int) (*InventoryTransfersPage, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	page, size, offset := NormalizePage(page, size)

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&InventoryTransfer{}).
		Where("business_id = ?", businessId).
		Where("from_outlet_id = ? OR to_outlet_id = ?", outletId, outletId)

	var total int64
	if err := dbCtx.Count(&total).Error; err != nil {
		return nil, err
	}

	var items []*InventoryTransfer
	err := dbCtx.Preload("Details").
		Order("requested_at DESC").Offset(offset).Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	return &InventoryTransfersPage{
		Items:    items,
		PageInfo: PageInfo{Page: page, Size: size, Total: total},
	}, nil
}
