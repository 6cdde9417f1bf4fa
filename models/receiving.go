package models

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReceivableLine is the receiving worksheet row for one open order line:
// receive quantity prefilled to the outstanding amount, cost prefilled from
// the order line.
type ReceivableLine struct {
	DetailId     int             `json:"detail_id"`
	ProductId    int             `json:"product_id"`
	Name         string          `json:"name"`
	OrderedQty   decimal.Decimal `json:"ordered_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	ReceiveQty   decimal.Decimal `json:"receive_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// ReceivingWorksheet is the server-computed starting state of a receiving
// session: the open lines plus a conflict token pinning the remainders the
// worksheet was built from.
type ReceivingWorksheet struct {
	OrderId       int               `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	VendorName    string            `json:"vendor_name"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	Lines         []*ReceivableLine `json:"lines"`
	Token         string            `json:"receiving_token"`
}

// receivingSnapshot is the decoded token payload: the remaining quantity of
// every open line at worksheet build time. A commit whose snapshot disagrees
// with the database means another device received against the same order in
// the meantime.
type receivingSnapshot struct {
	OrderId    int               `json:"order_id"`
	Remainders map[string]string `json:"remainders"`
	IssuedAt   int64             `json:"issued_at"`
}

func encodeReceivingToken(orderId int, details []PurchaseOrderDetail) (string, error) {
	snap := receivingSnapshot{
		OrderId:    orderId,
		Remainders: map[string]string{},
		IssuedAt:   time.Now().Unix(),
	}
	for _, detail := range details {
		if detail.RemainingQty.IsPositive() {
			snap.Remainders[fmt.Sprint(detail.ID)] = detail.RemainingQty.String()
		}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeReceivingToken(token string) (*receivingSnapshot, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.New("invalid receiving token")
	}
	var snap receivingSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errors.New("invalid receiving token")
	}
	return &snap, nil
}

// matches reports whether the order's current open remainders equal the ones
// the token was issued against.
func (snap *receivingSnapshot) matches(order *PurchaseOrder) bool {
	open := 0
	for _, detail := range order.Details {
		if !detail.RemainingQty.IsPositive() {
			continue
		}
		open++
		want, ok := snap.Remainders[fmt.Sprint(detail.ID)]
		if !ok {
			return false
		}
		wantQty, err := decimal.NewFromString(want)
		if err != nil || !wantQty.Equal(detail.RemainingQty) {
			return false
		}
	}
	return open == len(snap.Remainders)
}

// OpenPurchaseOrderForReceiving loads the order and builds the worksheet of
// still-outstanding lines. Fully received orders cannot be opened again.
func OpenPurchaseOrderForReceiving(ctx context.Context, orderId int) (*ReceivingWorksheet, error) {
	order, err := GetPurchaseOrder(ctx, orderId)
	if err != nil {
		return nil, err
	}
	if order.IsClosed() {
		return nil, errors.New("purchase order is already fully received")
	}

	worksheet := &ReceivingWorksheet{
		OrderId:       order.ID,
		OrderNumber:   order.OrderNumber,
		VendorName:    order.VendorName,
		PaymentStatus: order.PaymentStatus,
		Lines:         []*ReceivableLine{},
	}
	for _, detail := range order.Details {
		if !detail.RemainingQty.IsPositive() {
			continue
		}
		worksheet.Lines = append(worksheet.Lines, &ReceivableLine{
			DetailId:     detail.ID,
			ProductId:    detail.ProductId,
			Name:         detail.Name,
			OrderedQty:   detail.OrderedQty,
			RemainingQty: detail.RemainingQty,
			ReceiveQty:   detail.RemainingQty,
			UnitCost:     detail.CostPrice,
		})
	}
	sort.SliceStable(worksheet.Lines, func(i, j int) bool {
		return worksheet.Lines[i].DetailId < worksheet.Lines[j].DetailId
	})

	token, err := encodeReceivingToken(order.ID, order.Details)
	if err != nil {
		return nil, err
	}
	worksheet.Token = token
	return worksheet, nil
}

type ReceiveGoodsLine struct {
	DetailId   int             `json:"detail_id" binding:"required"`
	ReceiveQty decimal.Decimal `json:"receive_qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// NewGoodsReceipt is the commit payload. OrderId carries no binding tag: the
// route parameter owns it and the handler assigns it after binding.
type NewGoodsReceipt struct {
	OrderId        int                `json:"order_id"`
	ReceivingToken string             `json:"receiving_token"`
	PaymentStatus  PaymentStatus      `json:"payment_status" binding:"required"`
	PaymentDate    *time.Time         `json:"payment_date"`
	Lines          []ReceiveGoodsLine `json:"lines" binding:"required"`
}

type GoodsReceiptResult struct {
	OrderId     int    `json:"order_id"`
	OrderClosed bool   `json:"order_closed"`
	Message     string `json:"message"`
}

func (input NewGoodsReceipt) validate() error {
	if !input.PaymentStatus.IsValid() {
		return errors.New("invalid payment status")
	}
	if input.PaymentStatus == PaymentStatusUnpaid && input.PaymentDate == nil {
		return errors.New("expected payment date is required for unpaid orders")
	}
	anyPositive := false
	for _, line := range input.Lines {
		if line.ReceiveQty.IsNegative() {
			return errors.New("receive quantity cannot be negative")
		}
		if line.ReceiveQty.IsPositive() {
			anyPositive = true
		}
	}
	if !anyPositive {
		return errors.New("at least one line must have a receive quantity greater than zero")
	}
	return nil
}

// ReceiveGoods commits one receiving event against an open order: decrements
// each line's remaining quantity by the received amount (clamped to what is
// actually outstanding), records price corrections, shrinks the cached
// on-order figures, and closes the order when nothing remains. All line
// updates and the header update land in one transaction.
func ReceiveGoods(ctx context.Context, input *NewGoodsReceipt) (*GoodsReceiptResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	// Best effort cross-instance serialization per order. When redis is down
	// the version token check below still rejects stale commits.
	locker := config.GetRedisLock()
	if locker != nil {
		lockKey := fmt.Sprintf("lock:receiving:%s:%d", businessId, input.OrderId)
		lock, err := locker.Obtain(ctx, lockKey, 10*time.Second, nil)
		if err == nil {
			defer lock.Release(context.WithoutCancel(ctx))
		} else if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(logger, "receiving", "ReceiveGoods", "obtain lock", lockKey, err)
		} else {
			return nil, errors.New("another receiving session is committing against this order, try again")
		}
	}

	tx := db.Begin()

	var order PurchaseOrder
	err := tx.WithContext(ctx).Preload("Details").
		Where("business_id = ?", businessId).
		First(&order, input.OrderId).Error
	if err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}
	if order.IsClosed() {
		tx.Rollback()
		return nil, errors.New("purchase order is already fully received")
	}

	if config.StrictReceivingConflictCheck() && input.ReceivingToken != "" {
		snap, err := decodeReceivingToken(input.ReceivingToken)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if snap.OrderId != order.ID || !snap.matches(&order) {
			tx.Rollback()
			return nil, errors.New("order was received elsewhere since this session started, reload and try again")
		}
	}

	detailIndex := map[int]*PurchaseOrderDetail{}
	for i := range order.Details {
		detailIndex[order.Details[i].ID] = &order.Details[i]
	}

	for _, line := range input.Lines {
		detail, ok := detailIndex[line.DetailId]
		if !ok {
			tx.Rollback()
			return nil, errors.New("receipt line does not belong to this order")
		}
		if line.ReceiveQty.IsZero() {
			continue
		}

		// Over-receipts clamp to the outstanding amount so remaining never
		// goes negative.
		receiveQty := line.ReceiveQty
		if receiveQty.GreaterThan(detail.RemainingQty) {
			receiveQty = detail.RemainingQty
		}
		if receiveQty.IsZero() {
			continue
		}

		newRemaining := detail.RemainingQty.Sub(receiveQty)
		updates := map[string]interface{}{"remaining_qty": newRemaining}
		if line.UnitCost.IsPositive() && !line.UnitCost.Equal(detail.CostPrice) {
			updates["cost_price"] = line.UnitCost
		}
		err := tx.WithContext(ctx).Model(&PurchaseOrderDetail{}).
			Where("id = ? AND purchase_order_id = ?", detail.ID, order.ID).
			Updates(updates).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		detail.RemainingQty = newRemaining

		if err := adjustProductOnOrderQty(tx, ctx, businessId, order.OutletId, detail.ProductId, receiveQty.Neg()); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	headerUpdates := map[string]interface{}{
		"payment_status": input.PaymentStatus,
		"payment_date":   input.PaymentDate,
	}
	if input.PaymentStatus == PaymentStatusPaid && input.PaymentDate == nil {
		now := time.Now()
		headerUpdates["payment_date"] = &now
	}
	err = tx.WithContext(ctx).Model(&PurchaseOrder{}).
		Where("id = ? AND business_id = ?", order.ID, businessId).
		Updates(headerUpdates).Error
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	_ = utils.RemoveRedisItem[PurchaseOrder](order.ID)

	closed := order.IsClosed()
	logger.WithFields(logrus.Fields{
		"module":         "receiving",
		"business_id":    businessId,
		"outlet_id":      order.OutletId,
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"order_closed":   closed,
		"lines":          len(input.Lines),
		"correlation_id": correlationIdFromContextOrNew(ctx),
	}).Info("goods receipt committed")

	message := "Partial receipt recorded, order remains open"
	if closed {
		message = "All lines received, order closed"
	}
	return &GoodsReceiptResult{
		OrderId:     order.ID,
		OrderClosed: closed,
		Message:     message,
	}, nil
}
