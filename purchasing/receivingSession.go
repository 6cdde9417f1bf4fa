package purchasing

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

// ReceivingSession is the editable receiving worksheet for one open order.
// Edits are clamped locally; nothing touches the order until Submit.
type ReceivingSession struct {
	OrderId     int
	OrderNumber string
	VendorName  string

	PaymentStatus models.PaymentStatus
	PaymentDate   *time.Time

	lines []*models.ReceivableLine
	token string
}

// OpenReceivingSession loads the order's worksheet. Orders with nothing left
// to receive cannot be opened.
func OpenReceivingSession(ctx context.Context, svc Service, orderId int) (*ReceivingSession, error) {
	worksheet, err := svc.OpenPurchaseOrderForReceiving(ctx, orderId)
	if err != nil {
		return nil, err
	}
	return &ReceivingSession{
		OrderId:       worksheet.OrderId,
		OrderNumber:   worksheet.OrderNumber,
		VendorName:    worksheet.VendorName,
		PaymentStatus: worksheet.PaymentStatus,
		lines:         worksheet.Lines,
		token:         worksheet.Token,
	}, nil
}

func (s *ReceivingSession) Lines() []*models.ReceivableLine { return s.lines }

func (s *ReceivingSession) line(detailId int) *models.ReceivableLine {
	for _, l := range s.lines {
		if l.DetailId == detailId {
			return l
		}
	}
	return nil
}

// SetReceiveQty clamps the edit into [0, remaining].
func (s *ReceivingSession) SetReceiveQty(detailId int, qty decimal.Decimal) {
	l := s.line(detailId)
	if l == nil {
		return
	}
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	if qty.GreaterThan(l.RemainingQty) {
		qty = l.RemainingQty
	}
	l.ReceiveQty = qty
}

// SetUnitCost clamps the edit at zero.
func (s *ReceivingSession) SetUnitCost(detailId int, cost decimal.Decimal) {
	l := s.line(detailId)
	if l == nil {
		return
	}
	if cost.IsNegative() {
		cost = decimal.Zero
	}
	l.UnitCost = cost
}

func (s *ReceivingSession) validate() error {
	if !s.PaymentStatus.IsValid() {
		return errors.New("invalid payment status")
	}
	if s.PaymentStatus == models.PaymentStatusUnpaid && s.PaymentDate == nil {
		return errors.New("expected payment date is required for unpaid orders")
	}
	for _, l := range s.lines {
		if l.ReceiveQty.IsPositive() {
			return nil
		}
	}
	return errors.New("at least one line must have a receive quantity greater than zero")
}

// Submit commits the batch: only lines with a positive receive quantity are
// sent, carrying the session's conflict token. After success the caller
// reloads the order state, then the recommendation/open-orders view, before
// closing the session.
func (s *ReceivingSession) Submit(ctx context.Context, svc Service) (*models.GoodsReceiptResult, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	input := &models.NewGoodsReceipt{
		OrderId:        s.OrderId,
		ReceivingToken: s.token,
		PaymentStatus:  s.PaymentStatus,
		PaymentDate:    s.PaymentDate,
	}
	for _, l := range s.lines {
		if !l.ReceiveQty.IsPositive() {
			continue
		}
		input.Lines = append(input.Lines, models.ReceiveGoodsLine{
			DetailId:   l.DetailId,
			ReceiveQty: l.ReceiveQty,
			UnitCost:   l.UnitCost,
		})
	}

	return svc.ReceiveGoods(ctx, input)
}
