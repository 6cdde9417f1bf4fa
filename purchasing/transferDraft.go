package purchasing

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

// recentTransfersCap bounds the recent-transfers window kept on the draft.
const recentTransfersCap = 20

// TransferLine is one draft line, carrying the on-hand figure observed when
// the line's product was loaded so submit can run the stock guard against
// the same snapshot the user saw.
type TransferLine struct {
	ProductId int             `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	OnHandQty decimal.Decimal `json:"on_hand_qty"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// TransferDraft accumulates lines for one source outlet until submission.
// The stock check uses the most recently loaded product cache, not a live
// re-check; the cache version observed at load time rides along so the
// server can discard a stale optimistic decrement.
type TransferDraft struct {
	FromOutletId int
	ToOutletId   int
	Reason       string
	Note         string

	lines        []*TransferLine
	cacheVersion int64
	recent       []*models.InventoryTransfer
}

func NewTransferDraft(fromOutletId int) *TransferDraft {
	return &TransferDraft{FromOutletId: fromOutletId}
}

// ObserveCacheVersion records the highest product cache version seen while
// loading the source outlet's catalog.
func (d *TransferDraft) ObserveCacheVersion(version int64) {
	if version > d.cacheVersion {
		d.cacheVersion = version
	}
}

func (d *TransferDraft) Lines() []*TransferLine { return d.lines }

func (d *TransferDraft) RecentTransfers() []*models.InventoryTransfer { return d.recent }

func (d *TransferDraft) line(productId int) *TransferLine {
	for _, l := range d.lines {
		if l.ProductId == productId {
			return l
		}
	}
	return nil
}

// AddLine appends a draft line defaulted to quantity 1. A product already in
// the draft is rejected with a user-visible warning, leaving the draft
// unchanged.
func (d *TransferDraft) AddLine(product *models.Product) error {
	if d.line(product.ID) != nil {
		return fmt.Errorf("%s is already in the transfer", product.Name)
	}
	d.lines = append(d.lines, &TransferLine{
		ProductId: product.ID,
		Name:      product.Name,
		Quantity:  1,
		OnHandQty: product.OnHandQty,
		UnitCost:  product.UnitCost,
	})
	d.ObserveCacheVersion(product.CacheVersion)
	return nil
}

func (d *TransferDraft) UpdateLine(productId int, qty float64) {
	l := d.line(productId)
	if l == nil {
		return
	}
	l.Quantity = normalizeQty(qty)
}

func (d *TransferDraft) RemoveLine(productId int) {
	for i, l := range d.lines {
		if l.ProductId == productId {
			d.lines = append(d.lines[:i], d.lines[i+1:]...)
			return
		}
	}
}

// TotalItems/TotalValue are derived on read, never stored.
func (d *TransferDraft) TotalItems() int {
	total := 0
	for _, l := range d.lines {
		total += l.Quantity
	}
	return total
}

func (d *TransferDraft) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range d.lines {
		total = total.Add(l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

func (d *TransferDraft) validate() error {
	if d.ToOutletId == 0 {
		return errors.New("destination outlet must be selected")
	}
	if d.ToOutletId == d.FromOutletId {
		return errors.New("source and destination outlet must differ")
	}
	if len(d.lines) == 0 {
		return errors.New("at least one line is required")
	}
	for _, l := range d.lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		if qty.GreaterThan(l.OnHandQty) {
			return fmt.Errorf("insufficient stock for %s: %s on hand, %d requested",
				l.Name, l.OnHandQty.String(), l.Quantity)
		}
	}
	return nil
}

// Submit creates the transfer. Any line over the observed on-hand rejects the
// whole draft before the service call, naming the first offending product.
// On success the draft clears and the new transfer lands at the head of the
// recent window.
func (d *TransferDraft) Submit(ctx context.Context, svc Service) (*models.InventoryTransfer, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	input := &models.NewInventoryTransfer{
		FromOutletId:   d.FromOutletId,
		ToOutletId:     d.ToOutletId,
		TransferReason: d.Reason,
		Note:           d.Note,
		CacheVersion:   d.cacheVersion,
	}
	for _, l := range d.lines {
		input.Lines = append(input.Lines, models.NewTransferLine{
			ProductId: l.ProductId,
			Quantity:  l.Quantity,
		})
	}

	transfer, err := svc.CreateInventoryTransfer(ctx, input)
	if err != nil {
		return nil, err
	}

	d.lines = nil
	d.recent = append([]*models.InventoryTransfer{transfer}, d.recent...)
	if len(d.recent) > recentTransfersCap {
		d.recent = d.recent[:recentTransfersCap]
	}
	return transfer, nil
}
