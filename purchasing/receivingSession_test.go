package purchasing

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func worksheetFixture() *models.ReceivingWorksheet {
	return &models.ReceivingWorksheet{
		OrderId:       42,
		OrderNumber:   "PO-17",
		VendorName:    "Acme",
		PaymentStatus: models.PaymentStatusUnpaid,
		Lines: []*models.ReceivableLine{
			{DetailId: 1, ProductId: 100, Name: "Stapler", OrderedQty: dec("10"), RemainingQty: dec("10"), ReceiveQty: dec("10"), UnitCost: dec("3.5")},
			{DetailId: 2, ProductId: 101, Name: "Tape", OrderedQty: dec("6"), RemainingQty: dec("2"), ReceiveQty: dec("2"), UnitCost: dec("1.25")},
		},
		Token: "tok",
	}
}

func TestReceivingSessionClampsEdits(t *testing.T) {
	svc := &fakeService{worksheet: worksheetFixture()}
	session, err := OpenReceivingSession(context.Background(), svc, 42)
	if err != nil {
		t.Fatalf("OpenReceivingSession: %v", err)
	}

	session.SetReceiveQty(1, dec("99"))
	if session.Lines()[0].ReceiveQty.String() != "10" {
		t.Fatalf("receive qty must clamp to remaining, got %s", session.Lines()[0].ReceiveQty.String())
	}

	session.SetReceiveQty(1, dec("-4"))
	if !session.Lines()[0].ReceiveQty.IsZero() {
		t.Fatalf("negative receive qty must clamp to zero")
	}

	session.SetUnitCost(2, dec("-1"))
	if !session.Lines()[1].UnitCost.IsZero() {
		t.Fatalf("negative cost must clamp to zero")
	}

	// Unknown line is a no-op.
	session.SetReceiveQty(999, dec("5"))
}

func TestReceivingSessionSubmitValidation(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{worksheet: worksheetFixture()}
	session, err := OpenReceivingSession(ctx, svc, 42)
	if err != nil {
		t.Fatalf("OpenReceivingSession: %v", err)
	}

	// Unpaid without a payment date is rejected before any service call.
	if _, err := session.Submit(ctx, svc); err == nil {
		t.Fatalf("unpaid submission without payment date must be rejected")
	}
	if len(svc.receipts) != 0 {
		t.Fatalf("no service call expected on validation failure")
	}

	// All-zero quantities are rejected.
	due := time.Now().AddDate(0, 0, 30)
	session.PaymentDate = &due
	session.SetReceiveQty(1, decimal.Zero)
	session.SetReceiveQty(2, decimal.Zero)
	if _, err := session.Submit(ctx, svc); err == nil {
		t.Fatalf("all-zero batch must be rejected")
	}
	if len(svc.receipts) != 0 {
		t.Fatalf("no service call expected for all-zero batch")
	}
}

func TestReceivingSessionSubmitSendsOnlyPositiveLines(t *testing.T) {
	ctx := context.Background()
	svc := &fakeService{worksheet: worksheetFixture()}
	session, err := OpenReceivingSession(ctx, svc, 42)
	if err != nil {
		t.Fatalf("OpenReceivingSession: %v", err)
	}

	session.PaymentStatus = models.PaymentStatusPaid
	session.SetReceiveQty(1, dec("4"))
	session.SetReceiveQty(2, decimal.Zero)
	session.SetUnitCost(1, dec("3.75"))

	result, err := session.Submit(ctx, svc)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.OrderId != 42 {
		t.Fatalf("expected result for order 42, got %d", result.OrderId)
	}

	if len(svc.receipts) != 1 {
		t.Fatalf("expected one receipt call")
	}
	sent := svc.receipts[0]
	if sent.ReceivingToken != "tok" {
		t.Fatalf("submission must carry the session token")
	}
	if len(sent.Lines) != 1 || sent.Lines[0].DetailId != 1 {
		t.Fatalf("only positive lines must be sent, got %+v", sent.Lines)
	}
	if sent.Lines[0].ReceiveQty.String() != "4" || sent.Lines[0].UnitCost.String() != "3.75" {
		t.Fatalf("edited qty/cost must ride along, got %+v", sent.Lines[0])
	}
}
