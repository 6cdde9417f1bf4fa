package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/shopspring/decimal"
)

// End-to-end purchase lifecycle: draft orders grouped by vendor, partial
// receipt keeps the order open, final receipt closes it, and an extra receipt
// against the closed order is rejected.
func TestReceivingLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "purchasing_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "biz-lifecycle-test"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	outlet := models.Outlet{BusinessId: businessID, Name: "Main Outlet", IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Create(&outlet).Error; err != nil {
		t.Fatalf("create outlet: %v", err)
	}

	stapler := seedProduct(t, ctx, businessID, outlet.ID, "Stapler", 1, "Acme", "10", "2")
	tape := seedProduct(t, ctx, businessID, outlet.ID, "Tape", 1, "Acme", "5", "1.5")
	glue := seedProduct(t, ctx, businessID, outlet.ID, "Glue", 2, "Best", "3", "4")

	// Three lines over two vendors create exactly two orders.
	result, err := models.CreateDraftPurchaseOrders(ctx, &models.NewDraftPurchaseOrders{
		OutletId: outlet.ID,
		Source:   "reorder",
		Lines: []models.DraftOrderLine{
			{ProductId: stapler.ID, Quantity: 50, VendorId: 1, VendorName: "Acme", UnitCost: dd(t, "2")},
			{ProductId: tape.ID, Quantity: 20, VendorId: 1, VendorName: "Acme", UnitCost: dd(t, "1.5")},
			{ProductId: glue.ID, Quantity: 10, VendorId: 2, VendorName: "Best", UnitCost: dd(t, "4")},
		},
	})
	if err != nil {
		t.Fatalf("CreateDraftPurchaseOrders: %v", err)
	}
	if len(result.CreatedOrderIds) != 2 {
		t.Fatalf("expected 2 orders for 2 vendors, got %d", len(result.CreatedOrderIds))
	}

	// On-order cache bumped.
	var refreshed models.Product
	if err := db.WithContext(ctx).First(&refreshed, stapler.ID).Error; err != nil {
		t.Fatalf("fetch product: %v", err)
	}
	if refreshed.OnOrderQty.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("expected on_order_qty=50, got %s", refreshed.OnOrderQty.String())
	}

	acmeOrder, err := models.GetPurchaseOrder(ctx, result.CreatedOrderIds[0])
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if acmeOrder.VendorName != "Acme" || len(acmeOrder.Details) != 2 {
		t.Fatalf("expected acme order with 2 lines, got %+v", acmeOrder)
	}

	worksheet, err := models.OpenPurchaseOrderForReceiving(ctx, acmeOrder.ID)
	if err != nil {
		t.Fatalf("OpenPurchaseOrderForReceiving: %v", err)
	}
	if len(worksheet.Lines) != 2 || worksheet.Token == "" {
		t.Fatalf("expected 2 receivable lines and a token, got %+v", worksheet)
	}

	staplerLine := worksheet.Lines[0]
	if staplerLine.ProductId != stapler.ID {
		staplerLine = worksheet.Lines[1]
	}

	// Partial receipt leaves the order open.
	receipt, err := models.ReceiveGoods(ctx, &models.NewGoodsReceipt{
		OrderId:        acmeOrder.ID,
		ReceivingToken: worksheet.Token,
		PaymentStatus:  models.PaymentStatusPaid,
		Lines: []models.ReceiveGoodsLine{
			{DetailId: staplerLine.DetailId, ReceiveQty: dd(t, "20"), UnitCost: dd(t, "2")},
		},
	})
	if err != nil {
		t.Fatalf("ReceiveGoods partial: %v", err)
	}
	if receipt.OrderClosed {
		t.Fatalf("partial receipt must leave the order open")
	}

	// Reusing the original token after the receipt is a conflict.
	_, err = models.ReceiveGoods(ctx, &models.NewGoodsReceipt{
		OrderId:        acmeOrder.ID,
		ReceivingToken: worksheet.Token,
		PaymentStatus:  models.PaymentStatusPaid,
		Lines: []models.ReceiveGoodsLine{
			{DetailId: staplerLine.DetailId, ReceiveQty: dd(t, "5")},
		},
	})
	if err == nil || !strings.Contains(err.Error(), "received elsewhere") {
		t.Fatalf("stale token must be rejected with a conflict, got %v", err)
	}

	// Fresh worksheet, receive everything; over-receipt clamps.
	worksheet, err = models.OpenPurchaseOrderForReceiving(ctx, acmeOrder.ID)
	if err != nil {
		t.Fatalf("reopen for receiving: %v", err)
	}
	var lines []models.ReceiveGoodsLine
	for _, l := range worksheet.Lines {
		lines = append(lines, models.ReceiveGoodsLine{DetailId: l.DetailId, ReceiveQty: l.RemainingQty.Add(dd(t, "99"))})
	}
	receipt, err = models.ReceiveGoods(ctx, &models.NewGoodsReceipt{
		OrderId:        acmeOrder.ID,
		ReceivingToken: worksheet.Token,
		PaymentStatus:  models.PaymentStatusPaid,
		Lines:          lines,
	})
	if err != nil {
		t.Fatalf("ReceiveGoods final: %v", err)
	}
	if !receipt.OrderClosed {
		t.Fatalf("full receipt must close the order")
	}

	closed, err := models.GetPurchaseOrder(ctx, acmeOrder.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder closed: %v", err)
	}
	for _, d := range closed.Details {
		if !d.RemainingQty.IsZero() {
			t.Fatalf("closed order must have zero remainders, got %s", d.RemainingQty.String())
		}
		if d.RemainingQty.IsNegative() {
			t.Fatalf("remaining quantity must never go negative")
		}
	}

	// Closed orders cannot be opened or received again.
	if _, err := models.OpenPurchaseOrderForReceiving(ctx, acmeOrder.ID); err == nil {
		t.Fatalf("opening a closed order must fail")
	}

	// Closed orders drop out of the open-orders view.
	open, err := models.ListOpenPurchaseOrders(ctx, outlet.ID)
	if err != nil {
		t.Fatalf("ListOpenPurchaseOrders: %v", err)
	}
	for _, po := range open {
		if po.ID == acmeOrder.ID {
			t.Fatalf("closed order must not appear in the open view")
		}
	}
}

func TestInventoryTransferStockGuard(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "purchasing_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	businessID := "biz-transfer-test"
	ctx = utils.SetBusinessIdInContext(ctx, businessID)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	db := config.GetDB()
	source := models.Outlet{BusinessId: businessID, Name: "Source", IsActive: utils.NewTrue()}
	dest := models.Outlet{BusinessId: businessID, Name: "Destination", IsActive: utils.NewTrue()}
	if err := db.WithContext(ctx).Create(&source).Error; err != nil {
		t.Fatalf("create source outlet: %v", err)
	}
	if err := db.WithContext(ctx).Create(&dest).Error; err != nil {
		t.Fatalf("create destination outlet: %v", err)
	}

	p := seedProduct(t, ctx, businessID, source.ID, "Widget", 1, "Acme", "10", "2")

	// Over-stock line rejects the whole request, nothing is created.
	_, err := models.CreateInventoryTransfer(ctx, &models.NewInventoryTransfer{
		FromOutletId: source.ID,
		ToOutletId:   dest.ID,
		CacheVersion: p.CacheVersion,
		Lines:        []models.NewTransferLine{{ProductId: p.ID, Quantity: 15}},
	})
	if err == nil || !strings.Contains(err.Error(), "Widget") {
		t.Fatalf("overstock transfer must be rejected naming the product, got %v", err)
	}
	var count int64
	if err := db.WithContext(ctx).Model(&models.InventoryTransfer{}).Where("business_id = ?", businessID).Count(&count).Error; err != nil {
		t.Fatalf("count transfers: %v", err)
	}
	if count != 0 {
		t.Fatalf("no transfer may exist after a rejected submit, got %d", count)
	}

	// Valid transfer decrements the cached on-hand and carries the reason and
	// the cached unit cost on its lines.
	transfer, err := models.CreateInventoryTransfer(ctx, &models.NewInventoryTransfer{
		FromOutletId:   source.ID,
		ToOutletId:     dest.ID,
		TransferReason: "seasonal rebalance",
		CacheVersion:   p.CacheVersion,
		Lines:          []models.NewTransferLine{{ProductId: p.ID, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("CreateInventoryTransfer: %v", err)
	}
	if transfer.Status != models.TransferStatusRequested {
		t.Fatalf("new transfer must be requested, got %s", transfer.Status)
	}
	if transfer.TransferReason != "seasonal rebalance" {
		t.Fatalf("transfer reason must be recorded, got %q", transfer.TransferReason)
	}
	if len(transfer.Details) != 1 || transfer.Details[0].UnitCost.Cmp(dd(t, "2")) != 0 {
		t.Fatalf("transfer line must capture the cached unit cost, got %+v", transfer.Details)
	}
	if transfer.TotalItems().Cmp(decimal.NewFromInt(4)) != 0 {
		t.Fatalf("expected 4 total items, got %s", transfer.TotalItems().String())
	}
	if transfer.TotalValue().Cmp(decimal.NewFromInt(8)) != 0 {
		t.Fatalf("expected total value 8, got %s", transfer.TotalValue().String())
	}

	refreshed, err := models.GetProduct(ctx, source.ID, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if refreshed.OnHandQty.Cmp(decimal.NewFromInt(6)) != 0 {
		t.Fatalf("expected on_hand_qty=6 after transfer, got %s", refreshed.OnHandQty.String())
	}

	// Received is terminal.
	if _, err := models.MarkInventoryTransferReceived(ctx, transfer.ID); err != nil {
		t.Fatalf("MarkInventoryTransferReceived: %v", err)
	}
	if _, err := models.MarkInventoryTransferReceived(ctx, transfer.ID); err == nil {
		t.Fatalf("receiving a received transfer must fail")
	}
}

func dd(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func seedProduct(t *testing.T, ctx context.Context, businessID string, outletID int, name string, vendorID int, vendorName string, onHand string, cost string) *models.Product {
	t.Helper()
	db := config.GetDB()
	p := models.Product{
		BusinessId:   businessID,
		OutletId:     outletID,
		ExternalId:   fmt.Sprintf("ext-%s-%d", name, outletID),
		Sku:          strings.ToUpper(name),
		Name:         name,
		VendorId:     vendorID,
		VendorName:   vendorName,
		UnitCost:     dd(t, cost),
		OnHandQty:    dd(t, onHand),
		IsActive:     utils.NewTrue(),
		CacheVersion: 1,
	}
	if err := db.WithContext(ctx).Create(&p).Error; err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return &p
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("purchasing-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("purchasing-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=purchasing_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
