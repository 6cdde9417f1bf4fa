package purchasing

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

var errTest = errors.New("service unavailable")

// fakeService records calls and serves canned results.
type fakeService struct {
	recommendations func() (*models.RecommendationResult, error)
	recommendCalls  int

	createdDrafts []*models.NewDraftPurchaseOrders
	draftErr      error

	worksheet *models.ReceivingWorksheet

	receipts   []*models.NewGoodsReceipt
	receiptErr error

	orders map[int]*models.PurchaseOrder

	products     func() (*models.ProductsPage, error)
	productCalls int

	transfers   []*models.NewInventoryTransfer
	transferErr error
}

func (f *fakeService) GetPurchasingRecommendations(ctx context.Context, outletId int, filter models.RecommendationFilter) (*models.RecommendationResult, error) {
	f.recommendCalls++
	if f.recommendations != nil {
		return f.recommendations()
	}
	return &models.RecommendationResult{Items: []*models.RecommendationLine{}}, nil
}

func (f *fakeService) GetPurchasingAnalytics(ctx context.Context, outletId int) (*models.RecommendationResult, error) {
	return f.GetPurchasingRecommendations(ctx, outletId, models.RecommendationFilter{Mode: models.RecommendationModeAll})
}

func (f *fakeService) CreateDraftPurchaseOrders(ctx context.Context, input *models.NewDraftPurchaseOrders) (*models.DraftPurchaseOrdersResult, error) {
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	f.createdDrafts = append(f.createdDrafts, input)
	return &models.DraftPurchaseOrdersResult{Message: "ok"}, nil
}

func (f *fakeService) GetPurchaseOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error) {
	if order, ok := f.orders[orderId]; ok {
		return order, nil
	}
	return nil, errors.New("record not found")
}

func (f *fakeService) OpenPurchaseOrderForReceiving(ctx context.Context, orderId int) (*models.ReceivingWorksheet, error) {
	if f.worksheet == nil {
		return nil, errors.New("record not found")
	}
	return f.worksheet, nil
}

func (f *fakeService) ReceiveGoods(ctx context.Context, input *models.NewGoodsReceipt) (*models.GoodsReceiptResult, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	f.receipts = append(f.receipts, input)
	return &models.GoodsReceiptResult{OrderId: input.OrderId, Message: "ok"}, nil
}

func (f *fakeService) GetCachedProducts(ctx context.Context, outletId int, activeOnly bool, page, size int) (*models.ProductsPage, error) {
	f.productCalls++
	if f.products != nil {
		return f.products()
	}
	return &models.ProductsPage{}, nil
}

func (f *fakeService) CreateInventoryTransfer(ctx context.Context, input *models.NewInventoryTransfer) (*models.InventoryTransfer, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, input)
	return &models.InventoryTransfer{
		ID:           len(f.transfers),
		FromOutletId: input.FromOutletId,
		ToOutletId:   input.ToOutletId,
		Status:       models.TransferStatusRequested,
	}, nil
}

func (f *fakeService) GetInventoryTransfers(ctx context.Context, outletId int, page, size int) (*models.InventoryTransfersPage, error) {
	return &models.InventoryTransfersPage{}, nil
}
