// Package purchasing holds the in-session reconciliation engine: the
// recommendation queue with its selection state, the receiving session, the
// transfer draft and the staleness guards. Everything here is plain value
// state operating against the Service port; persistence lives in models.
package purchasing

import (
	"context"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// Service is the port the session engine calls. The production implementation
// is backed by the models package; tests substitute fakes.
type Service interface {
	GetPurchasingRecommendations(ctx context.Context, outletId int, filter models.RecommendationFilter) (*models.RecommendationResult, error)
	GetPurchasingAnalytics(ctx context.Context, outletId int) (*models.RecommendationResult, error)
	CreateDraftPurchaseOrders(ctx context.Context, input *models.NewDraftPurchaseOrders) (*models.DraftPurchaseOrdersResult, error)
	GetPurchaseOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error)
	OpenPurchaseOrderForReceiving(ctx context.Context, orderId int) (*models.ReceivingWorksheet, error)
	ReceiveGoods(ctx context.Context, input *models.NewGoodsReceipt) (*models.GoodsReceiptResult, error)
	GetCachedProducts(ctx context.Context, outletId int, activeOnly bool, page, size int) (*models.ProductsPage, error)
	CreateInventoryTransfer(ctx context.Context, input *models.NewInventoryTransfer) (*models.InventoryTransfer, error)
	GetInventoryTransfers(ctx context.Context, outletId int, page, size int) (*models.InventoryTransfersPage, error)
}

// ModelService adapts the models package to the Service port.
type ModelService struct{}

func NewModelService() *ModelService { return &ModelService{} }

func (s *ModelService) GetPurchasingRecommendations(ctx context.Context, outletId int, filter models.RecommendationFilter) (*models.RecommendationResult, error) {
	return models.GetPurchasingRecommendations(ctx, outletId, filter)
}

func (s *ModelService) GetPurchasingAnalytics(ctx context.Context, outletId int) (*models.RecommendationResult, error) {
	return models.GetPurchasingAnalytics(ctx, outletId)
}

func (s *ModelService) CreateDraftPurchaseOrders(ctx context.Context, input *models.NewDraftPurchaseOrders) (*models.DraftPurchaseOrdersResult, error) {
	return models.CreateDraftPurchaseOrders(ctx, input)
}

func (s *ModelService) GetPurchaseOrder(ctx context.Context, orderId int) (*models.PurchaseOrder, error) {
	return models.GetPurchaseOrder(ctx, orderId)
}

func (s *ModelService) OpenPurchaseOrderForReceiving(ctx context.Context, orderId int) (*models.ReceivingWorksheet, error) {
	return models.OpenPurchaseOrderForReceiving(ctx, orderId)
}

func (s *ModelService) ReceiveGoods(ctx context.Context, input *models.NewGoodsReceipt) (*models.GoodsReceiptResult, error) {
	return models.ReceiveGoods(ctx, input)
}

func (s *ModelService) GetCachedProducts(ctx context.Context, outletId int, activeOnly bool, page, size int) (*models.ProductsPage, error) {
	return models.GetCachedProducts(ctx, outletId, activeOnly, page, size)
}

func (s *ModelService) CreateInventoryTransfer(ctx context.Context, input *models.NewInventoryTransfer) (*models.InventoryTransfer, error) {
	return models.CreateInventoryTransfer(ctx, input)
}

func (s *ModelService) GetInventoryTransfers(ctx context.Context, outletId int, page, size int) (*models.InventoryTransfersPage, error) {
	return models.GetInventoryTransfers(ctx, outletId, page, size)
}
