package purchasing

import (
	"context"
	"fmt"
	"sync"

	"bitbucket.org/mmdatafocus/purchasing_backend/models"
)

// Engine coordinates the per-outlet session state: one recommendation queue
// per outlet, staleness guards on outlet-scoped loads, and the mandated
// reload ordering after mutations (order state first, recommendations
// second).
type Engine struct {
	svc   Service
	guard *Guard

	mu     sync.Mutex
	queues map[int]*RecommendationQueue
}

func NewEngine(svc Service) *Engine {
	return &Engine{
		svc:    svc,
		guard:  NewGuard(),
		queues: map[int]*RecommendationQueue{},
	}
}

// Queue returns the outlet's recommendation queue, creating it on first use.
func (e *Engine) Queue(outletId int) *RecommendationQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[outletId]
	if !ok {
		q = NewRecommendationQueue(outletId)
		e.queues[outletId] = q
	}
	return q
}

func recommendationsResource(outletId int) string {
	return fmt.Sprintf("recommendations:%d", outletId)
}

func productsResource(outletId int) string {
	return fmt.Sprintf("products:%d", outletId)
}

// LoadRecommendations fetches the outlet's queue content. A response that
// arrives after a newer load was issued for the same outlet (or after Close)
// is discarded: the queue keeps its current state and the caller gets
// (nil, nil).
func (e *Engine) LoadRecommendations(ctx context.Context, outletId int, filter models.RecommendationFilter) (*models.RecommendationResult, error) {
	ticket := e.guard.Begin(recommendationsResource(outletId))

	result, err := e.svc.GetPurchasingRecommendations(ctx, outletId, filter)
	if err != nil {
		return nil, err
	}
	if !e.guard.Current(recommendationsResource(outletId), ticket) {
		return nil, nil
	}

	e.Queue(outletId).Refresh(result.Items)
	return result, nil
}

// LoadProducts fetches one page of the outlet's cached catalog. Like
// LoadRecommendations, a response superseded by a newer load for the same
// outlet (or arriving after Close) is discarded and the caller gets
// (nil, nil) instead of stale rows.
func (e *Engine) LoadProducts(ctx context.Context, outletId int, activeOnly bool, page, size int) (*models.ProductsPage, error) {
	ticket := e.guard.Begin(productsResource(outletId))

	result, err := e.svc.GetCachedProducts(ctx, outletId, activeOnly, page, size)
	if err != nil {
		return nil, err
	}
	if !e.guard.Current(productsResource(outletId), ticket) {
		return nil, nil
	}
	return result, nil
}

// BuildDraftOrders submits the outlet's selection and then reloads the
// recommendation view so the new on-order figures are reflected before the
// result is reported.
func (e *Engine) BuildDraftOrders(ctx context.Context, outletId int, source string, department string) (*models.DraftPurchaseOrdersResult, error) {
	result, err := e.Queue(outletId).BuildDraftOrders(ctx, e.svc, source, department)
	if err != nil {
		return nil, err
	}
	if _, err := e.LoadRecommendations(ctx, outletId, models.RecommendationFilter{Mode: models.RecommendationModeAll}); err != nil {
		return result, err
	}
	return result, nil
}

// SubmitReceiving commits the session's batch, then reloads the order state
// and the recommendation view, in that order, before handing the result
// back. The session is done after this call.
func (e *Engine) SubmitReceiving(ctx context.Context, outletId int, session *ReceivingSession) (*models.GoodsReceiptResult, error) {
	result, err := session.Submit(ctx, e.svc)
	if err != nil {
		return nil, err
	}
	if _, err := e.svc.GetPurchaseOrder(ctx, session.OrderId); err != nil {
		return result, err
	}
	if _, err := e.LoadRecommendations(ctx, outletId, models.RecommendationFilter{Mode: models.RecommendationModeAll}); err != nil {
		return result, err
	}
	return result, nil
}

// Close tears the engine down; in-flight loads that complete afterwards are
// discarded.
func (e *Engine) Close() {
	e.guard.Close()
}
