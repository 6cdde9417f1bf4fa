package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/purchasing_backend/catalogsync"
	"bitbucket.org/mmdatafocus/purchasing_backend/config"
	"bitbucket.org/mmdatafocus/purchasing_backend/middlewares"
	"bitbucket.org/mmdatafocus/purchasing_backend/models"
	"bitbucket.org/mmdatafocus/purchasing_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("purchasing-backend")

// RateLimiter is a redis-backed fixed-window limiter keyed by client IP.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "ratelimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// Redis down: let traffic through rather than hard-failing requests.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	c.Next()
}

func respondError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		status = http.StatusNotFound
	case strings.Contains(err.Error(), "received elsewhere"),
		strings.Contains(err.Error(), "another receiving session"):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func outletIdParam(c *gin.Context) (int, bool) {
	outletId, err := strconv.Atoi(c.Param("outletId"))
	if err != nil || outletId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outlet id"})
		return 0, false
	}
	return outletId, true
}

func idParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func getOutletsHandler(c *gin.Context) {
	outlets, err := models.GetOutlets(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": outlets})
}

func getRecommendationsHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	filter := models.RecommendationFilter{
		Mode:       models.RecommendationMode(c.Query("mode")),
		Department: c.Query("department"),
	}
	if v := c.Query("vendor_id"); v != "" {
		if vendorId, err := strconv.Atoi(v); err == nil {
			filter.VendorId = vendorId
		}
	}
	result, err := models.GetPurchasingRecommendations(c.Request.Context(), outletId, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getAnalyticsHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	result, err := models.GetPurchasingAnalytics(c.Request.Context(), outletId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createDraftOrdersHandler(c *gin.Context) {
	var input models.NewDraftPurchaseOrders
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	result, err := models.CreateDraftPurchaseOrders(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func getPurchaseOrderHandler(c *gin.Context) {
	orderId, ok := idParam(c)
	if !ok {
		return
	}
	order, err := models.GetPurchaseOrder(c.Request.Context(), orderId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func listOpenOrdersHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	orders, err := models.ListOpenPurchaseOrders(c.Request.Context(), outletId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": orders})
}

func openReceivingHandler(c *gin.Context) {
	orderId, ok := idParam(c)
	if !ok {
		return
	}
	worksheet, err := models.OpenPurchaseOrderForReceiving(c.Request.Context(), orderId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, worksheet)
}

func receiveGoodsHandler(c *gin.Context) {
	orderId, ok := idParam(c)
	if !ok {
		return
	}
	var input models.NewGoodsReceipt
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	input.OrderId = orderId
	result, err := models.ReceiveGoods(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getCachedProductsHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	activeOnly := !strings.EqualFold(c.DefaultQuery("active_only", "true"), "false")
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	result, err := models.GetCachedProducts(c.Request.Context(), outletId, activeOnly, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getProductHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	productId, ok := idParam(c)
	if !ok {
		return
	}
	product, err := models.GetProduct(c.Request.Context(), outletId, productId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func syncCatalogHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	forceFull := strings.EqualFold(c.Query("force_full"), "true")
	ctx, span := tracer.Start(c.Request.Context(), "catalog.sync")
	defer span.End()
	result, err := catalogsync.SyncProductCatalog(ctx, outletId, forceFull)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createTransferHandler(c *gin.Context) {
	var input models.NewInventoryTransfer
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	transfer, err := models.CreateInventoryTransfer(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, transfer)
}

func receiveTransferHandler(c *gin.Context) {
	transferId, ok := idParam(c)
	if !ok {
		return
	}
	transfer, err := models.MarkInventoryTransferReceived(c.Request.Context(), transferId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, transfer)
}

func listTransfersHandler(c *gin.Context) {
	outletId, ok := outletIdParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	result, err := models.GetInventoryTransfers(c.Request.Context(), outletId, page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// customErrorLogger logs only requests that accumulated gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/outlets", getOutletsHandler)
	api.GET("/outlets/:outletId/recommendations", getRecommendationsHandler)
	api.GET("/outlets/:outletId/analytics", getAnalyticsHandler)
	api.GET("/outlets/:outletId/purchase-orders/open", listOpenOrdersHandler)
	api.GET("/outlets/:outletId/products", getCachedProductsHandler)
	api.GET("/outlets/:outletId/products/:id", getProductHandler)
	api.POST("/outlets/:outletId/catalog/sync", syncCatalogHandler)
	api.GET("/outlets/:outletId/transfers", listTransfersHandler)
	api.POST("/purchase-orders/draft", createDraftOrdersHandler)
	api.GET("/purchase-orders/:id", getPurchaseOrderHandler)
	api.GET("/purchase-orders/:id/receiving", openReceivingHandler)
	api.POST("/purchase-orders/:id/receive", receiveGoodsHandler)
	api.POST("/transfers", createTransferHandler)
	api.POST("/transfers/:id/receive", receiveTransferHandler)
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the startup probe passes. Until DB/redis
	// are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist; everything else allows all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Outlet-Id", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		r.Use(NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second).RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.OutletMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("purchasing backend listening on :", port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
