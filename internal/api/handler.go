package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/report"
	"inventory-service/internal/service"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	inventory *service.InventoryService
	catalog   *service.CatalogService
	checks    map[string]ReadinessCheck
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	inventory *service.InventoryService,
	catalog *service.CatalogService,
	checks map[string]ReadinessCheck,
) *Handler {
	return &Handler{
		inventory: inventory,
		catalog:   catalog,
		checks:    checks,
		logger:    util.ComponentLogger("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.searchProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.PATCH("/products/:id", h.updateProduct)
		v1.PUT("/products/:id/reorder-settings", h.updateReorderSettings)
		v1.PUT("/products/:id/quantity", h.setQuantity)
		v1.POST("/products/:id/deactivate", h.deactivateProduct)
		v1.GET("/products/:id/reconcile", h.reconcileProduct)
		v1.POST("/products/:id/evaluate", h.evaluateProduct)
		v1.GET("/products/:id/transactions", h.listProductTransactions)

		v1.POST("/transactions", h.recordTransaction)
		v1.GET("/transactions/:id", h.getTransaction)

		v1.GET("/reorders", h.listReorders)
		v1.POST("/reorders", h.createReorder)
		v1.GET("/reorders/:id", h.getReorder)
		v1.POST("/reorders/:id/transitions", h.transitionReorder)

		v1.GET("/reports/reorders", h.reorderReport)

		v1.POST("/sales/import", h.importSales)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered dependency check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createProduct handles product creation
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = actor(c)
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, product)
}

// searchProducts lists products, optionally filtered by ?q= and ?active=true
func (h *Handler) searchProducts(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))

	products, err := h.catalog.SearchProducts(c.Request.Context(), c.Query("q"), activeOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.inventory.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), productID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateReorderSettings(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.ReorderSettings
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.catalog.UpdateReorderSettings(c.Request.Context(), productID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

// setQuantity records an adjustment that brings stock to the counted quantity
func (h *Handler) setQuantity(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.SetQuantityRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = actor(c)
	}

	txn, err := h.catalog.SetQuantity(c.Request.Context(), productID, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	product, err := h.inventory.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":     product,
		"transaction": txn,
	})
}

func (h *Handler) deactivateProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.catalog.Deactivate(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) reconcileProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.inventory.Reconcile(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// evaluateProduct reruns the low-stock check, e.g. after a reorder was canceled
func (h *Handler) evaluateProduct(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	created, err := h.inventory.Evaluate(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"created": created})
}

func (h *Handler) listProductTransactions(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	txns, err := h.inventory.ListProductTransactions(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// recordTransaction handles sale, purchase and adjustment recording
func (h *Handler) recordTransaction(c *gin.Context) {
	var req service.RecordTransactionRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}
	if req.Actor == "" {
		req.Actor = actor(c)
	}

	txn, err := h.inventory.RecordTransaction(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, txn)
}

func (h *Handler) getTransaction(c *gin.Context) {
	transactionID, ok := pathID(c)
	if !ok {
		return
	}

	txn, err := h.inventory.GetTransaction(c.Request.Context(), transactionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// listReorders lists open requests by default; ?status=all returns the whole
// history and ?status=PENDING,ORDERED picks statuses
func (h *Handler) listReorders(c *gin.Context) {
	var filter store.ReorderFilter

	if raw := c.Query("product_id"); raw != "" {
		productID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
			return
		}
		filter.ProductID = &productID
	}

	switch status := c.Query("status"); status {
	case "", "open":
		filter.Statuses = models.OpenReorderStatuses
	case "all":
	default:
		for _, s := range strings.Split(status, ",") {
			st := models.ReorderStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !st.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "details": s})
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	reqs, err := h.inventory.ListReorders(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reorders": reqs})
}

func (h *Handler) createReorder(c *gin.Context) {
	var req service.CreateReorderRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.inventory.CreateReorder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *Handler) getReorder(c *gin.Context) {
	requestID, ok := pathID(c)
	if !ok {
		return
	}

	req, err := h.inventory.GetReorder(c.Request.Context(), requestID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, req)
}

// TransitionRequest is the body of a reorder transition
type TransitionRequest struct {
	Action models.ReorderAction `json:"action" binding:"required"`
	service.TransitionPayload
}

func (h *Handler) transitionReorder(c *gin.Context) {
	requestID, ok := pathID(c)
	if !ok {
		return
	}
	var req TransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Actor == "" {
		req.Actor = actor(c)
	}

	action := models.ReorderAction(strings.ToUpper(string(req.Action)))
	updated, err := h.inventory.TransitionReorder(c.Request.Context(), requestID, action, req.TransitionPayload)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// reorderReport renders the open reorder report as text, or JSON with ?format=json
func (h *Handler) reorderReport(c *gin.Context) {
	lines, err := h.inventory.OpenReorderReport(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"lines": lines})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.WriteReorderReport(c.Writer, lines, time.Now()); err != nil {
		h.logger.Error("Failed to write reorder report", zap.Error(err))
	}
}

// importSales records a point-of-sale export with one UPC per line
func (h *Handler) importSales(c *gin.Context) {
	result, err := h.inventory.ImportSales(c.Request.Context(), &service.ImportSalesRequest{
		Source:         c.Request.Body,
		Actor:          actor(c),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Transaction == nil {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// writeError maps the domain error taxonomy to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validation   *models.ValidationError
		insufficient *models.InsufficientStockError
		transition   *models.InvalidTransitionError
		conflict     *models.ConflictError
		notFound     *models.NotFoundError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"field":   validation.Field,
			"details": validation.Message,
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "Insufficient stock",
			"product_id": insufficient.ProductID,
			"available":  insufficient.Available,
			"requested":  insufficient.Requested,
		})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Invalid transition",
			"status":  transition.From,
			"action":  transition.Action,
			"details": err.Error(),
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Conflict",
			"details": conflict.Message,
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not found",
			"details": err.Error(),
		})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid ID",
		})
		return 0, false
	}
	return id, true
}

// actor identifies the caller; authentication happens upstream
func actor(c *gin.Context) string {
	return c.GetHeader("X-Actor")
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
