package service

import (
	"context"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryService is the entry point to the reorder engine. It owns the
// ledger, the threshold monitor, the reorder lifecycle and the recorder, and
// publishes their events once a unit of work commits.
type InventoryService struct {
	repo        store.Repository
	cache       ProductCache
	idempotency IdempotencyCache
	events      EventPublisher
	supplier    SupplierNotifier

	ledger   *StockLedger
	recorder *TransactionRecorder
	reorders *ReorderManager
	monitor  *ThresholdMonitor

	generations    *cacheGenerations
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewInventoryService creates a new inventory service. Nil collaborators are
// replaced with no-op implementations.
func NewInventoryService(
	repo store.Repository,
	cache ProductCache,
	idempotency IdempotencyCache,
	events EventPublisher,
	supplier SupplierNotifier,
	idempotencyTTL time.Duration,
) *InventoryService {
	if cache == nil {
		cache = noopProductCache{}
	}
	if idempotency == nil {
		idempotency = noopIdempotencyCache{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	if supplier == nil {
		supplier = noopNotifier{}
	}

	ledger := NewStockLedger()
	recorder := NewTransactionRecorder(ledger)
	reorders := NewReorderManager(recorder)
	monitor := NewThresholdMonitor(ledger, reorders)

	return &InventoryService{
		repo:           repo,
		cache:          cache,
		idempotency:    idempotency,
		events:         events,
		supplier:       supplier,
		ledger:         ledger,
		recorder:       recorder,
		reorders:       reorders,
		monitor:        monitor,
		generations:    newCacheGenerations(),
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// execute runs fn in one store transaction and, after it commits, publishes
// everything the unit produced
func (s *InventoryService) execute(ctx context.Context, fn func(ctx context.Context, u *unit) error) error {
	var committed *unit
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u := newUnit(tx)
		if err := fn(ctx, u); err != nil {
			return err
		}
		committed = u
		return nil
	})
	if err != nil {
		return err
	}

	s.flush(ctx, committed)
	return nil
}

// flush records metrics and publishes the events of a committed unit.
// Publish failures are logged; the state change has already happened.
func (s *InventoryService) flush(ctx context.Context, u *unit) {
	for _, txn := range u.transactions {
		util.TransactionsRecordedTotal.WithLabelValues(string(txn.Type)).Inc()

		event := &models.TransactionRecordedEvent{
			BaseEvent:     newBaseEvent(models.EventTypeTransactionRecorded),
			TransactionID: txn.ID,
			Type:          txn.Type,
			Actor:         txn.Actor,
			ReorderID:     txn.ReorderID,
			Items:         txn.Items,
		}
		if err := s.events.PublishTransactionRecorded(ctx, event); err != nil {
			s.publishFailed(event.EventType, err)
		}
	}

	for i := range u.changes {
		change := &u.changes[i]
		util.LedgerDeltasTotal.WithLabelValues(string(change.Reason)).Inc()
		if change.Delta > 0 {
			util.LedgerUnitsTotal.WithLabelValues("in").Add(float64(change.Delta))
		} else {
			util.LedgerUnitsTotal.WithLabelValues("out").Add(float64(-change.Delta))
		}

		if err := s.events.PublishQuantityChanged(ctx, change); err != nil {
			s.publishFailed(change.EventType, err)
		}
	}

	for _, notice := range u.reorders {
		s.publishReorder(ctx, notice)
	}

	if ids := u.touchedProducts(); len(ids) > 0 {
		s.invalidateProducts(ctx, ids...)
	}
}

// invalidateProducts drops cached snapshots after a commit
func (s *InventoryService) invalidateProducts(ctx context.Context, ids ...int64) {
	s.generations.bump(ids...)
	if err := s.cache.InvalidateProducts(ctx, ids...); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Int64s("product_ids", ids), zap.Error(err))
	}
}

func (s *InventoryService) publishReorder(ctx context.Context, notice reorderNotice) {
	req := notice.request

	eventType := models.EventTypeReorderCreated
	reason := notice.source
	switch notice.action {
	case "":
		util.ReordersCreatedTotal.WithLabelValues(notice.source).Inc()
	case models.ReorderActionMarkOrdered:
		eventType = models.EventTypeReorderOrdered
	case models.ReorderActionMarkReceived:
		eventType = models.EventTypeReorderReceived
	case models.ReorderActionCancel:
		eventType = models.EventTypeReorderCanceled
		reason = req.CancelReason
	}
	if notice.action != "" {
		util.ReorderTransitionsTotal.WithLabelValues(string(notice.action), string(req.Status)).Inc()
	}

	event := &models.ReorderEvent{
		BaseEvent:         newBaseEvent(eventType),
		ReorderID:         req.ID,
		ProductID:         req.ProductID,
		Status:            req.Status,
		QuantityRequested: req.QuantityRequested,
		QuantityReceived:  req.QuantityReceived,
		Reason:            reason,
	}
	if err := s.events.PublishReorderEvent(ctx, event); err != nil {
		s.publishFailed(eventType, err)
	}

	if notice.action == models.ReorderActionMarkOrdered {
		ordered := &models.ReorderOrderedEvent{
			BaseEvent:         newBaseEvent(models.EventTypeReorderOrdered),
			ReorderID:         req.ID,
			ProductID:         req.ProductID,
			UPC:               notice.product.UPC,
			SupplierID:        notice.product.SupplierID,
			QuantityRequested: req.QuantityRequested,
		}
		if err := s.supplier.NotifyReorderOrdered(ctx, ordered); err != nil {
			s.logger.Error("Failed to notify supplier",
				zap.Int64("reorder_id", req.ID),
				zap.Error(err))
			util.EventsPublishFailedTotal.WithLabelValues("supplier_notification").Inc()
		}
	}
}

func (s *InventoryService) publishFailed(eventType string, err error) {
	util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
	s.logger.Error("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// GetProduct retrieves a product, reading through the product cache
func (s *InventoryService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetProduct",
		attribute.Int64("product.id", productID))
	defer span.End()

	cached, ok, err := s.cache.GetProduct(ctx, productID)
	switch {
	case err != nil:
		util.ProductCacheRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Product cache lookup failed", zap.Int64("product_id", productID), zap.Error(err))
	case ok:
		util.ProductCacheRequestsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	default:
		util.ProductCacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	gen := s.generations.current(productID)
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetProduct(ctx, product); err != nil {
		s.logger.Warn("Failed to cache product", zap.Int64("product_id", productID), zap.Error(err))
		return product, nil
	}
	// a commit invalidated the product while we were reading it
	if s.generations.current(productID) != gen {
		util.ProductCacheRequestsTotal.WithLabelValues("stale_fill").Inc()
		if err := s.cache.InvalidateProducts(ctx, productID); err != nil {
			s.logger.Warn("Failed to evict stale product", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return product, nil
}

// GetProductByUPC retrieves a product by its business code
func (s *InventoryService) GetProductByUPC(ctx context.Context, upc string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetProductByUPC")
	defer span.End()

	return s.repo.GetProductByUPC(ctx, upc)
}

// ListOpenReorderRequests lists PENDING and ORDERED requests, optionally for one product
func (s *InventoryService) ListOpenReorderRequests(ctx context.Context, productID *int64) ([]models.ReorderRequest, error) {
	return s.ListReorders(ctx, store.ReorderFilter{
		ProductID: productID,
		Statuses:  models.OpenReorderStatuses,
	})
}

// ListReorders lists reorder history matching filter
func (s *InventoryService) ListReorders(ctx context.Context, filter store.ReorderFilter) ([]models.ReorderRequest, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListReorders")
	defer span.End()

	reqs, err := s.repo.ListReorders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list reorders: %w", err)
	}
	return reqs, nil
}

// GetReorder retrieves a reorder request
func (s *InventoryService) GetReorder(ctx context.Context, requestID int64) (*models.ReorderRequest, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetReorder")
	defer span.End()

	return s.repo.GetReorder(ctx, requestID)
}

// CreateReorderRequest represents a manual reorder request
type CreateReorderRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	// Quantity defaults to the product's reorder quantity
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

// CreateReorder opens a manual reorder request. It fails with ConflictError
// when the product already has an open request.
func (s *InventoryService) CreateReorder(ctx context.Context, req *CreateReorderRequest) (created *models.ReorderRequest, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CreateReorder",
		attribute.Int64("product.id", req.ProductID))
	defer func() { util.EndSpan(span, err) }()

	if req.Quantity < 0 {
		return nil, models.NewValidationError("quantity", "cannot be negative")
	}

	err = s.execute(ctx, func(ctx context.Context, u *unit) error {
		product, err := u.lockProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if !product.Active {
			return models.NewValidationError("product_id", fmt.Sprintf("product %d is inactive", product.ID))
		}

		open, err := u.tx.FindOpenReorder(ctx, product.ID)
		if err != nil {
			return fmt.Errorf("failed to look up open reorder: %w", err)
		}
		if open != nil {
			return models.NewConflictError("reorder request",
				fmt.Sprintf("product %d already has open request %d", product.ID, open.ID))
		}

		quantity := req.Quantity
		if quantity == 0 {
			quantity = product.ReorderQuantity
		}
		notes := req.Notes
		if notes == "" {
			notes = "manual reorder"
		}

		created, err = s.reorders.create(ctx, u, product, quantity, notes, ReorderSourceManual)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Manual reorder created",
		zap.Int64("reorder_id", created.ID),
		zap.Int64("product_id", created.ProductID),
		zap.Int("quantity_requested", created.QuantityRequested))
	return created, nil
}

// TransitionReorder applies a lifecycle action to a reorder request. The
// update is conditional on payload.ExpectedVersion, or on the version read at
// the start of the call when none is given; a mismatch is a ConflictError.
func (s *InventoryService) TransitionReorder(
	ctx context.Context,
	requestID int64,
	action models.ReorderAction,
	payload TransitionPayload,
) (updated *models.ReorderRequest, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.TransitionReorder",
		attribute.Int64("reorder.id", requestID),
		attribute.String("reorder.action", string(action)))
	defer func() {
		if err != nil {
			util.ReorderTransitionFailuresTotal.WithLabelValues(rejectionReason(err)).Inc()
		}
		util.EndSpan(span, err)
	}()

	if !action.Valid() {
		return nil, models.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}

	current, err := s.repo.GetReorder(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// a closed request rejects every action, whatever the payload
	if current.Status.IsTerminal() {
		return nil, &models.InvalidTransitionError{RequestID: current.ID, From: current.Status, Action: action}
	}

	if err := payload.validate(action); err != nil {
		return nil, err
	}

	expected := payload.ExpectedVersion
	if expected == 0 {
		expected = current.Version
	}

	err = s.execute(ctx, func(ctx context.Context, u *unit) error {
		var transitionErr error
		updated, transitionErr = s.reorders.transition(ctx, u, requestID, action, payload, expected)
		return transitionErr
	})
	if err != nil {
		s.logger.Warn("Reorder transition rejected",
			zap.Int64("reorder_id", requestID),
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Reorder transitioned",
		zap.Int64("reorder_id", updated.ID),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)),
		zap.Int("version", updated.Version))
	return updated, nil
}

// GetTransaction retrieves a transaction with its line items
func (s *InventoryService) GetTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetTransaction")
	defer span.End()

	return s.repo.GetTransaction(ctx, transactionID)
}

// ListProductTransactions lists the transaction history of a product, oldest first
func (s *InventoryService) ListProductTransactions(ctx context.Context, productID int64) ([]models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListProductTransactions")
	defer span.End()

	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListProductTransactions(ctx, productID)
}

// ReconcileResult compares the stored quantity with a replay of the history
type ReconcileResult struct {
	ProductID        int64 `json:"product_id"`
	CurrentQuantity  int   `json:"current_quantity"`
	ReplayedQuantity int   `json:"replayed_quantity"`
	LineItems        int   `json:"line_items"`
	Consistent       bool  `json:"consistent"`
}

// Reconcile replays every line item of a product under its lock and reports
// whether the sum matches current_quantity
func (s *InventoryService) Reconcile(ctx context.Context, productID int64) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reconcile",
		attribute.Int64("product.id", productID))
	defer span.End()

	var result *ReconcileResult
	err := s.execute(ctx, func(ctx context.Context, u *unit) error {
		product, err := u.lockProduct(ctx, productID)
		if err != nil {
			return err
		}
		items, err := u.tx.ProductLineItems(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to load line items: %w", err)
		}

		replayed := 0
		for _, item := range items {
			replayed += item.Quantity
		}
		result = &ReconcileResult{
			ProductID:        productID,
			CurrentQuantity:  product.CurrentQuantity,
			ReplayedQuantity: replayed,
			LineItems:        len(items),
			Consistent:       replayed == product.CurrentQuantity,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Consistent {
		s.logger.Error("Ledger drift detected",
			zap.Int64("product_id", productID),
			zap.Int("current_quantity", result.CurrentQuantity),
			zap.Int("replayed_quantity", result.ReplayedQuantity))
	}
	return result, nil
}

// OpenReorderReport joins every open request with its product
func (s *InventoryService) OpenReorderReport(ctx context.Context) ([]models.ReorderReportLine, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.OpenReorderReport")
	defer span.End()

	reqs, err := s.ListOpenReorderRequests(ctx, nil)
	if err != nil {
		return nil, err
	}

	lines := make([]models.ReorderReportLine, 0, len(reqs))
	for _, req := range reqs {
		product, err := s.repo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to load product %d: %w", req.ProductID, err)
		}
		lines = append(lines, models.ReorderReportLine{
			ReorderID:         req.ID,
			ProductID:         product.ID,
			UPC:               product.UPC,
			ProductName:       product.Name,
			CurrentQuantity:   product.CurrentQuantity,
			QuantityRequested: req.QuantityRequested,
			SupplierID:        product.SupplierID,
			Status:            req.Status,
			EstimatedCost:     product.UnitPrice.Mul(decimal.NewFromInt(int64(req.QuantityRequested))),
			DateRequested:     req.DateRequested,
		})
	}
	return lines, nil
}
