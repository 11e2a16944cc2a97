package service

import (
	"context"
	"fmt"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// Reorder sources
const (
	ReorderSourceMonitor = "monitor"
	ReorderSourceManual  = "manual"
)

// ThresholdMonitor opens a reorder request when stock reaches the reorder point
type ThresholdMonitor struct {
	reorders *ReorderManager
	logger   *zap.Logger
}

// NewThresholdMonitor creates a monitor and subscribes it to the ledger
func NewThresholdMonitor(ledger *StockLedger, reorders *ReorderManager) *ThresholdMonitor {
	m := &ThresholdMonitor{
		reorders: reorders,
		logger:   util.ComponentLogger("threshold-monitor"),
	}
	ledger.subscribe(m)
	return m
}

func (m *ThresholdMonitor) onQuantityChanged(ctx context.Context, u *unit, product *models.Product) error {
	_, err := m.evaluate(ctx, u, product)
	return err
}

// evaluate creates a PENDING request when the locked product is at or below
// its reorder point and has no open request. It never cancels requests when
// stock recovers; the order may already be with the supplier.
func (m *ThresholdMonitor) evaluate(ctx context.Context, u *unit, product *models.Product) (*models.ReorderRequest, error) {
	if !product.Active || !product.NeedsReorder() {
		return nil, nil
	}

	open, err := u.tx.FindOpenReorder(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open reorder: %w", err)
	}
	if open != nil {
		m.logger.Debug("Open reorder already exists",
			zap.Int64("product_id", product.ID),
			zap.Int64("reorder_id", open.ID))
		return nil, nil
	}

	notes := fmt.Sprintf("stock %d at or below reorder point %d", product.CurrentQuantity, product.ReorderPoint)
	req, err := m.reorders.create(ctx, u, product, product.ReorderQuantity, notes, ReorderSourceMonitor)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Reorder requested",
		zap.Int64("product_id", product.ID),
		zap.Int64("reorder_id", req.ID),
		zap.Int("current_quantity", product.CurrentQuantity),
		zap.Int("quantity_requested", req.QuantityRequested))
	return req, nil
}

// Evaluate locks a product and runs the threshold check in its own unit of work
func (s *InventoryService) Evaluate(ctx context.Context, productID int64) (*models.ReorderRequest, error) {
	ctx, span := util.StartSpan(ctx, "ThresholdMonitor.Evaluate")
	defer span.End()

	var created *models.ReorderRequest
	err := s.execute(ctx, func(ctx context.Context, u *unit) error {
		product, err := u.lockProduct(ctx, productID)
		if err != nil {
			return err
		}
		created, err = s.monitor.evaluate(ctx, u, product)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
