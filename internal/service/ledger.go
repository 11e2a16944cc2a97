package service

import (
	"context"
	"fmt"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// quantityListener reacts to a ledger mutation inside the same unit of work
type quantityListener interface {
	onQuantityChanged(ctx context.Context, u *unit, product *models.Product) error
}

// QuantityChange describes one applied ledger delta
type QuantityChange struct {
	ProductID        int64
	Delta            int
	PreviousQuantity int
	NewQuantity      int
}

// StockLedger is the only writer of products.current_quantity
type StockLedger struct {
	listeners []quantityListener
	logger    *zap.Logger
}

// NewStockLedger creates a new stock ledger
func NewStockLedger() *StockLedger {
	return &StockLedger{
		logger: util.ComponentLogger("ledger"),
	}
}

func (l *StockLedger) subscribe(listener quantityListener) {
	l.listeners = append(l.listeners, listener)
}

// ApplyDelta adds signedQuantity to a product's stock under the product lock.
// A result below zero fails with InsufficientStockError, except for an
// overridden adjustment, which is clamped so stock lands at zero. The
// returned change carries the delta actually applied.
func (l *StockLedger) ApplyDelta(
	ctx context.Context,
	u *unit,
	productID int64,
	signedQuantity int,
	reason models.TransactionType,
	override bool,
) (QuantityChange, error) {
	product, err := u.lockProduct(ctx, productID)
	if err != nil {
		return QuantityChange{}, err
	}

	previous := product.CurrentQuantity
	delta := signedQuantity
	if previous+delta < 0 {
		if reason != models.TransactionTypeAdjustment || !override {
			util.InsufficientStockTotal.Inc()
			return QuantityChange{}, &models.InsufficientStockError{
				ProductID: productID,
				Available: previous,
				Requested: -signedQuantity,
			}
		}
		l.logger.Warn("Override adjustment clamped at zero",
			zap.Int64("product_id", productID),
			zap.Int("requested_delta", signedQuantity),
			zap.Int("applied_delta", -previous))
		delta = -previous
	}

	change := QuantityChange{
		ProductID:        productID,
		Delta:            delta,
		PreviousQuantity: previous,
		NewQuantity:      previous + delta,
	}
	if delta == 0 {
		return change, nil
	}

	if err := u.tx.UpdateProductQuantity(ctx, productID, change.NewQuantity); err != nil {
		return QuantityChange{}, fmt.Errorf("failed to persist quantity: %w", err)
	}
	product.CurrentQuantity = change.NewQuantity

	u.changes = append(u.changes, models.QuantityChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeQuantityChanged,
			Timestamp: time.Now().UTC(),
		},
		ProductID:        productID,
		Delta:            delta,
		PreviousQuantity: previous,
		NewQuantity:      change.NewQuantity,
		Reason:           reason,
		ReorderPoint:     product.ReorderPoint,
	})

	for _, listener := range l.listeners {
		if err := listener.onQuantityChanged(ctx, u, product); err != nil {
			return QuantityChange{}, err
		}
	}

	return change, nil
}
