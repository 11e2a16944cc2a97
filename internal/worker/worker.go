package worker

import (
	"context"

	"inventory-service/internal/broker"
	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// ReorderTransitioner is the part of the inventory service the worker drives
type ReorderTransitioner interface {
	TransitionReorder(
		ctx context.Context,
		requestID int64,
		action models.ReorderAction,
		payload service.TransitionPayload,
	) (*models.ReorderRequest, error)
}

// SupplierWorker applies supplier receipts and cancellations to reorder requests
type SupplierWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	reorders     ReorderTransitioner
	logger       *zap.Logger
}

// NewSupplierWorker creates a new supplier worker
func NewSupplierWorker(consumer *broker.Consumer, reorders ReorderTransitioner) *SupplierWorker {
	w := &SupplierWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		reorders:     reorders,
		logger:       util.ComponentLogger("supplier-worker"),
	}

	w.eventHandler.OnShipmentReceived(w.HandleShipmentReceived)
	w.eventHandler.OnSupplierCanceled(w.HandleSupplierCanceled)
	return w
}

// Start starts the worker
func (w *SupplierWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting supplier worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SupplierWorker) Stop() error {
	w.logger.Info("Stopping supplier worker")
	return w.consumer.Close()
}

// HandleShipmentReceived marks the request RECEIVED with the delivered quantity
func (w *SupplierWorker) HandleShipmentReceived(ctx context.Context, event *models.ShipmentReceivedEvent) error {
	w.logger.Info("Processing shipment receipt",
		zap.Int64("reorder_id", event.ReorderID),
		zap.Int("quantity_received", event.QuantityReceived))

	_, err := w.reorders.TransitionReorder(ctx, event.ReorderID, models.ReorderActionMarkReceived, service.TransitionPayload{
		ActualQuantity:  event.QuantityReceived,
		Notes:           event.Notes,
		Actor:           "supplier-integration",
		ExpectedVersion: event.Version,
	})
	return w.settle(event.ReorderID, event.EventID, event.Version, err)
}

// HandleSupplierCanceled cancels a request the supplier cannot fulfil
func (w *SupplierWorker) HandleSupplierCanceled(ctx context.Context, event *models.SupplierCanceledEvent) error {
	w.logger.Info("Processing supplier cancellation",
		zap.Int64("reorder_id", event.ReorderID),
		zap.String("reason", event.Reason))

	reason := event.Reason
	if reason == "" {
		reason = "canceled by supplier"
	}
	_, err := w.reorders.TransitionReorder(ctx, event.ReorderID, models.ReorderActionCancel, service.TransitionPayload{
		Reason: reason,
		Actor:  "supplier-integration",
	})
	return w.settle(event.ReorderID, event.EventID, 0, err)
}

// settle decides whether a failed event should be retried. The consumer
// retries a returned error in place, so only errors that can clear up on
// their own are returned: a conflict against the version read by the call,
// or an infrastructure failure. Everything else is acknowledged.
func (w *SupplierWorker) settle(reorderID int64, eventID string, pinnedVersion int, err error) error {
	switch {
	case err == nil:
		return nil
	case models.IsInvalidTransition(err):
		// a redelivered receipt finds the request already RECEIVED
		w.logger.Warn("Ignoring event for closed reorder request",
			zap.Int64("reorder_id", reorderID),
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil
	case models.IsNotFound(err), models.IsValidation(err):
		w.logger.Error("Dropping unprocessable supplier event",
			zap.Int64("reorder_id", reorderID),
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil
	case models.IsConflict(err) && pinnedVersion != 0:
		// the event names a version the request has moved past
		w.logger.Error("Dropping supplier event for stale version",
			zap.Int64("reorder_id", reorderID),
			zap.String("event_id", eventID),
			zap.Int("version", pinnedVersion),
			zap.Error(err))
		return nil
	default:
		return err
	}
}
