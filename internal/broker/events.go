package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes inventory domain events keyed by product, so all
// events of one product stay ordered
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func productKey(productID int64) string {
	return fmt.Sprintf("product-%d", productID)
}

// PublishTransactionRecorded publishes TransactionRecorded event. It is keyed
// by the first product on the transaction.
func (ep *EventPublisher) PublishTransactionRecorded(ctx context.Context, event *models.TransactionRecordedEvent) error {
	key := fmt.Sprintf("transaction-%d", event.TransactionID)
	if len(event.Items) > 0 {
		key = productKey(event.Items[0].ProductID)
	}
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishQuantityChanged publishes QuantityChanged event
func (ep *EventPublisher) PublishQuantityChanged(ctx context.Context, event *models.QuantityChangedEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event)
}

// PublishReorderEvent publishes a reorder lifecycle event
func (ep *EventPublisher) PublishReorderEvent(ctx context.Context, event *models.ReorderEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event)
}

// NotifyReorderOrdered tells the supplier integration to place an order
func (ep *EventPublisher) NotifyReorderOrdered(ctx context.Context, event *models.ReorderOrderedEvent) error {
	return ep.producer.PublishEvent(ctx, productKey(event.ProductID), event)
}

// EventHandler routes supplier integration events
type EventHandler struct {
	onShipmentReceived func(context.Context, *models.ShipmentReceivedEvent) error
	onSupplierCanceled func(context.Context, *models.SupplierCanceledEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.ComponentLogger("event-handler")}
}

// OnShipmentReceived registers a handler for SupplierShipmentReceived events
func (eh *EventHandler) OnShipmentReceived(handler func(context.Context, *models.ShipmentReceivedEvent) error) {
	eh.onShipmentReceived = handler
}

// OnSupplierCanceled registers a handler for SupplierOrderCanceled events
func (eh *EventHandler) OnSupplierCanceled(handler func(context.Context, *models.SupplierCanceledEvent) error) {
	eh.onSupplierCanceled = handler
}

// HandleMessage routes messages to appropriate handlers. Malformed messages
// are reported and dropped, since redelivery cannot fix them.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping malformed event", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeShipmentReceived:
		if eh.onShipmentReceived != nil {
			var event models.ShipmentReceivedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Dropping malformed SupplierShipmentReceived event", zap.Error(err))
				return nil
			}
			return eh.onShipmentReceived(ctx, &event)
		}

	case models.EventTypeSupplierCanceled:
		if eh.onSupplierCanceled != nil {
			var event models.SupplierCanceledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Dropping malformed SupplierOrderCanceled event", zap.Error(err))
				return nil
			}
			return eh.onSupplierCanceled(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
