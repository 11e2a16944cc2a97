package service

import (
	"context"
	"time"

	"inventory-service/internal/models"
)

// EventPublisher receives committed domain events
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, event *models.TransactionRecordedEvent) error
	PublishQuantityChanged(ctx context.Context, event *models.QuantityChangedEvent) error
	PublishReorderEvent(ctx context.Context, event *models.ReorderEvent) error
}

// SupplierNotifier is told when a reorder request is placed with the supplier
type SupplierNotifier interface {
	NotifyReorderOrdered(ctx context.Context, event *models.ReorderOrderedEvent) error
}

// ProductCache is a read-through cache for product snapshots
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, bool, error)
	SetProduct(ctx context.Context, product *models.Product) error
	InvalidateProducts(ctx context.Context, ids ...int64) error
}

// IdempotencyCache remembers which transaction an idempotency key produced
type IdempotencyCache interface {
	GetTransactionID(ctx context.Context, key string) (int64, bool, error)
	SetTransactionID(ctx context.Context, key string, transactionID int64, ttl time.Duration) error
}

type noopPublisher struct{}

func (noopPublisher) PublishTransactionRecorded(context.Context, *models.TransactionRecordedEvent) error {
	return nil
}

func (noopPublisher) PublishQuantityChanged(context.Context, *models.QuantityChangedEvent) error {
	return nil
}

func (noopPublisher) PublishReorderEvent(context.Context, *models.ReorderEvent) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyReorderOrdered(context.Context, *models.ReorderOrderedEvent) error {
	return nil
}

type noopProductCache struct{}

func (noopProductCache) GetProduct(context.Context, int64) (*models.Product, bool, error) {
	return nil, false, nil
}

func (noopProductCache) SetProduct(context.Context, *models.Product) error {
	return nil
}

func (noopProductCache) InvalidateProducts(context.Context, ...int64) error {
	return nil
}

type noopIdempotencyCache struct{}

func (noopIdempotencyCache) GetTransactionID(context.Context, string) (int64, bool, error) {
	return 0, false, nil
}

func (noopIdempotencyCache) SetTransactionID(context.Context, string, int64, time.Duration) error {
	return nil
}
