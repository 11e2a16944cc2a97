package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"inventory-service/internal/models"

	"github.com/go-redis/redis/v8"
)

// Client backs the product read cache and the idempotency key store
type Client struct {
	rdb        *redis.Client
	productTTL time.Duration
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int, productTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:        rdb,
		productTTL: productTTL,
	}, nil
}

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func productKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

// GetProduct returns a cached product snapshot. ok is false on a miss.
func (c *Client) GetProduct(ctx context.Context, productID int64) (*models.Product, bool, error) {
	data, err := c.rdb.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached product: %w", err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		// a corrupt entry is a miss; the next SetProduct overwrites it
		return nil, false, nil
	}
	return &product, true, nil
}

// SetProduct caches a product snapshot for the configured TTL
func (c *Client) SetProduct(ctx context.Context, product *models.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, c.productTTL).Err()
}

// InvalidateProducts drops cached snapshots after their stock or details change
func (c *Client) InvalidateProducts(ctx context.Context, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, productKey(id))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// GetTransactionID returns the transaction recorded under an idempotency key
func (c *Client) GetTransactionID(ctx context.Context, key string) (int64, bool, error) {
	value, err := c.rdb.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid idempotency entry %q: %w", value, err)
	}
	return id, true, nil
}

// SetTransactionID stores an idempotency key with TTL. The first writer wins.
func (c *Client) SetTransactionID(ctx context.Context, key string, transactionID int64, ttl time.Duration) error {
	return c.rdb.SetNX(ctx, idempotencyKey(key), transactionID, ttl).Err()
}
