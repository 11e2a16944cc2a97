package service

import (
	"context"

	"inventory-service/internal/models"
	"inventory-service/internal/store"
)

// unit is one logical unit of work: a store transaction, the products it has
// locked, and the events it produced. Events are published only after the
// store transaction commits.
type unit struct {
	tx     store.Tx
	locked map[int64]*models.Product

	changes      []models.QuantityChangedEvent
	transactions []*models.Transaction
	reorders     []reorderNotice
}

// reorderNotice is a created or transitioned reorder request awaiting publication
type reorderNotice struct {
	request models.ReorderRequest
	product models.Product
	action  models.ReorderAction // empty for creation
	source  string
}

func newUnit(tx store.Tx) *unit {
	return &unit{
		tx:     tx,
		locked: make(map[int64]*models.Product),
	}
}

// lockProduct locks a product once per unit and returns the shared in-unit
// copy, so every component sees the latest staged quantity.
func (u *unit) lockProduct(ctx context.Context, id int64) (*models.Product, error) {
	if p, ok := u.locked[id]; ok {
		return p, nil
	}
	p, err := u.tx.LockProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	u.locked[id] = p
	return p, nil
}

// touchedProducts lists products whose cached snapshots are stale after commit
func (u *unit) touchedProducts() []int64 {
	ids := make([]int64, 0, len(u.locked))
	for id := range u.locked {
		ids = append(ids, id)
	}
	return ids
}
