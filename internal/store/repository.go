package store

import (
	"context"

	"inventory-service/internal/models"
)

// Repository is the persistence port used by the inventory services.
// Reads outside WithinTx see committed state only.
type Repository interface {
	// WithinTx runs fn in a single atomic unit. Any error rolls back every
	// write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductByUPC(ctx context.Context, upc string) (*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)

	GetTransaction(ctx context.Context, id int64) (*models.Transaction, error)
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	ListProductTransactions(ctx context.Context, productID int64) ([]models.Transaction, error)

	GetReorder(ctx context.Context, id int64) (*models.ReorderRequest, error)
	ListReorders(ctx context.Context, filter ReorderFilter) ([]models.ReorderRequest, error)

	Close() error
}

// Tx is a unit of work. Product rows returned by LockProduct stay locked
// against other units until the unit ends.
type Tx interface {
	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	InsertProduct(ctx context.Context, product *models.Product) error
	UpdateProductQuantity(ctx context.Context, id int64, quantity int) error
	// UpdateProductDetails writes every field except current_quantity
	UpdateProductDetails(ctx context.Context, product *models.Product) error

	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	ProductLineItems(ctx context.Context, productID int64) ([]models.LineItem, error)

	GetReorder(ctx context.Context, id int64) (*models.ReorderRequest, error)
	FindOpenReorder(ctx context.Context, productID int64) (*models.ReorderRequest, error)
	InsertReorder(ctx context.Context, req *models.ReorderRequest) error
	// UpdateReorder persists req only if the stored version still equals
	// expectedVersion, then sets req.Version to the new version.
	UpdateReorder(ctx context.Context, req *models.ReorderRequest, expectedVersion int) error
}

// ProductFilter narrows ListProducts. Query matches UPC or name substrings.
type ProductFilter struct {
	Query      string
	ActiveOnly bool
}

// ReorderFilter narrows ListReorders
type ReorderFilter struct {
	ProductID *int64
	Statuses  []models.ReorderStatus
}

func (f ReorderFilter) matches(req *models.ReorderRequest) bool {
	if f.ProductID != nil && req.ProductID != *f.ProductID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if req.Status == s {
			return true
		}
	}
	return false
}
