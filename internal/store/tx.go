package store

import (
	"context"
	"database/sql"
	"fmt"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// pgTx implements Tx on top of a Postgres transaction. Row locks taken with
// FOR UPDATE are held until commit or rollback.
type pgTx struct {
	tx *sqlx.Tx
}

// LockProduct reads a product and locks its row for the rest of the transaction
func (t *pgTx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	return &product, nil
}

// InsertProduct creates a product row
func (t *pgTx) InsertProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (upc, name, description, category, case_size, supplier_id, current_quantity,
			reorder_point, reorder_quantity, unit_price, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		p.UPC, p.Name, p.Description, p.Category, p.CaseSize, p.SupplierID, p.CurrentQuantity,
		p.ReorderPoint, p.ReorderQuantity, p.UnitPrice, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return translateError(err, "product", "upc already exists")
	}
	return nil
}

// UpdateProductQuantity stores a new current quantity
func (t *pgTx) UpdateProductQuantity(ctx context.Context, id int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE products SET current_quantity = $1, updated_at = NOW() WHERE id = $2",
		quantity, id)
	return err
}

// UpdateProductDetails stores catalog fields
func (t *pgTx) UpdateProductDetails(ctx context.Context, p *models.Product) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $1, description = $2, category = $3, case_size = $4, supplier_id = $5,
			reorder_point = $6, reorder_quantity = $7, unit_price = $8, active = $9, updated_at = NOW()
		WHERE id = $10`,
		p.Name, p.Description, p.Category, p.CaseSize, p.SupplierID,
		p.ReorderPoint, p.ReorderQuantity, p.UnitPrice, p.Active, p.ID)
	return err
}

// InsertTransaction appends a transaction and its line items
func (t *pgTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (type, actor, notes, reorder_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := t.tx.QueryRowxContext(ctx, query,
		txn.Type, txn.Actor, txn.Notes, txn.ReorderID, txn.IdempotencyKey,
	).Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		return translateError(err, "transaction", "idempotency key already used")
	}

	for i := range txn.Items {
		item := &txn.Items[i]
		item.TransactionID = txn.ID
		err := t.tx.GetContext(ctx, &item.ID, `
			INSERT INTO transaction_items (transaction_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			item.TransactionID, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

// ProductLineItems returns every line item for a product in insertion order
func (t *pgTx) ProductLineItems(ctx context.Context, productID int64) ([]models.LineItem, error) {
	items := []models.LineItem{}
	err := t.tx.SelectContext(ctx, &items,
		"SELECT "+lineItemColumns+" FROM transaction_items WHERE product_id = $1 ORDER BY id", productID)
	return items, err
}

// GetReorder reads a reorder request inside the transaction
func (t *pgTx) GetReorder(ctx context.Context, id int64) (*models.ReorderRequest, error) {
	var req models.ReorderRequest
	err := t.tx.GetContext(ctx, &req, "SELECT "+reorderColumns+" FROM reorder_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("reorder request", id)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FindOpenReorder returns the PENDING or ORDERED request for a product, or nil
func (t *pgTx) FindOpenReorder(ctx context.Context, productID int64) (*models.ReorderRequest, error) {
	var req models.ReorderRequest
	err := t.tx.GetContext(ctx, &req, `
		SELECT `+reorderColumns+` FROM reorder_requests
		WHERE product_id = $1 AND status IN ('PENDING', 'ORDERED')
		LIMIT 1`, productID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// InsertReorder creates a reorder request. The partial unique index turns a
// second open request for the same product into a ConflictError.
func (t *pgTx) InsertReorder(ctx context.Context, req *models.ReorderRequest) error {
	query := `
		INSERT INTO reorder_requests (product_id, quantity_requested, status, notes, date_requested)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, version, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		req.ProductID, req.QuantityRequested, req.Status, req.Notes, req.DateRequested,
	).Scan(&req.ID, &req.Version, &req.UpdatedAt)
	if err != nil {
		return translateError(err, "reorder request", "product already has an open reorder request")
	}
	return nil
}

// UpdateReorder writes a transition guarded by the optimistic version
func (t *pgTx) UpdateReorder(ctx context.Context, req *models.ReorderRequest, expectedVersion int) error {
	query := `
		UPDATE reorder_requests
		SET status = $1, notes = $2, cancel_reason = $3, quantity_received = $4,
			date_ordered = $5, date_fulfilled = $6, version = version + 1, updated_at = NOW()
		WHERE id = $7 AND version = $8
		RETURNING version, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		req.Status, req.Notes, req.CancelReason, req.QuantityReceived,
		req.DateOrdered, req.DateFulfilled, req.ID, expectedVersion,
	).Scan(&req.Version, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.NewConflictError("reorder request",
			fmt.Sprintf("request %d changed since version %d", req.ID, expectedVersion))
	}
	if err != nil {
		return translateError(err, "reorder request", "product already has an open reorder request")
	}
	return nil
}
