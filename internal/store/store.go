package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const (
	productColumns = `id, upc, name, description, category, case_size, supplier_id, current_quantity,
		reorder_point, reorder_quantity, unit_price, active, created_at, updated_at`
	transactionColumns = `id, type, actor, notes, reorder_id, idempotency_key, created_at`
	lineItemColumns    = `id, transaction_id, product_id, quantity, unit_price`
	reorderColumns     = `id, product_id, quantity_requested, quantity_received, status, notes, cancel_reason,
		date_requested, date_ordered, date_fulfilled, version, updated_at`
)

// Store is the Postgres-backed Repository
type Store struct {
	db *sqlx.DB
}

var _ Repository = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn inside a database transaction
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateError(err, "transaction", "commit failed")
	}
	return nil
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("product", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByUPC retrieves a product by its business code
func (s *Store) GetProductByUPC(ctx context.Context, upc string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE upc = $1", upc)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("product", upc)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products matching filter
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query, args := buildProductQuery(filter)

	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

func buildProductQuery(filter ProductFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conds = append(conds, fmt.Sprintf("(upc ILIKE $%d OR name ILIKE $%d)", len(args), len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "active")
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY id", args
}

// GetTransaction retrieves a transaction with its line items
func (s *Store) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.GetContext(ctx, &txn, "SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, err
	}

	txns := []models.Transaction{txn}
	if err := s.attachLineItems(ctx, txns); err != nil {
		return nil, err
	}
	return &txns[0], nil
}

// FindTransactionByIdempotencyKey returns nil when no transaction carries key
func (s *Store) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, "SELECT id FROM transactions WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, id)
}

// ListProductTransactions retrieves every transaction touching a product, oldest first
func (s *Store) ListProductTransactions(ctx context.Context, productID int64) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := s.db.SelectContext(ctx, &txns, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE id IN (SELECT transaction_id FROM transaction_items WHERE product_id = $1)
		ORDER BY id`, productID)
	if err != nil {
		return nil, err
	}

	if err := s.attachLineItems(ctx, txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Store) attachLineItems(ctx context.Context, txns []models.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	ids := make([]int64, len(txns))
	for i := range txns {
		ids[i] = txns[i].ID
	}

	query, args, err := sqlx.In("SELECT "+lineItemColumns+" FROM transaction_items WHERE transaction_id IN (?) ORDER BY id", ids)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	var items []models.LineItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return err
	}

	byTxn := make(map[int64][]models.LineItem, len(txns))
	for _, item := range items {
		byTxn[item.TransactionID] = append(byTxn[item.TransactionID], item)
	}
	for i := range txns {
		txns[i].Items = byTxn[txns[i].ID]
	}
	return nil
}

// GetReorder retrieves a reorder request by ID
func (s *Store) GetReorder(ctx context.Context, id int64) (*models.ReorderRequest, error) {
	var req models.ReorderRequest
	err := s.db.GetContext(ctx, &req, "SELECT "+reorderColumns+" FROM reorder_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("reorder request", id)
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListReorders retrieves reorder requests matching filter, oldest first
func (s *Store) ListReorders(ctx context.Context, filter ReorderFilter) ([]models.ReorderRequest, error) {
	query, args := buildReorderQuery(filter)

	reqs := []models.ReorderRequest{}
	err := s.db.SelectContext(ctx, &reqs, query, args...)
	return reqs, err
}

func buildReorderQuery(filter ReorderFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		conds = append(conds, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := "SELECT " + reorderColumns + " FROM reorder_requests"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query + " ORDER BY id", args
}

// translateError maps driver errors onto the domain error taxonomy
func translateError(err error, resource, message string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return models.NewConflictError(resource, fmt.Sprintf("%s (%s)", message, pqErr.Constraint))
		case "40001": // serialization_failure
			return models.NewConflictError(resource, "concurrent update, retry")
		}
	}
	return err
}
