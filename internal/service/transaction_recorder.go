package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecordTransactionRequest represents a request to record a stock movement
type RecordTransactionRequest struct {
	Type           models.TransactionType `json:"type" binding:"required"`
	Items          []LineItemRequest      `json:"items" binding:"required,min=1"`
	Actor          string                 `json:"actor,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	// Override lets an ADJUSTMENT take stock below zero; it is clamped at zero
	Override bool `json:"override,omitempty"`

	// set only for the PURCHASE produced by a reorder receipt
	reorderID *int64
}

// LineItemRequest represents one product movement in a request. Sale and
// purchase quantities are positive; adjustment quantities are signed.
type LineItemRequest struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// TransactionRecorder appends transactions and drives the matching ledger deltas
type TransactionRecorder struct {
	ledger *StockLedger
	logger *zap.Logger
}

// NewTransactionRecorder creates a new transaction recorder
func NewTransactionRecorder(ledger *StockLedger) *TransactionRecorder {
	return &TransactionRecorder{
		ledger: ledger,
		logger: util.ComponentLogger("transaction-recorder"),
	}
}

// validate checks the request shape before any product is locked
func (r *TransactionRecorder) validate(req *RecordTransactionRequest) error {
	if !req.Type.Valid() {
		return models.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", req.Type))
	}
	if len(req.Items) == 0 {
		return models.NewValidationError("items", "at least one line item is required")
	}
	if req.Override && req.Type != models.TransactionTypeAdjustment {
		return models.NewValidationError("override", "only adjustments can override stock checks")
	}

	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ProductID <= 0 {
			return models.NewValidationError(field+".product_id", "must be positive")
		}
		switch req.Type {
		case models.TransactionTypeSale, models.TransactionTypePurchase:
			if item.Quantity <= 0 {
				return models.NewValidationError(field+".quantity", "must be greater than zero")
			}
		case models.TransactionTypeAdjustment:
			if item.Quantity == 0 {
				return models.NewValidationError(field+".quantity", "cannot be zero")
			}
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return models.NewValidationError(field+".unit_price", "cannot be negative")
		}
	}
	return nil
}

// signedDelta converts a line quantity into the ledger delta for the type
func signedDelta(t models.TransactionType, quantity int) int {
	if t == models.TransactionTypeSale {
		return -quantity
	}
	return quantity
}

// record validates, locks and applies every line, then appends the
// transaction. Any failure leaves the unit to be rolled back whole.
func (r *TransactionRecorder) record(ctx context.Context, u *unit, req *RecordTransactionRequest) (*models.Transaction, error) {
	if err := r.validate(req); err != nil {
		return nil, err
	}

	// lock in ascending id order so two multi-product transactions never deadlock
	ids := make([]int64, 0, len(req.Items))
	seen := make(map[int64]bool, len(req.Items))
	for _, item := range req.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		product, err := u.lockProduct(ctx, id)
		if err != nil {
			if models.IsNotFound(err) {
				return nil, models.NewValidationError("items", fmt.Sprintf("unknown product %d", id))
			}
			return nil, fmt.Errorf("failed to lock product %d: %w", id, err)
		}
		// receipts against a reorder still land after a product is retired
		if !product.Active && req.reorderID == nil {
			return nil, models.NewValidationError("items", fmt.Sprintf("product %d is inactive", id))
		}
	}

	txn := &models.Transaction{
		Type:      req.Type,
		Actor:     req.Actor,
		Notes:     req.Notes,
		ReorderID: req.reorderID,
		CreatedAt: time.Now().UTC(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	for _, item := range req.Items {
		change, err := r.ledger.ApplyDelta(ctx, u, item.ProductID, signedDelta(req.Type, item.Quantity), req.Type, req.Override)
		if err != nil {
			return nil, err
		}
		if change.Delta == 0 {
			// an override against empty stock moves nothing
			continue
		}

		price := u.locked[item.ProductID].UnitPrice
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		txn.Items = append(txn.Items, models.LineItem{
			ProductID: item.ProductID,
			Quantity:  change.Delta,
			UnitPrice: price,
		})
	}

	if len(txn.Items) == 0 {
		return nil, models.NewValidationError("items", "no stock would change")
	}

	if err := u.tx.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	u.transactions = append(u.transactions, txn)
	return txn, nil
}

// RecordTransaction records a sale, purchase or adjustment atomically. A
// repeated idempotency key returns the transaction it first produced.
func (s *InventoryService) RecordTransaction(ctx context.Context, req *RecordTransactionRequest) (txn *models.Transaction, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.RecordTransaction")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		util.TransactionRecordLatency.Observe(time.Since(start).Seconds())
	}()

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.reorderID = nil

	if req.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.logger.Info("Duplicate transaction request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("transaction_id", existing.ID))
			return existing, nil
		}
	}

	err = s.execute(ctx, func(ctx context.Context, u *unit) error {
		var recordErr error
		txn, recordErr = s.recorder.record(ctx, u, req)
		return recordErr
	})
	if err != nil {
		// a concurrent request with the same key won the unique index
		if req.IdempotencyKey != "" && models.IsConflict(err) {
			if existing, findErr := s.findByIdempotencyKey(ctx, req.IdempotencyKey); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		util.TransactionsRejectedTotal.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if err := s.idempotency.SetTransactionID(ctx, req.IdempotencyKey, txn.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}

	s.logger.Info("Transaction recorded",
		zap.Int64("transaction_id", txn.ID),
		zap.String("type", string(txn.Type)),
		zap.Int("line_items", len(txn.Items)))
	return txn, nil
}

// findByIdempotencyKey checks the cache first and falls back to the store
func (s *InventoryService) findByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	id, ok, err := s.idempotency.GetTransactionID(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
	}
	if ok {
		txn, err := s.repo.GetTransaction(ctx, id)
		if err == nil {
			return txn, nil
		}
		if !models.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load transaction: %w", err)
		}
	}

	txn, err := s.repo.FindTransactionByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	return txn, nil
}

func rejectionReason(err error) string {
	switch {
	case models.IsValidation(err):
		return "validation"
	case models.IsInsufficientStock(err):
		return "insufficient_stock"
	case models.IsConflict(err):
		return "conflict"
	case models.IsNotFound(err):
		return "not_found"
	case models.IsInvalidTransition(err):
		return "invalid_transition"
	default:
		return "error"
	}
}
