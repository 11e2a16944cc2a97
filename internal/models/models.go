package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a stocked item in the catalog
type Product struct {
	ID              int64           `db:"id" json:"id"`
	UPC             string          `db:"upc" json:"upc"`
	Name            string          `db:"name" json:"name"`
	Description     string          `db:"description" json:"description"`
	Category        string          `db:"category" json:"category"`
	CaseSize        int             `db:"case_size" json:"case_size"`
	SupplierID      *int64          `db:"supplier_id" json:"supplier_id,omitempty"`
	CurrentQuantity int             `db:"current_quantity" json:"current_quantity"`
	ReorderPoint    int             `db:"reorder_point" json:"reorder_point"`
	ReorderQuantity int             `db:"reorder_quantity" json:"reorder_quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price" json:"unit_price"`
	Active          bool            `db:"active" json:"active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// NeedsReorder reports whether the quantity is at or below the reorder point
func (p *Product) NeedsReorder() bool {
	return p.CurrentQuantity <= p.ReorderPoint
}

// TransactionType classifies a stock movement
type TransactionType string

// Transaction types
const (
	TransactionTypeSale       TransactionType = "SALE"
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeSale, TransactionTypePurchase, TransactionTypeAdjustment:
		return true
	}
	return false
}

// Transaction is an immutable record of stock movement
type Transaction struct {
	ID             int64           `db:"id" json:"id"`
	Type           TransactionType `db:"type" json:"type"`
	Actor          string          `db:"actor" json:"actor,omitempty"`
	Notes          string          `db:"notes" json:"notes,omitempty"`
	ReorderID      *int64          `db:"reorder_id" json:"reorder_id,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []LineItem      `db:"-" json:"items"`
}

// LineItem is one product movement within a transaction. Quantity is the
// signed delta that was applied to the ledger.
type LineItem struct {
	ID            int64           `db:"id" json:"id"`
	TransactionID int64           `db:"transaction_id" json:"transaction_id"`
	ProductID     int64           `db:"product_id" json:"product_id"`
	Quantity      int             `db:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// ReorderRequest tracks replenishment of a single product
type ReorderRequest struct {
	ID                int64         `db:"id" json:"id"`
	ProductID         int64         `db:"product_id" json:"product_id"`
	QuantityRequested int           `db:"quantity_requested" json:"quantity_requested"`
	QuantityReceived  *int          `db:"quantity_received" json:"quantity_received,omitempty"`
	Status            ReorderStatus `db:"status" json:"status"`
	Notes             string        `db:"notes" json:"notes,omitempty"`
	CancelReason      string        `db:"cancel_reason" json:"cancel_reason,omitempty"`
	DateRequested     time.Time     `db:"date_requested" json:"date_requested"`
	DateOrdered       *time.Time    `db:"date_ordered" json:"date_ordered,omitempty"`
	DateFulfilled     *time.Time    `db:"date_fulfilled" json:"date_fulfilled,omitempty"`
	Version           int           `db:"version" json:"version"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// ReorderReportLine is one row of the open reorder report
type ReorderReportLine struct {
	ReorderID         int64           `json:"reorder_id"`
	ProductID         int64           `json:"product_id"`
	UPC               string          `json:"upc"`
	ProductName       string          `json:"product_name"`
	CurrentQuantity   int             `json:"current_quantity"`
	QuantityRequested int             `json:"quantity_requested"`
	SupplierID        *int64          `json:"supplier_id,omitempty"`
	Status            ReorderStatus   `json:"status"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	DateRequested     time.Time       `json:"date_requested"`
}
