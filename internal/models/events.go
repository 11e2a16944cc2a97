package models

import "time"

// Event types
const (
	EventTypeTransactionRecorded = "TRANSACTION_RECORDED"
	EventTypeQuantityChanged     = "QUANTITY_CHANGED"
	EventTypeReorderCreated      = "REORDER_CREATED"
	EventTypeReorderOrdered      = "REORDER_ORDERED"
	EventTypeReorderReceived     = "REORDER_RECEIVED"
	EventTypeReorderCanceled     = "REORDER_CANCELED"
	EventTypeShipmentReceived    = "SUPPLIER_SHIPMENT_RECEIVED"
	EventTypeSupplierCanceled    = "SUPPLIER_ORDER_CANCELED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionRecordedEvent published after a transaction commits
type TransactionRecordedEvent struct {
	BaseEvent
	TransactionID int64           `json:"transaction_id"`
	Type          TransactionType `json:"type"`
	Actor         string          `json:"actor,omitempty"`
	ReorderID     *int64          `json:"reorder_id,omitempty"`
	Items         []LineItem      `json:"items"`
}

// QuantityChangedEvent published for every applied ledger delta
type QuantityChangedEvent struct {
	BaseEvent
	ProductID        int64           `json:"product_id"`
	Delta            int             `json:"delta"`
	PreviousQuantity int             `json:"previous_quantity"`
	NewQuantity      int             `json:"new_quantity"`
	Reason           TransactionType `json:"reason"`
	ReorderPoint     int             `json:"reorder_point"`
}

// ReorderEvent published when a reorder request is created or transitions
type ReorderEvent struct {
	BaseEvent
	ReorderID         int64         `json:"reorder_id"`
	ProductID         int64         `json:"product_id"`
	Status            ReorderStatus `json:"status"`
	QuantityRequested int           `json:"quantity_requested"`
	QuantityReceived  *int          `json:"quantity_received,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// ReorderOrderedEvent is sent to the supplier integration when a request
// moves from PENDING to ORDERED
type ReorderOrderedEvent struct {
	BaseEvent
	ReorderID         int64  `json:"reorder_id"`
	ProductID         int64  `json:"product_id"`
	UPC               string `json:"upc"`
	SupplierID        *int64 `json:"supplier_id,omitempty"`
	QuantityRequested int    `json:"quantity_requested"`
}

// ShipmentReceivedEvent is published by the supplier integration when goods arrive
type ShipmentReceivedEvent struct {
	BaseEvent
	ReorderID        int64  `json:"reorder_id"`
	QuantityReceived int    `json:"quantity_received"`
	Version          int    `json:"version,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// SupplierCanceledEvent is published by the supplier integration when an
// order cannot be fulfilled
type SupplierCanceledEvent struct {
	BaseEvent
	ReorderID int64  `json:"reorder_id"`
	Reason    string `json:"reason"`
}
