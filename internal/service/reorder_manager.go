package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"inventory-service/internal/models"
	"inventory-service/internal/util"

	"go.uber.org/zap"
)

// TransitionPayload carries the data an action needs
type TransitionPayload struct {
	// ActualQuantity is the received quantity for MARK_RECEIVED
	ActualQuantity int `json:"actual_quantity"`
	// Reason is required for CANCEL
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
	Actor  string `json:"actor"`
	// ExpectedVersion pins the version the caller last read; zero means the
	// version read at the start of the call
	ExpectedVersion int `json:"expected_version"`
}

func (p TransitionPayload) validate(action models.ReorderAction) error {
	if !action.Valid() {
		return models.NewValidationError("action", fmt.Sprintf("unknown action %q", action))
	}
	switch action {
	case models.ReorderActionMarkReceived:
		if p.ActualQuantity <= 0 {
			return models.NewValidationError("actual_quantity", "must be greater than zero")
		}
	case models.ReorderActionCancel:
		if strings.TrimSpace(p.Reason) == "" {
			return models.NewValidationError("reason", "is required to cancel")
		}
	}
	if p.ExpectedVersion < 0 {
		return models.NewValidationError("expected_version", "cannot be negative")
	}
	return nil
}

// ReorderManager owns every reorder request state change
type ReorderManager struct {
	recorder *TransactionRecorder
	logger   *zap.Logger
}

// NewReorderManager creates a new reorder lifecycle manager
func NewReorderManager(recorder *TransactionRecorder) *ReorderManager {
	return &ReorderManager{
		recorder: recorder,
		logger:   util.ComponentLogger("reorder-manager"),
	}
}

// create inserts a PENDING request for a locked product
func (rm *ReorderManager) create(
	ctx context.Context,
	u *unit,
	product *models.Product,
	quantity int,
	notes, source string,
) (*models.ReorderRequest, error) {
	req := &models.ReorderRequest{
		ProductID:         product.ID,
		QuantityRequested: quantity,
		Status:            models.ReorderStatusPending,
		Notes:             notes,
		DateRequested:     time.Now().UTC(),
	}
	if err := u.tx.InsertReorder(ctx, req); err != nil {
		return nil, err
	}

	u.reorders = append(u.reorders, reorderNotice{request: *req, product: *product, source: source})
	return req, nil
}

// transition applies action to the request under the product lock. The
// stored version must still equal expectedVersion.
func (rm *ReorderManager) transition(
	ctx context.Context,
	u *unit,
	requestID int64,
	action models.ReorderAction,
	payload TransitionPayload,
	expectedVersion int,
) (*models.ReorderRequest, error) {
	req, err := u.tx.GetReorder(ctx, requestID)
	if err != nil {
		return nil, err
	}
	product, err := u.lockProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	// re-read now that writers on this product are excluded
	if req, err = u.tx.GetReorder(ctx, requestID); err != nil {
		return nil, err
	}

	if req.Version != expectedVersion {
		return nil, models.NewConflictError("reorder request",
			fmt.Sprintf("request %d is at version %d, expected %d", req.ID, req.Version, expectedVersion))
	}

	next, ok := models.NextReorderStatus(req.Status, action)
	if !ok {
		return nil, &models.InvalidTransitionError{RequestID: req.ID, From: req.Status, Action: action}
	}

	now := time.Now().UTC()
	req.Status = next
	if payload.Notes != "" {
		req.Notes = appendNote(req.Notes, payload.Notes)
	}

	switch action {
	case models.ReorderActionMarkOrdered:
		req.DateOrdered = &now
	case models.ReorderActionCancel:
		req.CancelReason = payload.Reason
	case models.ReorderActionMarkReceived:
		received := payload.ActualQuantity
		req.QuantityReceived = &received
		req.DateFulfilled = &now
	}

	// the request must be terminal before the receipt delta reaches the
	// monitor, so a still-low product can get a fresh request
	if err := u.tx.UpdateReorder(ctx, req, expectedVersion); err != nil {
		return nil, err
	}

	if action == models.ReorderActionMarkReceived {
		if err := rm.receive(ctx, u, req, payload); err != nil {
			return nil, err
		}
	}

	u.reorders = append(u.reorders, reorderNotice{request: *req, product: *product, action: action})
	return req, nil
}

// receive records the PURCHASE transaction that moves the received units into stock
func (rm *ReorderManager) receive(ctx context.Context, u *unit, req *models.ReorderRequest, payload TransitionPayload) error {
	reorderID := req.ID
	_, err := rm.recorder.record(ctx, u, &RecordTransactionRequest{
		Type:  models.TransactionTypePurchase,
		Actor: payload.Actor,
		Notes: fmt.Sprintf("receipt for reorder %d", req.ID),
		Items: []LineItemRequest{{
			ProductID: req.ProductID,
			Quantity:  payload.ActualQuantity,
		}},
		reorderID: &reorderID,
	})
	if err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}

	if shortfall := req.QuantityRequested - payload.ActualQuantity; shortfall > 0 {
		util.ReorderShortfallUnits.Add(float64(shortfall))
		rm.logger.Warn("Partial shipment received",
			zap.Int64("reorder_id", req.ID),
			zap.Int("requested", req.QuantityRequested),
			zap.Int("received", payload.ActualQuantity))
	}
	return nil
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
