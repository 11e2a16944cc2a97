package worker

import (
	"context"
	"errors"
	"testing"

	"inventory-service/internal/models"
	"inventory-service/internal/service"
	"inventory-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitionCall struct {
	requestID int64
	action    models.ReorderAction
	payload   service.TransitionPayload
}

type fakeTransitioner struct {
	calls []transitionCall
	err   error
}

func (f *fakeTransitioner) TransitionReorder(
	ctx context.Context,
	requestID int64,
	action models.ReorderAction,
	payload service.TransitionPayload,
) (*models.ReorderRequest, error) {
	f.calls = append(f.calls, transitionCall{requestID: requestID, action: action, payload: payload})
	if f.err != nil {
		return nil, f.err
	}
	return &models.ReorderRequest{ID: requestID}, nil
}

func newTestWorker(t *testing.T, fake *fakeTransitioner) *SupplierWorker {
	t.Helper()
	require.NoError(t, util.InitLogger("test", "error"))
	return NewSupplierWorker(nil, fake)
}

func TestHandleShipmentReceived(t *testing.T) {
	fake := &fakeTransitioner{}
	w := newTestWorker(t, fake)

	err := w.HandleShipmentReceived(context.Background(), &models.ShipmentReceivedEvent{
		ReorderID:        5,
		QuantityReceived: 18,
		Version:          2,
	})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, int64(5), fake.calls[0].requestID)
	assert.Equal(t, models.ReorderActionMarkReceived, fake.calls[0].action)
	assert.Equal(t, 18, fake.calls[0].payload.ActualQuantity)
	assert.Equal(t, 2, fake.calls[0].payload.ExpectedVersion)
}

func TestHandleSupplierCanceledDefaultsReason(t *testing.T) {
	fake := &fakeTransitioner{}
	w := newTestWorker(t, fake)

	require.NoError(t, w.HandleSupplierCanceled(context.Background(), &models.SupplierCanceledEvent{ReorderID: 3}))

	require.Len(t, fake.calls, 1)
	assert.Equal(t, models.ReorderActionCancel, fake.calls[0].action)
	assert.Equal(t, "canceled by supplier", fake.calls[0].payload.Reason)
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name      string
		version   int
		err       error
		redeliver bool
	}{
		{"success", 0, nil, false},
		{"duplicate receipt", 0, &models.InvalidTransitionError{RequestID: 1, From: models.ReorderStatusReceived, Action: models.ReorderActionMarkReceived}, false},
		{"unknown request", 0, models.NewNotFoundError("reorder request", 1), false},
		{"bad quantity", 0, models.NewValidationError("actual_quantity", "must be greater than zero"), false},
		{"concurrent update", 0, models.NewConflictError("reorder request", "changed"), true},
		{"pinned version moved on", 3, models.NewConflictError("reorder request", "changed"), false},
		{"store down", 3, errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTransitioner{err: tt.err}
			w := newTestWorker(t, fake)

			err := w.HandleShipmentReceived(context.Background(), &models.ShipmentReceivedEvent{
				ReorderID:        1,
				QuantityReceived: 10,
				Version:          tt.version,
			})
			if tt.redeliver {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
