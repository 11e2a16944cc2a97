package models

// ReorderStatus is the lifecycle state of a reorder request
type ReorderStatus string

// Reorder statuses
const (
	ReorderStatusPending  ReorderStatus = "PENDING"
	ReorderStatusOrdered  ReorderStatus = "ORDERED"
	ReorderStatusReceived ReorderStatus = "RECEIVED"
	ReorderStatusCanceled ReorderStatus = "CANCELED"
)

// OpenReorderStatuses are the statuses counted by the one-open-request rule
var OpenReorderStatuses = []ReorderStatus{ReorderStatusPending, ReorderStatusOrdered}

// IsOpen reports whether the request still awaits stock
func (s ReorderStatus) IsOpen() bool {
	return s == ReorderStatusPending || s == ReorderStatusOrdered
}

// IsTerminal reports whether no further transition is possible
func (s ReorderStatus) IsTerminal() bool {
	return s == ReorderStatusReceived || s == ReorderStatusCanceled
}

// Valid reports whether s is a known status
func (s ReorderStatus) Valid() bool {
	_, ok := reorderTransitions[s]
	return ok
}

// ReorderAction is an event applied to a reorder request
type ReorderAction string

// Reorder actions
const (
	ReorderActionMarkOrdered  ReorderAction = "MARK_ORDERED"
	ReorderActionMarkReceived ReorderAction = "MARK_RECEIVED"
	ReorderActionCancel       ReorderAction = "CANCEL"
)

// Valid reports whether a is a known action
func (a ReorderAction) Valid() bool {
	switch a {
	case ReorderActionMarkOrdered, ReorderActionMarkReceived, ReorderActionCancel:
		return true
	}
	return false
}

// reorderTransitions lists every legal transition. Terminal states map to
// an empty set.
var reorderTransitions = map[ReorderStatus]map[ReorderAction]ReorderStatus{
	ReorderStatusPending: {
		ReorderActionMarkOrdered: ReorderStatusOrdered,
		ReorderActionCancel:      ReorderStatusCanceled,
	},
	ReorderStatusOrdered: {
		ReorderActionMarkReceived: ReorderStatusReceived,
		ReorderActionCancel:       ReorderStatusCanceled,
	},
	ReorderStatusReceived: {},
	ReorderStatusCanceled: {},
}

// NextReorderStatus returns the status reached by applying action to from
func NextReorderStatus(from ReorderStatus, action ReorderAction) (ReorderStatus, bool) {
	next, ok := reorderTransitions[from][action]
	return next, ok
}
