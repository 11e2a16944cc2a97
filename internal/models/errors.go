package models

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or invalid input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError reports a delta that would drive stock negative
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available=%d, requested=%d",
		e.ProductID, e.Available, e.Requested)
}

// InvalidTransitionError reports an action the reorder state machine forbids
type InvalidTransitionError struct {
	RequestID int64
	From      ReorderStatus
	Action    ReorderAction
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for reorder %d: %s cannot handle %s",
		e.RequestID, e.From, e.Action)
}

// ConflictError reports a concurrent modification or uniqueness violation
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Message)
}

// NewConflictError creates a ConflictError
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// NotFoundError reports an unknown identifier
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(resource string, id interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsInsufficientStock reports whether err is an InsufficientStockError
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}
