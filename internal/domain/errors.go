package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Services return them wrapped in *Error (or one of the detail
// errors below) so handlers can match with errors.Is and still show a message.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidRange         = errors.New("invalid range")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidBloodGroup    = errors.New("invalid blood group")
	ErrInvalidCounterparty  = errors.New("invalid counterparty")
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrAlreadySubscribed    = errors.New("already subscribed")
	ErrConflict             = errors.New("conflict")
)

// Error is a user-facing message attached to one of the kinds above.
type Error struct {
	Kind    error
	Message string
}

func NewError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(message string) *Error { return NewError(ErrNotFound, message) }

func InvalidRange(message string) *Error { return NewError(ErrInvalidRange, message) }

func Conflict(message string) *Error { return NewError(ErrConflict, message) }

// InsufficientStockError rejects an outgoing entry larger than the scope balance.
type InsufficientStockError struct {
	BloodGroup BloodGroup
	Available  int
	Requested  int
}

func (e *InsufficientStockError) Shortfall() int { return e.Requested - e.Available }

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Only %dml of %s is available, short by %dml", e.Available, e.BloodGroup, e.Shortfall())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientCapacityError rejects a donation larger than the donor's remaining capacity.
type InsufficientCapacityError struct {
	Available int
	Requested int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("Insufficient capacity. Available: %dml, Requested: %dml", e.Available, e.Requested)
}

func (e *InsufficientCapacityError) Unwrap() error { return ErrInsufficientCapacity }
