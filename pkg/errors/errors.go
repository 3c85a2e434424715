package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound                   = errors.New("resource not found")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrForbidden                  = errors.New("forbidden")
	ErrBadRequest                 = errors.New("bad request")
	ErrConflict                   = errors.New("resource conflict")
	ErrInternal                   = errors.New("internal server error")
	ErrValidation                 = errors.New("validation error")
	ErrInsufficientStock          = errors.New("insufficient stock")
	ErrInsufficientLotQuantity    = errors.New("insufficient lot quantity")
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrOverReceiptNotAcknowledged = errors.New("over-receipt not acknowledged")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// InsufficientStock is returned when an allocation request exceeds the total
// available quantity of an item. Nothing is mutated when this is returned.
func InsufficientStock(itemID, requested, available string) *AppError {
	return &AppError{
		Err:     ErrInsufficientStock,
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock for item %s: requested %s, available %s", itemID, requested, available),
		Details: map[string]string{
			"item_id":   itemID,
			"requested": requested,
			"available": available,
		},
		StatusCode: http.StatusConflict,
	}
}

// InsufficientLotQuantity is returned when a caller-specified lot cannot cover
// the requested quantity on its own.
func InsufficientLotQuantity(lotID, requested, available string) *AppError {
	return &AppError{
		Err:     ErrInsufficientLotQuantity,
		Code:    "INSUFFICIENT_LOT_QUANTITY",
		Message: fmt.Sprintf("lot %s holds %s, cannot cover %s", lotID, available, requested),
		Details: map[string]string{
			"lot_id":    lotID,
			"requested": requested,
			"available": available,
		},
		StatusCode: http.StatusConflict,
	}
}

// InvalidStateTransition is returned when a purchase lifecycle operation is
// attempted from a state that does not permit it.
func InvalidStateTransition(from, operation string) *AppError {
	return &AppError{
		Err:     ErrInvalidStateTransition,
		Code:    "INVALID_STATE_TRANSITION",
		Message: fmt.Sprintf("cannot %s a purchase in status %s", operation, from),
		Details: map[string]string{
			"status":    from,
			"operation": operation,
		},
		StatusCode: http.StatusConflict,
	}
}

// OverReceiptNotAcknowledged is a soft guard: the caller may retry the same
// receipt with the acknowledgement flag set.
func OverReceiptNotAcknowledged(ordered, wouldReceive string) *AppError {
	return &AppError{
		Err:     ErrOverReceiptNotAcknowledged,
		Code:    "OVER_RECEIPT_NOT_ACKNOWLEDGED",
		Message: fmt.Sprintf("receiving would exceed ordered quantity (%s > %s); resubmit with over_receipt_ack", wouldReceive, ordered),
		Details: map[string]string{
			"ordered_qty":       ordered,
			"would_receive_qty": wouldReceive,
		},
		StatusCode: http.StatusConflict,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
