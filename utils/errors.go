// utils/errors.go
package utils

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDriverUnavailable   = errors.New("driver is not available")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidState        = errors.New("invalid state for operation")
	ErrInconsistentHistory = errors.New("driver booking history is inconsistent")
	ErrPaymentConflict     = errors.New("payment completed for a cancelled booking")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrGatewayRejected     = errors.New("payment rejected by gateway")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrUnauthorized        = errors.New("unauthorized access")
)

// Machine-readable error kinds returned to API callers.
const (
	KindNotFound            = "NOT_FOUND"
	KindDriverUnavailable   = "DRIVER_UNAVAILABLE"
	KindInvalidTransition   = "INVALID_TRANSITION"
	KindInvalidState        = "INVALID_STATE"
	KindInconsistentHistory = "INCONSISTENT_HISTORY"
	KindPaymentConflict     = "PAYMENT_CONFLICT"
	KindGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	KindGatewayRejected     = "GATEWAY_REJECTED"
	KindValidation          = "VALIDATION"
	KindForbidden           = "FORBIDDEN"
	KindUnauthorized        = "UNAUTHORIZED"
	KindInternal            = "INTERNAL"
)

var kinds = []struct {
	err    error
	kind   string
	status int
}{
	{ErrNotFound, KindNotFound, http.StatusNotFound},
	{ErrDriverUnavailable, KindDriverUnavailable, http.StatusConflict},
	{ErrInvalidTransition, KindInvalidTransition, http.StatusBadRequest},
	{ErrInvalidState, KindInvalidState, http.StatusConflict},
	{ErrInconsistentHistory, KindInconsistentHistory, http.StatusInternalServerError},
	{ErrPaymentConflict, KindPaymentConflict, http.StatusConflict},
	{ErrGatewayUnavailable, KindGatewayUnavailable, http.StatusServiceUnavailable},
	{ErrGatewayRejected, KindGatewayRejected, http.StatusPaymentRequired},
	{ErrValidation, KindValidation, http.StatusBadRequest},
	{ErrForbidden, KindForbidden, http.StatusForbidden},
	{ErrUnauthorized, KindUnauthorized, http.StatusUnauthorized},
}

// ErrorKind maps err onto its kind; unknown errors are INTERNAL.
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps err onto the status code used by the controllers.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
