package dto

import (
	"context"
	"errors"
	"net/http"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
)

// General error codes
const (
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInvalidState   = "INVALID_STATE"
	ErrCodeRequestTimeout = "REQUEST_TIMEOUT"
)

// Payment gateway error codes
const (
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	ErrCodeGatewayRejected    = "GATEWAY_REJECTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:       http.StatusInternalServerError,
	ErrCodeBadRequest:     http.StatusBadRequest,
	ErrCodeValidation:     http.StatusBadRequest,
	ErrCodeInvalidInput:   http.StatusBadRequest,
	ErrCodeUnauthorized:   http.StatusUnauthorized,
	ErrCodeForbidden:      http.StatusForbidden,
	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeInvalidState:   http.StatusConflict,
	ErrCodeRequestTimeout: http.StatusGatewayTimeout,

	// Catalog and purchase
	billing.ErrPlanNotFound.Code:           http.StatusNotFound,
	billing.ErrFreePlanNotPurchasable.Code: http.StatusUnprocessableEntity,
	billing.ErrPriceMismatch.Code:          http.StatusUnprocessableEntity,
	billing.ErrAlreadySubscribed.Code:      http.StatusConflict,
	billing.ErrInvalidBillingKey.Code:      http.StatusUnprocessableEntity,
	billing.ErrPaymentFailed.Code:          http.StatusUnprocessableEntity,
	billing.ErrPaymentPending.Code:         http.StatusAccepted,

	// Subscription management
	billing.ErrSubscriptionNotActive.Code: http.StatusConflict,
	billing.ErrBlackoutWindow.Code:        http.StatusUnprocessableEntity,
	billing.ErrScheduleRevokeFailed.Code:  http.StatusBadGateway,

	// Payment methods
	billing.ErrDefaultMethodInUse.Code:  http.StatusConflict,
	billing.ErrDuplicateBillingKey.Code: http.StatusConflict,
	billing.ErrUnsupportedMethod.Code:   http.StatusUnprocessableEntity,

	// Gateway
	ErrCodeGatewayUnavailable: http.StatusBadGateway,
	ErrCodeGatewayTimeout:     http.StatusBadGateway,
	ErrCodeGatewayRejected:    http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status for an error code, 500 when unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ResolveError converts an application error into a status and error body.
// Unknown errors become a generic 500 so internals are not leaked.
func ResolveError(err error) (int, *ErrorInfo) {
	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &domainErr):
		status, ok := ErrorCodeHTTPStatus[domainErr.Code]
		if !ok {
			// Entity constructors reject bad input with their own codes
			status = http.StatusBadRequest
		}
		return status, &ErrorInfo{Code: domainErr.Code, Message: domainErr.Message}
	case errors.Is(err, billing.ErrGatewayTimeout):
		return http.StatusBadGateway, &ErrorInfo{Code: ErrCodeGatewayTimeout, Message: "Payment gateway timed out"}
	case errors.Is(err, billing.ErrGatewayUnavailable), errors.Is(err, billing.ErrGatewayCircuitOpen):
		return http.StatusBadGateway, &ErrorInfo{Code: ErrCodeGatewayUnavailable, Message: "Payment gateway is unavailable"}
	case errors.Is(err, billing.ErrGatewayRequestFailed):
		return http.StatusBadGateway, &ErrorInfo{Code: ErrCodeGatewayRejected, Message: "Payment gateway rejected the request"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, &ErrorInfo{Code: ErrCodeRequestTimeout, Message: "Request timed out"}
	default:
		return http.StatusInternalServerError, &ErrorInfo{Code: ErrCodeInternal, Message: "An unexpected error occurred"}
	}
}
