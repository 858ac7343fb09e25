package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidOrderRequest    Code = "INVALID_ORDER_REQUEST"
	CodeIncompleteBuyerInfo    Code = "INCOMPLETE_BUYER_INFO"
	CodeUnverifiedPayment      Code = "UNVERIFIED_PAYMENT"
	CodePromoInvalid           Code = "PROMO_INVALID"
	CodePromoExpired           Code = "PROMO_EXPIRED"
	CodePromoLimitReached      Code = "PROMO_LIMIT_REACHED"
	CodePromoNotFirstTime      Code = "PROMO_NOT_FIRST_TIME_ELIGIBLE"
	CodePromoMinimumNotMet     Code = "PROMO_MINIMUM_NOT_MET"
	CodeProductNotFound        Code = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock      Code = "INSUFFICIENT_STOCK"
	CodeOrderPersistenceFailed Code = "ORDER_PERSISTENCE_FAILED"
	CodeDuplicateOrderDetected Code = "DUPLICATE_ORDER_DETECTED"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable = 1 << iota
	detailed
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      flags&retryable != 0,
		PublicMessage:  public,
		DetailsAllowed: flags&detailed != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", detailed),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", detailed),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", detailed),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailed),

	CodeInvalidOrderRequest:    meta(http.StatusBadRequest, "invalid order request", detailed),
	CodeIncompleteBuyerInfo:    meta(http.StatusBadRequest, "buyer information incomplete", detailed),
	CodeUnverifiedPayment:      meta(http.StatusPaymentRequired, "payment could not be verified", detailed),
	CodePromoInvalid:           meta(http.StatusUnprocessableEntity, "promo code is not valid", detailed),
	CodePromoExpired:           meta(http.StatusUnprocessableEntity, "promo code has expired", detailed),
	CodePromoLimitReached:      meta(http.StatusUnprocessableEntity, "promo code usage limit reached", detailed),
	CodePromoNotFirstTime:      meta(http.StatusUnprocessableEntity, "promo code is limited to first orders", detailed),
	CodePromoMinimumNotMet:     meta(http.StatusUnprocessableEntity, "order does not meet the promo minimum", detailed),
	CodeProductNotFound:        meta(http.StatusNotFound, "product not found", detailed),
	CodeInsufficientStock:      meta(http.StatusConflict, "insufficient stock", detailed),
	CodeOrderPersistenceFailed: meta(http.StatusInternalServerError, "order could not be placed", retryable),
	CodeDuplicateOrderDetected: meta(http.StatusConflict, "duplicate order detected", 0),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// FromHTTPStatus maps an upstream provider's response status onto a code.
func FromHTTPStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimit
	case http.StatusUnprocessableEntity:
		return CodeStateConflict
	}
	if status >= 400 && status < 500 {
		return CodeValidation
	}
	return CodeDependency
}
