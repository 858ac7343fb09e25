package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeInvalidOrderRequest, status: http.StatusBadRequest, publicMsg: "invalid order request", detailsOK: true},
		{code: CodeUnverifiedPayment, status: http.StatusPaymentRequired, publicMsg: "payment could not be verified", detailsOK: true},
		{code: CodePromoMinimumNotMet, status: http.StatusUnprocessableEntity, publicMsg: "order does not meet the promo minimum", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeOrderPersistenceFailed, status: http.StatusInternalServerError, publicMsg: "order could not be placed", retryable: true},
		{code: CodeDuplicateOrderDetected, status: http.StatusConflict, publicMsg: "duplicate order detected"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "only 1 left")
	outer := fmt.Errorf("reserve: %w", inner)
	if !IsCode(outer, CodeInsufficientStock) {
		t.Fatalf("expected IsCode to see through fmt wrapping")
	}
	if IsCode(outer, CodeProductNotFound) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDiagnoseIncludesCodeAndChain(t *testing.T) {
	err := Wrap(CodeOrderPersistenceFailed, stdErrors.New("insert failed"), "persist order")
	diag := Diagnose(err)
	if diag.Code != CodeOrderPersistenceFailed {
		t.Fatalf("expected code in diagnostics, got %s", diag.Code)
	}
	if len(diag.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", diag.Chain)
	}
	if diag.Storage != nil {
		t.Fatalf("expected no storage fault, got %+v", diag.Storage)
	}
}

func TestDiagnoseExtractsPostgresFault(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey", TableName: "orders", Message: "duplicate key"}
	err := Wrap(CodeOrderPersistenceFailed, fmt.Errorf("insert: %w", pgErr), "persist order")

	fields := Diagnose(err).Fields()
	if fields["db_driver"] != "pgx" || fields["db_code"] != "23505" {
		t.Fatalf("unexpected storage fields %v", fields)
	}
	if fields["db_constraint"] != "orders_pkey" || fields["db_table"] != "orders" {
		t.Fatalf("unexpected storage fields %v", fields)
	}
	if _, ok := fields["db_column"]; ok {
		t.Fatalf("empty column should be omitted")
	}
}

func TestDiagnoseExtractsMongoFault(t *testing.T) {
	we := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	diag := Diagnose(fmt.Errorf("insert order: %w", we))
	if diag.Storage == nil || diag.Storage.Driver != "mongo" || diag.Storage.Code != "11000" {
		t.Fatalf("unexpected storage fault %+v", diag.Storage)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	for status, want := range map[int]Code{
		http.StatusUnauthorized:        CodeUnauthorized,
		http.StatusForbidden:           CodeForbidden,
		http.StatusNotFound:            CodeNotFound,
		http.StatusConflict:            CodeConflict,
		http.StatusTooManyRequests:     CodeRateLimit,
		http.StatusBadRequest:          CodeValidation,
		http.StatusPaymentRequired:     CodeValidation,
		http.StatusUnprocessableEntity: CodeStateConflict,
		http.StatusBadGateway:          CodeDependency,
		0:                              CodeDependency,
	} {
		if got := FromHTTPStatus(status); got != want {
			t.Errorf("FromHTTPStatus(%d) = %s, want %s", status, got, want)
		}
	}
}
