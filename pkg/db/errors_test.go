package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_buyer_idempotency"}
	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
		{name: "postgres typed", err: fmt.Errorf("insert: %w", pgErr), want: true},
		{name: "postgres typed constraint", err: pgErr, constraint: "ux_orders_buyer_idempotency", want: true},
		{name: "postgres other constraint", err: pgErr, constraint: "ux_invoices_number", want: false},
		{name: "postgres text", err: errors.New(`duplicate key value violates unique constraint "ux_buyers_email"`), constraint: "ux_buyers_email", want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: buyers.email"), constraint: "ux_buyers_email", want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tc.want)
			}
		})
	}
}
