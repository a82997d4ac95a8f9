package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		ok         bool
	}{
		{name: "nil", err: nil},
		{name: "plain", err: errors.New("duplicate key value")},
		{name: "other_code", err: &pgconn.PgError{Code: "23503", ConstraintName: "order_items_order_id_fkey"}},
		{name: "unique", err: &pgconn.PgError{Code: "23505", ConstraintName: "orders_number_key"}, constraint: "orders_number_key", ok: true},
		{
			name:       "wrapped",
			err:        fmt.Errorf("insert idempotency: %w", &pgconn.PgError{Code: "23505", ConstraintName: "order_idempotency_pkey"}),
			constraint: "order_idempotency_pkey",
			ok:         true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			constraint, ok := UniqueViolation(test.err)
			if ok != test.ok || constraint != test.constraint {
				t.Errorf("expected (%q, %v), got (%q, %v)", test.constraint, test.ok, constraint, ok)
			}
		})
	}
}

func TestSchemaNamesLedgerConstraints(t *testing.T) {
	for _, name := range []string{"orders_number_key", "order_idempotency_pkey", "CHECK (stock >= 0)"} {
		if !strings.Contains(schema, name) {
			t.Errorf("schema does not declare %q", name)
		}
	}
}
