package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslatePgError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "tickets_exclusive_hold"}, ErrDuplicate},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrUnavailable},
		{"connection exception", &pgconn.PgError{Code: "08006"}, ErrUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrUnavailable},
		{"deadline", context.DeadlineExceeded, ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translatePgError(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("translatePgError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestTranslatePgErrorPassesThroughOthers(t *testing.T) {
	check := &pgconn.PgError{Code: "23514"}
	if got := translatePgError(check); !errors.Is(got, check) {
		t.Fatalf("check violation should pass through, got %v", got)
	}
	if got := translatePgError(context.Canceled); !errors.Is(got, context.Canceled) {
		t.Fatalf("cancellation should pass through, got %v", got)
	}
}

func TestConditionalMapsNoRowsToConflict(t *testing.T) {
	if got := conditional(pgx.ErrNoRows); !errors.Is(got, ErrConflict) {
		t.Fatalf("conditional(ErrNoRows) = %v", got)
	}
	dup := &pgconn.PgError{Code: "23505"}
	if got := conditional(dup); !errors.Is(got, ErrDuplicate) {
		t.Fatalf("conditional(unique) = %v", got)
	}
}
