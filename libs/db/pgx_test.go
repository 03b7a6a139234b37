package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestHasCodeUnwraps(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeExclusionViolation})
	if !HasCode(err, CodeExclusionViolation) {
		t.Fatal("expected exclusion violation to be detected through wrapping")
	}
	if HasCode(err, CodeUniqueViolation) {
		t.Fatal("unexpected unique violation match")
	}
	if HasCode(errors.New("boom"), CodeUniqueViolation) {
		t.Fatal("plain errors never carry a code")
	}
}

func TestPgxmockSatisfiesQuerier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool failed: %v", err)
	}
	defer mock.Close()
	var _ Querier = mock
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(t.Context()); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
