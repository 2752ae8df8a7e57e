package invoices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/kargoline/kargoline/internal/platform/db"
)

// numberConflictTx simulates the abort semantics around unique violations:
// after a failed statement every further one errors with 25P02 until the
// savepoint it ran under rolls back.
type numberConflictTx struct {
	pgx.Tx
	taken      map[string]bool
	savepoints int
	rollbacks  int
	aborted    bool
	inserted   string
}

func (f *numberConflictTx) Begin(context.Context) (pgx.Tx, error) {
	f.savepoints++
	return &conflictSavepoint{parent: f}, nil
}

func (f *numberConflictTx) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return f.insert(args...)
}

func (f *numberConflictTx) insert(args ...any) pgx.Row {
	if f.aborted {
		return errorRow{&pgconn.PgError{Code: "25P02"}}
	}
	number := args[0].(string)
	if f.taken[number] {
		f.aborted = true
		return errorRow{&pgconn.PgError{Code: "23505"}}
	}
	f.inserted = number
	return idRow{91}
}

type conflictSavepoint struct {
	pgx.Tx
	parent *numberConflictTx
}

func (s *conflictSavepoint) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	return s.parent.insert(args...)
}

func (s *conflictSavepoint) Commit(context.Context) error { return nil }

func (s *conflictSavepoint) Rollback(context.Context) error {
	s.parent.rollbacks++
	s.parent.aborted = false
	return nil
}

type errorRow struct{ err error }

func (r errorRow) Scan(...any) error { return r.err }

type idRow struct{ id int64 }

func (r idRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.id
	return nil
}

func TestInsertInvoiceRetriesCollisionUnderSavepoint(t *testing.T) {
	tx := &numberConflictTx{taken: map[string]bool{
		"INV/2025/0001": true,
		"INV/2025/0002": true,
	}}
	inv := &Invoice{
		Number:   "INV/2025/0001",
		Status:   StatusPending,
		IssuedAt: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}

	r := &repository{}
	id, err := r.insertInvoice(context.Background(), tx, inv)
	require.NoError(t, err)
	require.Equal(t, int64(91), id)
	require.Equal(t, "INV/2025/0003", inv.Number)
	require.Equal(t, "INV/2025/0003", tx.inserted)
	require.Equal(t, 3, tx.savepoints)
	require.Equal(t, 2, tx.rollbacks)
	require.False(t, tx.aborted)
}

func TestInsertInvoiceGivesUpAfterMaxRetries(t *testing.T) {
	taken := map[string]bool{}
	for seq := 1; seq <= maxNumberRetries+1; seq++ {
		taken[fmt.Sprintf("INV/2025/%04d", seq)] = true
	}
	tx := &numberConflictTx{taken: taken}
	inv := &Invoice{
		Number:   "INV/2025/0001",
		Status:   StatusPending,
		IssuedAt: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}

	_, err := (&repository{}).insertInvoice(context.Background(), tx, inv)
	require.Error(t, err)
	require.True(t, db.IsUniqueViolation(err))
}
