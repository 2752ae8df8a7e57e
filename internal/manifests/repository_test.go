package manifests

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
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
	return idRow{17}
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

func TestInsertManifestRetriesCollisionUnderSavepoint(t *testing.T) {
	tx := &numberConflictTx{taken: map[string]bool{
		"DBL.2503.001": true,
		"DBL.2503.002": true,
	}}
	m := &Manifest{
		Number:        "DBL.2503.001",
		ManifestDate:  time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		VehicleNumber: "DD 8812 XY",
		DriverName:    "Pak Rahman",
	}

	r := &repository{}
	require.NoError(t, r.insertManifest(context.Background(), tx, m))
	require.Equal(t, int64(17), m.ID)
	require.Equal(t, "DBL.2503.003", m.Number)
	require.Equal(t, "DBL.2503.003", tx.inserted)
	require.Equal(t, 3, tx.savepoints)
	require.Equal(t, 2, tx.rollbacks)
	require.False(t, tx.aborted)
}
