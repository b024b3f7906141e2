package db_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jspindler/takt/internal/db"
)

func openTestUoW(t *testing.T) *db.SQLiteUnitOfWork {
	t.Helper()
	database, err := db.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return db.NewSQLiteUnitOfWork(database)
}

func insertEntry(ctx context.Context, tx db.DBTX, id string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedule_entries
		(id, machine_id, process_instance_id, start_time, end_time, status, created_at, updated_at)
		VALUES (?, 'm1', 'pi1', '2025-06-16T08:00:00Z', '2025-06-16T09:00:00Z', 'scheduled', '2025-06-16T07:00:00Z', '2025-06-16T07:00:00Z')`, id)
	return err
}

func entryExists(uow *db.SQLiteUnitOfWork, id string) bool {
	var found bool
	_ = uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		row := tx.QueryRowContext(ctx, `SELECT id FROM schedule_entries WHERE id = ?`, id)
		var got string
		if err := row.Scan(&got); err != nil {
			return nil
		}
		found = true
		return nil
	})
	return found
}

func TestWithinTx_CommitOnSuccess(t *testing.T) {
	uow := openTestUoW(t)

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		return insertEntry(ctx, tx, "e-commit")
	})
	require.NoError(t, err)

	assert.True(t, entryExists(uow, "e-commit"), "entry should exist after commit")
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	uow := openTestUoW(t)

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		if err := insertEntry(ctx, tx, "e-rollback"); err != nil {
			return err
		}
		return fmt.Errorf("deliberate failure")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliberate failure")

	assert.False(t, entryExists(uow, "e-rollback"), "entry should not exist after rollback")
}

func TestWithinTx_RollbackOnPanic(t *testing.T) {
	uow := openTestUoW(t)

	assert.Panics(t, func() {
		_ = uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
			_ = insertEntry(ctx, tx, "e-panic")
			panic("boom")
		})
	})

	assert.False(t, entryExists(uow, "e-panic"), "entry should not exist after panic rollback")
}
