package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/testutil"
)

func newMachineService(t *testing.T) (MachineService, *repository.SQLiteScheduleStore, *repository.SQLiteMachineRepo) {
	t.Helper()
	conn := testutil.NewTestDB(t)
	store := repository.NewSQLiteScheduleStore(conn)
	machines := repository.NewSQLiteMachineRepo(conn)
	return NewMachineService(config.Default(), machines, store), store, machines
}

func TestMachineService_UpsertRequiresIDAndType(t *testing.T) {
	svc, _, _ := newMachineService(t)
	ctx := context.Background()

	err := svc.Upsert(ctx, &domain.Machine{Type: "cnc_lathe"})
	require.Error(t, err)

	err = svc.Upsert(ctx, &domain.Machine{ID: "m-1"})
	require.Error(t, err)

	require.NoError(t, svc.Upsert(ctx, testutil.NewTestMachine("m-1")))
	got, err := svc.GetByID(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.ID)
}

func TestMachineService_UtilizationSnapshot(t *testing.T) {
	svc, store, machines := newMachineService(t)
	ctx := context.Background()

	require.NoError(t, machines.Upsert(ctx, testutil.NewTestMachine("m-1")))

	// One working week: Mon 00:00 to Sat 00:00, five 08:00-17:00 days minus
	// the 1h lunch break each is 5x480 = 2400 available minutes.
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 5)

	// 4 booked hours on Monday, one of them cancelled (ignored).
	require.NoError(t, store.Create(ctx, testutil.NewTestEntry("m-1",
		from.Add(8*time.Hour), from.Add(11*time.Hour))))
	require.NoError(t, store.Create(ctx, testutil.NewTestEntry("m-1",
		from.Add(14*time.Hour), from.Add(15*time.Hour))))
	cancelled := testutil.NewTestEntry("m-1", from.Add(15*time.Hour), from.Add(16*time.Hour),
		testutil.WithEntryStatus(domain.EntryCancelled))
	require.NoError(t, store.Create(ctx, cancelled))

	snapshot, err := svc.UtilizationSnapshot(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	u := snapshot[0]
	assert.Equal(t, "m-1", u.Machine.ID)
	assert.InDelta(t, 240, u.BookedMin, 0.001)
	assert.InDelta(t, 2400, u.AvailableMin, 0.001)
	assert.InDelta(t, 0.1, u.Ratio, 0.001)
	assert.Equal(t, 2, u.EntryCount)
}

func TestMachineService_UtilizationEmptyWindowRejected(t *testing.T) {
	svc, _, _ := newMachineService(t)

	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	_, err := svc.UtilizationSnapshot(context.Background(), at, at)
	require.Error(t, err)
}
