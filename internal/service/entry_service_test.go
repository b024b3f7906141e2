package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/testutil"
)

func newEntryService(t *testing.T) (EntryService, *repository.SQLiteScheduleStore) {
	t.Helper()
	store := repository.NewSQLiteScheduleStore(testutil.NewTestDB(t))
	return NewEntryService(store, nil), store
}

func TestEntryService_LifecycleTransitions(t *testing.T) {
	svc, store := newEntryService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entry := testutil.NewTestEntry("m-1", start, start.Add(time.Hour))
	require.NoError(t, store.Create(ctx, entry))

	got, err := svc.Transition(ctx, entry.ID, domain.EntryInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryInProgress, got.Status)

	got, err = svc.Transition(ctx, entry.ID, domain.EntryCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryCompleted, got.Status)

	// The status survives a reload.
	reloaded, err := svc.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EntryCompleted, reloaded.Status)
}

func TestEntryService_IllegalTransitionsRejected(t *testing.T) {
	svc, store := newEntryService(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	entry := testutil.NewTestEntry("m-1", start, start.Add(time.Hour))
	require.NoError(t, store.Create(ctx, entry))

	// A cancelled entry is terminal.
	_, err := svc.Transition(ctx, entry.ID, domain.EntryCancelled)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, entry.ID, domain.EntryInProgress)
	require.Error(t, err)
}

func TestEntryService_UnknownEntry(t *testing.T) {
	svc, _ := newEntryService(t)

	_, err := svc.Transition(context.Background(), "nope", domain.EntryInProgress)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
