package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/testutil"
)

func setupEmergencyRepo(t *testing.T) (context.Context, *SQLiteEmergencyRepo) {
	t.Helper()
	database := testutil.NewTestDB(t)
	return context.Background(), NewSQLiteEmergencyRepo(database)
}

func TestEmergencyRepo_CreateRoundTrip(t *testing.T) {
	ctx, repo := setupEmergencyRepo(t)

	inst := testutil.NewTestInstance("op-1")
	req := testutil.NewTestEmergency(domain.EmergencySafetyCritical, inst,
		testutil.WithRequiredApprovals(2),
		testutil.WithReason("spindle bearing failure on line 2"),
	)
	require.NoError(t, repo.Create(ctx, req))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmergencySafetyCritical, got.Level)
	assert.Equal(t, domain.EmergencyRequested, got.State)
	assert.Equal(t, 2, got.RequiredApprovals)
	assert.Equal(t, "spindle bearing failure on line 2", got.Reason)
	require.NotNil(t, got.Instance, "instance snapshot must survive the round trip")
	assert.Equal(t, "op-1", got.Instance.ID)
	assert.Equal(t, inst.TotalDurationMin(), got.Instance.TotalDurationMin())
}

func TestEmergencyRepo_UpdateState(t *testing.T) {
	ctx, repo := setupEmergencyRepo(t)

	req := testutil.NewTestEmergency(domain.EmergencyUrgent, testutil.NewTestInstance("op-1"))
	require.NoError(t, repo.Create(ctx, req))

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateState(ctx, req.ID, domain.EmergencyApproved, now))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmergencyApproved, got.State)

	assert.ErrorIs(t, repo.UpdateState(ctx, "ghost", domain.EmergencyApproved, now), ErrNotFound)
}

func TestEmergencyRepo_RecordDecision_IdempotentPerActor(t *testing.T) {
	ctx, repo := setupEmergencyRepo(t)

	req := testutil.NewTestEmergency(domain.EmergencySafetyCritical, testutil.NewTestInstance("op-1"),
		testutil.WithRequiredApprovals(2))
	require.NoError(t, repo.Create(ctx, req))

	first := domain.ApprovalAction{Actor: "supervisor", At: time.Now().UTC(), Approved: true}
	require.NoError(t, repo.RecordDecision(ctx, req.ID, first))
	// Replay of the same actor's decision must not add a second row.
	require.NoError(t, repo.RecordDecision(ctx, req.ID, first))

	second := domain.ApprovalAction{Actor: "plant-manager", At: time.Now().UTC(), Approved: true, Note: "go"}
	require.NoError(t, repo.RecordDecision(ctx, req.ID, second))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Approvals, 2)
	assert.Equal(t, 2, got.ApprovalCount())
	assert.True(t, got.HasActed("supervisor"))
	assert.True(t, got.HasActed("plant-manager"))
	assert.False(t, got.HasActed("operator"))
}

func TestEmergencyRepo_ListByState(t *testing.T) {
	ctx, repo := setupEmergencyRepo(t)

	pending := testutil.NewTestEmergency(domain.EmergencyUrgent, testutil.NewTestInstance("op-1"))
	approved := testutil.NewTestEmergency(domain.EmergencyUrgent, testutil.NewTestInstance("op-2"),
		testutil.WithEmergencyState(domain.EmergencyApproved))
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, approved))

	got, err := repo.ListByState(ctx, domain.EmergencyRequested)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func TestEmergencyRepo_GetMissingReturnsNotFound(t *testing.T) {
	ctx, repo := setupEmergencyRepo(t)

	_, err := repo.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
