package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/testutil"
)

func newAuto(t *testing.T) *AutoScheduler {
	t.Helper()
	return NewAutoScheduler(config.Default(), repository.NewSQLiteScheduleStore(testutil.NewTestDB(t)))
}

func TestAuto_PlacesStrictlyByOrderIndex(t *testing.T) {
	svc := newAuto(t)

	// The due dates argue for the opposite order; degraded mode must ignore
	// them and follow the operator's sequence.
	urgentDue := mondayMorning.Add(4 * time.Hour)
	second := testutil.NewTestInstance("second", testutil.WithTimes(60, 0, 1),
		testutil.WithOrderIndex(2), testutil.WithDueDate(urgentDue),
		testutil.WithCustomerPriority(domain.PriorityUrgent))
	first := testutil.NewTestInstance("first", testutil.WithTimes(60, 0, 1),
		testutil.WithOrderIndex(1))

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{second, first},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Entries, 2)

	assert.Equal(t, "first", resp.Entries[0].ProcessInstanceID)
	assert.Equal(t, "second", resp.Entries[1].ProcessInstanceID)
	assert.True(t, resp.Entries[0].StartTime.Before(resp.Entries[1].StartTime))
}

func TestAuto_SkipsDependencyAnalysis(t *testing.T) {
	svc := newAuto(t)

	// A cyclic batch is a hard failure for the dependency-aware path, but
	// order-index mode never builds the graph and just places the sequence.
	a := testutil.NewTestInstance("A", testutil.WithTimes(60, 0, 1),
		testutil.WithOrderIndex(1), testutil.WithDependencies("B"))
	b := testutil.NewTestInstance("B", testutil.WithTimes(60, 0, 1),
		testutil.WithOrderIndex(2), testutil.WithDependencies("A"))

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{a, b},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, resp.Entries, 2)
	assert.Empty(t, resp.Scores, "no priority pipeline in order-index mode")
}

func TestAuto_HonorsDependencyPlacedEarlierInSequence(t *testing.T) {
	svc := newAuto(t)

	dep := testutil.NewTestInstance("dep", testutil.WithTimes(120, 0, 1), testutil.WithOrderIndex(1))
	succ := testutil.NewTestInstance("succ", testutil.WithTimes(30, 0, 1),
		testutil.WithOrderIndex(2), testutil.WithDependencies("dep"))

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{dep, succ},
		[]*domain.Machine{testutil.NewTestMachine("m-1"), testutil.NewTestMachine("m-2")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Entries, 2)

	byInstance := make(map[string]*domain.ScheduleEntry)
	for _, e := range resp.Entries {
		byInstance[e.ProcessInstanceID] = e
	}
	assert.False(t, byInstance["succ"].StartTime.Before(byInstance["dep"].EndTime))
}

func TestAuto_ValidationStillFailsClosed(t *testing.T) {
	svc := newAuto(t)

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{testutil.NewTestInstance("bad", testutil.WithTimes(0, 0, 0))},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Entries)
	require.NotEmpty(t, resp.Conflicts)
	assert.Equal(t, contract.ConflictValidation, resp.Conflicts[0].Code)
}
