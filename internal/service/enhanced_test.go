package service

import (
	"context"
	"errors"
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

// countingStore wraps a ScheduleStore and counts write calls, so tests can
// assert that failed batches never touch persistence.
type countingStore struct {
	repository.ScheduleStore
	creates int
}

func (c *countingStore) Create(ctx context.Context, e *domain.ScheduleEntry) error {
	c.creates++
	return c.ScheduleStore.Create(ctx, e)
}

type failingCreateStore struct {
	repository.ScheduleStore
}

func (f *failingCreateStore) Create(ctx context.Context, e *domain.ScheduleEntry) error {
	return errors.New("disk full")
}

type panickingStore struct {
	repository.ScheduleStore
}

func (p *panickingStore) DetectConflicts(ctx context.Context, candidate *domain.ScheduleEntry) ([]*domain.ScheduleEntry, error) {
	panic("store corrupted")
}

func newEnhanced(t *testing.T) (*EnhancedAutoScheduler, *countingStore) {
	t.Helper()
	store := &countingStore{ScheduleStore: repository.NewSQLiteScheduleStore(testutil.NewTestDB(t))}
	return NewEnhancedAutoScheduler(config.Default(), store, nil), store
}

// mondayMorning is a Monday at 07:00 UTC, one hour before the facility
// opens.
var mondayMorning = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func chainRequest() contract.ScheduleRequest {
	a := testutil.NewTestInstance("A", testutil.WithTimes(60, 0, 1))
	b := testutil.NewTestInstance("B", testutil.WithTimes(60, 0, 1), testutil.WithDependencies("A"))
	c := testutil.NewTestInstance("C", testutil.WithTimes(60, 0, 1), testutil.WithDependencies("B"))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{a, b, c},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning
	return req
}

func TestEnhanced_LinearChain_BackToBackFromShiftStart(t *testing.T) {
	svc, store := newEnhanced(t)

	resp, err := svc.Schedule(context.Background(), chainRequest())
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Conflicts)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, 3, store.creates)

	byInstance := make(map[string]*domain.ScheduleEntry)
	for _, e := range resp.Entries {
		byInstance[e.ProcessInstanceID] = e
	}
	day := mondayMorning.Truncate(24 * time.Hour)
	assert.True(t, byInstance["A"].StartTime.Equal(day.Add(8*time.Hour)), "A starts at shift open")
	assert.True(t, byInstance["A"].EndTime.Equal(day.Add(9*time.Hour)))
	assert.True(t, byInstance["B"].StartTime.Equal(day.Add(9*time.Hour)), "B follows A")
	assert.True(t, byInstance["B"].EndTime.Equal(day.Add(10*time.Hour)))
	assert.True(t, byInstance["C"].StartTime.Equal(day.Add(10*time.Hour)), "C follows B")
	assert.True(t, byInstance["C"].EndTime.Equal(day.Add(11*time.Hour)))
}

func TestEnhanced_NoCapableMachine_OneConflictZeroEntries(t *testing.T) {
	svc, store := newEnhanced(t)

	inst := testutil.NewTestInstance("op-1", testutil.WithRequiredCapabilities("5-axis"))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{inst},
		[]*domain.Machine{testutil.NewTestMachine("m-1", testutil.WithCapabilities("turning"))},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Empty(t, resp.Entries)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, contract.ConflictMachineUnavailable, resp.Conflicts[0].Code)
	assert.Contains(t, resp.Conflicts[0].AffectedIDs, "op-1")
	assert.Equal(t, 0, store.creates)
}

func TestEnhanced_Cycle_FailsClosedWithoutPersistence(t *testing.T) {
	svc, store := newEnhanced(t)

	a := testutil.NewTestInstance("A", testutil.WithDependencies("B"))
	b := testutil.NewTestInstance("B", testutil.WithDependencies("A"))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{a, b},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Empty(t, resp.Entries)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, contract.ConflictDependencyCycle, resp.Conflicts[0].Code)
	assert.Contains(t, resp.Conflicts[0].Message, "→")
	assert.Contains(t, resp.Conflicts[0].AffectedIDs, "A")
	assert.Contains(t, resp.Conflicts[0].AffectedIDs, "B")
	assert.Equal(t, 0, store.creates, "a cyclic batch must make zero persistence calls")
}

func TestEnhanced_MalformedBatch_FailsClosedItemized(t *testing.T) {
	svc, store := newEnhanced(t)

	bad := testutil.NewTestInstance("bad", testutil.WithTimes(-5, 0, 0))
	good := testutil.NewTestInstance("good")
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{bad, good},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Empty(t, resp.Entries, "a malformed batch schedules nothing, including valid members")
	require.Len(t, resp.Conflicts, 2, "quantity and setup time each get their own conflict")
	for _, c := range resp.Conflicts {
		assert.Equal(t, contract.ConflictValidation, c.Code)
		assert.Contains(t, c.AffectedIDs, "bad")
	}
	assert.Equal(t, 0, store.creates)
}

func TestEnhanced_UnknownDependency_FailsClosed(t *testing.T) {
	svc, _ := newEnhanced(t)

	inst := testutil.NewTestInstance("A", testutil.WithDependencies("ghost"))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{inst},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, contract.ConflictDependencyRef, resp.Conflicts[0].Code)
}

func TestEnhanced_EmptyBatchIsAnError(t *testing.T) {
	svc, _ := newEnhanced(t)

	_, err := svc.Schedule(context.Background(), contract.NewScheduleRequest(nil, nil))
	var schedErr *contract.ScheduleError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, contract.ErrEmptyBatch, schedErr.Code)
}

func TestEnhanced_NoActiveMachinesIsAnError(t *testing.T) {
	svc, _ := newEnhanced(t)

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{testutil.NewTestInstance("A")},
		[]*domain.Machine{testutil.NewTestMachine("m-1", testutil.Inactive())},
	)
	_, err := svc.Schedule(context.Background(), req)
	var schedErr *contract.ScheduleError
	require.ErrorAs(t, err, &schedErr)
	assert.Equal(t, contract.ErrNoActiveMachines, schedErr.Code)
}

func TestEnhanced_InstanceFailuresAreIndependent(t *testing.T) {
	svc, _ := newEnhanced(t)

	schedulable := testutil.NewTestInstance("ok")
	impossible := testutil.NewTestInstance("stuck", testutil.WithRequiredCapabilities("5-axis"))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{schedulable, impossible},
		[]*domain.Machine{testutil.NewTestMachine("m-1", testutil.WithCapabilities("turning"))},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success, "any conflict makes the run unsuccessful")
	require.Len(t, resp.Entries, 1, "the schedulable instance still gets its entry")
	assert.Equal(t, "ok", resp.Entries[0].ProcessInstanceID)
	require.Len(t, resp.Conflicts, 1)
	assert.Contains(t, resp.Conflicts[0].AffectedIDs, "stuck")
}

func TestEnhanced_PersistenceFailure_EntryReportedUnconfirmed(t *testing.T) {
	base := repository.NewSQLiteScheduleStore(testutil.NewTestDB(t))
	svc := NewEnhancedAutoScheduler(config.Default(), &failingCreateStore{ScheduleStore: base}, nil)

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{testutil.NewTestInstance("A")},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, resp.Success)
	require.Len(t, resp.Entries, 1, "the candidate entry is still reported")
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, contract.ConflictPersistence, resp.Conflicts[0].Code)
	assert.Contains(t, resp.Conflicts[0].AffectedIDs, "A")
}

func TestEnhanced_PanicRecoveredIntoSyntheticConflict(t *testing.T) {
	base := repository.NewSQLiteScheduleStore(testutil.NewTestDB(t))
	svc := NewEnhancedAutoScheduler(config.Default(), &panickingStore{ScheduleStore: base}, nil)

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{testutil.NewTestInstance("A")},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err, "panics must not escape the orchestrator boundary")

	assert.False(t, resp.Success)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, contract.ConflictInternal, resp.Conflicts[0].Code)
	assert.Contains(t, resp.Conflicts[0].Message, "store corrupted")
}

func TestEnhanced_DryRunSkipsPersistence(t *testing.T) {
	svc, store := newEnhanced(t)

	req := chainRequest()
	req.DryRun = true
	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Len(t, resp.Entries, 3)
	assert.Equal(t, 0, store.creates, "dry run must not write")
}

func TestEnhanced_NoOverlapOnOneMachineAfterCleanRun(t *testing.T) {
	svc, _ := newEnhanced(t)

	// Five independent jobs all competing for the same machine.
	var instances []*domain.ProcessInstance
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		instances = append(instances, testutil.NewTestInstance(id, testutil.WithTimes(45, 0, 1)))
	}
	req := contract.NewScheduleRequest(instances, []*domain.Machine{testutil.NewTestMachine("m-1")})
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Len(t, resp.Entries, 5)

	for i, a := range resp.Entries {
		for _, b := range resp.Entries[i+1:] {
			assert.False(t, a.Overlaps(b), "%s and %s overlap", a.ProcessInstanceID, b.ProcessInstanceID)
		}
	}
}

func TestEnhanced_DependencyEndTimeBoundsSuccessor(t *testing.T) {
	svc, _ := newEnhanced(t)

	// Two machines: the dependency could run on either, but its successor
	// must never start before it finishes, even on the idle machine.
	first := testutil.NewTestInstance("first", testutil.WithTimes(120, 0, 1))
	second := testutil.NewTestInstance("second", testutil.WithTimes(30, 0, 1), testutil.WithDependencies("first"))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{first, second},
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
	assert.False(t, byInstance["second"].StartTime.Before(byInstance["first"].EndTime))
}

func TestEnhanced_ExplainCarriesScores(t *testing.T) {
	svc, _ := newEnhanced(t)

	resp, err := svc.Schedule(context.Background(), chainRequest())
	require.NoError(t, err)

	require.Len(t, resp.Scores, 3)
	for _, sc := range resp.Scores {
		assert.NotEmpty(t, sc.Reasons)
		assert.True(t, sc.OnCriticalPath, "every member of a linear chain is critical")
	}
}

func TestEnhanced_MetricsPopulated(t *testing.T) {
	svc, _ := newEnhanced(t)

	due := mondayMorning.AddDate(0, 0, 10)
	inst := testutil.NewTestInstance("A", testutil.WithDueDate(due))
	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{inst},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Metrics.TotalScheduledJobs)
	assert.InDelta(t, 1.0, resp.Metrics.OnTimeDeliveryRate, 0.001)
	assert.Greater(t, resp.Metrics.AverageUtilization, 0.0)
	assert.GreaterOrEqual(t, resp.Metrics.SchedulingDurationMs, int64(0))
}

func TestEnhanced_WeightWarningSurfaced(t *testing.T) {
	cfg := config.Default()
	cfg.PriorityWeights.DueDate = 0.9 // sums to 1.5
	store := repository.NewSQLiteScheduleStore(testutil.NewTestDB(t))
	svc := NewEnhancedAutoScheduler(cfg, store, nil)

	req := contract.NewScheduleRequest(
		[]*domain.ProcessInstance{testutil.NewTestInstance("A")},
		[]*domain.Machine{testutil.NewTestMachine("m-1")},
	)
	req.Now = &mondayMorning

	resp, err := svc.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "weights sum")
	assert.True(t, resp.Success, "weight drift warns, never fails the run")
}
