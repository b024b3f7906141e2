package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/db"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/service"
	"github.com/jspindler/takt/internal/testutil"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	conn := testutil.NewTestDB(t)
	cfg := config.Default()
	store := repository.NewSQLiteScheduleStore(conn)
	machines := repository.NewSQLiteMachineRepo(conn)
	requests := repository.NewSQLiteEmergencyRepo(conn)
	uow := db.NewSQLiteUnitOfWork(conn)

	return &App{
		Config:            cfg,
		Schedule:          service.NewEnhancedAutoScheduler(cfg, store, nil),
		Sequence:          service.NewAutoScheduler(cfg, store),
		Emergency:         service.NewEmergencyScheduler(cfg, requests, machines, store, uow, nil),
		Machines:          service.NewMachineService(cfg, machines, store),
		Entries:           service.NewEntryService(store, nil),
		EmergencyRequests: requests,
	}
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeBatchFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instances:
  - id: op-1
    display_name: Shaft roughing
    machine_type: cnc_lathe
    setup_time_min: 30
    cycle_time_min: 3
    quantity: 10
  - id: op-2
    machine_type: cnc_lathe
    setup_time_min: 60
    quantity: 1
    dependencies: [op-1]
machines:
  - id: m-1
    name: Lathe 1
    type: cnc_lathe
    capabilities: [turning]
`), 0o644))
	return path
}

func TestScheduleCmd_HappyPath(t *testing.T) {
	app := newTestApp(t)

	out, err := execute(t, app, "schedule", writeBatchFile(t), "--now", "2026-03-02T07:00:00Z")
	require.NoError(t, err)

	assert.Contains(t, out, "Shaft roughing")
	assert.Contains(t, out, "m-1")
	assert.Contains(t, out, "2 scheduled, 0 conflicts")
}

func TestScheduleCmd_ConflictsFlipExitCode(t *testing.T) {
	app := newTestApp(t)

	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instances:
  - id: op-1
    machine_type: cnc_lathe
    required_capabilities: [5-axis]
    quantity: 1
    setup_time_min: 30
machines:
  - id: m-1
    type: cnc_lathe
    capabilities: [turning]
`), 0o644))

	out, err := execute(t, app, "schedule", path, "--now", "2026-03-02T07:00:00Z")
	require.ErrorIs(t, err, errSilentFailure)
	assert.Contains(t, out, "MACHINE_UNAVAILABLE")
}

func TestScheduleCmd_MalformedBatchItemized(t *testing.T) {
	app := newTestApp(t)

	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
instances:
  - id: op-1
    quantity: 0
`), 0o644))

	_, err := execute(t, app, "schedule", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "machine_type is required")
	assert.Contains(t, err.Error(), "quantity must be at least 1")
}

func TestMachinesImportAndList(t *testing.T) {
	app := newTestApp(t)

	out, err := execute(t, app, "machines", "import", writeBatchFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 machine(s)")

	out, err = execute(t, app, "machines", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Lathe 1")
	assert.Contains(t, out, "turning")
}

func TestEmergencyRequestCmd(t *testing.T) {
	app := newTestApp(t)

	_, err := execute(t, app, "machines", "import", writeBatchFile(t))
	require.NoError(t, err)

	out, err := execute(t, app, "emergency", "request",
		"--file", writeBatchFile(t), "--instance", "op-1",
		"--level", "safety_critical", "--by", "operator-7", "--reason", "spindle failure")
	require.NoError(t, err)

	assert.Contains(t, out, "Requested")
	assert.Contains(t, out, "approvals 0 of 2")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, newTestApp(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "takt ")
}
