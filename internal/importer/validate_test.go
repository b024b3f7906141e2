package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrStr(s string) *string { return &s }

func validMinimalBatch() *BatchImport {
	return &BatchImport{
		Instances: []InstanceImport{
			{ID: "op-1", MachineType: "cnc_lathe", SetupTimeMin: 30, CycleTimeMin: 3, Quantity: 10},
		},
		Machines: []MachineImport{
			{ID: "m-1", Type: "cnc_lathe", Capabilities: []string{"turning"}},
		},
	}
}

func TestValidateBatch_Valid(t *testing.T) {
	assert.Empty(t, ValidateBatch(validMinimalBatch()))
}

func TestValidateBatch_EmptyInstances(t *testing.T) {
	errs := ValidateBatch(&BatchImport{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "at least one instance")
}

func TestValidateBatch_InstanceFieldErrors(t *testing.T) {
	batch := &BatchImport{
		Instances: []InstanceImport{
			{ID: "", MachineType: "", SetupTimeMin: -1, CycleTimeMin: -1, Quantity: 0},
		},
	}
	errs := ValidateBatch(batch)
	assert.Len(t, errs, 5, "id, machine_type, quantity, setup, cycle each reported")
}

func TestValidateBatch_DuplicateAndUnknownRefs(t *testing.T) {
	batch := &BatchImport{
		Instances: []InstanceImport{
			{ID: "op-1", MachineType: "cnc_lathe", Quantity: 1},
			{ID: "op-1", MachineType: "cnc_lathe", Quantity: 1},
			{ID: "op-2", MachineType: "cnc_lathe", Quantity: 1, Dependencies: []string{"ghost", "op-2"}},
		},
	}
	errs := ValidateBatch(batch)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0].Error(), "duplicate id")
	assert.Contains(t, errs[1].Error(), `"ghost" not found`)
	assert.Contains(t, errs[2].Error(), "self-dependency")
}

func TestValidateBatch_ForwardDependencyRefIsFine(t *testing.T) {
	// Order inside the file carries no meaning for dependencies.
	batch := &BatchImport{
		Instances: []InstanceImport{
			{ID: "op-1", MachineType: "cnc_lathe", Quantity: 1, Dependencies: []string{"op-2"}},
			{ID: "op-2", MachineType: "cnc_lathe", Quantity: 1},
		},
	}
	assert.Empty(t, ValidateBatch(batch))
}

func TestValidateBatch_PriorityAndDates(t *testing.T) {
	batch := validMinimalBatch()
	batch.Instances[0].CustomerPriority = "whenever"
	batch.Instances[0].DueDate = ptrStr("next tuesday")

	errs := ValidateBatch(batch)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "customer_priority")
	assert.Contains(t, errs[1].Error(), "due_date")
}

func TestValidateBatch_DueDateFormats(t *testing.T) {
	batch := validMinimalBatch()
	batch.Instances[0].DueDate = ptrStr("2026-03-20")
	assert.Empty(t, ValidateBatch(batch))

	batch.Instances[0].DueDate = ptrStr("2026-03-20T14:00:00Z")
	assert.Empty(t, ValidateBatch(batch))
}

func TestValidateBatch_MachineErrors(t *testing.T) {
	rate := -5.0
	batch := &BatchImport{
		Instances: []InstanceImport{{ID: "op-1", MachineType: "cnc_lathe", Quantity: 1}},
		Machines: []MachineImport{
			{ID: "", Type: "", HourlyRate: &rate},
			{ID: "m-1", Type: "cnc_lathe", WorkingHours: &WorkingHoursImport{
				Start: "17:00", End: "08:00", Days: []string{"monday", "moonday"},
			}},
			{ID: "m-1", Type: "cnc_lathe", MaintenanceWindows: []TimeWindowImport{
				{Start: "2026-03-02T10:00:00Z", End: "2026-03-02T08:00:00Z"},
			}},
		},
	}
	errs := ValidateBatch(batch)
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}

	require.Len(t, errs, 7)
	assert.Contains(t, messages[0], "id is required")
	assert.Contains(t, messages[1], "type is required")
	assert.Contains(t, messages[2], "hourly_rate")
	assert.Contains(t, messages[3], `end "08:00" must be after start`)
	assert.Contains(t, messages[4], `unknown weekday "moonday"`)
	assert.Contains(t, messages[5], "duplicate id")
	assert.Contains(t, messages[6], "maintenance_windows[0]")
}
