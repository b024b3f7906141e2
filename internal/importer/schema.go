package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BatchImport is the top-level structure of a batch file: the process
// instances to schedule plus, optionally, the machine park they run on.
type BatchImport struct {
	Instances []InstanceImport `json:"instances" yaml:"instances"`
	Machines  []MachineImport  `json:"machines,omitempty" yaml:"machines,omitempty"`
}

// InstanceImport defines one process instance in the batch file.
type InstanceImport struct {
	ID                   string   `json:"id" yaml:"id"`
	DisplayName          string   `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	MachineType          string   `json:"machine_type" yaml:"machine_type"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty" yaml:"required_capabilities,omitempty"`
	SetupTimeMin         int      `json:"setup_time_min" yaml:"setup_time_min"`
	CycleTimeMin         int      `json:"cycle_time_min" yaml:"cycle_time_min"`
	Quantity             int      `json:"quantity" yaml:"quantity"`
	Dependencies         []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	OrderIndex           int      `json:"order_index,omitempty" yaml:"order_index,omitempty"`
	DueDate              *string  `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	CustomerPriority     string   `json:"customer_priority,omitempty" yaml:"customer_priority,omitempty"`
}

// MachineImport defines one machine in the batch file.
type MachineImport struct {
	ID                 string               `json:"id" yaml:"id"`
	Name               string               `json:"name,omitempty" yaml:"name,omitempty"`
	Type               string               `json:"type" yaml:"type"`
	Capabilities       []string             `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Active             *bool                `json:"active,omitempty" yaml:"active,omitempty"`
	WorkingHours       *WorkingHoursImport  `json:"working_hours,omitempty" yaml:"working_hours,omitempty"`
	MaintenanceWindows []TimeWindowImport   `json:"maintenance_windows,omitempty" yaml:"maintenance_windows,omitempty"`
	HourlyRate         *float64             `json:"hourly_rate,omitempty" yaml:"hourly_rate,omitempty"`
	AssignmentRule     string               `json:"assignment_rule,omitempty" yaml:"assignment_rule,omitempty"`
}

// WorkingHoursImport overrides the facility calendar for one machine.
// Days use lowercase English names ("monday" .. "sunday").
type WorkingHoursImport struct {
	Start string   `json:"start" yaml:"start"`
	End   string   `json:"end" yaml:"end"`
	Days  []string `json:"days" yaml:"days"`
}

// TimeWindowImport is an absolute interval in RFC 3339 form.
type TimeWindowImport struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// LoadBatch reads and parses a batch file. The format follows the file
// extension: .yaml/.yml is YAML, everything else is JSON.
func LoadBatch(path string) (*BatchImport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch BatchImport
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("parsing batch file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("parsing batch file: %w", err)
		}
	}
	return &batch, nil
}
