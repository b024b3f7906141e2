package domain

type CustomerPriority string

const (
	PriorityUrgent CustomerPriority = "urgent"
	PriorityHigh   CustomerPriority = "high"
	PriorityMedium CustomerPriority = "medium"
	PriorityLow    CustomerPriority = "low"
)

// ValidCustomerPriorities is the canonical set of accepted priority strings.
var ValidCustomerPriorities = map[string]bool{
	"urgent": true, "high": true, "medium": true, "low": true,
}

type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyLow      UrgencyLevel = "low"
)

type EntryStatus string

const (
	EntryScheduled  EntryStatus = "scheduled"
	EntryInProgress EntryStatus = "in_progress"
	EntryCompleted  EntryStatus = "completed"
	EntryCancelled  EntryStatus = "cancelled"
)

type EmergencyLevel string

const (
	EmergencyUrgent         EmergencyLevel = "urgent"
	EmergencySafetyCritical EmergencyLevel = "safety_critical"
)

// ValidEmergencyLevels is the canonical set of accepted emergency level strings.
var ValidEmergencyLevels = map[string]bool{
	"urgent": true, "safety_critical": true,
}

type EmergencyState string

const (
	EmergencyRequested EmergencyState = "requested"
	EmergencyApproved  EmergencyState = "approved"
	EmergencyRejected  EmergencyState = "rejected"
	EmergencyScheduled EmergencyState = "scheduled"
)
