package contract

import "strings"

type ConflictCode string

const (
	// Batch-fatal: the run produces zero entries.
	ConflictValidation      ConflictCode = "VALIDATION"
	ConflictDependencyCycle ConflictCode = "DEPENDENCY_CYCLE"
	ConflictDependencyRef   ConflictCode = "DEPENDENCY_REF"

	// Per-instance: the rest of the batch continues.
	ConflictMachineUnavailable ConflictCode = "MACHINE_UNAVAILABLE"
	ConflictSlotNotFound       ConflictCode = "SLOT_NOT_FOUND"
	ConflictPersistence        ConflictCode = "PERSISTENCE"

	// Recovered orchestrator failure.
	ConflictInternal ConflictCode = "INTERNAL"
)

// Conflict describes one scheduling problem. Conflicts are always returned
// to the caller, never swallowed.
type Conflict struct {
	Code        ConflictCode
	Message     string
	AffectedIDs []string
	Resolution  string
}

func (c Conflict) String() string {
	s := string(c.Code) + ": " + c.Message
	if len(c.AffectedIDs) > 0 {
		s += " [" + strings.Join(c.AffectedIDs, ", ") + "]"
	}
	return s
}

// BatchFatal reports whether this conflict kind aborts the whole batch.
func (c Conflict) BatchFatal() bool {
	switch c.Code {
	case ConflictValidation, ConflictDependencyCycle, ConflictDependencyRef:
		return true
	default:
		return false
	}
}
