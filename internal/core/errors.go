package core

import "fmt"

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ReservationConflictError reports a reservation attempt or release that lost
// a race: the trial is already bound to another worker, or the caller's claim
// on it has been reclaimed.
type ReservationConflictError struct {
	TrialID  string
	WorkerID string
	Reason   string
}

func (e ReservationConflictError) Error() string {
	return fmt.Sprintf("reservation conflict on trial %s for worker %s: %s", e.TrialID, e.WorkerID, e.Reason)
}

// CorruptLineageError reports a structurally invalid experiment lineage:
// a missing parent, mismatched root ids, or a cycle in the version tree.
type CorruptLineageError struct {
	ExperimentID string
	Reason       string
}

func (e CorruptLineageError) Error() string {
	return fmt.Sprintf("corrupt lineage at experiment %s: %s", e.ExperimentID, e.Reason)
}
