// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by searchcore.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityExperiment identifies an experiment version record.
	EntityExperiment EntityType = "experiment"
	// EntityTrial identifies a trial record.
	EntityTrial EntityType = "trial"
	// EntityWorker identifies a worker record.
	EntityWorker EntityType = "worker"
	// EntityResource identifies a resource record.
	EntityResource EntityType = "resource"
)

// ExperimentStatus enumerates experiment version lifecycle states.
type ExperimentStatus string

// Canonical experiment statuses.
const (
	ExperimentStatusPending ExperimentStatus = "pending"
	ExperimentStatusDone    ExperimentStatus = "done"
	ExperimentStatusBroken  ExperimentStatus = "broken"
)

// TrialStatus enumerates trial lifecycle states governed by the transition table.
type TrialStatus string

// Canonical trial statuses. "new" is initial; "completed" and "broken" are terminal.
const (
	TrialStatusNew         TrialStatus = "new"
	TrialStatusReserved    TrialStatus = "reserved"
	TrialStatusSuspended   TrialStatus = "suspended"
	TrialStatusInterrupted TrialStatus = "interrupted"
	TrialStatusCompleted   TrialStatus = "completed"
	TrialStatusBroken      TrialStatus = "broken"
)

// WorkerStatus enumerates worker liveness states.
type WorkerStatus string

// Worker liveness states. Workers are never deleted, only marked dead.
const (
	WorkerStatusAlive WorkerStatus = "alive"
	WorkerStatusDead  WorkerStatus = "dead"
)

// WorkerRole describes which side of the trial pipeline a worker serves.
type WorkerRole string

// Canonical worker roles.
const (
	WorkerRoleConsumer WorkerRole = "consumer"
	WorkerRoleProducer WorkerRole = "producer"
	WorkerRoleAll      WorkerRole = "all"
)

// ResultType classifies a trial result entry.
type ResultType string

// Canonical trial result types.
const (
	ResultTypeObjective  ResultType = "objective"
	ResultTypeConstraint ResultType = "constraint"
	ResultTypeGradient   ResultType = "gradient"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VCSInfo records the version-control state of the user script at registration time.
type VCSInfo struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionMetadata captures provenance for an experiment version record.
type VersionMetadata struct {
	User        string    `json:"user"`
	Timestamp   time.Time `json:"timestamp"`
	ToolVersion string    `json:"tool_version"`
	ScriptPath  string    `json:"script_path"`
	ScriptArgs  []string  `json:"script_args"`
	VCS         VCSInfo   `json:"vcs"`
}

// Refers links an experiment version into its lineage. RootID is stable
// across a whole lineage; ParentID is nil for roots. Adapter is the ordered
// step chain mapping the parent's parameter space into this version's space.
type Refers struct {
	RootID   string        `json:"root_id"`
	ParentID *string       `json:"parent_id"`
	Adapter  []AdapterStep `json:"adapter"`
}

// ExperimentVersion is a named, versioned specification of a search.
// Records are immutable once created except for Status.
type ExperimentVersion struct {
	Base
	Name      string           `json:"name"`
	Version   int              `json:"version"`
	Refers    Refers           `json:"refers"`
	Metadata  VersionMetadata  `json:"metadata"`
	PoolSize  int              `json:"pool_size"`
	MaxTrials int              `json:"max_trials"`
	Status    ExperimentStatus `json:"status"`
	Algorithm json.RawMessage  `json:"algorithm,omitempty"`
}

// IsRoot reports whether the version starts a lineage.
func (e ExperimentVersion) IsRoot() bool { return e.Refers.ParentID == nil }

// Param is one dimension value of a trial's parameter vector.
type Param struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// TrialResult is one evaluated (or pending) result entry of a trial.
// Name and Value stay nil until the worker reports them.
type TrialResult struct {
	Name  *string    `json:"name"`
	Type  ResultType `json:"type"`
	Value any        `json:"value"`
}

// Trial is one evaluation of a parameter configuration. A trial belongs to
// exactly one experiment version for its entire life.
type Trial struct {
	Base
	ExperimentID string        `json:"experiment"`
	Status       TrialStatus   `json:"status"`
	WorkerID     *string       `json:"worker"`
	LastWorkerID *string       `json:"last_worker,omitempty"`
	Seq          int64         `json:"seq"`
	SubmitTime   time.Time     `json:"submit_time"`
	StartTime    *time.Time    `json:"start_time"`
	EndTime      *time.Time    `json:"end_time"`
	Params       []Param       `json:"params"`
	// ParentParams is the suggestion translated into the parent experiment's
	// space, kept for cross-version bookkeeping. Empty for roots and for
	// suggestions whose backward adaptation is inapplicable.
	ParentParams []Param       `json:"parent_params,omitempty"`
	Results      []TrialResult `json:"results"`
}

// Param returns the named parameter and whether it is present.
func (t Trial) Param(name string) (Param, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Worker is a process that reserves and evaluates trials. Created on
// registration, mutated only by heartbeat and liveness detection.
type Worker struct {
	Base
	ExperimentID  string       `json:"experiment"`
	User          string       `json:"user"`
	Role          WorkerRole   `json:"role"`
	ResourceAlias string       `json:"resource"`
	PID           int          `json:"pid"`
	Status        WorkerStatus `json:"status"`
	LastFound     time.Time    `json:"lastfound"`
}

// Resource is a compute allocation with a concurrency cap. Scheduler
// identity and launch arguments are opaque pass-through for the external
// process supervisor.
type Resource struct {
	Base
	Alias         string `json:"alias"`
	ExperimentID  string `json:"experiment"`
	User          string `json:"user"`
	Hostname      string `json:"hostname"`
	MaxConcurrent int    `json:"max_concurrent"`
	Scheduler     string `json:"scheduler"`
	SchedulerArgs string `json:"scheduler_args"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured for rule evaluation.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
