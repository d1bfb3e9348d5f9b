package core

import "searchcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	ExperimentStatus   = domain.ExperimentStatus
	TrialStatus        = domain.TrialStatus
	WorkerStatus       = domain.WorkerStatus
	WorkerRole         = domain.WorkerRole
	ResultType         = domain.ResultType
	Severity           = domain.Severity
	Base               = domain.Base
	ExperimentVersion  = domain.ExperimentVersion
	Refers             = domain.Refers
	VersionMetadata    = domain.VersionMetadata
	AdapterStep        = domain.AdapterStep
	AdapterKind        = domain.AdapterKind
	CodeImpact         = domain.CodeImpact
	Prior              = domain.Prior
	Trial              = domain.Trial
	Param              = domain.Param
	TrialResult        = domain.TrialResult
	Worker             = domain.Worker
	Resource           = domain.Resource
	Change             = domain.Change
	Action             = domain.Action
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityExperiment = domain.EntityExperiment
	EntityTrial      = domain.EntityTrial
	EntityWorker     = domain.EntityWorker
	EntityResource   = domain.EntityResource
)

const (
	ExperimentStatusPending = domain.ExperimentStatusPending
	ExperimentStatusDone    = domain.ExperimentStatusDone
	ExperimentStatusBroken  = domain.ExperimentStatusBroken
)

const (
	TrialStatusNew         = domain.TrialStatusNew
	TrialStatusReserved    = domain.TrialStatusReserved
	TrialStatusSuspended   = domain.TrialStatusSuspended
	TrialStatusInterrupted = domain.TrialStatusInterrupted
	TrialStatusCompleted   = domain.TrialStatusCompleted
	TrialStatusBroken      = domain.TrialStatusBroken
)

const (
	WorkerStatusAlive = domain.WorkerStatusAlive
	WorkerStatusDead  = domain.WorkerStatusDead
)

const (
	ResultTypeObjective  = domain.ResultTypeObjective
	ResultTypeConstraint = domain.ResultTypeConstraint
	ResultTypeGradient   = domain.ResultTypeGradient
)

const (
	WorkerRoleConsumer = domain.WorkerRoleConsumer
	WorkerRoleProducer = domain.WorkerRoleProducer
	WorkerRoleAll      = domain.WorkerRoleAll
)

const (
	AdapterDimensionDeletion    = domain.AdapterDimensionDeletion
	AdapterDimensionRenaming    = domain.AdapterDimensionRenaming
	AdapterDimensionPriorChange = domain.AdapterDimensionPriorChange
	AdapterAlgorithmChange      = domain.AdapterAlgorithmChange
	AdapterCodeChange           = domain.AdapterCodeChange
)

const (
	CodeImpactNoEffect = domain.CodeImpactNoEffect
	CodeImpactUnsure   = domain.CodeImpactUnsure
	CodeImpactBreak    = domain.CodeImpactBreak
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
