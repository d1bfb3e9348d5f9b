package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Reservation exclusivity and capacity
// accounting rely on this scope: a check-then-flip performed inside one
// transaction is equivalent to a compare-and-swap on the trial's status.
type Transaction interface {
	CreateExperiment(ExperimentVersion) (ExperimentVersion, error)
	UpdateExperiment(id string, mutator func(*ExperimentVersion) error) (ExperimentVersion, error)
	CreateTrial(Trial) (Trial, error)
	UpdateTrial(id string, mutator func(*Trial) error) (Trial, error)
	CreateWorker(Worker) (Worker, error)
	UpdateWorker(id string, mutator func(*Worker) error) (Worker, error)
	CreateResource(Resource) (Resource, error)
	UpdateResource(alias string, mutator func(*Resource) error) (Resource, error)

	FindExperiment(id string) (ExperimentVersion, bool)
	FindTrial(id string) (Trial, bool)
	FindWorker(id string) (Worker, bool)
	FindResource(alias string) (Resource, bool)
	ListTrialsByExperiment(experimentID string) []Trial
	ListWorkers() []Worker
}

// TransactionView provides read-only access to snapshot data for rules and
// reporting.
type TransactionView interface {
	ListExperiments() []ExperimentVersion
	ListTrials() []Trial
	ListWorkers() []Worker
	ListResources() []Resource
	FindExperiment(id string) (ExperimentVersion, bool)
	FindTrial(id string) (Trial, bool)
	FindWorker(id string) (Worker, bool)
	FindResource(alias string) (Resource, bool)
	ListTrialsByExperiment(experimentID string) []Trial
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetExperiment(id string) (ExperimentVersion, bool)
	ListExperiments() []ExperimentVersion
	GetTrial(id string) (Trial, bool)
	ListTrialsByExperiment(experimentID string) []Trial
	GetWorker(id string) (Worker, bool)
	ListWorkers() []Worker
	GetResource(alias string) (Resource, bool)
	ListResources() []Resource
}
