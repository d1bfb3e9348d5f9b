package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"searchcore/internal/infra/persistence/memory"
	"searchcore/pkg/domain"

	"github.com/google/uuid"
)

// Algorithm is the pluggable optimizer boundary. Suggest proposes the next
// parameter vector given the trials observed so far in the experiment's
// space; Observe feeds back one finished trial.
type Algorithm interface {
	Suggest(ctx context.Context, history []Trial) ([]Param, error)
	Observe(ctx context.Context, trial Trial) error
}

// Service exposes the transactional registry, adapter, and lease operations
// over a persistent store.
type Service struct {
	store      PersistentStore
	logger     Logger
	clock      Clock
	metrics    MetricsRecorder
	tracer     Tracer
	algorithms map[string]Algorithm
	artifacts  ArtifactStore
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger injects a structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects a clock for deterministic time handling.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder injects an operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer injects a tracer wrapping every service operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		logger:     noopLogger{},
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:    noopMetrics{},
		tracer:     noopTracer{},
		algorithms: make(map[string]Algorithm),
	}
	for _, opt := range opts {
		opt(s)
	}
	if mem, ok := store.(*memory.Store); ok {
		mem.SetNowFunc(s.clock.Now)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store loaded
// with the default rules engine.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// RegisterAlgorithm makes an optimizer available under the given name.
// Experiments select it through the "name" field of their algorithm config.
func (s *Service) RegisterAlgorithm(name string, algo Algorithm) error {
	if name == "" || algo == nil {
		return fmt.Errorf("algorithm registration requires a name and an implementation")
	}
	if _, ok := s.algorithms[name]; ok {
		return fmt.Errorf("algorithm %s already registered", name)
	}
	s.algorithms[name] = algo
	return nil
}

// instrument wraps one service operation with tracing, metrics, and error
// logging.
func (s *Service) instrument(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	start := s.clock.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, operation, err == nil, s.clock.Now().Sub(start))
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	}
	return err
}

// RegisterExperiment creates an experiment version record. Roots anchor a
// new lineage; forks must name an existing parent sharing the same root id
// and carry a well-formed adapter chain. Records are immutable once created
// except for their status.
func (s *Service) RegisterExperiment(ctx context.Context, exp ExperimentVersion) (ExperimentVersion, error) {
	var created ExperimentVersion
	err := s.instrument(ctx, "register_experiment", func(ctx context.Context) error {
		if exp.Name == "" {
			return fmt.Errorf("experiment name required")
		}
		if exp.Version <= 0 {
			exp.Version = 1
		}
		if err := domain.ValidateAdapterChain(exp.Refers.Adapter); err != nil {
			return err
		}
		if exp.ID == "" {
			exp.ID = uuid.NewString()
		}
		if exp.Status == "" {
			exp.Status = ExperimentStatusPending
		}
		if exp.Metadata.Timestamp.IsZero() {
			exp.Metadata.Timestamp = s.clock.Now()
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if exp.Refers.ParentID != nil {
				parent, ok := tx.FindExperiment(*exp.Refers.ParentID)
				if !ok {
					return CorruptLineageError{ExperimentID: exp.ID, Reason: "parent " + *exp.Refers.ParentID + " does not exist"}
				}
				if exp.Refers.RootID == "" {
					exp.Refers.RootID = parent.Refers.RootID
				} else if exp.Refers.RootID != parent.Refers.RootID {
					return CorruptLineageError{ExperimentID: exp.ID, Reason: "root id diverges from parent " + parent.ID}
				}
			} else {
				exp.Refers.RootID = exp.ID
			}
			var err error
			created, err = tx.CreateExperiment(exp)
			return err
		})
		return err
	})
	if err != nil {
		return ExperimentVersion{}, err
	}
	return created, nil
}

// SetExperimentStatus moves an experiment from pending to done or broken.
// The record is otherwise immutable.
func (s *Service) SetExperimentStatus(ctx context.Context, id string, status ExperimentStatus) (ExperimentVersion, error) {
	var updated ExperimentVersion
	err := s.instrument(ctx, "set_experiment_status", func(ctx context.Context) error {
		if status != ExperimentStatusDone && status != ExperimentStatusBroken {
			return fmt.Errorf("experiment status may only move to %s or %s, got %s", ExperimentStatusDone, ExperimentStatusBroken, status)
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateExperiment(id, func(e *ExperimentVersion) error {
				if e.Status != ExperimentStatusPending {
					return fmt.Errorf("experiment %s is already %s", id, e.Status)
				}
				e.Status = status
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return ExperimentVersion{}, err
	}
	return updated, nil
}

// GetExperiment fetches one experiment version.
func (s *Service) GetExperiment(ctx context.Context, id string) (ExperimentVersion, error) {
	exp, ok := s.store.GetExperiment(id)
	if !ok {
		return ExperimentVersion{}, ErrNotFound{Entity: EntityExperiment, ID: id}
	}
	return exp, nil
}

// RegisterTrial creates a new trial for the experiment with the supplied
// parameter vector.
func (s *Service) RegisterTrial(ctx context.Context, experimentID string, params []Param) (Trial, error) {
	var created Trial
	err := s.instrument(ctx, "register_trial", func(ctx context.Context) error {
		var err error
		created, err = s.createTrial(ctx, experimentID, params, nil)
		return err
	})
	if err != nil {
		return Trial{}, err
	}
	return created, nil
}

func (s *Service) createTrial(ctx context.Context, experimentID string, params, parentParams []Param) (Trial, error) {
	var created Trial
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.FindExperiment(experimentID); !ok {
			return ErrNotFound{Entity: EntityExperiment, ID: experimentID}
		}
		var err error
		created, err = tx.CreateTrial(Trial{
			Base:         Base{ID: uuid.NewString()},
			ExperimentID: experimentID,
			Status:       TrialStatusNew,
			SubmitTime:   s.clock.Now(),
			Params:       append([]Param(nil), params...),
			ParentParams: append([]Param(nil), parentParams...),
		})
		return err
	})
	if err != nil {
		return Trial{}, err
	}
	return created, nil
}

// AdaptedHistory assembles the experiment's usable ancestor history: every
// reachable ancestor's completed trials adapted into the experiment's space.
// Invalidated ancestors and skipped trials are reported, not fatal.
func (s *Service) AdaptedHistory(ctx context.Context, experimentID string) (History, error) {
	var hist History
	err := s.instrument(ctx, "adapted_history", func(ctx context.Context) error {
		return s.store.View(ctx, func(view domain.TransactionView) error {
			var err error
			hist, err = AssembleHistory(view, experimentID)
			return err
		})
	})
	if err != nil {
		return History{}, err
	}
	s.metrics.AddEvent(ctx, EventHistoryTrialsSkipped, int64(hist.Skipped))
	s.metrics.AddEvent(ctx, EventAncestorsInvalidated, int64(len(hist.Invalidated)))
	for _, id := range hist.Invalidated {
		s.logger.Warn("ancestor history invalidated by breaking code change", "experiment", experimentID, "ancestor", id)
	}
	return hist, nil
}

// SuggestTrial asks the experiment's algorithm for the next parameter vector,
// feeding it the adapted ancestor history plus the experiment's own completed
// trials, and registers the suggestion as a new trial. For forks the
// suggestion is also mapped back into the parent's space and stored on the
// trial's ParentParams for bookkeeping, when the adapter chain applies.
func (s *Service) SuggestTrial(ctx context.Context, experimentID string) (Trial, error) {
	var created Trial
	err := s.instrument(ctx, "suggest_trial", func(ctx context.Context) error {
		exp, ok := s.store.GetExperiment(experimentID)
		if !ok {
			return ErrNotFound{Entity: EntityExperiment, ID: experimentID}
		}
		algo, err := s.resolveAlgorithm(exp)
		if err != nil {
			return err
		}

		hist, err := s.AdaptedHistory(ctx, experimentID)
		if err != nil {
			return err
		}
		observed := hist.Trials
		for _, trial := range s.store.ListTrialsByExperiment(experimentID) {
			if trial.Status == TrialStatusCompleted {
				observed = append(observed, trial)
			}
		}

		params, err := algo.Suggest(ctx, observed)
		if err != nil {
			return fmt.Errorf("algorithm suggest: %w", err)
		}

		var parentParams []Param
		if exp.Refers.ParentID != nil {
			if mapped, ok := AdaptBackward(params, exp.Refers.Adapter); ok {
				parentParams = mapped
				s.logger.Debug("suggestion mapped into parent space", "parent", *exp.Refers.ParentID, "params", parentParams)
			}
		}
		created, err = s.createTrial(ctx, experimentID, params, parentParams)
		return err
	})
	if err != nil {
		return Trial{}, err
	}
	return created, nil
}

// ObserveTrial forwards one finished trial to the experiment's algorithm.
func (s *Service) ObserveTrial(ctx context.Context, trialID string) error {
	return s.instrument(ctx, "observe_trial", func(ctx context.Context) error {
		trial, ok := s.store.GetTrial(trialID)
		if !ok {
			return ErrNotFound{Entity: EntityTrial, ID: trialID}
		}
		if trial.Status != TrialStatusCompleted {
			return fmt.Errorf("trial %s is %s, only completed trials are observable", trialID, trial.Status)
		}
		exp, ok := s.store.GetExperiment(trial.ExperimentID)
		if !ok {
			return ErrNotFound{Entity: EntityExperiment, ID: trial.ExperimentID}
		}
		algo, err := s.resolveAlgorithm(exp)
		if err != nil {
			return err
		}
		if err := algo.Observe(ctx, trial); err != nil {
			return fmt.Errorf("algorithm observe: %w", err)
		}
		return nil
	})
}

// resolveAlgorithm looks up the optimizer named in the experiment's opaque
// algorithm config.
func (s *Service) resolveAlgorithm(exp ExperimentVersion) (Algorithm, error) {
	name := "random"
	if len(exp.Algorithm) > 0 {
		var cfg struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(exp.Algorithm, &cfg); err != nil {
			return nil, fmt.Errorf("decode algorithm config for experiment %s: %w", exp.ID, err)
		}
		if cfg.Name != "" {
			name = cfg.Name
		}
	}
	algo, ok := s.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("algorithm %s not registered", name)
	}
	return algo, nil
}
