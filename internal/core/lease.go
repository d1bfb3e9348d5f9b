package core

import (
	"context"
	"fmt"
	"time"

	"searchcore/pkg/domain"

	"github.com/google/uuid"
)

// RegisterResource records a compute allocation with its concurrency cap.
func (s *Service) RegisterResource(ctx context.Context, resource Resource) (Resource, error) {
	var created Resource
	err := s.instrument(ctx, "register_resource", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if resource.ExperimentID != "" {
				if _, ok := tx.FindExperiment(resource.ExperimentID); !ok {
					return ErrNotFound{Entity: EntityExperiment, ID: resource.ExperimentID}
				}
			}
			var err error
			created, err = tx.CreateResource(resource)
			return err
		})
		return err
	})
	if err != nil {
		return Resource{}, err
	}
	return created, nil
}

// RegisterWorker records a new alive worker for the experiment, optionally
// bound to a resource alias, and returns its handle.
func (s *Service) RegisterWorker(ctx context.Context, experimentID, user string, role WorkerRole, resourceAlias string, pid int) (Worker, error) {
	var created Worker
	err := s.instrument(ctx, "register_worker", func(ctx context.Context) error {
		switch role {
		case WorkerRoleConsumer, WorkerRoleProducer, WorkerRoleAll:
		default:
			return fmt.Errorf("unknown worker role %q", role)
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindExperiment(experimentID); !ok {
				return ErrNotFound{Entity: EntityExperiment, ID: experimentID}
			}
			if resourceAlias != "" {
				if _, ok := tx.FindResource(resourceAlias); !ok {
					return ErrNotFound{Entity: EntityResource, ID: resourceAlias}
				}
			}
			var err error
			created, err = tx.CreateWorker(Worker{
				Base:          Base{ID: uuid.NewString()},
				ExperimentID:  experimentID,
				User:          user,
				Role:          role,
				ResourceAlias: resourceAlias,
				PID:           pid,
				Status:        WorkerStatusAlive,
				LastFound:     s.clock.Now(),
			})
			return err
		})
		return err
	})
	if err != nil {
		return Worker{}, err
	}
	return created, nil
}

// Heartbeat stamps the worker's liveness clock. Repeating a heartbeat is
// idempotent; a worker that has already been reaped gets a conflict so it
// knows its reservations are gone.
func (s *Service) Heartbeat(ctx context.Context, workerID string) error {
	return s.instrument(ctx, "heartbeat", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			worker, ok := tx.FindWorker(workerID)
			if !ok {
				return ErrNotFound{Entity: EntityWorker, ID: workerID}
			}
			if worker.Status == WorkerStatusDead {
				return ReservationConflictError{WorkerID: workerID, Reason: "worker was marked dead"}
			}
			_, err := tx.UpdateWorker(workerID, func(w *Worker) error {
				w.LastFound = s.clock.Now()
				return nil
			})
			return err
		})
		return err
	})
}

// AcquireTrial atomically reserves the next eligible trial for the worker.
// Eligible trials are new, interrupted (requeued in the same transaction),
// and suspended ones (resumed directly), taken in (submit time, sequence)
// order. The nil, nil return means nothing is currently acquirable: no
// eligible trial, no headroom on the worker's resource, or the experiment
// has hit its max trials.
func (s *Service) AcquireTrial(ctx context.Context, experimentID, workerID string) (*Trial, error) {
	var acquired *Trial
	err := s.instrument(ctx, "acquire_trial", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			exp, ok := tx.FindExperiment(experimentID)
			if !ok {
				return ErrNotFound{Entity: EntityExperiment, ID: experimentID}
			}
			worker, ok := tx.FindWorker(workerID)
			if !ok {
				return ErrNotFound{Entity: EntityWorker, ID: workerID}
			}
			if worker.Status != WorkerStatusAlive {
				return ReservationConflictError{WorkerID: workerID, Reason: "worker was marked dead"}
			}
			if worker.ExperimentID != experimentID {
				return ReservationConflictError{WorkerID: workerID, Reason: "worker belongs to experiment " + worker.ExperimentID}
			}

			trials := tx.ListTrialsByExperiment(experimentID)

			if exp.MaxTrials > 0 {
				completed := 0
				for _, t := range trials {
					if t.Status == TrialStatusCompleted {
						completed++
					}
				}
				if completed >= exp.MaxTrials {
					return nil
				}
			}

			if worker.ResourceAlias != "" {
				resource, ok := tx.FindResource(worker.ResourceAlias)
				if !ok {
					return ErrNotFound{Entity: EntityResource, ID: worker.ResourceAlias}
				}
				if reservedOnResource(tx, worker.ResourceAlias) >= resource.MaxConcurrent {
					return nil
				}
			}

			for _, candidate := range trials {
				switch candidate.Status {
				case TrialStatusNew, TrialStatusInterrupted, TrialStatusSuspended:
				default:
					continue
				}
				if candidate.Status == TrialStatusInterrupted {
					if _, err := tx.UpdateTrial(candidate.ID, func(t *Trial) error {
						t.Status = TrialStatusNew
						return nil
					}); err != nil {
						return err
					}
				}
				start := s.clock.Now()
				reserved, err := tx.UpdateTrial(candidate.ID, func(t *Trial) error {
					t.Status = TrialStatusReserved
					t.WorkerID = &workerID
					t.LastWorkerID = &workerID
					t.StartTime = &start
					t.EndTime = nil // cleared on re-runs after an interrupt
					return nil
				})
				if err != nil {
					return err
				}
				acquired = &reserved
				return nil
			}
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

// reservedOnResource counts reserved trials attributed to the resource via
// their bound worker. Workers on the alias may span experiments.
func reservedOnResource(tx domain.Transaction, alias string) int {
	onAlias := make(map[string]struct{})
	experiments := make(map[string]struct{})
	for _, w := range tx.ListWorkers() {
		if w.ResourceAlias == alias {
			onAlias[w.ID] = struct{}{}
			experiments[w.ExperimentID] = struct{}{}
		}
	}
	count := 0
	for expID := range experiments {
		for _, t := range tx.ListTrialsByExperiment(expID) {
			if t.Status != TrialStatusReserved || t.WorkerID == nil {
				continue
			}
			if _, ok := onAlias[*t.WorkerID]; ok {
				count++
			}
		}
	}
	return count
}

// ReleaseTrial ends the worker's reservation, writing results and the final
// status. Only the bound worker may release; a stale worker whose
// reservation was reclaimed gets ReservationConflictError.
func (s *Service) ReleaseTrial(ctx context.Context, trialID, workerID string, finalStatus TrialStatus, results []TrialResult) (Trial, error) {
	var released Trial
	err := s.instrument(ctx, "release_trial", func(ctx context.Context) error {
		switch finalStatus {
		case TrialStatusCompleted, TrialStatusBroken, TrialStatusSuspended, TrialStatusInterrupted:
		default:
			return fmt.Errorf("cannot release trial %s to status %s", trialID, finalStatus)
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			trial, ok := tx.FindTrial(trialID)
			if !ok {
				return ErrNotFound{Entity: EntityTrial, ID: trialID}
			}
			if trial.Status != TrialStatusReserved || trial.WorkerID == nil || *trial.WorkerID != workerID {
				return ReservationConflictError{TrialID: trialID, WorkerID: workerID, Reason: "trial is not reserved by this worker"}
			}
			end := s.clock.Now()
			var err error
			released, err = tx.UpdateTrial(trialID, func(t *Trial) error {
				t.Status = finalStatus
				t.WorkerID = nil
				t.LastWorkerID = &workerID
				t.EndTime = &end
				if len(results) > 0 {
					t.Results = append([]TrialResult(nil), results...)
				}
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return Trial{}, err
	}
	return released, nil
}

// BreakTrial retires a parked trial: suspended and interrupted trials move
// to broken and are never handed out again.
func (s *Service) BreakTrial(ctx context.Context, trialID string) (Trial, error) {
	var broken Trial
	err := s.instrument(ctx, "break_trial", func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			trial, ok := tx.FindTrial(trialID)
			if !ok {
				return ErrNotFound{Entity: EntityTrial, ID: trialID}
			}
			if trial.Status != TrialStatusSuspended && trial.Status != TrialStatusInterrupted {
				return fmt.Errorf("trial %s is %s, only suspended or interrupted trials can be broken", trialID, trial.Status)
			}
			var err error
			broken, err = tx.UpdateTrial(trialID, func(t *Trial) error {
				t.Status = TrialStatusBroken
				return nil
			})
			return err
		})
		return err
	})
	if err != nil {
		return Trial{}, err
	}
	return broken, nil
}

// ReapDeadWorkers marks workers whose last heartbeat is older than ttl as
// dead and flips their reserved trials to interrupted so another worker can
// pick them up. Returns the number of workers reaped.
func (s *Service) ReapDeadWorkers(ctx context.Context, ttl time.Duration) (int, error) {
	reaped := 0
	reclaimed := 0
	err := s.instrument(ctx, "reap_dead_workers", func(ctx context.Context) error {
		cutoff := s.clock.Now().Add(-ttl)
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for _, worker := range tx.ListWorkers() {
				if worker.Status != WorkerStatusAlive || !worker.LastFound.Before(cutoff) {
					continue
				}
				if _, err := tx.UpdateWorker(worker.ID, func(w *Worker) error {
					w.Status = WorkerStatusDead
					return nil
				}); err != nil {
					return err
				}
				for _, trial := range tx.ListTrialsByExperiment(worker.ExperimentID) {
					if trial.Status != TrialStatusReserved || trial.WorkerID == nil || *trial.WorkerID != worker.ID {
						continue
					}
					if _, err := tx.UpdateTrial(trial.ID, func(t *Trial) error {
						t.Status = TrialStatusInterrupted
						t.WorkerID = nil
						return nil
					}); err != nil {
						return err
					}
					s.logger.Info("reclaimed trial from dead worker", "trial", trial.ID, "worker", worker.ID)
					reclaimed++
				}
				reaped++
			}
			return nil
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.metrics.AddEvent(ctx, EventWorkersReaped, int64(reaped))
	s.metrics.AddEvent(ctx, EventTrialsReclaimed, int64(reclaimed))
	return reaped, nil
}
