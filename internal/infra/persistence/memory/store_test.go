package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"searchcore/pkg/domain"
)

func newExperiment(name string) ExperimentVersion {
	return ExperimentVersion{
		Base:    domain.Base{ID: name},
		Name:    name,
		Version: 1,
		Refers:  domain.Refers{RootID: name},
		Status:  domain.ExperimentStatusPending,
	}
}

func TestStoreCreateAndFindExperiment(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		created, err := tx.CreateExperiment(newExperiment("exp-a"))
		if err != nil {
			return err
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Fatalf("timestamps not assigned: %+v", created.Base)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	if _, ok := store.GetExperiment("exp-a"); !ok {
		t.Fatalf("experiment not committed")
	}
	if _, ok := store.GetExperiment("exp-b"); ok {
		t.Fatalf("unexpected experiment")
	}
}

func TestStoreRollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateExperiment(newExperiment("exp-a")); err != nil {
			return err
		}
		return fmt.Errorf("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := store.GetExperiment("exp-a"); ok {
		t.Fatalf("failed transaction must not commit")
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }

func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for range changes {
		res.Violations = append(res.Violations, domain.Violation{Rule: "block_everything", Severity: domain.SeverityBlock, Message: "nope"})
	}
	return res, nil
}

func TestStoreBlockingRulePreventsCommit(t *testing.T) {
	ctx := context.Background()
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	store := NewStore(engine)

	res, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateExperiment(newExperiment("exp-a"))
		return err
	})
	if err == nil {
		t.Fatalf("expected rule violation error")
	}
	if _, ok := err.(domain.RuleViolationError); !ok {
		t.Fatalf("expected RuleViolationError, got %T", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if _, ok := store.GetExperiment("exp-a"); ok {
		t.Fatalf("blocked transaction must not commit")
	}
}

func TestStoreTrialSequenceAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateExperiment(newExperiment("exp-a")); err != nil {
			return err
		}
		// same submit time: sequence breaks the tie
		for i := 0; i < 3; i++ {
			if _, err := tx.CreateTrial(Trial{
				Base:         domain.Base{ID: fmt.Sprintf("t%d", i)},
				ExperimentID: "exp-a",
				Status:       domain.TrialStatusNew,
				SubmitTime:   base,
			}); err != nil {
				return err
			}
		}
		// earlier submit time sorts first despite later sequence
		_, err := tx.CreateTrial(Trial{
			Base:         domain.Base{ID: "early"},
			ExperimentID: "exp-a",
			Status:       domain.TrialStatusNew,
			SubmitTime:   base.Add(-time.Hour),
		})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	trials := store.ListTrialsByExperiment("exp-a")
	if len(trials) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(trials))
	}
	if trials[0].ID != "early" {
		t.Fatalf("earliest submit time should sort first, got %s", trials[0].ID)
	}
	for i := 1; i < 3; i++ {
		if trials[i].Seq >= trials[i+1].Seq {
			t.Fatalf("sequence must break submit-time ties: %d >= %d", trials[i].Seq, trials[i+1].Seq)
		}
	}
}

func TestStoreUpdateTrialPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateExperiment(newExperiment("exp-a")); err != nil {
			return err
		}
		created, err := tx.CreateTrial(Trial{Base: domain.Base{ID: "t1"}, ExperimentID: "exp-a", Status: domain.TrialStatusNew})
		if err != nil {
			return err
		}
		updated, err := tx.UpdateTrial("t1", func(tr *Trial) error {
			tr.ExperimentID = "elsewhere"
			tr.Seq = 99
			tr.Status = domain.TrialStatusNew
			return nil
		})
		if err != nil {
			return err
		}
		if updated.ExperimentID != "exp-a" || updated.Seq != created.Seq {
			t.Fatalf("trial identity must be immutable: %+v", updated)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestStoreResourceRequiresPositiveCap(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateResource(Resource{Base: domain.Base{ID: "r1"}, Alias: "gpu", MaxConcurrent: 0})
		return err
	})
	if err == nil {
		t.Fatalf("expected error for non-positive max_concurrent")
	}

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateResource(Resource{Base: domain.Base{ID: "r1"}, Alias: "gpu", MaxConcurrent: 2})
		return err
	}); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	if _, ok := store.GetResource("gpu"); !ok {
		t.Fatalf("resource keyed by alias")
	}
}

func TestStoreCloneIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateExperiment(newExperiment("exp-a")); err != nil {
			return err
		}
		_, err := tx.CreateTrial(Trial{
			Base:         domain.Base{ID: "t1"},
			ExperimentID: "exp-a",
			Status:       domain.TrialStatusNew,
			Params:       []domain.Param{{Name: "lr", Type: "real", Value: 0.1}},
		})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	got, _ := store.GetTrial("t1")
	got.Params[0].Value = 0.9

	again, _ := store.GetTrial("t1")
	if again.Params[0].Value != 0.1 {
		t.Fatalf("caller mutation leaked into store state")
	}
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(domain.NewRulesEngine())

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.CreateExperiment(newExperiment("exp-a")); err != nil {
			return err
		}
		if _, err := tx.CreateTrial(Trial{Base: domain.Base{ID: "t1"}, ExperimentID: "exp-a", Status: domain.TrialStatusNew}); err != nil {
			return err
		}
		if _, err := tx.CreateWorker(Worker{Base: domain.Base{ID: "w1"}, ExperimentID: "exp-a", Role: domain.WorkerRoleAll, Status: domain.WorkerStatusAlive}); err != nil {
			return err
		}
		_, err := tx.CreateResource(Resource{Base: domain.Base{ID: "r1"}, Alias: "gpu", MaxConcurrent: 1})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	snap := store.ExportState()
	restored := NewStore(domain.NewRulesEngine())
	restored.ImportState(snap)

	if _, ok := restored.GetExperiment("exp-a"); !ok {
		t.Fatalf("experiment lost in round trip")
	}
	if _, ok := restored.GetWorker("w1"); !ok {
		t.Fatalf("worker lost in round trip")
	}
	if _, ok := restored.GetResource("gpu"); !ok {
		t.Fatalf("resource lost in round trip")
	}

	// new trials continue the sequence after restore
	_, err = restored.RunInTransaction(ctx, func(tx Transaction) error {
		created, err := tx.CreateTrial(Trial{Base: domain.Base{ID: "t2"}, ExperimentID: "exp-a", Status: domain.TrialStatusNew})
		if err != nil {
			return err
		}
		prev, _ := tx.FindTrial("t1")
		if created.Seq <= prev.Seq {
			t.Fatalf("restored store reused sequence numbers: %d <= %d", created.Seq, prev.Seq)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction after import: %v", err)
	}
}
