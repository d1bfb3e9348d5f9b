package core

import (
	"context"
	"testing"
	"time"

	"searchcore/pkg/domain"
)

func evaluateTransition(t *testing.T, changes []Change) Result {
	t.Helper()
	res, err := TrialTransitionRule().Evaluate(context.Background(), nil, changes)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return res
}

func trialInStatus(id string, status TrialStatus) Trial {
	tr := Trial{Base: domain.Base{ID: id}, ExperimentID: "exp", Status: status, SubmitTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	if status == TrialStatusReserved {
		w := "w1"
		tr.WorkerID = &w
		start := tr.SubmitTime.Add(time.Minute)
		tr.StartTime = &start
	}
	return tr
}

func updateChange(before, after Trial) Change {
	return Change{Entity: EntityTrial, Action: ActionUpdate, Before: before, After: after}
}

func TestTrialTransitionTable(t *testing.T) {
	legal := [][2]TrialStatus{
		{TrialStatusNew, TrialStatusReserved},
		{TrialStatusReserved, TrialStatusCompleted},
		{TrialStatusReserved, TrialStatusBroken},
		{TrialStatusReserved, TrialStatusSuspended},
		{TrialStatusReserved, TrialStatusInterrupted},
		{TrialStatusSuspended, TrialStatusReserved},
		{TrialStatusSuspended, TrialStatusBroken},
		{TrialStatusInterrupted, TrialStatusNew},
		{TrialStatusInterrupted, TrialStatusBroken},
	}
	for _, pair := range legal {
		res := evaluateTransition(t, []Change{updateChange(trialInStatus("t1", pair[0]), trialInStatus("t1", pair[1]))})
		if len(res.Violations) != 0 {
			t.Fatalf("%s -> %s should be legal: %+v", pair[0], pair[1], res.Violations)
		}
	}

	illegal := [][2]TrialStatus{
		{TrialStatusNew, TrialStatusCompleted},
		{TrialStatusNew, TrialStatusSuspended},
		{TrialStatusCompleted, TrialStatusNew},
		{TrialStatusCompleted, TrialStatusReserved},
		{TrialStatusBroken, TrialStatusNew},
		{TrialStatusSuspended, TrialStatusNew},
		{TrialStatusInterrupted, TrialStatusReserved},
	}
	for _, pair := range illegal {
		res := evaluateTransition(t, []Change{updateChange(trialInStatus("t1", pair[0]), trialInStatus("t1", pair[1]))})
		if !res.HasBlocking() {
			t.Fatalf("%s -> %s must block", pair[0], pair[1])
		}
	}
}

func TestTrialTransitionCreateMustBeNew(t *testing.T) {
	res := evaluateTransition(t, []Change{{Entity: EntityTrial, Action: ActionCreate, After: trialInStatus("t1", TrialStatusReserved)}})
	if !res.HasBlocking() {
		t.Fatalf("trials must be born new")
	}
	res = evaluateTransition(t, []Change{{Entity: EntityTrial, Action: ActionCreate, After: trialInStatus("t1", TrialStatusNew)}})
	if len(res.Violations) != 0 {
		t.Fatalf("creating a new trial is legal: %+v", res.Violations)
	}
}

func TestTrialTransitionDeleteForbidden(t *testing.T) {
	res := evaluateTransition(t, []Change{{Entity: EntityTrial, Action: ActionDelete, Before: trialInStatus("t1", TrialStatusBroken)}})
	if !res.HasBlocking() {
		t.Fatalf("trial deletion must block")
	}
}

func TestTrialTransitionWorkerBindingShape(t *testing.T) {
	// reserved without a binding
	unbound := trialInStatus("t1", TrialStatusReserved)
	unbound.WorkerID = nil
	res := evaluateTransition(t, []Change{updateChange(trialInStatus("t1", TrialStatusNew), unbound)})
	if !res.HasBlocking() {
		t.Fatalf("reserved trial without worker must block")
	}

	// completed while still bound
	done := trialInStatus("t1", TrialStatusReserved)
	done.Status = TrialStatusCompleted
	res = evaluateTransition(t, []Change{updateChange(trialInStatus("t1", TrialStatusReserved), done)})
	if !res.HasBlocking() {
		t.Fatalf("released trial keeping its binding must block")
	}
}

func TestTrialTransitionTimeOrdering(t *testing.T) {
	before := trialInStatus("t1", TrialStatusNew)

	after := trialInStatus("t1", TrialStatusReserved)
	early := after.SubmitTime.Add(-time.Minute)
	after.StartTime = &early
	res := evaluateTransition(t, []Change{updateChange(before, after)})
	if !res.HasBlocking() {
		t.Fatalf("start before submit must block")
	}

	finished := trialInStatus("t1", TrialStatusReserved)
	finished.Status = TrialStatusCompleted
	finished.WorkerID = nil
	end := finished.StartTime.Add(-time.Minute)
	finished.EndTime = &end
	res = evaluateTransition(t, []Change{updateChange(trialInStatus("t1", TrialStatusReserved), finished)})
	if !res.HasBlocking() {
		t.Fatalf("end before start must block")
	}
}

func TestTrialTransitionIgnoresOtherEntities(t *testing.T) {
	res := evaluateTransition(t, []Change{{Entity: EntityWorker, Action: ActionUpdate}})
	if len(res.Violations) != 0 {
		t.Fatalf("worker changes are out of scope: %+v", res.Violations)
	}
}
