package core

import (
	"context"
	"fmt"

	"searchcore/pkg/domain"
)

// allowedTransitions is the closed trial status transition table. A status
// maps to the set of statuses it may move to; absent pairs are illegal and
// terminal statuses map to nothing.
var allowedTransitions = map[TrialStatus]map[TrialStatus]struct{}{
	TrialStatusNew: {
		TrialStatusReserved: {},
	},
	TrialStatusReserved: {
		TrialStatusCompleted:   {},
		TrialStatusBroken:      {},
		TrialStatusSuspended:   {},
		TrialStatusInterrupted: {},
	},
	TrialStatusSuspended: {
		TrialStatusReserved: {},
		TrialStatusBroken:   {},
	},
	TrialStatusInterrupted: {
		TrialStatusNew:    {},
		TrialStatusBroken: {},
	},
	TrialStatusCompleted: {},
	TrialStatusBroken:    {},
}

// TrialTransitionRule enforces the trial state machine on every commit:
// trials are born new, move only along the transition table, keep their
// worker binding consistent with their status, and keep submit, start, and
// end times ordered.
func TrialTransitionRule() domain.Rule {
	return trialTransitionRule{}
}

type trialTransitionRule struct{}

func (trialTransitionRule) Name() string { return "trial_transition" }

func (trialTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	for _, change := range changes {
		if change.Entity != domain.EntityTrial {
			continue
		}
		switch change.Action {
		case domain.ActionCreate:
			after, ok := change.After.(Trial)
			if !ok {
				continue
			}
			if after.Status != TrialStatusNew {
				res.Violations = append(res.Violations, transitionViolation(after.ID, fmt.Sprintf("trial %s created with status %s, must start as %s", after.ID, after.Status, TrialStatusNew)))
			}
			checkTrialShape(&res, after)
		case domain.ActionUpdate:
			before, okB := change.Before.(Trial)
			after, okA := change.After.(Trial)
			if !okB || !okA {
				continue
			}
			if before.Status != after.Status {
				if _, legal := allowedTransitions[before.Status][after.Status]; !legal {
					res.Violations = append(res.Violations, transitionViolation(after.ID, fmt.Sprintf("trial %s illegal transition %s -> %s", after.ID, before.Status, after.Status)))
				}
			}
			checkTrialShape(&res, after)
		case domain.ActionDelete:
			id := ""
			if before, ok := change.Before.(Trial); ok {
				id = before.ID
			}
			res.Violations = append(res.Violations, transitionViolation(id, "trials are never deleted"))
		}
	}

	return res, nil
}

func checkTrialShape(res *domain.Result, trial Trial) {
	if trial.Status == TrialStatusReserved {
		if trial.WorkerID == nil || *trial.WorkerID == "" {
			res.Violations = append(res.Violations, transitionViolation(trial.ID, fmt.Sprintf("reserved trial %s has no worker binding", trial.ID)))
		}
	} else if trial.WorkerID != nil {
		res.Violations = append(res.Violations, transitionViolation(trial.ID, fmt.Sprintf("trial %s in status %s still bound to worker %s", trial.ID, trial.Status, *trial.WorkerID)))
	}
	if trial.StartTime != nil && trial.StartTime.Before(trial.SubmitTime) {
		res.Violations = append(res.Violations, transitionViolation(trial.ID, fmt.Sprintf("trial %s start time precedes submit time", trial.ID)))
	}
	if trial.EndTime != nil {
		if trial.StartTime == nil {
			res.Violations = append(res.Violations, transitionViolation(trial.ID, fmt.Sprintf("trial %s has end time without start time", trial.ID)))
		} else if trial.EndTime.Before(*trial.StartTime) {
			res.Violations = append(res.Violations, transitionViolation(trial.ID, fmt.Sprintf("trial %s end time precedes start time", trial.ID)))
		}
	}
}

func transitionViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "trial_transition",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityTrial,
		EntityID: entityID,
	}
}
