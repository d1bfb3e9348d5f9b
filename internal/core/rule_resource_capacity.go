package core

import (
	"context"
	"fmt"

	"searchcore/pkg/domain"
)

// ResourceCapacityRule blocks commits that would leave a resource with more
// reserved trials than its concurrency cap. Reservations are attributed to a
// resource through the bound worker's resource alias.
func ResourceCapacityRule() domain.Rule {
	return resourceCapacityRule{}
}

type resourceCapacityRule struct{}

func (resourceCapacityRule) Name() string { return "resource_capacity" }

func (resourceCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	workers := view.ListWorkers()
	workerResource := make(map[string]string, len(workers))
	for _, w := range workers {
		if w.ResourceAlias != "" {
			workerResource[w.ID] = w.ResourceAlias
		}
	}

	reserved := make(map[string]int)
	for _, trial := range view.ListTrials() {
		if trial.Status != domain.TrialStatusReserved || trial.WorkerID == nil {
			continue
		}
		if alias, ok := workerResource[*trial.WorkerID]; ok {
			reserved[alias]++
		}
	}

	for alias, count := range reserved {
		resource, ok := view.FindResource(alias)
		if !ok {
			res.Violations = append(res.Violations, capacityViolation(alias, fmt.Sprintf("reserved trials reference unknown resource %s", alias)))
			continue
		}
		if count > resource.MaxConcurrent {
			res.Violations = append(res.Violations, capacityViolation(alias, fmt.Sprintf("resource %s holds %d reserved trials, cap is %d", alias, count, resource.MaxConcurrent)))
		}
	}

	return res, nil
}

func capacityViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "resource_capacity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityResource,
		EntityID: entityID,
	}
}
