package core

import (
	"context"
	"fmt"

	"searchcore/pkg/domain"
)

// LineageIntegrityRule enforces structural constraints on the experiment
// version tree: parents exist, root ids are shared along every edge, each
// root id has exactly one root version, the tree is acyclic, and every
// adapter chain is well-formed.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	experiments := view.ListExperiments()
	index := make(map[string]ExperimentVersion, len(experiments))
	rootsPerID := make(map[string]int)
	for _, exp := range experiments {
		index[exp.ID] = exp
		if exp.IsRoot() {
			rootsPerID[exp.Refers.RootID]++
			if exp.Refers.RootID != exp.ID {
				res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("root experiment %s carries foreign root id %s", exp.ID, exp.Refers.RootID)))
			}
		}
	}

	for _, exp := range experiments {
		if err := domain.ValidateAdapterChain(exp.Refers.Adapter); err != nil {
			res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("experiment %s adapter chain: %v", exp.ID, err)))
		}
		if exp.IsRoot() {
			if len(exp.Refers.Adapter) > 0 {
				res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("root experiment %s carries an adapter chain", exp.ID)))
			}
			continue
		}
		parentID := *exp.Refers.ParentID
		if parentID == exp.ID {
			res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("experiment %s references itself as parent", exp.ID)))
			continue
		}
		parent, ok := index[parentID]
		if !ok {
			res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("experiment %s references missing parent %s", exp.ID, parentID)))
			continue
		}
		if parent.Refers.RootID != exp.Refers.RootID {
			res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("experiment %s root id %s diverges from parent %s root id %s", exp.ID, exp.Refers.RootID, parent.ID, parent.Refers.RootID)))
		}
	}

	for rootID, count := range rootsPerID {
		if count > 1 {
			res.Violations = append(res.Violations, lineageViolation(rootID, fmt.Sprintf("root id %s has %d root versions", rootID, count)))
		}
	}
	for _, exp := range experiments {
		if !exp.IsRoot() && rootsPerID[exp.Refers.RootID] == 0 {
			res.Violations = append(res.Violations, lineageViolation(exp.ID, fmt.Sprintf("root id %s has no root version", exp.Refers.RootID)))
		}
	}

	// Cycle detection over the parent edges. Nodes on a valid path to a
	// root are marked done so shared ancestry is walked once.
	done := make(map[string]bool, len(index))
	for _, exp := range experiments {
		if done[exp.ID] {
			continue
		}
		onPath := map[string]struct{}{}
		node := exp
		for {
			if done[node.ID] {
				break
			}
			if _, looping := onPath[node.ID]; looping {
				res.Violations = append(res.Violations, lineageViolation(node.ID, fmt.Sprintf("experiment %s participates in a lineage cycle", node.ID)))
				break
			}
			onPath[node.ID] = struct{}{}
			if node.Refers.ParentID == nil {
				break
			}
			next, ok := index[*node.Refers.ParentID]
			if !ok {
				break
			}
			node = next
		}
		for id := range onPath {
			done[id] = true
		}
	}

	return res, nil
}

func lineageViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityExperiment,
		EntityID: entityID,
	}
}
