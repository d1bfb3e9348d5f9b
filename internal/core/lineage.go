package core

import (
	"searchcore/pkg/domain"
)

// maxLineageDepth bounds the root-ward walk so a corrupted parent chain
// cannot loop forever even before the integrity rule catches it.
const maxLineageDepth = 1024

// AncestorEntry pairs an ancestor version with the adapter chain composed
// along the path from that ancestor down to the experiment the walk started
// from. Applying the chain to one of the ancestor's trials yields the trial
// expressed in the starting experiment's space.
type AncestorEntry struct {
	Experiment ExperimentVersion
	Chain      []AdapterStep
}

// History is the result of assembling adapted ancestor trials.
type History struct {
	// Trials holds applicable ancestor trials adapted into the current
	// space, nearest ancestor first, submit order within each ancestor.
	Trials []Trial
	// Skipped counts trials excluded because a step was inapplicable.
	Skipped int
	// Invalidated lists ancestor experiment ids cut off by a breaking
	// code change in the composed chain.
	Invalidated []string
}

// AncestorChain walks root-ward from the given experiment and returns one
// entry per proper ancestor, nearest first, each carrying the composed
// adapter chain into the starting experiment's space. A missing parent,
// a root id mismatch, or a cycle yields CorruptLineageError.
func AncestorChain(view domain.TransactionView, experimentID string) ([]AncestorEntry, error) {
	current, ok := view.FindExperiment(experimentID)
	if !ok {
		return nil, ErrNotFound{Entity: EntityExperiment, ID: experimentID}
	}

	visited := map[string]struct{}{current.ID: {}}
	var chain []AdapterStep
	var out []AncestorEntry

	for depth := 0; current.Refers.ParentID != nil; depth++ {
		if depth >= maxLineageDepth {
			return nil, CorruptLineageError{ExperimentID: current.ID, Reason: "ancestor chain exceeds depth bound"}
		}
		parentID := *current.Refers.ParentID
		parent, ok := view.FindExperiment(parentID)
		if !ok {
			return nil, CorruptLineageError{ExperimentID: current.ID, Reason: "parent " + parentID + " does not exist"}
		}
		if _, seen := visited[parent.ID]; seen {
			return nil, CorruptLineageError{ExperimentID: parent.ID, Reason: "cycle in version tree"}
		}
		if parent.Refers.RootID != current.Refers.RootID {
			return nil, CorruptLineageError{ExperimentID: current.ID, Reason: "root id diverges from parent " + parent.ID}
		}
		visited[parent.ID] = struct{}{}

		// current's adapter maps parent space into current space; it is
		// applied first, then the chain accumulated so far.
		composed := make([]AdapterStep, 0, len(current.Refers.Adapter)+len(chain))
		composed = append(composed, current.Refers.Adapter...)
		composed = append(composed, chain...)
		chain = composed

		out = append(out, AncestorEntry{Experiment: parent, Chain: chain})
		current = parent
	}
	return out, nil
}

// AssembleHistory adapts the completed trials of every reachable ancestor
// into the experiment's space. Ancestors above a breaking code change are
// invalidated and reported, not walked.
func AssembleHistory(view domain.TransactionView, experimentID string) (History, error) {
	ancestors, err := AncestorChain(view, experimentID)
	if err != nil {
		return History{}, err
	}

	var hist History
	for i, entry := range ancestors {
		if ChainBreaksHistory(entry.Chain) {
			for _, cut := range ancestors[i:] {
				hist.Invalidated = append(hist.Invalidated, cut.Experiment.ID)
			}
			break
		}
		for _, trial := range view.ListTrialsByExperiment(entry.Experiment.ID) {
			if trial.Status != TrialStatusCompleted {
				continue
			}
			adapted, ok := AdaptForward(trial, entry.Chain)
			if !ok {
				hist.Skipped++
				continue
			}
			hist.Trials = append(hist.Trials, adapted)
		}
	}
	return hist, nil
}
