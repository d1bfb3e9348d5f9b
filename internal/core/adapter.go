package core

import (
	"reflect"

	"searchcore/pkg/domain"
)

// AdaptForward maps a trial from an ancestor's parameter space into the
// descendant's space by applying the adapter steps in order. The second
// return value reports applicability: an inapplicable trial is simply
// excluded from adapted history, it is never altered to fit. The input trial
// is not mutated.
func AdaptForward(trial Trial, steps []AdapterStep) (Trial, bool) {
	out := trial
	out.Params = append([]Param(nil), trial.Params...)

	for _, step := range steps {
		switch step.Kind {
		case AdapterDimensionDeletion:
			idx := paramIndex(out.Params, step.Name)
			if idx < 0 {
				continue // dimension already absent, nothing to delete
			}
			if step.ExpectedValue != nil && !valuesEqual(out.Params[idx].Value, step.ExpectedValue) {
				return Trial{}, false
			}
			out.Params = append(out.Params[:idx:idx], out.Params[idx+1:]...)
		case AdapterDimensionRenaming:
			idx := paramIndex(out.Params, step.OldName)
			if idx < 0 {
				continue // old name absent, nothing to rename
			}
			out.Params[idx].Name = step.NewName
		case AdapterDimensionPriorChange:
			idx := paramIndex(out.Params, step.Name)
			if idx < 0 {
				return Trial{}, false
			}
			if step.NewPrior == nil || !step.NewPrior.Contains(out.Params[idx].Value) {
				return Trial{}, false
			}
		case AdapterAlgorithmChange:
			// identity on parameters
		case AdapterCodeChange:
			if step.Impact == CodeImpactBreak {
				return Trial{}, false
			}
		default:
			return Trial{}, false
		}
	}
	return out, true
}

// AdaptBackward maps a parameter vector from the descendant's space back into
// the ancestor's space by inverting the steps in reverse order. Prior,
// algorithm, and code changes are identity in this direction. The second
// return value reports applicability.
func AdaptBackward(params []Param, steps []AdapterStep) ([]Param, bool) {
	out := append([]Param(nil), params...)

	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		switch step.Kind {
		case AdapterDimensionDeletion:
			if paramIndex(out, step.Name) >= 0 {
				return nil, false
			}
			out = append(out, Param{Name: step.Name, Type: step.ValueType, Value: step.ExpectedValue})
		case AdapterDimensionRenaming:
			idx := paramIndex(out, step.NewName)
			if idx < 0 {
				return nil, false
			}
			out[idx].Name = step.OldName
		case AdapterDimensionPriorChange, AdapterAlgorithmChange, AdapterCodeChange:
			// identity
		default:
			return nil, false
		}
	}
	return out, true
}

// ChainBreaksHistory reports whether the composed chain contains a code
// change with break impact, which invalidates everything upstream of it.
func ChainBreaksHistory(steps []AdapterStep) bool {
	for _, step := range steps {
		if step.Kind == AdapterCodeChange && step.Impact == CodeImpactBreak {
			return true
		}
	}
	return false
}

func paramIndex(params []Param, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := domain.AsFloat(a)
	bf, bok := domain.AsFloat(b)
	return aok && bok && af == bf
}
