package domain

import (
	"fmt"
	"reflect"
)

// AdapterKind discriminates the closed set of adapter step variants.
type AdapterKind string

// Adapter step kinds. The set is closed: pipeline application and
// validation switch exhaustively over these values.
const (
	// AdapterDimensionDeletion removes a dimension fixed at an expected value.
	AdapterDimensionDeletion AdapterKind = "dimension_deletion"
	// AdapterDimensionRenaming renames a dimension, value and type unchanged.
	AdapterDimensionRenaming AdapterKind = "dimension_renaming"
	// AdapterDimensionPriorChange narrows or reshapes a dimension's prior.
	AdapterDimensionPriorChange AdapterKind = "dimension_prior_change"
	// AdapterAlgorithmChange marks an optimizer swap; identity on parameters.
	AdapterAlgorithmChange AdapterKind = "algorithm_change"
	// AdapterCodeChange marks a user-script change with a declared impact.
	AdapterCodeChange AdapterKind = "code_change"
)

// CodeImpact grades how much a code change invalidates ancestor history.
type CodeImpact string

// Code change impact levels. "break" invalidates ancestor history entirely.
const (
	CodeImpactNoEffect CodeImpact = "noeffect"
	CodeImpactUnsure   CodeImpact = "unsure"
	CodeImpactBreak    CodeImpact = "break"
)

// Prior describes the domain of a dimension. Bounds apply to numeric
// distributions; Choices to categorical ones. Default, when set, is the
// value restored by backward adaptation of a deleted dimension.
type Prior struct {
	Distribution string   `json:"distribution"`
	Low          *float64 `json:"low,omitempty"`
	High         *float64 `json:"high,omitempty"`
	Choices      []any    `json:"choices,omitempty"`
	Default      any      `json:"default,omitempty"`
}

// Contains reports whether value lies within the prior's domain.
// A prior with neither bounds nor choices accepts everything.
func (p Prior) Contains(value any) bool {
	if len(p.Choices) > 0 {
		for _, c := range p.Choices {
			if reflect.DeepEqual(c, value) {
				return true
			}
		}
		return false
	}
	if p.Low == nil && p.High == nil {
		return true
	}
	f, ok := AsFloat(value)
	if !ok {
		return false
	}
	if p.Low != nil && f < *p.Low {
		return false
	}
	if p.High != nil && f > *p.High {
		return false
	}
	return true
}

// AsFloat normalizes numeric values across the types JSON decoding and
// callers produce. The bool reports whether value was numeric at all.
func AsFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// AdapterStep is a closed tagged variant distinguished by Kind. Only the
// fields belonging to the declared kind may be set; Validate enforces this
// at registration time so a malformed chain never reaches the pipeline.
type AdapterStep struct {
	Kind AdapterKind `json:"kind"`

	// dimension_deletion
	Name          string `json:"name,omitempty"`
	ValueType     string `json:"value_type,omitempty"`
	ExpectedValue any    `json:"expected_value,omitempty"`

	// dimension_renaming
	OldName string `json:"old_name,omitempty"`
	NewName string `json:"new_name,omitempty"`

	// dimension_prior_change
	OldPrior *Prior `json:"old_prior,omitempty"`
	NewPrior *Prior `json:"new_prior,omitempty"`

	// code_change
	Impact CodeImpact `json:"impact,omitempty"`
}

// Validate checks kind-specific required fields and rejects unknown kinds.
func (s AdapterStep) Validate() error {
	switch s.Kind {
	case AdapterDimensionDeletion:
		if s.Name == "" {
			return fmt.Errorf("dimension_deletion step requires a dimension name")
		}
	case AdapterDimensionRenaming:
		if s.OldName == "" || s.NewName == "" {
			return fmt.Errorf("dimension_renaming step requires old_name and new_name")
		}
		if s.OldName == s.NewName {
			return fmt.Errorf("dimension_renaming step renames %q to itself", s.OldName)
		}
	case AdapterDimensionPriorChange:
		if s.Name == "" {
			return fmt.Errorf("dimension_prior_change step requires a dimension name")
		}
		if s.NewPrior == nil {
			return fmt.Errorf("dimension_prior_change step for %q requires new_prior", s.Name)
		}
	case AdapterAlgorithmChange:
		// metadata marker, nothing to check
	case AdapterCodeChange:
		switch s.Impact {
		case CodeImpactNoEffect, CodeImpactUnsure, CodeImpactBreak:
		default:
			return fmt.Errorf("code_change step has unknown impact %q", s.Impact)
		}
	default:
		return fmt.Errorf("unknown adapter step kind %q", s.Kind)
	}
	return nil
}

// ValidateAdapterChain validates every step of an ordered adapter chain.
func ValidateAdapterChain(steps []AdapterStep) error {
	for i, step := range steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("adapter step %d: %w", i, err)
		}
	}
	return nil
}
