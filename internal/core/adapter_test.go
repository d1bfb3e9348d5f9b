package core

import (
	"reflect"
	"testing"

	"searchcore/pkg/domain"
)

func floatPtr(v float64) *float64 { return &v }

func trialWithParams(params ...Param) Trial {
	return Trial{Base: domain.Base{ID: "t1"}, ExperimentID: "exp", Status: TrialStatusCompleted, Params: params}
}

func TestAdaptForwardDimensionDeletion(t *testing.T) {
	steps := []AdapterStep{{Kind: AdapterDimensionDeletion, Name: "dropout", ValueType: "real", ExpectedValue: 0.5}}

	matching := trialWithParams(Param{Name: "dropout", Type: "real", Value: 0.5}, Param{Name: "lr", Type: "real", Value: 0.01})
	adapted, ok := AdaptForward(matching, steps)
	if !ok {
		t.Fatalf("trial at the expected value should adapt")
	}
	if len(adapted.Params) != 1 || adapted.Params[0].Name != "lr" {
		t.Fatalf("deleted dimension should be removed: %+v", adapted.Params)
	}

	offValue := trialWithParams(Param{Name: "dropout", Type: "real", Value: 0.3})
	if _, ok := AdaptForward(offValue, steps); ok {
		t.Fatalf("trial off the expected value is inapplicable")
	}

	missing := trialWithParams(Param{Name: "lr", Type: "real", Value: 0.01})
	adapted, ok = AdaptForward(missing, steps)
	if !ok {
		t.Fatalf("deleting an absent dimension is a no-op, not an exclusion")
	}
	if !reflect.DeepEqual(adapted.Params, missing.Params) {
		t.Fatalf("no-op deletion must leave params untouched: %+v", adapted.Params)
	}
}

func TestAdaptForwardDimensionRenaming(t *testing.T) {
	steps := []AdapterStep{{Kind: AdapterDimensionRenaming, OldName: "lr", NewName: "learning_rate"}}

	adapted, ok := AdaptForward(trialWithParams(Param{Name: "lr", Type: "real", Value: 0.01}), steps)
	if !ok {
		t.Fatalf("rename should apply")
	}
	if adapted.Params[0].Name != "learning_rate" || adapted.Params[0].Value != 0.01 {
		t.Fatalf("rename must keep value: %+v", adapted.Params[0])
	}

	untouched := trialWithParams(Param{Name: "momentum", Type: "real", Value: 0.9})
	adapted, ok = AdaptForward(untouched, steps)
	if !ok {
		t.Fatalf("renaming an absent dimension is a no-op, not an exclusion")
	}
	if !reflect.DeepEqual(adapted.Params, untouched.Params) {
		t.Fatalf("no-op rename must leave params untouched: %+v", adapted.Params)
	}
}

func TestAdaptForwardAbsentDimensionsAreNoOps(t *testing.T) {
	steps := []AdapterStep{
		{Kind: AdapterDimensionDeletion, Name: "dropout", ValueType: "real", ExpectedValue: 0.5},
		{Kind: AdapterDimensionRenaming, OldName: "momentum", NewName: "beta1"},
	}
	trial := trialWithParams(Param{Name: "lr", Type: "real", Value: 0.01})

	adapted, ok := AdaptForward(trial, steps)
	if !ok {
		t.Fatalf("steps over absent dimensions must not exclude the trial")
	}
	if len(adapted.Params) != 1 || adapted.Params[0].Name != "lr" || adapted.Params[0].Value != 0.01 {
		t.Fatalf("params must pass through untouched: %+v", adapted.Params)
	}
}

func TestAdaptForwardPriorChangeExcludesNeverClamps(t *testing.T) {
	steps := []AdapterStep{{
		Kind:     AdapterDimensionPriorChange,
		Name:     "lr",
		OldPrior: &Prior{Distribution: "uniform", Low: floatPtr(0), High: floatPtr(1)},
		NewPrior: &Prior{Distribution: "uniform", Low: floatPtr(0), High: floatPtr(0.1)},
	}}

	inside, ok := AdaptForward(trialWithParams(Param{Name: "lr", Type: "real", Value: 0.05}), steps)
	if !ok {
		t.Fatalf("value inside new prior should adapt")
	}
	if inside.Params[0].Value != 0.05 {
		t.Fatalf("prior change must not alter values")
	}

	if _, ok := AdaptForward(trialWithParams(Param{Name: "lr", Type: "real", Value: 0.5}), steps); ok {
		t.Fatalf("value outside new prior must be excluded, not clamped")
	}
}

func TestAdaptForwardCodeChange(t *testing.T) {
	trial := trialWithParams(Param{Name: "lr", Type: "real", Value: 0.01})

	for _, impact := range []CodeImpact{CodeImpactNoEffect, CodeImpactUnsure} {
		adapted, ok := AdaptForward(trial, []AdapterStep{{Kind: AdapterCodeChange, Impact: impact}})
		if !ok {
			t.Fatalf("impact %s should be identity", impact)
		}
		if !reflect.DeepEqual(adapted.Params, trial.Params) {
			t.Fatalf("impact %s must not alter params", impact)
		}
	}

	if _, ok := AdaptForward(trial, []AdapterStep{{Kind: AdapterCodeChange, Impact: CodeImpactBreak}}); ok {
		t.Fatalf("break impact invalidates the trial")
	}
}

func TestAdaptForwardDeterministic(t *testing.T) {
	steps := []AdapterStep{
		{Kind: AdapterDimensionRenaming, OldName: "lr", NewName: "learning_rate"},
		{Kind: AdapterDimensionDeletion, Name: "dropout", ExpectedValue: 0.5},
		{Kind: AdapterAlgorithmChange},
	}
	trial := trialWithParams(
		Param{Name: "lr", Type: "real", Value: 0.01},
		Param{Name: "dropout", Type: "real", Value: 0.5},
	)

	first, ok1 := AdaptForward(trial, steps)
	second, ok2 := AdaptForward(trial, steps)
	if !ok1 || !ok2 || !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs must produce identical outputs")
	}
	if len(trial.Params) != 2 {
		t.Fatalf("input trial must not be mutated")
	}
}

func TestAdaptBackwardInvertsInReverseOrder(t *testing.T) {
	steps := []AdapterStep{
		{Kind: AdapterDimensionDeletion, Name: "dropout", ValueType: "real", ExpectedValue: 0.5},
		{Kind: AdapterDimensionRenaming, OldName: "lr", NewName: "learning_rate"},
	}

	params := []Param{{Name: "learning_rate", Type: "real", Value: 0.01}}
	back, ok := AdaptBackward(params, steps)
	if !ok {
		t.Fatalf("backward should apply")
	}
	byName := map[string]Param{}
	for _, p := range back {
		byName[p.Name] = p
	}
	if p, ok := byName["lr"]; !ok || p.Value != 0.01 {
		t.Fatalf("rename not inverted: %+v", back)
	}
	if p, ok := byName["dropout"]; !ok || p.Value != 0.5 {
		t.Fatalf("deletion not restored: %+v", back)
	}
}

func TestAdaptBackwardInapplicable(t *testing.T) {
	rename := []AdapterStep{{Kind: AdapterDimensionRenaming, OldName: "lr", NewName: "learning_rate"}}
	if _, ok := AdaptBackward([]Param{{Name: "momentum", Value: 0.9}}, rename); ok {
		t.Fatalf("backward rename without new name is inapplicable")
	}

	deletion := []AdapterStep{{Kind: AdapterDimensionDeletion, Name: "dropout", ExpectedValue: 0.5}}
	if _, ok := AdaptBackward([]Param{{Name: "dropout", Value: 0.5}}, deletion); ok {
		t.Fatalf("backward deletion with dimension already present is inapplicable")
	}
}

func TestChainBreaksHistory(t *testing.T) {
	if ChainBreaksHistory([]AdapterStep{{Kind: AdapterCodeChange, Impact: CodeImpactUnsure}}) {
		t.Fatalf("unsure impact does not break history")
	}
	if !ChainBreaksHistory([]AdapterStep{{Kind: AdapterAlgorithmChange}, {Kind: AdapterCodeChange, Impact: CodeImpactBreak}}) {
		t.Fatalf("break impact breaks history")
	}
}
