package core

import "searchcore/pkg/domain"

// NewDefaultRulesEngine returns an engine loaded with the commit-time rules
// every store should enforce: lineage integrity, trial transitions, and
// resource capacity.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LineageIntegrityRule())
	engine.Register(TrialTransitionRule())
	engine.Register(ResourceCapacityRule())
	return engine
}
