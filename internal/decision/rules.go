package decision

// Rule names. Exposed as constants so callers can interpret factor scores
// and dominant factors without string literals.
const (
	RuleSafety               = "safety"
	RuleEfficiency           = "efficiency"
	RuleUserPreference       = "user_preference"
	RuleResourceOptimization = "resource_optimization"
	RuleLearningOpportunity  = "learning_opportunity"
)

// rule is one weighted evaluation criterion. Each evaluator returns a value
// in [0,1].
type rule struct {
	name   string
	weight float64
	eval   func(e *Engine, opt Option, ctx Context) float64
}

// buildRuleTable constructs the fixed rule set. The table is data, not a
// dispatch switch: iteration order is table order, which also resolves
// dominant-factor ties deterministically.
func buildRuleTable() []rule {
	return []rule{
		{
			name:   RuleSafety,
			weight: 0.9,
			eval: func(_ *Engine, opt Option, _ Context) float64 {
				return clamp01(opt.SafetyLevel - float64(len(opt.RiskFactors))*0.1)
			},
		},
		{
			name:   RuleEfficiency,
			weight: 0.8,
			eval: func(_ *Engine, opt Option, _ Context) float64 {
				denom := opt.TimeCost + opt.ResourceCost
				if denom <= 0 {
					return neutralScore
				}
				return clamp01(opt.ExpectedBenefit / denom / 2.0)
			},
		},
		{
			name:   RuleUserPreference,
			weight: 0.7,
			eval: func(e *Engine, opt Option, _ Context) float64 {
				return clamp01((opt.UserAlignment + e.historicalPreference(opt.Type)) / 2.0)
			},
		},
		{
			name:   RuleResourceOptimization,
			weight: 0.6,
			eval: func(_ *Engine, opt Option, ctx Context) float64 {
				cpuScore := 1.0 - opt.CPUCost/ctx.available("cpu")
				memScore := 1.0 - opt.MemoryCost/ctx.available("memory")
				return clamp01((cpuScore + memScore) / 2.0)
			},
		},
		{
			name:   RuleLearningOpportunity,
			weight: 0.5,
			eval: func(_ *Engine, opt Option, _ Context) float64 {
				return clamp01((opt.Novelty + opt.LearningValue) / 2.0)
			},
		},
	}
}
