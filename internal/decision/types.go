// Package decision implements the multi-criteria decision engine.
//
// Candidate options are scored by a fixed table of weighted rules; the
// highest-scoring option is selected, with ties broken by input order.
// Reported outcomes refine a per-type learning factor that nudges future
// scores by a small bonus.
package decision

import (
	"time"
)

// Option is a candidate action. Immutable once submitted to Decide.
//
// Zero-valued fields are treated as unset and replaced by the engine's
// neutral defaults during evaluation (see withDefaults), so an Option built
// with only Type and the cost fields evaluates the same as one that spells
// everything out.
type Option struct {
	Type            string   `json:"type"`
	TimeCost        float64  `json:"time_cost"`
	ResourceCost    float64  `json:"resource_cost"`
	ExpectedBenefit float64  `json:"expected_benefit"`
	SafetyLevel     float64  `json:"safety_level"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	UserAlignment   float64  `json:"user_alignment"`
	Novelty         float64  `json:"novelty"`
	LearningValue   float64  `json:"learning_value"`
	CPUCost         float64  `json:"cpu_cost"`
	MemoryCost      float64  `json:"memory_cost"`
}

// Evaluation defaults, matching the historical behavior of the engine.
const (
	defaultSafetyLevel     = 0.8
	defaultTimeCost        = 1.0
	defaultResourceCost    = 1.0
	defaultBenefit         = 1.0
	defaultUserAlignment   = 0.7
	defaultNovelty         = 0.5
	defaultLearningValue   = 0.5
	defaultCPUCost         = 0.5
	defaultMemoryCost      = 0.5
	defaultAvailable       = 0.8
	defaultHistoricalPref  = 0.7
	neutralScore           = 0.5
	learningBonusScale     = 0.1
)

func (o Option) withDefaults() Option {
	if o.SafetyLevel == 0 {
		o.SafetyLevel = defaultSafetyLevel
	}
	if o.TimeCost == 0 {
		o.TimeCost = defaultTimeCost
	}
	if o.ResourceCost == 0 {
		o.ResourceCost = defaultResourceCost
	}
	if o.ExpectedBenefit == 0 {
		o.ExpectedBenefit = defaultBenefit
	}
	if o.UserAlignment == 0 {
		o.UserAlignment = defaultUserAlignment
	}
	if o.Novelty == 0 {
		o.Novelty = defaultNovelty
	}
	if o.LearningValue == 0 {
		o.LearningValue = defaultLearningValue
	}
	if o.CPUCost == 0 {
		o.CPUCost = defaultCPUCost
	}
	if o.MemoryCost == 0 {
		o.MemoryCost = defaultMemoryCost
	}
	return o
}

// Context supplies per-decision inputs.
type Context struct {
	UserPreferences    map[string]float64 `json:"user_preferences,omitempty"`
	AvailableResources map[string]float64 `json:"available_resources,omitempty"`
}

func (c Context) available(resource string) float64 {
	if v, ok := c.AvailableResources[resource]; ok && v > 0 {
		return v
	}
	return defaultAvailable
}

// EvaluatedOption pairs an option with its score breakdown.
type EvaluatedOption struct {
	Option       Option             `json:"option"`
	Score        float64            `json:"score"`
	FactorScores map[string]float64 `json:"factor_scores"`
}

// Reasoning explains why an option was selected.
type Reasoning struct {
	Summary                string  `json:"summary"`
	DominantFactor         string  `json:"dominant_factor"`
	Confidence             float64 `json:"confidence"`
	AlternativesConsidered int     `json:"alternatives_considered"`
}

// Decision is the recorded outcome of one Decide call. Never mutated after
// creation; outcome feedback is tracked in LearningFactor, not here.
type Decision struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Context        Context           `json:"context"`
	SelectedOption Option            `json:"selected_option"`
	Confidence     float64           `json:"confidence"`
	Reasoning      Reasoning         `json:"reasoning"`
	Alternatives   []EvaluatedOption `json:"alternatives"`
}

// LearningFactor is the running success-rate statistic for one option type.
type LearningFactor struct {
	SuccessCount int     `json:"success_count"`
	TotalCount   int     `json:"total_count"`
	SuccessRate  float64 `json:"success_rate"`
}

// Analytics summarizes engine activity.
type Analytics struct {
	TotalDecisions    int                       `json:"total_decisions"`
	AverageConfidence float64                   `json:"average_confidence"`
	TypeDistribution  map[string]int            `json:"type_distribution"`
	LearningFactors   map[string]LearningFactor `json:"learning_factors"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
