package decision

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mocksmith/internal/logging"
)

// ErrEmptyOptionSet is returned by Decide when no options are supplied.
// Fatal to the single call, never to the process.
var ErrEmptyOptionSet = errors.New("decision: empty option set")

// Engine scores candidate options and records decisions.
// Construct with NewEngine and share the instance explicitly; there is no
// package-level singleton.
type Engine struct {
	mu              sync.RWMutex
	rules           []rule
	history         []Decision
	historyLimit    int
	learningFactors map[string]*LearningFactor
}

// NewEngine creates an engine. historyLimit caps in-memory decision
// history; 0 means unbounded.
func NewEngine(historyLimit int) *Engine {
	return &Engine{
		rules:           buildRuleTable(),
		historyLimit:    historyLimit,
		learningFactors: make(map[string]*LearningFactor),
	}
}

// Decide evaluates options against the context and returns the recorded
// Decision. When two options score identically the first one in input
// order wins; that tie-break is intentional and documented behavior.
func (e *Engine) Decide(ctx Context, options []Option) (*Decision, error) {
	timer := logging.StartTimer(logging.CategoryDecision, "Decide")
	defer timer.Stop()

	if len(options) == 0 {
		return nil, ErrEmptyOptionSet
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	log := logging.Get(logging.CategoryDecision)

	evaluated := make([]EvaluatedOption, 0, len(options))
	bestIdx := 0
	for i, raw := range options {
		opt := raw.withDefaults()
		score, factors := e.evaluate(opt, ctx)
		evaluated = append(evaluated, EvaluatedOption{
			Option:       raw,
			Score:        score,
			FactorScores: factors,
		})
		log.Debug("Evaluated option %d type=%s score=%.4f", i, raw.Type, score)
		if score > evaluated[bestIdx].Score {
			bestIdx = i
		}
	}

	best := evaluated[bestIdx]
	dominant, dominantScore := e.dominantFactor(best.FactorScores)

	alternatives := make([]EvaluatedOption, 0, len(evaluated)-1)
	for i, ev := range evaluated {
		if i != bestIdx {
			alternatives = append(alternatives, ev)
		}
	}

	d := Decision{
		ID:             newDecisionID(),
		Timestamp:      time.Now().UTC(),
		Context:        ctx,
		SelectedOption: best.Option,
		Confidence:     best.Score,
		Reasoning: Reasoning{
			Summary:                fmt.Sprintf("Selected based on %s (score: %.2f)", dominant, dominantScore),
			DominantFactor:         dominant,
			Confidence:             best.Score,
			AlternativesConsidered: len(evaluated),
		},
		Alternatives: alternatives,
	}

	e.history = append(e.history, d)
	if e.historyLimit > 0 && len(e.history) > e.historyLimit {
		e.history = e.history[len(e.history)-e.historyLimit:]
	}

	log.Info("Decision %s: type=%s confidence=%.4f dominant=%s",
		d.ID, d.SelectedOption.Type, d.Confidence, dominant)
	return &d, nil
}

// evaluate computes the weighted normalized score plus learning bonus for
// one option. Caller holds e.mu.
func (e *Engine) evaluate(opt Option, ctx Context) (float64, map[string]float64) {
	factors := make(map[string]float64, len(e.rules))

	var totalScore, totalWeight float64
	for _, r := range e.rules {
		v := r.eval(e, opt, ctx)
		factors[r.name] = v
		totalScore += v * r.weight
		totalWeight += r.weight
	}

	score := neutralScore
	if totalWeight > 0 {
		score = totalScore / totalWeight
	}
	score += e.learningBonus(opt.Type)
	return clamp01(score), factors
}

// learningBonus is a small nudge derived from the option type's success
// rate: positive above 0.5, negative below, zero without history.
func (e *Engine) learningBonus(optionType string) float64 {
	if lf, ok := e.learningFactors[optionType]; ok && lf.TotalCount > 0 {
		return (lf.SuccessRate - 0.5) * learningBonusScale
	}
	return 0
}

// historicalPreference is the mean confidence of past decisions that
// selected this option type. Caller holds e.mu.
func (e *Engine) historicalPreference(optionType string) float64 {
	var sum float64
	var count int
	for _, d := range e.history {
		if d.SelectedOption.Type == optionType {
			sum += d.Confidence
			count++
		}
	}
	if count == 0 {
		return defaultHistoricalPref
	}
	return sum / float64(count)
}

// dominantFactor returns the rule with the highest individual score,
// scanning in rule-table order so equal scores resolve deterministically.
func (e *Engine) dominantFactor(factors map[string]float64) (string, float64) {
	name := ""
	best := -1.0
	for _, r := range e.rules {
		if v, ok := factors[r.name]; ok && v > best {
			name = r.name
			best = v
		}
	}
	return name, best
}

// RecordOutcome feeds a decision's real-world result back into the
// engine's learning factors. An unknown decision id is a recoverable
// lookup miss: logged as a warning, never an error.
func (e *Engine) RecordOutcome(decisionID string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := logging.Get(logging.CategoryDecision)

	var found *Decision
	for i := range e.history {
		if e.history[i].ID == decisionID {
			found = &e.history[i]
			break
		}
	}
	if found == nil {
		log.Warn("RecordOutcome: unknown decision id %s", decisionID)
		return
	}

	optionType := found.SelectedOption.Type
	lf, ok := e.learningFactors[optionType]
	if !ok {
		lf = &LearningFactor{SuccessRate: 0.5}
		e.learningFactors[optionType] = lf
	}

	lf.TotalCount++
	if success {
		lf.SuccessCount++
	}
	lf.SuccessRate = float64(lf.SuccessCount) / float64(lf.TotalCount)

	log.Info("Learning updated for %s: rate=%.2f (%d/%d)",
		optionType, lf.SuccessRate, lf.SuccessCount, lf.TotalCount)
}

// LearningFactorFor returns a copy of the learning factor for a type.
func (e *Engine) LearningFactorFor(optionType string) (LearningFactor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lf, ok := e.learningFactors[optionType]
	if !ok {
		return LearningFactor{}, false
	}
	return *lf, true
}

// HistoryTail returns copies of the most recent n decisions, oldest first.
func (e *Engine) HistoryTail(n int) []Decision {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if n <= 0 || n > len(e.history) {
		n = len(e.history)
	}
	tail := make([]Decision, n)
	copy(tail, e.history[len(e.history)-n:])
	return tail
}

// Analytics aggregates decision history and learning state.
func (e *Engine) Analytics() Analytics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a := Analytics{
		TypeDistribution: make(map[string]int),
		LearningFactors:  make(map[string]LearningFactor),
	}
	a.TotalDecisions = len(e.history)

	var confidenceSum float64
	for _, d := range e.history {
		confidenceSum += d.Confidence
		a.TypeDistribution[d.SelectedOption.Type]++
	}
	if a.TotalDecisions > 0 {
		a.AverageConfidence = confidenceSum / float64(a.TotalDecisions)
	}
	for k, v := range e.learningFactors {
		a.LearningFactors[k] = *v
	}
	return a
}

// newDecisionID builds a time-derived unique id, e.g.
// DEC-20250831T120000-1a2b3c4d.
func newDecisionID() string {
	return fmt.Sprintf("DEC-%s-%s",
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
}
