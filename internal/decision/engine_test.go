package decision

import (
	"errors"
	"testing"
)

func testContext() Context {
	return Context{
		UserPreferences:    map[string]float64{"speed": 0.8},
		AvailableResources: map[string]float64{"cpu": 0.7, "memory": 0.9},
	}
}

func TestDecide_EmptyOptions(t *testing.T) {
	e := NewEngine(0)
	_, err := e.Decide(testContext(), nil)
	if !errors.Is(err, ErrEmptyOptionSet) {
		t.Fatalf("expected ErrEmptyOptionSet, got %v", err)
	}
}

func TestDecide_SelectsFromInputSet(t *testing.T) {
	e := NewEngine(0)
	options := []Option{
		{Type: "fast", TimeCost: 0.3, ResourceCost: 0.8, ExpectedBenefit: 1.0},
		{Type: "balanced", TimeCost: 0.6, ResourceCost: 0.5, ExpectedBenefit: 0.9},
		{Type: "careful", TimeCost: 1.2, ResourceCost: 0.4, ExpectedBenefit: 0.8},
	}

	d, err := e.Decide(testContext(), options)
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	if d.Confidence < 0 || d.Confidence > 1 {
		t.Errorf("confidence out of range: %f", d.Confidence)
	}

	var member bool
	for _, o := range options {
		if o.Type == d.SelectedOption.Type {
			member = true
		}
	}
	if !member {
		t.Errorf("selected option %q not in input set", d.SelectedOption.Type)
	}

	if len(d.Alternatives) != len(options)-1 {
		t.Errorf("expected %d alternatives, got %d", len(options)-1, len(d.Alternatives))
	}
}

func TestDecide_ReferenceScenario(t *testing.T) {
	// "fast" has the higher efficiency score (1.0/1.1/2 vs 0.9/1.1/2) and
	// ties on every other rule, so it must win deterministically.
	e := NewEngine(0)
	options := []Option{
		{Type: "fast", TimeCost: 0.3, ResourceCost: 0.8, ExpectedBenefit: 1.0},
		{Type: "balanced", TimeCost: 0.6, ResourceCost: 0.5, ExpectedBenefit: 0.9},
	}

	for i := 0; i < 5; i++ {
		d, err := e.Decide(testContext(), options)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if d.SelectedOption.Type != "fast" {
			t.Fatalf("run %d: expected fast to win, got %s", i, d.SelectedOption.Type)
		}
	}
}

func TestDecide_TieBreaksToFirstInOrder(t *testing.T) {
	e := NewEngine(0)
	same := Option{Type: "a", TimeCost: 0.5, ResourceCost: 0.5, ExpectedBenefit: 0.8}
	other := same
	other.Type = "b"

	d, err := e.Decide(testContext(), []Option{same, other})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d.SelectedOption.Type != "a" {
		t.Errorf("tie must resolve to first option in input order, got %s", d.SelectedOption.Type)
	}
}

func TestDecide_DominantFactorMatchesMaxScore(t *testing.T) {
	e := NewEngine(0)
	opt := Option{Type: "safe", SafetyLevel: 1.0, TimeCost: 2.0, ResourceCost: 2.0, ExpectedBenefit: 0.1}

	// Snapshot the factor scores before deciding: Decide appends to
	// history, which shifts the user_preference rule for this type.
	e.mu.Lock()
	_, factors := e.evaluate(opt.withDefaults(), testContext())
	e.mu.Unlock()

	d, err := e.Decide(testContext(), []Option{opt})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	best := -1.0
	for _, v := range factors {
		if v > best {
			best = v
		}
	}
	if got := factors[d.Reasoning.DominantFactor]; got != best {
		t.Errorf("dominant factor %s has score %f, max is %f", d.Reasoning.DominantFactor, got, best)
	}
}

func TestRecordOutcome_UpdatesLearningFactor(t *testing.T) {
	e := NewEngine(0)
	d, err := e.Decide(testContext(), []Option{{Type: "conversion"}})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	e.RecordOutcome(d.ID, true)
	e.RecordOutcome(d.ID, true)
	e.RecordOutcome(d.ID, false)

	lf, ok := e.LearningFactorFor("conversion")
	if !ok {
		t.Fatal("expected learning factor for conversion")
	}
	if lf.TotalCount != 3 || lf.SuccessCount != 2 {
		t.Errorf("expected 2/3, got %d/%d", lf.SuccessCount, lf.TotalCount)
	}
	want := 2.0 / 3.0
	if lf.SuccessRate != want {
		t.Errorf("expected rate %f, got %f", want, lf.SuccessRate)
	}
}

func TestRecordOutcome_UnknownIDIsNoop(t *testing.T) {
	e := NewEngine(0)
	// Must not panic or create state.
	e.RecordOutcome("DEC-nope", true)
	if _, ok := e.LearningFactorFor("anything"); ok {
		t.Error("no learning factor should exist after unknown-id feedback")
	}
}

func TestLearningBonus_ShiftsScores(t *testing.T) {
	// A type with a strong success history should beat an otherwise
	// identical option.
	e := NewEngine(0)
	opt := Option{Type: "proven", TimeCost: 0.5, ResourceCost: 0.5, ExpectedBenefit: 0.8}

	d, err := e.Decide(testContext(), []Option{opt})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		e.RecordOutcome(d.ID, true)
	}

	rival := opt
	rival.Type = "unproven"
	// "unproven" comes first, so without the bonus it would win the tie.
	d2, err := e.Decide(testContext(), []Option{rival, opt})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if d2.SelectedOption.Type != "proven" {
		t.Errorf("expected learning bonus to promote proven type, got %s", d2.SelectedOption.Type)
	}
}

func TestHistoryTailAndAnalytics(t *testing.T) {
	e := NewEngine(2)
	for _, typ := range []string{"a", "b", "c"} {
		if _, err := e.Decide(testContext(), []Option{{Type: typ}}); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
	}

	tail := e.HistoryTail(0)
	if len(tail) != 2 {
		t.Fatalf("history limit 2, got %d entries", len(tail))
	}
	if tail[0].SelectedOption.Type != "b" || tail[1].SelectedOption.Type != "c" {
		t.Errorf("tail should keep newest decisions, got %s,%s",
			tail[0].SelectedOption.Type, tail[1].SelectedOption.Type)
	}

	a := e.Analytics()
	if a.TotalDecisions != 2 {
		t.Errorf("expected 2 recorded decisions, got %d", a.TotalDecisions)
	}
	if a.AverageConfidence <= 0 || a.AverageConfidence > 1 {
		t.Errorf("average confidence out of range: %f", a.AverageConfidence)
	}
	if a.TypeDistribution["b"] != 1 || a.TypeDistribution["c"] != 1 {
		t.Errorf("unexpected type distribution: %v", a.TypeDistribution)
	}
}

func TestHistoricalPreference_TracksPastConfidence(t *testing.T) {
	e := NewEngine(0)
	if got := e.historicalPreference("never-seen"); got != defaultHistoricalPref {
		t.Errorf("expected default %f, got %f", defaultHistoricalPref, got)
	}

	d, err := e.Decide(testContext(), []Option{{Type: "repeat"}})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	e.mu.RLock()
	got := e.historicalPreference("repeat")
	e.mu.RUnlock()
	if got != d.Confidence {
		t.Errorf("expected historical preference %f, got %f", d.Confidence, got)
	}
}
