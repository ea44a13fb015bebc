package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mocksmith/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.SharedMemory) {
	t.Helper()
	mem, err := store.NewSharedMemory(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { mem.Close() })
	return NewHub(DefaultRoleDefinitions(), mem), mem
}

func echoCapability(name string) Capability {
	return CapabilityFunc(func(_ context.Context, task string) (string, error) {
		return fmt.Sprintf("%s handled: %s", name, task), nil
	})
}

func registerAll(t *testing.T, h *Hub) {
	t.Helper()
	for _, name := range []string{"strategic", "tactical", "optimization"} {
		if err := h.RegisterRole(name, echoCapability(name)); err != nil {
			t.Fatalf("RegisterRole(%s) failed: %v", name, err)
		}
	}
}

func TestRegisterRole_UnknownDefinition(t *testing.T) {
	h, _ := newTestHub(t)
	if err := h.RegisterRole("astrologer", echoCapability("astrologer")); err == nil {
		t.Error("expected error for unknown role name")
	}
	if err := h.RegisterRole("strategic", nil); err == nil {
		t.Error("expected error for nil capability")
	}
}

func TestAssignRoles_KeywordMatch(t *testing.T) {
	h, _ := newTestHub(t)
	registerAll(t, h)

	assignments := h.AssignRoles("optimize performance")
	if _, ok := assignments["optimization"]; !ok {
		t.Errorf("optimization role must be assigned, got %v", assignments)
	}
	if assignments["optimization"] != "optimization_lead" {
		t.Errorf("expected lead assignment, got %s", assignments["optimization"])
	}
	// "performance" is a tactical keyword too.
	if assignments["tactical"] != "tactical_lead" {
		t.Errorf("expected tactical lead, got %v", assignments)
	}
}

func TestAssignRoles_DefaultSupport(t *testing.T) {
	h, _ := newTestHub(t)
	registerAll(t, h)

	assignments := h.AssignRoles("completely unrelated gibberish")
	if len(assignments) != 3 {
		t.Fatalf("no-keyword task must assign every registered role, got %v", assignments)
	}
	for name, tag := range assignments {
		if !strings.HasSuffix(tag, "_support") {
			t.Errorf("role %s should have support assignment, got %s", name, tag)
		}
	}
}

func TestAssignRoles_OnlyRegisteredRoles(t *testing.T) {
	h, _ := newTestHub(t)
	if err := h.RegisterRole("tactical", echoCapability("tactical")); err != nil {
		t.Fatal(err)
	}

	assignments := h.AssignRoles("plan the strategy")
	if _, ok := assignments["strategic"]; ok {
		t.Error("unregistered strategic role must not be assigned")
	}
	// Keyword missed for tactical, so it falls back to support.
	if assignments["tactical"] != "tactical_support" {
		t.Errorf("expected tactical support fallback, got %v", assignments)
	}
}

func TestSelectStrategy(t *testing.T) {
	cases := map[string]Strategy{
		"urgent fix needed":           StrategyParallel,
		"critical system care":        StrategyParallel,
		"complex refactoring":         StrategySequential,
		"multiple subsystems touched": StrategySequential,
		"routine cleanup":             StrategyConsensus,
	}
	for task, want := range cases {
		if got := SelectStrategy(task); got != want {
			t.Errorf("SelectStrategy(%q) = %s, want %s", task, got, want)
		}
	}
}

func TestCollaborate_NoRoles(t *testing.T) {
	h, _ := newTestHub(t)
	if _, err := h.Collaborate(context.Background(), "anything"); !errors.Is(err, ErrNoRolesRegistered) {
		t.Fatalf("expected ErrNoRolesRegistered, got %v", err)
	}
}

func TestCollaborate_CollectsContributions(t *testing.T) {
	h, mem := newTestHub(t)
	registerAll(t, h)

	result, err := h.Collaborate(context.Background(), "optimize the workspace")
	if err != nil {
		t.Fatalf("Collaborate failed: %v", err)
	}

	if !result.Success {
		t.Errorf("expected success, got failures: %v", result.Failures)
	}
	for name := range result.Assignments {
		if _, ok := result.Contributions[name]; !ok {
			t.Errorf("missing contribution from %s", name)
		}
	}

	// A collaboration_log entry must land in shared memory.
	entries, err := mem.QueryMessages(store.MessageFilter{MessageType: "collaboration_log"})
	if err != nil {
		t.Fatalf("QueryMessages failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 collaboration log, got %d", len(entries))
	}
	var logged CollaborationResult
	if err := json.Unmarshal([]byte(entries[0].Content), &logged); err != nil {
		t.Fatalf("collaboration log is not valid JSON: %v", err)
	}
	if logged.ID != result.ID {
		t.Errorf("logged id %s != result id %s", logged.ID, result.ID)
	}
}

func TestCollaborate_PartialFailure(t *testing.T) {
	h, _ := newTestHub(t)
	if err := h.RegisterRole("strategic", echoCapability("strategic")); err != nil {
		t.Fatal(err)
	}
	if err := h.RegisterRole("tactical", CapabilityFunc(func(context.Context, string) (string, error) {
		return "", errors.New("tactical subsystem offline")
	})); err != nil {
		t.Fatal(err)
	}

	result, err := h.Collaborate(context.Background(), "plan security monitoring")
	if err != nil {
		t.Fatalf("Collaborate failed: %v", err)
	}

	if result.Success {
		t.Error("one failed contribution must mark the result unsuccessful")
	}
	if _, ok := result.Contributions["strategic"]; !ok {
		t.Error("partial failure must still return the successful contributions")
	}
	if detail := result.Failures["tactical"]; !strings.Contains(detail, "offline") {
		t.Errorf("expected failure detail, got %q", detail)
	}
}

func TestCollaborate_PanickingRoleIsContained(t *testing.T) {
	h, _ := newTestHub(t)
	if err := h.RegisterRole("strategic", echoCapability("strategic")); err != nil {
		t.Fatal(err)
	}
	if err := h.RegisterRole("optimization", CapabilityFunc(func(context.Context, string) (string, error) {
		panic("optimizer crash")
	})); err != nil {
		t.Fatal(err)
	}

	result, err := h.Collaborate(context.Background(), "plan and optimize everything")
	if err != nil {
		t.Fatalf("Collaborate failed: %v", err)
	}
	if result.Success {
		t.Error("panicking role must fail the collaboration")
	}
	if !strings.Contains(result.Failures["optimization"], "panicked") {
		t.Errorf("expected panic recorded, got %v", result.Failures)
	}
}

func TestCollaborate_SequentialHandoff(t *testing.T) {
	h, _ := newTestHub(t)
	var tacticalSaw string
	if err := h.RegisterRole("strategic", echoCapability("strategic")); err != nil {
		t.Fatal(err)
	}
	if err := h.RegisterRole("tactical", CapabilityFunc(func(_ context.Context, task string) (string, error) {
		tacticalSaw = task
		return "tactical done", nil
	})); err != nil {
		t.Fatal(err)
	}

	// "complex" selects sequential_with_handoff; "plan"+"security" assign
	// both roles as leads, strategic first in table order.
	result, err := h.Collaborate(context.Background(), "complex plan for security hardening")
	if err != nil {
		t.Fatalf("Collaborate failed: %v", err)
	}
	if result.Strategy != StrategySequential {
		t.Fatalf("expected sequential strategy, got %s", result.Strategy)
	}
	if !strings.Contains(tacticalSaw, "[handoff from strategic]") {
		t.Errorf("tactical role should receive strategic handoff, saw: %q", tacticalSaw)
	}
}

func TestEstablishAndStatus(t *testing.T) {
	h, mem := newTestHub(t)

	if err := h.RegisterRole("strategic", echoCapability("strategic")); err != nil {
		t.Fatal(err)
	}
	status, err := h.Establish([]string{"Eliminate mock components"})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if status.Ready || status.Active {
		t.Error("one role must not be ready/active")
	}

	if err := h.RegisterRole("optimization", echoCapability("optimization")); err != nil {
		t.Fatal(err)
	}
	status, err = h.Establish([]string{"Eliminate mock components", "Keep the workspace healthy"})
	if err != nil {
		t.Fatalf("Establish failed: %v", err)
	}
	if !status.Ready || !status.Active {
		t.Errorf("expected ready+active with two roles, got %+v", status)
	}

	objs, err := mem.ListObjectives()
	if err != nil {
		t.Fatalf("ListObjectives failed: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 seeded objectives, got %d", len(objs))
	}
	if objs[0].AssignedRoles != "strategic,optimization" {
		t.Errorf("unexpected assigned roles: %s", objs[0].AssignedRoles)
	}

	if _, err := h.Collaborate(context.Background(), "optimize code"); err != nil {
		t.Fatal(err)
	}
	status = h.GetStatus()
	if status.Collaborations != 1 {
		t.Errorf("expected 1 collaboration counted, got %d", status.Collaborations)
	}

	h.Shutdown()
	if h.GetStatus().Active {
		t.Error("hub must be inactive after shutdown")
	}
}
