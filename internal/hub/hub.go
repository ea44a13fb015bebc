// Package hub implements the role-coordination hub.
//
// Named roles register a processing capability; incoming tasks are
// classified against each role's keyword set, dispatched per a
// coordination strategy, and the combined result (including partial
// failures) is logged to the shared memory store.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mocksmith/internal/logging"
	"mocksmith/internal/store"
)

// ErrNoRolesRegistered is returned by Collaborate when the hub is empty.
var ErrNoRolesRegistered = errors.New("hub: no roles registered")

// Strategy is how assigned roles execute a task.
type Strategy string

const (
	StrategyParallel   Strategy = "parallel"
	StrategySequential Strategy = "sequential_with_handoff"
	StrategyConsensus  Strategy = "consensus"
)

// CollaborationResult is the combined outcome of one task.
type CollaborationResult struct {
	ID            string            `json:"id"`
	Task          string            `json:"task"`
	Assignments   map[string]string `json:"assignments"`
	Strategy      Strategy          `json:"strategy"`
	Contributions map[string]string `json:"contributions"`
	Failures      map[string]string `json:"failures,omitempty"`
	Success       bool              `json:"success"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Status describes the hub's current state.
type Status struct {
	RegisteredRoles []string `json:"registered_roles"`
	Collaborations  int      `json:"collaborations"`
	Ready           bool     `json:"ready"` // at least two roles registered
	Active          bool     `json:"active"`
}

// Hub coordinates registered roles. Construct with NewHub; the shared
// memory store is injected, never reached through a global.
type Hub struct {
	mu             sync.RWMutex
	defs           []RoleDefinition
	capabilities   map[string]Capability
	memory         *store.SharedMemory
	collaborations int
	active         bool
}

// NewHub creates a hub with the given role table and shared memory.
func NewHub(defs []RoleDefinition, memory *store.SharedMemory) *Hub {
	return &Hub{
		defs:         defs,
		capabilities: make(map[string]Capability),
		memory:       memory,
	}
}

// RegisterRole binds a capability to a named role from the definition
// table. Roles stay registered until shutdown.
func (h *Hub) RegisterRole(name string, capability Capability) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var found bool
	for _, d := range h.defs {
		if d.Name == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("hub: no role definition for %q", name)
	}
	if capability == nil {
		return fmt.Errorf("hub: nil capability for role %q", name)
	}

	h.capabilities[name] = capability
	logging.Get(logging.CategoryHub).Info("Registered role: %s", name)
	return nil
}

// AssignRoles classifies the task against each registered role's keyword
// set. When no keyword matches, every registered role receives its default
// support assignment, so the map is never empty while a role is registered.
func (h *Hub) AssignRoles(taskDescription string) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.assignLocked(taskDescription)
}

func (h *Hub) assignLocked(taskDescription string) map[string]string {
	task := strings.ToLower(taskDescription)
	assignments := make(map[string]string)

	for _, d := range h.defs {
		if _, registered := h.capabilities[d.Name]; !registered {
			continue
		}
		for _, kw := range d.Keywords {
			if strings.Contains(task, kw) {
				assignments[d.Name] = d.Lead
				break
			}
		}
	}

	if len(assignments) == 0 {
		for _, d := range h.defs {
			if _, registered := h.capabilities[d.Name]; registered {
				assignments[d.Name] = d.Support
			}
		}
	}
	return assignments
}

// SelectStrategy picks the coordination strategy from task wording.
func SelectStrategy(taskDescription string) Strategy {
	task := strings.ToLower(taskDescription)
	switch {
	case strings.Contains(task, "urgent") || strings.Contains(task, "critical"):
		return StrategyParallel
	case strings.Contains(task, "complex") || strings.Contains(task, "multiple"):
		return StrategySequential
	default:
		return StrategyConsensus
	}
}

// Collaborate dispatches the task to every assigned role and collects
// contributions. One failed contribution marks the whole result
// unsuccessful but the other contributions are still returned. The
// collaboration record is appended to shared memory.
func (h *Hub) Collaborate(ctx context.Context, taskDescription string) (*CollaborationResult, error) {
	timer := logging.StartTimer(logging.CategoryHub, "Collaborate")
	defer timer.Stop()

	log := logging.Get(logging.CategoryHub)
	log.Info("Coordinating collaboration: %s", taskDescription)

	h.mu.Lock()
	if len(h.capabilities) == 0 {
		h.mu.Unlock()
		return nil, ErrNoRolesRegistered
	}
	assignments := h.assignLocked(taskDescription)
	ordered := h.orderedAssigned(assignments)
	caps := make(map[string]Capability, len(ordered))
	for _, name := range ordered {
		caps[name] = h.capabilities[name]
	}
	h.collaborations++
	h.mu.Unlock()

	result := &CollaborationResult{
		ID:            fmt.Sprintf("COLLAB-%s", uuid.NewString()[:8]),
		Task:          taskDescription,
		Assignments:   assignments,
		Strategy:      SelectStrategy(taskDescription),
		Contributions: make(map[string]string),
		Failures:      make(map[string]string),
		Success:       true,
		Timestamp:     time.Now().UTC(),
	}

	switch result.Strategy {
	case StrategyParallel:
		h.runParallel(ctx, ordered, caps, result)
	case StrategySequential:
		h.runSequential(ctx, ordered, caps, result)
	default:
		h.runConsensus(ctx, ordered, caps, result)
	}

	if len(result.Failures) > 0 {
		result.Success = false
	}

	h.logCollaboration(result)
	log.Info("Collaboration %s done: success=%v contributions=%d failures=%d",
		result.ID, result.Success, len(result.Contributions), len(result.Failures))
	return result, nil
}

// orderedAssigned returns assigned role names in definition-table order so
// sequential handoffs are deterministic.
func (h *Hub) orderedAssigned(assignments map[string]string) []string {
	var ordered []string
	for _, d := range h.defs {
		if _, ok := assignments[d.Name]; ok {
			ordered = append(ordered, d.Name)
		}
	}
	return ordered
}

func (h *Hub) runParallel(ctx context.Context, ordered []string, caps map[string]Capability, result *CollaborationResult) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, name := range ordered {
		name := name
		g.Go(func() error {
			out, err := h.invoke(gctx, name, caps[name], result.Task)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures[name] = err.Error()
			} else {
				result.Contributions[name] = out
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (h *Hub) runSequential(ctx context.Context, ordered []string, caps map[string]Capability, result *CollaborationResult) {
	task := result.Task
	for _, name := range ordered {
		out, err := h.invoke(ctx, name, caps[name], task)
		if err != nil {
			result.Failures[name] = err.Error()
			continue
		}
		result.Contributions[name] = out
		// Handoff: the next role sees the previous contribution.
		task = fmt.Sprintf("%s\n\n[handoff from %s]\n%s", result.Task, name, out)
	}
}

func (h *Hub) runConsensus(ctx context.Context, ordered []string, caps map[string]Capability, result *CollaborationResult) {
	for _, name := range ordered {
		out, err := h.invoke(ctx, name, caps[name], result.Task)
		if err != nil {
			result.Failures[name] = err.Error()
			continue
		}
		result.Contributions[name] = out
	}
}

// invoke calls one capability, converting a panic into an error so a
// misbehaving role cannot take down the collaboration.
func (h *Hub) invoke(ctx context.Context, name string, capability Capability, task string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("role %s panicked: %v", name, r)
			logging.Get(logging.CategoryHub).Error("Role %s panicked: %v", name, r)
		}
	}()
	return capability.Contribute(ctx, task)
}

// logCollaboration appends the record to shared memory. Append failures
// are logged, never surfaced: the collaboration already happened.
func (h *Hub) logCollaboration(result *CollaborationResult) {
	content, err := json.Marshal(result)
	if err != nil {
		logging.Get(logging.CategoryHub).Warn("Failed to marshal collaboration record: %v", err)
		return
	}
	_, err = h.memory.AppendMessage(store.Entry{
		Source:      "coordination_hub",
		Target:      "ALL",
		MessageType: "collaboration_log",
		Content:     string(content),
		Priority:    2,
	})
	if err != nil {
		logging.Get(logging.CategoryHub).Warn("Failed to log collaboration: %v", err)
	}
}

// Establish seeds collaborative objectives into shared memory and marks
// the hub active when enough roles are registered.
func (h *Hub) Establish(objectives []string) (Status, error) {
	h.mu.Lock()
	names := h.registeredNamesLocked()
	ready := len(names) >= 2
	h.active = ready
	h.mu.Unlock()

	log := logging.Get(logging.CategoryHub)
	if !ready {
		log.Warn("Insufficient roles for coordination: %d registered", len(names))
		return h.GetStatus(), nil
	}

	assigned := strings.Join(names, ",")
	for _, obj := range objectives {
		if _, err := h.memory.AddObjective(obj, assigned); err != nil {
			return h.GetStatus(), fmt.Errorf("failed to seed objective: %w", err)
		}
	}
	log.Info("Coordination established: %d roles, %d objectives", len(names), len(objectives))
	return h.GetStatus(), nil
}

// GetStatus reports registered roles, collaboration count, and readiness.
func (h *Hub) GetStatus() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := h.registeredNamesLocked()
	return Status{
		RegisteredRoles: names,
		Collaborations:  h.collaborations,
		Ready:           len(names) >= 2,
		Active:          h.active,
	}
}

func (h *Hub) registeredNamesLocked() []string {
	var names []string
	for _, d := range h.defs {
		if _, ok := h.capabilities[d.Name]; ok {
			names = append(names, d.Name)
		}
	}
	return names
}

// Shutdown deactivates the hub. Shared memory is left intact.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = false
	logging.Get(logging.CategoryHub).Info("Hub shut down; shared memory preserved")
}
