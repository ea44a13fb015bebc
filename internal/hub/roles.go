package hub

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Capability is the single-method contract a role's backing entity
// implements. Real agents and test doubles are injected the same way.
type Capability interface {
	Contribute(ctx context.Context, task string) (string, error)
}

// CapabilityFunc adapts a plain function to a Capability.
type CapabilityFunc func(ctx context.Context, task string) (string, error)

func (f CapabilityFunc) Contribute(ctx context.Context, task string) (string, error) {
	return f(ctx, task)
}

// RoleDefinition is one entry in the classification table: the keywords
// that route a task to the role, and the assignment tags it receives as a
// lead or as default support. The table is data; it can be overridden
// from a YAML file.
type RoleDefinition struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Lead     string   `yaml:"lead_assignment"`
	Support  string   `yaml:"support_assignment"`
}

// DefaultRoleDefinitions returns the built-in role table.
func DefaultRoleDefinitions() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:     "strategic",
			Keywords: []string{"strategy", "plan", "implement", "coordinate"},
			Lead:     "strategic_lead",
			Support:  "strategic_support",
		},
		{
			Name:     "tactical",
			Keywords: []string{"security", "performance", "monitor", "threat"},
			Lead:     "tactical_lead",
			Support:  "tactical_support",
		},
		{
			Name:     "optimization",
			Keywords: []string{"optimize", "efficiency", "code", "workspace"},
			Lead:     "optimization_lead",
			Support:  "optimization_support",
		},
	}
}

// LoadRoleDefinitions reads a role table from a YAML file.
func LoadRoleDefinitions(path string) ([]RoleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role definitions: %w", err)
	}

	var defs []RoleDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse role definitions: %w", err)
	}

	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("role definition %d has no name", i)
		}
		if d.Lead == "" {
			defs[i].Lead = d.Name + "_lead"
		}
		if d.Support == "" {
			defs[i].Support = d.Name + "_support"
		}
	}
	return defs, nil
}
