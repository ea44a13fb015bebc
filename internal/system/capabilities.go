package system

import (
	"context"
	"fmt"
	"strings"

	"mocksmith/internal/detect"
	"mocksmith/internal/store"
)

// Built-in role capabilities. Each does real work against the shared
// memory or the workspace; richer agent implementations replace them
// through the same Capability interface.

// StrategicCapability reports on collaborative objectives.
type StrategicCapability struct {
	Memory *store.SharedMemory
}

func (c *StrategicCapability) Contribute(ctx context.Context, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objectives, err := c.Memory.ListObjectives()
	if err != nil {
		return "", fmt.Errorf("strategic analysis failed: %w", err)
	}

	var open int
	for _, o := range objectives {
		if o.Status == "active" {
			open++
		}
	}
	return fmt.Sprintf("strategic assessment for %q: %d objectives, %d active", task, len(objectives), open), nil
}

// TacticalCapability reports on recent coordination traffic.
type TacticalCapability struct {
	Memory *store.SharedMemory
}

func (c *TacticalCapability) Contribute(ctx context.Context, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	recent, err := c.Memory.QueryMessages(store.MessageFilter{Limit: 50})
	if err != nil {
		return "", fmt.Errorf("tactical analysis failed: %w", err)
	}

	byType := make(map[string]int)
	for _, m := range recent {
		byType[m.MessageType]++
	}
	var parts []string
	for typ, n := range byType {
		parts = append(parts, fmt.Sprintf("%s=%d", typ, n))
	}
	return fmt.Sprintf("tactical review for %q: %d recent messages (%s)", task, len(recent), strings.Join(parts, " ")), nil
}

// OptimizationCapability runs a fresh detection pass over the workspace.
type OptimizationCapability struct {
	Scanner   *detect.Scanner
	Workspace string
}

func (c *OptimizationCapability) Contribute(ctx context.Context, task string) (string, error) {
	_, summary, err := c.Scanner.Scan(ctx, c.Workspace)
	if err != nil {
		return "", fmt.Errorf("workspace analysis failed: %w", err)
	}
	return fmt.Sprintf("optimization pass for %q: %d mock units remain (high=%d medium=%d low=%d)",
		task, summary.Total(), summary.High, summary.Medium, summary.Low), nil
}
