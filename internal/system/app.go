// Package system wires the mocksmith core together.
//
// App owns the component lifecycle: config, logging, shared memory,
// decision engine, coordination hub, detector, and executor are created at
// startup and torn down by Close. Nothing in the core lives in a package
// global; collaborators receive the App (or a component) explicitly.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mocksmith/internal/config"
	"mocksmith/internal/convert"
	"mocksmith/internal/decision"
	"mocksmith/internal/detect"
	"mocksmith/internal/hub"
	"mocksmith/internal/logging"
	"mocksmith/internal/store"
)

// DefaultObjectives seed the collaborative objective table when a hub is
// established for a fresh workspace.
var DefaultObjectives = []string{
	"Eliminate mock components",
	"Keep workspace conversion debt at zero",
	"Maintain autonomous coordination",
}

// App is the application context for one workspace.
type App struct {
	Workspace string
	Config    *config.Config
	Memory    *store.SharedMemory
	Engine    *decision.Engine
	Hub       *hub.Hub
	Scanner   *detect.Scanner
	Executor  *convert.Executor

	converter convert.Func
}

// Option customizes App construction.
type Option func(*App)

// WithConverter injects the conversion operation invoked per mock item.
// Without it the built-in validating converter is used.
func WithConverter(fn convert.Func) Option {
	return func(a *App) { a.converter = fn }
}

// NewApp builds the full component graph for a workspace.
func NewApp(workspace string, cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug, level, categories := cfg.LoggingOptions()
	if err := logging.Initialize(workspace, logging.Options{
		DebugMode:  debug,
		Level:      level,
		Categories: categories,
	}); err != nil {
		return nil, err
	}

	dbPath := cfg.Memory.DatabasePath
	if dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	memory, err := store.NewSharedMemory(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared memory: %w", err)
	}

	roleDefs := hub.DefaultRoleDefinitions()
	if cfg.Coordination.RolesPath != "" {
		roleDefs, err = hub.LoadRoleDefinitions(cfg.Coordination.RolesPath)
		if err != nil {
			memory.Close()
			return nil, err
		}
	}

	itemTimeout, err := cfg.ItemTimeout()
	if err != nil {
		memory.Close()
		return nil, err
	}

	a := &App{
		Workspace: workspace,
		Config:    cfg,
		Memory:    memory,
		Engine:    decision.NewEngine(cfg.Decision.HistoryLimit),
		Hub:       hub.NewHub(roleDefs, memory),
		Scanner:   detect.NewScanner(cfg.Detection),
	}
	a.converter = a.validateConversion

	for _, opt := range opts {
		opt(a)
	}
	a.Executor = convert.NewExecutor(a.converter, itemTimeout)

	logging.Get(logging.CategoryBoot).Info("App initialized for workspace %s", workspace)
	return a, nil
}

// RegisterBuiltinRoles binds the built-in capabilities to the default
// role table. External agents may register richer capabilities instead.
func (a *App) RegisterBuiltinRoles() error {
	caps := map[string]hub.Capability{
		"strategic":    &StrategicCapability{Memory: a.Memory},
		"tactical":     &TacticalCapability{Memory: a.Memory},
		"optimization": &OptimizationCapability{Scanner: a.Scanner, Workspace: a.Workspace},
	}
	for name, c := range caps {
		if err := a.Hub.RegisterRole(name, c); err != nil {
			return err
		}
	}
	return nil
}

// RunSnapshot is the serializable record of one remediation run, exposed
// for the external reporting module. The core does not own a file format.
type RunSnapshot struct {
	Timestamp    time.Time           `json:"timestamp"`
	Workspace    string              `json:"workspace"`
	ScanSummary  detect.Summary      `json:"scan_summary"`
	Report       *convert.Report     `json:"report"`
	Decision     *decision.Decision  `json:"decision,omitempty"`
	DecisionTail []decision.Decision `json:"decision_tail,omitempty"`
	HubStatus    hub.Status          `json:"hub_status"`
}

// MarshalJSON output is the contract with the reporting module.
func (s *RunSnapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Remediate runs the full pipeline: scan, choose a run profile, convert
// under the bound, log the outcome through the hub's shared memory, and
// feed the result back to the decision engine.
func (a *App) Remediate(ctx context.Context) (*RunSnapshot, error) {
	items, summary, err := a.Scanner.Scan(ctx, a.Workspace)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	// Record what the detector learned.
	if _, err := a.Memory.AppendKnowledge(store.KnowledgeEntry{
		Type:        "scan_summary",
		Content:     fmt.Sprintf("%d mock units (high=%d medium=%d low=%d)", summary.Total(), summary.High, summary.Medium, summary.Low),
		Contributor: "detector",
	}); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to record scan summary: %v", err)
	}

	d, concurrency := a.chooseRunProfile(summary)

	report, err := a.Executor.Run(ctx, items, concurrency)
	if err != nil {
		return nil, err
	}

	// Hub logs the outcome to shared memory and the engine learns from it.
	a.logRunOutcome(report)
	if d != nil {
		a.Engine.RecordOutcome(d.ID, report.Total == 0 || report.SuccessRate >= 0.5)
	}

	return &RunSnapshot{
		Timestamp:    time.Now().UTC(),
		Workspace:    a.Workspace,
		ScanSummary:  summary,
		Report:       report,
		Decision:     d,
		DecisionTail: a.Engine.HistoryTail(10),
		HubStatus:    a.Hub.GetStatus(),
	}, nil
}

// chooseRunProfile asks the decision engine to pick a concurrency profile
// for this run. The configured maximum always caps the result.
func (a *App) chooseRunProfile(summary detect.Summary) (*decision.Decision, int) {
	maxC := a.Config.Conversion.MaxConcurrency
	if summary.Total() <= 1 {
		return nil, maxC
	}

	load := float64(summary.Total()) / 10.0
	if load > 1 {
		load = 1
	}
	options := []decision.Option{
		{Type: "aggressive", TimeCost: 0.3, ResourceCost: 0.9, ExpectedBenefit: 1.0, SafetyLevel: 0.6, Novelty: 0.6, CPUCost: 0.8, MemoryCost: 0.7},
		{Type: "balanced", TimeCost: 0.6, ResourceCost: 0.5, ExpectedBenefit: 0.9, SafetyLevel: 0.85, CPUCost: 0.5, MemoryCost: 0.5},
		{Type: "conservative", TimeCost: 1.0, ResourceCost: 0.3, ExpectedBenefit: 0.7, SafetyLevel: 0.95, CPUCost: 0.3, MemoryCost: 0.3},
	}
	ctx := decision.Context{
		AvailableResources: map[string]float64{"cpu": 1 - load/2, "memory": 0.9},
	}

	d, err := a.Engine.Decide(ctx, options)
	if err != nil {
		return nil, maxC
	}

	concurrency := maxC
	switch d.SelectedOption.Type {
	case "conservative":
		concurrency = 1
	case "balanced":
		if maxC > 2 {
			concurrency = (maxC + 1) / 2
		}
	}
	return d, concurrency
}

// logRunOutcome appends the conversion report to shared memory.
func (a *App) logRunOutcome(report *convert.Report) {
	content, err := json.Marshal(report)
	if err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to marshal report: %v", err)
		return
	}
	if _, err := a.Memory.AppendMessage(store.Entry{
		Source:      "executor",
		Target:      "ALL",
		MessageType: "conversion_report",
		Content:     string(content),
		Priority:    2,
	}); err != nil {
		logging.Get(logging.CategoryBoot).Warn("Failed to log conversion report: %v", err)
	}
}

// validateConversion is the built-in conversion operation: it confirms
// the item is still present and readable. Real code generation is an
// external collaborator's job, injected via WithConverter.
func (a *App) validateConversion(ctx context.Context, item detect.MockItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(item.Path)
	if err != nil {
		return fmt.Errorf("unreadable mock item: %w", err)
	}
	if !strings.Contains(strings.ToLower(string(data)), item.Indicator) {
		// Already converted between scan and run; nothing to do.
		logging.Get(logging.CategoryConvert).Debug("Indicator gone, treating %s as converted", item.Path)
	}
	return nil
}

// Close tears the application context down.
func (a *App) Close() error {
	a.Hub.Shutdown()
	err := a.Memory.Close()
	logging.Shutdown()
	return err
}
