package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mocksmith/internal/config"
	"mocksmith/internal/detect"
	"mocksmith/internal/system"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "mocksmith",
	Short: "mocksmith - mock-to-production remediation engine",
	Long: `mocksmith scans a workspace for incomplete ("mock") implementations,
prioritizes them, and converts them under a bounded-concurrency pipeline.

A weighted decision engine scores competing run profiles and learns from
reported outcomes; coordinated roles contribute analysis through a
persistent shared memory.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// initCmd writes a default config into the workspace.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default .mocksmith/config.yaml in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Path(workspace)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("Initialized mocksmith config at %s\n", path)
		return nil
	},
}

// scanCmd detects and prioritizes mock implementations.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the workspace for mock implementations",
	RunE:  runScan,
}

var watchMode bool

// convertCmd runs the full remediation pipeline.
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Scan and convert mock implementations under the concurrency bound",
	RunE:  runConvert,
}

var snapshotJSON bool

// collaborateCmd dispatches a task to the registered roles.
var collaborateCmd = &cobra.Command{
	Use:   "collaborate [task description]",
	Short: "Coordinate the registered roles on a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCollaborate,
}

// statusCmd reports hub and store state.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordination status and shared memory stats",
	RunE:  runStatus,
}

func newApp() (*system.App, error) {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	app, err := system.NewApp(workspace, cfg)
	if err != nil {
		return nil, err
	}
	if err := app.RegisterBuiltinRoles(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printQueue(items []detect.MockItem) {
	for _, item := range items {
		fmt.Printf("  [%-6s] %s (%s)\n", item.Priority, item.Path, item.Indicator)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	items, summary, err := app.Scanner.Scan(ctx, workspace)
	if err != nil {
		return err
	}

	logger.Info("Scan complete",
		zap.Int("total", summary.Total()),
		zap.Int("high", summary.High),
		zap.Int("medium", summary.Medium),
		zap.Int("low", summary.Low),
		zap.Duration("duration", summary.Duration))

	fmt.Printf("Detected %d mock units (HIGH=%d MEDIUM=%d LOW=%d)\n",
		summary.Total(), summary.High, summary.Medium, summary.Low)
	printQueue(items)

	if !watchMode {
		return nil
	}

	watcher, err := detect.NewWatcher(app.Scanner, workspace)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Println("Watching for changes (Ctrl-C to stop)...")
	for {
		select {
		case <-ctx.Done():
			return nil
		case items := <-watcher.Queues():
			fmt.Printf("Workspace changed: %d mock units\n", len(items))
			printQueue(items)
		}
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Hub.Establish(system.DefaultObjectives); err != nil {
		logger.Warn("Failed to establish coordination", zap.Error(err))
	}

	snap, err := app.Remediate(ctx)
	if err != nil {
		return err
	}

	if snapshotJSON {
		data, err := snap.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Converted %d/%d (%.1f%%) in %v\n",
		snap.Report.Converted, snap.Report.Total,
		snap.Report.SuccessRate*100, snap.Report.Duration)
	for _, r := range snap.Report.Results {
		if r.Status != "converted" {
			fmt.Printf("  FAILED %s: %s\n", r.Item.Path, r.ErrorDetail)
		}
	}
	if snap.Decision != nil {
		fmt.Printf("Run profile: %s (%s)\n",
			snap.Decision.SelectedOption.Type, snap.Decision.Reasoning.Summary)
	}
	return nil
}

func runCollaborate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	result, err := app.Hub.Collaborate(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Printf("Collaboration %s (strategy=%s, success=%v)\n", result.ID, result.Strategy, result.Success)
	for role, contribution := range result.Contributions {
		fmt.Printf("  %s [%s]: %s\n", role, result.Assignments[role], contribution)
	}
	for role, failure := range result.Failures {
		fmt.Printf("  %s FAILED: %s\n", role, failure)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	status := app.Hub.GetStatus()
	fmt.Printf("Roles registered: %v\n", status.RegisteredRoles)
	fmt.Printf("Collaborations:   %d\n", status.Collaborations)
	fmt.Printf("Ready:            %v\n", status.Ready)

	stats, err := app.Memory.Stats()
	if err != nil {
		return err
	}
	fmt.Println("Shared memory:")
	for table, count := range stats {
		fmt.Printf("  %-26s %d rows\n", table, count)
	}

	analytics := app.Engine.Analytics()
	fmt.Printf("Decisions recorded: %d (avg confidence %.2f)\n",
		analytics.TotalDecisions, analytics.AverageConfidence)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace root to operate on")

	scanCmd.Flags().BoolVar(&watchMode, "watch", false, "Keep watching and re-scan on changes")
	convertCmd.Flags().BoolVar(&snapshotJSON, "json", false, "Print the run snapshot as JSON")

	rootCmd.AddCommand(initCmd, scanCmd, convertCmd, collaborateCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
