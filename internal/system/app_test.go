package system

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mocksmith/internal/config"
	"mocksmith/internal/convert"
	"mocksmith/internal/detect"
	"mocksmith/internal/store"
)

func testApp(t *testing.T, opts ...Option) *App {
	t.Helper()

	workspace := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Memory.DatabasePath = ":memory:"

	a, err := NewApp(workspace, cfg, opts...)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func seedMocks(t *testing.T, workspace string) {
	t.Helper()
	files := map[string]string{
		"svc/a.go": "package svc\n// TODO: implement this critical handler\n",
		"svc/b.go": "package svc\n// placeholder for minor cleanup\n",
		"svc/c.go": "package svc\n// TODO: implement\n",
		"ok.go":    "package main\nfunc main() {}\n",
	}
	for rel, content := range files {
		path := filepath.Join(workspace, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Conversion.MaxConcurrency = 0
	if _, err := NewApp(t.TempDir(), cfg); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestRemediate_FullPipeline(t *testing.T) {
	a := testApp(t)
	seedMocks(t, a.Workspace)
	if err := a.RegisterBuiltinRoles(); err != nil {
		t.Fatalf("RegisterBuiltinRoles failed: %v", err)
	}

	snap, err := a.Remediate(context.Background())
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}

	if snap.ScanSummary.Total() != 3 {
		t.Errorf("expected 3 detected items, got %d", snap.ScanSummary.Total())
	}
	if snap.Report.Total != 3 || snap.Report.Converted != 3 {
		t.Errorf("expected 3/3 converted, got %d/%d", snap.Report.Converted, snap.Report.Total)
	}
	if snap.Decision == nil {
		t.Error("expected a run-profile decision for a multi-item queue")
	}

	// Feedback must have updated the learning factor for the chosen profile.
	if snap.Decision != nil {
		lf, ok := a.Engine.LearningFactorFor(snap.Decision.SelectedOption.Type)
		if !ok || lf.TotalCount != 1 {
			t.Errorf("expected outcome recorded for %s, got %+v", snap.Decision.SelectedOption.Type, lf)
		}
	}

	// The run outcome and the scan summary must land in shared memory.
	reports, err := a.Memory.QueryMessages(store.MessageFilter{Source: "executor", MessageType: "conversion_report"})
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 conversion report in shared memory, got %d", len(reports))
	}
	var logged convert.Report
	if err := json.Unmarshal([]byte(reports[0].Content), &logged); err != nil {
		t.Fatalf("conversion report is not valid JSON: %v", err)
	}
	if logged.Total != 3 {
		t.Errorf("logged report total = %d, want 3", logged.Total)
	}

	knowledge, err := a.Memory.QueryKnowledge("detector", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(knowledge) != 1 {
		t.Errorf("expected 1 detector knowledge entry, got %d", len(knowledge))
	}

	// Snapshot serializes for the external reporting module.
	data, err := snap.JSON()
	if err != nil {
		t.Fatalf("snapshot JSON failed: %v", err)
	}
	var roundTrip RunSnapshot
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
}

func TestRemediate_InjectedConverterFailures(t *testing.T) {
	failing := func(_ context.Context, item detect.MockItem) error {
		if filepath.Base(item.Path) == "a.go" {
			return errors.New("generation rejected")
		}
		return nil
	}

	a := testApp(t, WithConverter(failing))
	seedMocks(t, a.Workspace)

	snap, err := a.Remediate(context.Background())
	if err != nil {
		t.Fatalf("Remediate failed: %v", err)
	}
	if snap.Report.Errored != 1 || snap.Report.Converted != 2 {
		t.Errorf("expected 2 converted / 1 errored, got %d/%d", snap.Report.Converted, snap.Report.Errored)
	}
}

func TestBuiltinCapabilities_Collaborate(t *testing.T) {
	a := testApp(t)
	seedMocks(t, a.Workspace)
	if err := a.RegisterBuiltinRoles(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Hub.Establish(DefaultObjectives); err != nil {
		t.Fatal(err)
	}

	result, err := a.Hub.Collaborate(context.Background(), "optimize workspace and plan next steps")
	if err != nil {
		t.Fatalf("Collaborate failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, failures: %v", result.Failures)
	}
	// strategic ("plan") and optimization ("optimize", "workspace") lead.
	if _, ok := result.Contributions["strategic"]; !ok {
		t.Error("missing strategic contribution")
	}
	if _, ok := result.Contributions["optimization"]; !ok {
		t.Error("missing optimization contribution")
	}
}
