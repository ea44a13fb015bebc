package detect

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestWatcher_RescansOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	w, err := NewWatcher(testScanner(), root)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Touch a file containing an indicator; the debounced rescan should
	// deliver a queue with one item.
	writeFile(t, root, "b.go", "// TODO: implement critical fix\n")

	select {
	case items := <-w.Queues():
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if items[0].Priority != PriorityHigh {
			t.Errorf("expected HIGH priority, got %s", items[0].Priority)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rescan queue")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	w, err := NewWatcher(testScanner(), root)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
