package detect

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mocksmith/internal/logging"
)

// Watcher re-scans the workspace whenever files change and delivers fresh
// work queues. It replaces polling loops: a scan only runs after a change
// event, debounced so rapid saves coalesce into one scan.
type Watcher struct {
	mu       sync.Mutex
	scanner  *Scanner
	root     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	queues   chan []MockItem
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher over root using the given scanner.
func NewWatcher(scanner *Scanner, root string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		scanner:  scanner,
		root:     root,
		watcher:  fw,
		debounce: 500 * time.Millisecond,
		queues:   make(chan []MockItem, 1),
		doneCh:   make(chan struct{}),
	}, nil
}

// Queues returns the channel on which fresh work queues are delivered.
// Only the latest queue is retained if the consumer lags.
func (w *Watcher) Queues() <-chan []MockItem {
	return w.queues
}

// Start registers watches on root and its subdirectories and begins the
// event loop. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	log := logging.Get(logging.CategoryWatch)

	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		name := info.Name()
		if w.scanner.ignoreDirs[name] || (strings.HasPrefix(name, ".") && path != w.root) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Warn("Failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("Watching %s for changes", w.root)

	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	log := logging.Get(logging.CategoryWatch)
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("Change event: %s %s", event.Op, event.Name)

			// New directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						log.Warn("Failed to watch new dir %s: %v", event.Name, err)
					}
				}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerCh:
			timer = nil
			timerCh = nil

			items, summary, err := w.scanner.Scan(ctx, w.root)
			if err != nil {
				log.Error("Rescan failed: %v", err)
				continue
			}
			log.Info("Rescan produced %d items", summary.Total())

			// Drop the stale queue if the consumer hasn't taken it.
			select {
			case <-w.queues:
			default:
			}
			w.queues <- items

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("Watcher error: %v", err)
		}
	}
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.doneCh
	return err
}
