// Package detect implements mock detection and prioritization.
//
// A scan walks the workspace, flags files whose content contains a
// configured indicator token, assigns each a priority tier, and returns a
// deterministically ordered work queue: priority tier first, traversal
// discovery order within a tier.
package detect

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mocksmith/internal/config"
	"mocksmith/internal/logging"
)

// Priority is a work item's tier. Lower values sort first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	}
	return "UNKNOWN"
}

// MockItem is one detected unit of incomplete implementation. Immutable.
type MockItem struct {
	Path      string   `json:"path"`
	Indicator string   `json:"indicator"`
	Priority  Priority `json:"priority"`
}

// Summary aggregates one scan.
type Summary struct {
	FilesVisited int           `json:"files_visited"`
	High         int           `json:"high"`
	Medium       int           `json:"medium"`
	Low          int           `json:"low"`
	Skipped      int           `json:"skipped"` // unreadable files
	Duration     time.Duration `json:"duration"`
}

// Total returns the number of detected items.
func (s Summary) Total() int {
	return s.High + s.Medium + s.Low
}

// Scanner detects mock implementations in a file tree.
type Scanner struct {
	extensions map[string]bool
	indicators []string
	critical   []string
	minor      []string
	ignoreDirs map[string]bool
	maxSize    int64
}

// NewScanner builds a scanner from detection config. Token matching is
// case-insensitive, so tokens are lowered once here.
func NewScanner(cfg config.DetectionConfig) *Scanner {
	s := &Scanner{
		extensions: make(map[string]bool, len(cfg.Extensions)),
		ignoreDirs: make(map[string]bool, len(cfg.IgnoreDirs)),
		maxSize:    cfg.MaxFileSize,
	}
	for _, ext := range cfg.Extensions {
		s.extensions[strings.ToLower(ext)] = true
	}
	for _, d := range cfg.IgnoreDirs {
		s.ignoreDirs[d] = true
	}
	for _, tok := range cfg.Indicators {
		s.indicators = append(s.indicators, strings.ToLower(tok))
	}
	for _, tok := range cfg.CriticalTokens {
		s.critical = append(s.critical, strings.ToLower(tok))
	}
	for _, tok := range cfg.MinorTokens {
		s.minor = append(s.minor, strings.ToLower(tok))
	}
	return s
}

// Scan walks root and returns the prioritized work queue. Unreadable files
// are logged and skipped; they never fail the scan.
func (s *Scanner) Scan(ctx context.Context, root string) ([]MockItem, Summary, error) {
	timer := logging.StartTimer(logging.CategoryDetect, "Scan")
	defer timer.Stop()

	log := logging.Get(logging.CategoryDetect)
	log.Info("Scanning workspace: %s", root)

	start := time.Now()
	var items []MockItem
	var summary Summary

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			log.Warn("Walk error at %s: %v", path, err)
			summary.Skipped++
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			name := info.Name()
			if s.ignoreDirs[name] {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") && name != "." && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if s.maxSize > 0 && info.Size() > s.maxSize {
			log.Debug("Skipping oversized file: %s (%d bytes)", path, info.Size())
			return nil
		}

		summary.FilesVisited++

		data, err := os.ReadFile(path)
		if err != nil {
			// Per-file IO errors are recoverable: skip and move on.
			log.Warn("Failed to read %s: %v", path, err)
			summary.Skipped++
			return nil
		}

		content := strings.ToLower(string(data))
		indicator, found := s.firstIndicator(content)
		if !found {
			return nil
		}

		priority := s.classify(content)
		items = append(items, MockItem{Path: path, Indicator: indicator, Priority: priority})

		switch priority {
		case PriorityHigh:
			summary.High++
		case PriorityMedium:
			summary.Medium++
		case PriorityLow:
			summary.Low++
		}
		log.Debug("Detected mock: %s indicator=%q priority=%s", path, indicator, priority)
		return nil
	})
	if err != nil {
		return nil, summary, err
	}

	// Stable sort: priority tier, then discovery order within a tier.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority < items[j].Priority
	})

	summary.Duration = time.Since(start)
	log.Info("Scan complete: %d items (high=%d medium=%d low=%d) in %v",
		summary.Total(), summary.High, summary.Medium, summary.Low, summary.Duration)
	return items, summary, nil
}

// firstIndicator returns the first configured indicator present in the
// content. A file contributes at most one item; token scanning stops on
// the first hit.
func (s *Scanner) firstIndicator(content string) (string, bool) {
	for _, tok := range s.indicators {
		if strings.Contains(content, tok) {
			return tok, true
		}
	}
	return "", false
}

// classify assigns a tier: HIGH when a critical token is also present,
// LOW when a minor token is present, MEDIUM otherwise.
func (s *Scanner) classify(content string) Priority {
	for _, tok := range s.critical {
		if strings.Contains(content, tok) {
			return PriorityHigh
		}
	}
	for _, tok := range s.minor {
		if strings.Contains(content, tok) {
			return PriorityLow
		}
	}
	return PriorityMedium
}
