// Package config holds all mocksmith configuration. Config lives at
// <workspace>/.mocksmith/config.yaml and is created on first init.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mocksmith configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Mock detection settings
	Detection DetectionConfig `yaml:"detection"`

	// Conversion executor settings
	Conversion ConversionConfig `yaml:"conversion"`

	// Decision engine settings
	Decision DecisionConfig `yaml:"decision"`

	// Coordination hub settings
	Coordination CoordinationConfig `yaml:"coordination"`

	// Shared memory store
	Memory MemoryConfig `yaml:"memory"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DetectionConfig configures the mock detector.
type DetectionConfig struct {
	// Extensions limits scanning to these file extensions.
	Extensions []string `yaml:"extensions"`
	// Indicators are case-insensitive substrings that mark a mock unit.
	Indicators []string `yaml:"indicators"`
	// CriticalTokens escalate a matched file to HIGH priority.
	CriticalTokens []string `yaml:"critical_tokens"`
	// MinorTokens demote a matched file to LOW priority.
	MinorTokens []string `yaml:"minor_tokens"`
	// IgnoreDirs are directory names skipped during traversal.
	IgnoreDirs []string `yaml:"ignore_dirs"`
	// MaxFileSize caps file reads in bytes (0 = no cap).
	MaxFileSize int64 `yaml:"max_file_size"`
}

// ConversionConfig configures the bounded conversion executor.
type ConversionConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
	// ItemTimeout bounds a single conversion ("0s" disables, the default:
	// the executor historically let a hung conversion hold its permit).
	ItemTimeout string `yaml:"item_timeout"`
}

// DecisionConfig configures the decision engine.
type DecisionConfig struct {
	// HistoryLimit caps in-memory decision history (0 = unbounded).
	HistoryLimit int `yaml:"history_limit"`
}

// CoordinationConfig configures the hub.
type CoordinationConfig struct {
	// RolesPath optionally points to a YAML role-definition file.
	// Empty means the compiled-in defaults.
	RolesPath string `yaml:"roles_path"`
}

// MemoryConfig configures the shared memory store.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "mocksmith",
		Version: "1.0.0",
		Detection: DetectionConfig{
			Extensions: []string{".go", ".py", ".js", ".ts", ".java", ".rs"},
			Indicators: []string{
				"TODO: implement",
				"mock implementation",
				"notimplementederror",
				"not implemented",
				"placeholder",
				"panic(\"unimplemented\")",
			},
			CriticalTokens: []string{"critical", "important", "security"},
			MinorTokens:    []string{"minor", "optional", "cosmetic"},
			IgnoreDirs:     []string{".git", "node_modules", "vendor", ".mocksmith"},
			MaxFileSize:    2 << 20,
		},
		Conversion: ConversionConfig{
			MaxConcurrency: 3,
			ItemTimeout:    "0s",
		},
		Decision: DecisionConfig{
			HistoryLimit: 1000,
		},
		Memory: MemoryConfig{
			DatabasePath: ".mocksmith/shared_memory.db",
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads config from the given path and applies env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from the workspace, falling back to defaults
// when no config file exists yet.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	return Load(path)
}

// Path returns the canonical config path for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".mocksmith", "config.yaml")
}

// Save writes the config as YAML to the given path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks invariants that would otherwise surface deep in a run.
func (c *Config) Validate() error {
	if c.Conversion.MaxConcurrency < 1 {
		return fmt.Errorf("conversion.max_concurrency must be >= 1, got %d", c.Conversion.MaxConcurrency)
	}
	if _, err := c.ItemTimeout(); err != nil {
		return fmt.Errorf("conversion.item_timeout: %w", err)
	}
	if len(c.Detection.Indicators) == 0 {
		return fmt.Errorf("detection.indicators must not be empty")
	}
	return nil
}

// ItemTimeout parses the per-item conversion timeout. Zero disables it.
func (c *Config) ItemTimeout() (time.Duration, error) {
	if c.Conversion.ItemTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Conversion.ItemTimeout)
}

// applyEnvOverrides applies MOCKSMITH_* environment overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MOCKSMITH_DB_PATH"); v != "" {
		c.Memory.DatabasePath = v
	}
	if v := os.Getenv("MOCKSMITH_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			c.Conversion.MaxConcurrency = n
		}
	}
	if v := os.Getenv("MOCKSMITH_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() (bool, string, map[string]bool) {
	return c.Logging.DebugMode, c.Logging.Level, c.Logging.Categories
}
