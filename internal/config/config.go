// Package config provides configuration types and defaults for nsstore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/pipeline"
	"github.com/zjrosen/nsstore/internal/processor"
	"github.com/zjrosen/nsstore/internal/tracing"
)

// Token semantics accepted by EngineConfig.TokenSemantics.
const (
	TokensSet      = "set"
	TokensMultiset = "multiset"
)

// Config holds all configuration options for nsstore.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Processor  ProcessorConfig  `mapstructure:"processor" yaml:"processor"`
	Middleware MiddlewareConfig `mapstructure:"middleware" yaml:"middleware"`
	Tracing    tracing.Config   `mapstructure:"tracing" yaml:"tracing"`
	Journal    JournalConfig    `mapstructure:"journal" yaml:"journal"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Flags      map[string]bool  `mapstructure:"flags" yaml:"flags"`
}

// EngineConfig controls owner token bookkeeping.
type EngineConfig struct {
	// TokenSemantics is "set" (default) or "multiset". Under multiset a
	// token ref'd twice must be unref'd twice.
	TokenSemantics string `mapstructure:"token_semantics" yaml:"token_semantics"`
	// StrictUnref rejects unref of a token the namespace does not hold.
	StrictUnref bool `mapstructure:"strict_unref" yaml:"strict_unref"`
}

// Options converts the section into engine options.
func (e EngineConfig) Options() []namespace.EngineOption {
	var opts []namespace.EngineOption
	if e.TokenSemantics == TokensMultiset {
		opts = append(opts, namespace.WithTokenMultiset())
	}
	if e.StrictUnref {
		opts = append(opts, namespace.WithStrictUnref())
	}
	return opts
}

// ProcessorConfig sizes the async dispatch queue.
type ProcessorConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
}

// MiddlewareConfig tunes the stock pipeline stages.
type MiddlewareConfig struct {
	// DedupTTL is how long a content hash blocks a repeat. Zero disables dedup.
	DedupTTL time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl"`
	// SlowThreshold logs a warning for dispatches slower than this. Zero
	// disables the warning.
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	// DiffState logs a diff of the namespace slot after each routed action.
	DiffState bool `mapstructure:"diff_state" yaml:"diff_state"`
}

// JournalConfig controls the SQLite lifecycle journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
	// IncludeUpdates also records business action updates.
	IncludeUpdates bool `mapstructure:"include_updates" yaml:"include_updates"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfigDir returns ~/.config/nsstore, or "" when the home
// directory is unavailable.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nsstore")
}

// DefaultTracesFilePath returns the default JSONL trace file.
func DefaultTracesFilePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// DefaultJournalPath returns the default journal database.
func DefaultJournalPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "journal.db")
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	traces := tracing.DefaultConfig()
	traces.FilePath = DefaultTracesFilePath()

	return Config{
		Engine: EngineConfig{
			TokenSemantics: TokensSet,
		},
		Processor: ProcessorConfig{
			QueueCapacity: processor.DefaultQueueCapacity,
		},
		Middleware: MiddlewareConfig{
			DedupTTL:      pipeline.DefaultDedupTTL,
			SlowThreshold: pipeline.DefaultSlowThreshold,
		},
		Tracing: traces,
		Journal: JournalConfig{
			Path: DefaultJournalPath(),
		},
		Log: LogConfig{
			Path:  "debug.log",
			Level: "debug",
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if err := ValidateEngine(c.Engine); err != nil {
		return err
	}
	if c.Processor.QueueCapacity < 0 {
		return fmt.Errorf("processor.queue_capacity must not be negative, got %d", c.Processor.QueueCapacity)
	}
	if c.Middleware.DedupTTL < 0 {
		return fmt.Errorf("middleware.dedup_ttl must not be negative, got %s", c.Middleware.DedupTTL)
	}
	if c.Middleware.SlowThreshold < 0 {
		return fmt.Errorf("middleware.slow_threshold must not be negative, got %s", c.Middleware.SlowThreshold)
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if c.Log.Level != "" {
		if _, ok := log.ParseLevel(c.Log.Level); !ok {
			return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
		}
	}
	return nil
}

// ValidateEngine checks the engine section.
func ValidateEngine(e EngineConfig) error {
	switch e.TokenSemantics {
	case "", TokensSet, TokensMultiset:
		return nil
	default:
		return fmt.Errorf("engine.token_semantics must be %q or %q, got %q", TokensSet, TokensMultiset, e.TokenSemantics)
	}
}

// DefaultConfigTemplate returns the default config as YAML with comments.
func DefaultConfigTemplate() string {
	return `# nsstore configuration

# Owner token bookkeeping
engine:
  token_semantics: set    # "set" (default) or "multiset"
  strict_unref: false     # reject unref of a token the namespace does not hold

# Async dispatch queue used for deferred work
processor:
  queue_capacity: 1000

# Stock pipeline stages
middleware:
  dedup_ttl: 5s           # drop repeated identical actions within this window (0 disables)
  slow_threshold: 100ms   # warn about slower dispatches (0 disables)
  diff_state: false       # log a diff of the namespace state after each action

# OpenTelemetry tracing
tracing:
  enabled: false
  exporter: file          # none, file, stdout, otlp
  # file_path: ~/.config/nsstore/traces/traces.jsonl
  # otlp_endpoint: localhost:4317
  sample_rate: 1.0
  service_name: nsstore

# SQLite lifecycle journal
journal:
  enabled: false
  # path: ~/.config/nsstore/journal.db
  include_updates: false

# Debug log (enabled with --debug or NSSTORE_DEBUG)
log:
  path: debug.log
  level: debug

# Feature flags (unset flags use built-in defaults)
# flags:
#   deferred-actions: true
#   action-log: false
`
}

// WriteDefaultConfig writes DefaultConfigTemplate to configPath, creating
// the parent directory.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
