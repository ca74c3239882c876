// Package config centralises inkwright configuration: storage paths, LLM
// backend settings, planner budgets, and orchestrator retry policy. Loaded
// from YAML with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all inkwright configuration.
type Config struct {
	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// LLM backend configuration
	LLM LLMConfig `yaml:"llm"`

	// Context planner settings
	Planner PlannerConfig `yaml:"planner"`

	// Agent orchestrator settings
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// StorageConfig configures on-disk state.
type StorageConfig struct {
	// Path to the SQLite database file.
	DatabasePath string `yaml:"database_path"`
}

// LLMConfig configures the LLM backend.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`

	// MaxConcurrentCalls bounds simultaneous LLM calls across all runs.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
}

// PlannerConfig configures context planning budgets.
type PlannerConfig struct {
	// ReservedOverhead covers the system prompt skeleton and is subtracted
	// from every budget alongside the model's output reservation.
	ReservedOverhead int `yaml:"reserved_overhead"`

	// SummaryTokenCeiling caps precomputed resource summaries used as a
	// fallback inclusion mode.
	SummaryTokenCeiling int `yaml:"summary_token_ceiling"`

	// ChunkSizeTokens is the target chunk size for oversized resources.
	ChunkSizeTokens int `yaml:"chunk_size_tokens"`
}

// OrchestratorConfig configures pass retries and backoff.
type OrchestratorConfig struct {
	// MaxTransientRetries is the retry count for timeouts/5xx per LLM call.
	MaxTransientRetries int `yaml:"max_transient_retries"`

	// RetryBackoffBase is the base for exponential backoff between retries.
	RetryBackoffBase string `yaml:"retry_backoff_base"`

	// RetryBackoffMax caps the backoff duration.
	RetryBackoffMax string `yaml:"retry_backoff_max"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: filepath.Join("storage", "inkwright.db"),
		},
		LLM: LLMConfig{
			Model:              "gemini-2.0-flash-exp",
			Timeout:            "120s",
			MaxConcurrentCalls: 4,
		},
		Planner: PlannerConfig{
			ReservedOverhead:    2000,
			SummaryTokenCeiling: 512,
			ChunkSizeTokens:     8000,
		},
		Orchestrator: OrchestratorConfig{
			MaxTransientRetries: 3,
			RetryBackoffBase:    "500ms",
			RetryBackoffMax:     "8s",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("INKWRIGHT_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("INKWRIGHT_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
}

// LLMTimeout returns the per-call LLM timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// RetryBackoffBase returns the parsed backoff base.
func (c *Config) RetryBackoffBase() time.Duration {
	d, err := time.ParseDuration(c.Orchestrator.RetryBackoffBase)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// RetryBackoffMax returns the parsed backoff cap.
func (c *Config) RetryBackoffMax() time.Duration {
	d, err := time.ParseDuration(c.Orchestrator.RetryBackoffMax)
	if err != nil {
		return 8 * time.Second
	}
	return d
}

// Validate checks settings that have no workable fallback.
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path not configured")
	}
	if c.Planner.ReservedOverhead < 0 {
		return fmt.Errorf("planner.reserved_overhead must be non-negative")
	}
	if c.Planner.ChunkSizeTokens <= 0 {
		return fmt.Errorf("planner.chunk_size_tokens must be positive")
	}
	if c.LLM.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("llm.max_concurrent_calls must be positive")
	}
	return nil
}
