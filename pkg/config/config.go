// Package config loads runtime configuration by merging the config
// file, environment variables, and defaults. Priority: config file >
// env var > default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	// Provider selects the model backend: "anthropic" or "openai".
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// Context budget and compaction tuning.
	MaxTokens           int
	MaxOutputTokens     int
	CompactionThreshold float64
	PruneTarget         float64
	PruneProtectTokens  int
	PruneMinTokens      int
	MinKeepTurns        int
	SummaryMaxTokens    int

	// Run budgets.
	MaxSteps     int
	WallClock    time.Duration
	CostLimitUSD float64

	// Retry and recovery bounds.
	MaxRetries         int
	RetryMaxDelay      time.Duration
	MaxParseRetries    int
	MaxOverflowRetries int

	// Tool execution.
	WorkDir       string
	ToolTimeout   time.Duration
	ToolOutputMax int

	// Verification.
	MaxVerificationCalls int
	RequireConfirmation  bool

	// Prompt caching.
	CacheEnabled     bool
	ExtendedCacheTTL bool
}

// fileConfig maps to the YAML config file structure. Pointer fields
// distinguish "unset" from an explicit zero.
type fileConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`

	MaxTokens           *int     `yaml:"max_tokens,omitempty"`
	MaxOutputTokens     *int     `yaml:"max_output_tokens,omitempty"`
	CompactionThreshold *float64 `yaml:"compaction_threshold,omitempty"`
	PruneTarget         *float64 `yaml:"prune_target,omitempty"`
	PruneProtectTokens  *int     `yaml:"prune_protect_tokens,omitempty"`
	PruneMinTokens      *int     `yaml:"prune_min_tokens,omitempty"`
	MinKeepTurns        *int     `yaml:"min_keep_turns,omitempty"`
	SummaryMaxTokens    *int     `yaml:"summary_max_tokens,omitempty"`

	MaxSteps         *int     `yaml:"max_steps,omitempty"`
	WallClockSeconds *int     `yaml:"wall_clock_seconds,omitempty"`
	CostLimitUSD     *float64 `yaml:"cost_limit_usd,omitempty"`

	MaxRetries           *int `yaml:"max_retries,omitempty"`
	RetryMaxDelaySeconds *int `yaml:"retry_max_delay_seconds,omitempty"`
	MaxParseRetries      *int `yaml:"max_parse_retries,omitempty"`
	MaxOverflowRetries   *int `yaml:"max_overflow_retries,omitempty"`

	WorkDir            string `yaml:"work_dir,omitempty"`
	ToolTimeoutSeconds *int   `yaml:"tool_timeout_seconds,omitempty"`
	ToolOutputMax      *int   `yaml:"tool_output_max,omitempty"`

	MaxVerificationCalls *int  `yaml:"max_verification_calls,omitempty"`
	RequireConfirmation  *bool `yaml:"require_confirmation,omitempty"`

	CacheEnabled     *bool `yaml:"cache_enabled,omitempty"`
	ExtendedCacheTTL *bool `yaml:"extended_cache_ttl,omitempty"`
}

// resolve returns the first non-empty value from the provided strings.
func resolve(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveInt returns the file value if set, then the env var parsed as
// an integer, then the default.
func resolveInt(file *int, env string, def int) int {
	if file != nil {
		return *file
	}
	if env != "" {
		if n, err := strconv.Atoi(env); err == nil {
			return n
		}
	}
	return def
}

func resolveFloat(file *float64, env string, def float64) float64 {
	if file != nil {
		return *file
	}
	if env != "" {
		if f, err := strconv.ParseFloat(env, 64); err == nil {
			return f
		}
	}
	return def
}

func resolveBool(file *bool, env string, def bool) bool {
	if file != nil {
		return *file
	}
	if env != "" {
		if b, err := strconv.ParseBool(env); err == nil {
			return b
		}
	}
	return def
}

// Load reads configuration by merging config file, environment
// variables, and defaults. Returns an error if the API key is not set
// from any source.
func Load() (*Config, error) {
	if err := EnsureWorkspace(); err != nil {
		return nil, err
	}
	fc, err := readConfigFile()
	if err != nil {
		return nil, err
	}

	provider := resolve(fc.Provider, os.Getenv("STRIDE_PROVIDER"), "anthropic")

	apiKeyEnv := os.Getenv("ANTHROPIC_API_KEY")
	baseURLEnv := os.Getenv("ANTHROPIC_BASE_URL")
	defaultModel := "claude-sonnet-4-20250514"
	if provider == "openai" {
		apiKeyEnv = os.Getenv("OPENAI_API_KEY")
		baseURLEnv = os.Getenv("OPENAI_BASE_URL")
		defaultModel = "gpt-4o"
	}

	cfg := &Config{
		Provider: provider,
		Model:    resolve(fc.Model, os.Getenv("STRIDE_MODEL"), defaultModel),
		APIKey:   resolve(fc.APIKey, apiKeyEnv),
		BaseURL:  resolve(fc.BaseURL, baseURLEnv),

		MaxTokens:           resolveInt(fc.MaxTokens, os.Getenv("STRIDE_MAX_TOKENS"), 180000),
		MaxOutputTokens:     resolveInt(fc.MaxOutputTokens, os.Getenv("STRIDE_MAX_OUTPUT_TOKENS"), 8192),
		CompactionThreshold: resolveFloat(fc.CompactionThreshold, os.Getenv("STRIDE_COMPACTION_THRESHOLD"), 0.85),
		PruneTarget:         resolveFloat(fc.PruneTarget, os.Getenv("STRIDE_PRUNE_TARGET"), 0.75),
		PruneProtectTokens:  resolveInt(fc.PruneProtectTokens, os.Getenv("STRIDE_PRUNE_PROTECT_TOKENS"), 36000),
		PruneMinTokens:      resolveInt(fc.PruneMinTokens, os.Getenv("STRIDE_PRUNE_MIN_TOKENS"), 6000),
		MinKeepTurns:        resolveInt(fc.MinKeepTurns, os.Getenv("STRIDE_MIN_KEEP_TURNS"), 6),
		SummaryMaxTokens:    resolveInt(fc.SummaryMaxTokens, os.Getenv("STRIDE_SUMMARY_MAX_TOKENS"), 2048),

		MaxSteps:     resolveInt(fc.MaxSteps, os.Getenv("STRIDE_MAX_STEPS"), 100),
		WallClock:    time.Duration(resolveInt(fc.WallClockSeconds, os.Getenv("STRIDE_WALL_CLOCK_SECONDS"), 3600)) * time.Second,
		CostLimitUSD: resolveFloat(fc.CostLimitUSD, os.Getenv("STRIDE_COST_LIMIT_USD"), 0),

		MaxRetries:         resolveInt(fc.MaxRetries, os.Getenv("STRIDE_MAX_RETRIES"), 5),
		RetryMaxDelay:      time.Duration(resolveInt(fc.RetryMaxDelaySeconds, os.Getenv("STRIDE_RETRY_MAX_DELAY_SECONDS"), 30)) * time.Second,
		MaxParseRetries:    resolveInt(fc.MaxParseRetries, os.Getenv("STRIDE_MAX_PARSE_RETRIES"), 3),
		MaxOverflowRetries: resolveInt(fc.MaxOverflowRetries, os.Getenv("STRIDE_MAX_OVERFLOW_RETRIES"), 2),

		WorkDir:       resolve(fc.WorkDir, os.Getenv("STRIDE_WORK_DIR")),
		ToolTimeout:   time.Duration(resolveInt(fc.ToolTimeoutSeconds, os.Getenv("STRIDE_TOOL_TIMEOUT_SECONDS"), 120)) * time.Second,
		ToolOutputMax: resolveInt(fc.ToolOutputMax, os.Getenv("STRIDE_TOOL_OUTPUT_MAX"), 40000),

		MaxVerificationCalls: resolveInt(fc.MaxVerificationCalls, os.Getenv("STRIDE_MAX_VERIFICATION_CALLS"), 5),
		RequireConfirmation:  resolveBool(fc.RequireConfirmation, os.Getenv("STRIDE_REQUIRE_CONFIRMATION"), true),

		CacheEnabled:     resolveBool(fc.CacheEnabled, os.Getenv("STRIDE_CACHE_ENABLED"), true),
		ExtendedCacheTTL: resolveBool(fc.ExtendedCacheTTL, os.Getenv("STRIDE_EXTENDED_CACHE_TTL"), false),
	}

	if cfg.APIKey == "" {
		key := "ANTHROPIC_API_KEY"
		if provider == "openai" {
			key = "OPENAI_API_KEY"
		}
		return nil, fmt.Errorf("%s is required (set via env var or config file)", key)
	}
	if cfg.CompactionThreshold <= cfg.PruneTarget {
		return nil, fmt.Errorf("compaction_threshold (%.2f) must exceed prune_target (%.2f)",
			cfg.CompactionThreshold, cfg.PruneTarget)
	}

	return cfg, nil
}

// homeDir returns the stride home directory, honoring STRIDE_HOME.
func homeDir() (string, error) {
	if dir := os.Getenv("STRIDE_HOME"); dir != "" {
		return dir, nil
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(h, ".stride"), nil
}

// EnsureWorkspace creates the stride home directory if missing.
func EnsureWorkspace() error {
	dir, err := homeDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}
	return nil
}

// readConfigFile reads and parses the YAML config file. Returns a
// zero-value fileConfig if the file does not exist.
func readConfigFile() (fileConfig, error) {
	var fc fileConfig

	dir, err := homeDir()
	if err != nil {
		return fc, err
	}
	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, nil
		}
		return fc, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return fc, nil
}
