// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file looked up by LoadDefault.
const DefaultFile = "omnisupply.toml"

// Config represents the engine configuration.
type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Storage    StorageConfig    `toml:"storage"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Risk       RiskConfig       `toml:"risk"`
	Analyst    AnalystConfig    `toml:"analyst"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Metrics    MetricsConfig    `toml:"metrics"`
	NATS       NATSConfig       `toml:"nats"`
	Email      EmailConfig      `toml:"email"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider          string  `toml:"provider"`
	Model             string  `toml:"model"`
	APIKeyEnv         string  `toml:"api_key_env"`
	MaxTokens         int     `toml:"max_tokens"`
	BaseURL           string  `toml:"base_url"`            // Custom API endpoint (OpenRouter, LiteLLM, Ollama)
	MaxRetries        int     `toml:"max_retries"`         // Transport retries inside the provider
	RetryBackoff      string  `toml:"retry_backoff"`       // Max backoff duration (e.g. "60s")
	RequestsPerMinute float64 `toml:"requests_per_minute"` // 0 disables client-side rate limiting
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path        string `toml:"path"`         // SQLite database file
	SessionsDir string `toml:"sessions_dir"` // Per-run session logs
}

// SupervisorConfig controls planning, selection and execution.
type SupervisorConfig struct {
	AgentTimeout  string  `toml:"agent_timeout"`  // Per-agent deadline (e.g. "120s")
	MaxAgents     int     `toml:"max_agents"`     // Upper bound on agents per request
	MinConfidence float64 `toml:"min_confidence"` // Floor for best-match fallback
	DefaultOrder  string  `toml:"default_order"`  // parallel | sequential
}

// RiskConfig contains the risk scoring configuration.
type RiskConfig struct {
	GatherTimeout string        `toml:"gather_timeout"` // Per-dimension gather deadline
	WindowDays    int           `toml:"window_days"`    // Lookback window for shipments/orders
	Weights       WeightsConfig `toml:"weights"`
	Levels        LevelsConfig  `toml:"levels"`
}

// WeightsConfig holds the per-dimension weights. They must sum to 1.0.
type WeightsConfig struct {
	Delivery   float64 `toml:"delivery"`
	Inventory  float64 `toml:"inventory"`
	Quality    float64 `toml:"quality"`
	Financial  float64 `toml:"financial"`
	Disruption float64 `toml:"disruption"`
}

// LevelsConfig holds the lower bounds of the MEDIUM, HIGH and CRITICAL levels.
type LevelsConfig struct {
	Medium   float64 `toml:"medium"`
	High     float64 `toml:"high"`
	Critical float64 `toml:"critical"`
}

// AnalystConfig contains data-analyst agent settings.
type AnalystConfig struct {
	MaxRetries            int     `toml:"max_retries"`
	MinClassifyConfidence float64 `toml:"min_classification_confidence"`
	RowLimit              int     `toml:"row_limit"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// NATSConfig configures alert publishing.
type NATSConfig struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// EmailConfig configures the email and workflow agent.
type EmailConfig struct {
	TaskDueDays  int                 `toml:"task_due_days"`
	Stakeholders []StakeholderConfig `toml:"stakeholders"` // Empty uses the built-in directory
}

// StakeholderConfig is one [[email.stakeholders]] entry.
type StakeholderConfig struct {
	Name  string `toml:"name"`
	Role  string `toml:"role"`
	Email string `toml:"email"`
	Level string `toml:"level"` // all | critical_only | digest
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Storage: StorageConfig{
			Path:        "~/.local/omnisupply/omnisupply.db",
			SessionsDir: "~/.local/omnisupply/sessions",
		},
		Supervisor: SupervisorConfig{
			AgentTimeout:  "120s",
			MaxAgents:     5,
			MinConfidence: 0.3,
			DefaultOrder:  "parallel",
		},
		Risk: RiskConfig{
			GatherTimeout: "30s",
			WindowDays:    30,
			Weights: WeightsConfig{
				Delivery:   0.30,
				Inventory:  0.25,
				Quality:    0.20,
				Financial:  0.15,
				Disruption: 0.10,
			},
			Levels: LevelsConfig{
				Medium:   0.3,
				High:     0.6,
				Critical: 0.8,
			},
		},
		Analyst: AnalystConfig{
			MaxRetries:            2,
			MinClassifyConfidence: 0.5,
			RowLimit:              100,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "omnisupply.alerts",
		},
		Email: EmailConfig{
			TaskDueDays: 7,
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from omnisupply.toml in the current directory.
// A missing file yields the defaults.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, DefaultFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate checks values that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	w := c.Risk.Weights
	for name, v := range map[string]float64{
		"delivery": w.Delivery, "inventory": w.Inventory, "quality": w.Quality,
		"financial": w.Financial, "disruption": w.Disruption,
	} {
		if v < 0 {
			return fmt.Errorf("risk.weights.%s must not be negative (got %v)", name, v)
		}
	}
	if sum := w.Delivery + w.Inventory + w.Quality + w.Financial + w.Disruption; math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("risk.weights must sum to 1.0 (got %.6f)", sum)
	}

	l := c.Risk.Levels
	if !(0 < l.Medium && l.Medium < l.High && l.High < l.Critical && l.Critical < 1) {
		return fmt.Errorf("risk.levels must satisfy 0 < medium < high < critical < 1")
	}

	switch c.Supervisor.DefaultOrder {
	case "parallel", "sequential":
	default:
		return fmt.Errorf("supervisor.default_order must be parallel or sequential (got %q)", c.Supervisor.DefaultOrder)
	}
	if c.Supervisor.MaxAgents < 1 {
		return fmt.Errorf("supervisor.max_agents must be at least 1")
	}

	if c.Email.TaskDueDays < 1 {
		return fmt.Errorf("email.task_due_days must be at least 1")
	}
	for i, p := range c.Email.Stakeholders {
		if p.Role == "" || p.Email == "" {
			return fmt.Errorf("email.stakeholders[%d] needs a role and an email", i)
		}
		switch p.Level {
		case "", "all", "critical_only", "digest":
		default:
			return fmt.Errorf("email.stakeholders[%d].level must be all, critical_only or digest (got %q)", i, p.Level)
		}
	}

	for key, s := range map[string]string{
		"supervisor.agent_timeout": c.Supervisor.AgentTimeout,
		"risk.gather_timeout":      c.Risk.GatherTimeout,
		"llm.retry_backoff":        c.LLM.RetryBackoff,
	} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// AgentTimeout returns the parsed per-agent deadline.
func (c *Config) AgentTimeout() time.Duration {
	return parseDuration(c.Supervisor.AgentTimeout, 120*time.Second)
}

// GatherTimeout returns the parsed per-dimension gather deadline.
func (c *Config) GatherTimeout() time.Duration {
	return parseDuration(c.Risk.GatherTimeout, 30*time.Second)
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
