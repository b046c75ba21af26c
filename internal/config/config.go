// Package config handles reading and writing .aiorch/config.yaml and the
// environment-provided credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .aiorch/config.yaml.
type Config struct {
	Version       int                 `yaml:"version"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Routing       RoutingConfig       `yaml:"routing"`
	Orchestration OrchestrationConfig `yaml:"orchestration"`
	Session       SessionConfig       `yaml:"session"`
	Output        OutputConfig        `yaml:"output"`
	Server        ServerConfig        `yaml:"server"`
}

// ProvidersConfig holds per-provider connection settings.
type ProvidersConfig struct {
	OpenAI ProviderConfig `yaml:"openai"`
	Gemini ProviderConfig `yaml:"gemini"`
}

// ProviderConfig configures one remote text-generation provider.
// The API key is never stored in the file; it is read from APIKeyEnv.
type ProviderConfig struct {
	Model          string        `yaml:"model"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerMin int           `yaml:"requests_per_minute"`
}

// RoutingConfig selects which provider plays which role.
// Valid provider names are "openai", "gemini" and "mock".
type RoutingConfig struct {
	Plan                bool    `yaml:"plan"`
	Planner             string  `yaml:"planner"`
	Generator           string  `yaml:"generator"`
	Reviewer            string  `yaml:"reviewer"` // empty disables review
	PlannerTemperature  float64 `yaml:"planner_temperature"`
	ReviewerTemperature float64 `yaml:"reviewer_temperature"`
}

// OrchestrationConfig controls retries, review loops and breakers.
type OrchestrationConfig struct {
	MaxRetries              int           `yaml:"max_retries"`
	MaxFeedbackLoops        int           `yaml:"max_feedback_loops"`
	BackoffBase             time.Duration `yaml:"backoff_base"`
	MaxBackoff              time.Duration `yaml:"max_backoff"`
	CircuitBreakerThreshold int           `yaml:"circuit_breaker_threshold"`
	CircuitBreakerCooldown  time.Duration `yaml:"circuit_breaker_cooldown"`
}

// SessionConfig controls the session store.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"` // 0 = unbounded
	TTL         time.Duration `yaml:"ttl"`          // 0 = never expire
	MaxHistory  int           `yaml:"max_history"`  // 0 = unbounded
	Persist     bool          `yaml:"persist"`
	DBPath      string        `yaml:"db_path"` // relative to the project dir
}

// OutputConfig controls the local output archive.
type OutputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// ServerConfig controls the HTTP inbound adapter.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

const configDir = ".aiorch"
const configFile = "config.yaml"

// Dir returns the state directory for a project root.
func Dir(root string) string {
	return filepath.Join(root, configDir)
}

// ReadConfig reads .aiorch/config.yaml from the given project directory.
// dir is the project root (not .aiorch/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads the config, falling back to defaults when the file
// does not exist. Malformed files are still an error.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return nil, err
}

// WriteConfig writes cfg to .aiorch/config.yaml in the given project directory.
// Creates the .aiorch/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Model:          "gpt-4-turbo",
				APIKeyEnv:      "OPENAI_API_KEY",
				Timeout:        60 * time.Second,
				RequestsPerMin: 60,
			},
			Gemini: ProviderConfig{
				Model:          "gemini-1.5-pro",
				APIKeyEnv:      "GEMINI_API_KEY",
				Timeout:        60 * time.Second,
				RequestsPerMin: 60,
			},
		},
		Routing: RoutingConfig{
			Plan:                true,
			Planner:             "gemini",
			Generator:           "openai",
			Reviewer:            "gemini",
			PlannerTemperature:  0.2,
			ReviewerTemperature: 0.6,
		},
		Orchestration: OrchestrationConfig{
			MaxRetries:              3,
			MaxFeedbackLoops:        2,
			BackoffBase:             time.Second,
			MaxBackoff:              10 * time.Second,
			CircuitBreakerThreshold: 5,
			CircuitBreakerCooldown:  30 * time.Second,
		},
		Session: SessionConfig{
			MaxSessions: 10000,
			TTL:         24 * time.Hour,
			MaxHistory:  200,
			Persist:     true,
			DBPath:      filepath.Join(configDir, "sessions.db"),
		},
		Output: OutputConfig{
			Enabled: true,
			Dir:     filepath.Join(configDir, "outputs"),
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			RequestTimeout: 5 * time.Minute,
		},
	}
}

// LoadEnv loads KEY=VALUE pairs from the .env file in dir, if any.
// Variables already set in the process environment win.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides selected fields from AIORCH_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("AIORCH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AIORCH_OPENAI_BASE_URL"); v != "" {
		c.Providers.OpenAI.BaseURL = v
	}
	if v := os.Getenv("AIORCH_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AIORCH_MAX_RETRIES: %w", err)
		}
		c.Orchestration.MaxRetries = n
	}
	if v := os.Getenv("AIORCH_MAX_FEEDBACK_LOOPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AIORCH_MAX_FEEDBACK_LOOPS: %w", err)
		}
		c.Orchestration.MaxFeedbackLoops = n
	}
	return nil
}

// APIKey returns the credential for p from the environment, or "".
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Validate reports configuration values the orchestrator cannot work with.
func (c *Config) Validate() error {
	if c.Orchestration.MaxRetries < 1 {
		return fmt.Errorf("orchestration.max_retries must be >= 1, got %d", c.Orchestration.MaxRetries)
	}
	if c.Orchestration.MaxFeedbackLoops < 0 {
		return fmt.Errorf("orchestration.max_feedback_loops must be >= 0, got %d", c.Orchestration.MaxFeedbackLoops)
	}
	for role, name := range map[string]string{"generator": c.Routing.Generator, "planner": c.Routing.Planner, "reviewer": c.Routing.Reviewer} {
		if name == "" && (role == "generator" || (role == "planner" && c.Routing.Plan)) {
			return fmt.Errorf("routing.%s is required", role)
		}
		switch name {
		case "", "openai", "gemini", "mock":
		default:
			return fmt.Errorf("routing.%s: unknown provider %q", role, name)
		}
	}
	return nil
}
