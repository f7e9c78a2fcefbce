// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DBPath         string
	LogLevel       slog.Level
	Runner         RunnerConfig
	Completion     CompletionConfig
	Resources      ResourcesConfig
	GRPCHealthAddr string // empty disables the gRPC health listener
}

// RunnerConfig selects how the model runner is executed.
type RunnerConfig struct {
	Path        string
	Container   string        // non-empty runs the binary inside this Docker container
	Timeout     time.Duration // list, rm and version calls
	PullTimeout time.Duration
}

// CompletionConfig tunes the chat completion path.
type CompletionConfig struct {
	Language      string
	Timeout       time.Duration // 0 disables
	MaxConcurrent int
	RateLimit     int // per client per minute, 0 disables
}

// ResourcesConfig controls host sampling.
type ResourcesConfig struct {
	Interval   time.Duration
	GPUEnabled bool
	GPUBinary  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		DBPath:         getEnv("DB_PATH", "./data/chat-history.db"),
		LogLevel:       level,
		Runner: RunnerConfig{
			Path:        getEnv("RUNNER_PATH", "ollama"),
			Container:   getEnv("RUNNER_CONTAINER", ""),
			Timeout:     getEnvDuration("RUNNER_TIMEOUT", time.Minute),
			PullTimeout: getEnvDuration("PULL_TIMEOUT", 30*time.Minute),
		},
		Completion: CompletionConfig{
			Language:      getEnv("PROMPT_LANGUAGE", "Chinese"),
			Timeout:       getEnvDuration("COMPLETION_TIMEOUT", 5*time.Minute),
			MaxConcurrent: getEnvInt("MAX_CONCURRENT_COMPLETIONS", 1),
			RateLimit:     getEnvInt("COMPLETION_RATE_LIMIT", 30),
		},
		Resources: ResourcesConfig{
			Interval:   getEnvDuration("RESOURCE_SAMPLE_INTERVAL", time.Second),
			GPUEnabled: getEnvBool("GPU_PROBE_ENABLED", true),
			GPUBinary:  getEnv("GPU_PROBE_PATH", "nvidia-smi"),
		},
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
	}

	if cfg.FrontendURL != "" && !contains(cfg.AllowedOrigins, cfg.FrontendURL) {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, cfg.FrontendURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Runner.Path == "" {
		return fmt.Errorf("RUNNER_PATH cannot be empty")
	}
	if c.Runner.Timeout <= 0 {
		return fmt.Errorf("RUNNER_TIMEOUT must be > 0")
	}
	if c.Runner.PullTimeout <= 0 {
		return fmt.Errorf("PULL_TIMEOUT must be > 0")
	}
	if c.Completion.Timeout < 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be >= 0")
	}
	if c.Completion.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_COMPLETIONS must be > 0")
	}
	if c.Completion.RateLimit < 0 {
		return fmt.Errorf("COMPLETION_RATE_LIMIT must be >= 0")
	}
	if c.Resources.Interval <= 0 {
		return fmt.Errorf("RESOURCE_SAMPLE_INTERVAL must be > 0")
	}
	return nil
}

// UsesContainer reports whether the runner lives in a Docker container.
func (c *Config) UsesContainer() bool {
	return c.Runner.Container != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
