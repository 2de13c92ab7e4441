package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration. Values come from an optional
// YAML file (CONFIG_FILE) with environment variables taking precedence.
// The upstream API key is environment-only so it never lands in a file.
type Config struct {
	Port    int    `yaml:"port"`
	Store   string `yaml:"store"` // "file" or "sqlite"
	DataDir string `yaml:"data_dir"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	OpenAI    OpenAIConfig    `yaml:"openai"`

	HistoryWindow          int `yaml:"history_window"`
	HistoryTokenBudget     int `yaml:"history_token_budget"`
	UpstreamTimeoutSeconds int `yaml:"upstream_timeout_seconds"`
}

type RateLimitConfig struct {
	Max           int `yaml:"max"`
	WindowSeconds int `yaml:"window_seconds"`
}

type OpenAIConfig struct {
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

func Default() *Config {
	return &Config{
		Port:    10000,
		Store:   "file",
		DataDir: "data",
		RateLimit: RateLimitConfig{
			Max:           30,
			WindowSeconds: 300,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
		},
		HistoryWindow:          10,
		HistoryTokenBudget:     2000,
		UpstreamTimeoutSeconds: 20,
	}
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_FILE (if set), then environment overrides, and validates the
// result.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envInt("PORT", &c.Port)
	envStr("STORE", &c.Store)
	envStr("DATA_DIR", &c.DataDir)
	envStr("OPENAI_API_KEY", &c.OpenAI.APIKey)
	envStr("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	envStr("OPENAI_MODEL", &c.OpenAI.Model)
	envFloat("OPENAI_TEMPERATURE", &c.OpenAI.Temperature)
	envInt("OPENAI_MAX_TOKENS", &c.OpenAI.MaxTokens)
	envInt("RATE_LIMIT_MAX", &c.RateLimit.Max)
	envInt("RATE_LIMIT_WINDOW_SECONDS", &c.RateLimit.WindowSeconds)
	envInt("HISTORY_WINDOW", &c.HistoryWindow)
	envInt("HISTORY_TOKEN_BUDGET", &c.HistoryTokenBudget)
	envInt("UPSTREAM_TIMEOUT_SECONDS", &c.UpstreamTimeoutSeconds)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Store != "file" && c.Store != "sqlite" {
		return fmt.Errorf(`store must be "file" or "sqlite", got %q`, c.Store)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate_limit.max must be positive, got %d", c.RateLimit.Max)
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds)
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai.temperature must be between 0 and 2, got %f", c.OpenAI.Temperature)
	}
	if c.UpstreamTimeoutSeconds <= 0 {
		return fmt.Errorf("upstream_timeout_seconds must be positive, got %d", c.UpstreamTimeoutSeconds)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window must not be negative, got %d", c.HistoryWindow)
	}
	return nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
