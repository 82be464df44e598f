package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eye-report/api/internal/apperr"
)

type Config struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`

	Provider    string  `yaml:"llm_provider"`
	APIKey      string  `yaml:"llm_api_key"`
	BaseURL     string  `yaml:"llm_base_url"`
	Model       string  `yaml:"llm_model"`
	Temperature float64 `yaml:"llm_temperature"`

	ReferencePath     string `yaml:"reference_path"`
	ReferenceMaxPages int    `yaml:"reference_max_pages"`
	ReferenceMaxChars int    `yaml:"reference_max_chars"`

	RequireAcknowledgment bool   `yaml:"require_acknowledgment"`
	ValidateHeadings      bool   `yaml:"validate_headings"`
	ShareBaseURL          string `yaml:"share_base_url"`
	MaxImageBytes         int64  `yaml:"max_image_bytes"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	WebhookURL       string `yaml:"webhook_url"`

	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	SessionTTL  time.Duration `yaml:"session_ttl"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type providerDefaults struct {
	keyEnv  string
	baseURL string
	model   string
}

var providers = map[string]providerDefaults{
	"groq":      {"GROQ_API_KEY", "https://api.groq.com/openai/v1", "meta-llama/llama-4-scout-17b-16e-instruct"},
	"openai":    {"OPENAI_API_KEY", "", "gpt-4o-mini"},
	"gemini":    {"GEMINI_API_KEY", "", "gemini-1.5-flash"},
	"anthropic": {"ANTHROPIC_API_KEY", "", "claude-haiku-4-5-20251001"},
}

func defaults() Config {
	return Config{
		Port:                  "8080",
		Host:                  "0.0.0.0",
		Provider:              "groq",
		Temperature:           0.2,
		ReferencePath:         "REFERENCE.pdf",
		ReferenceMaxPages:     41,
		ReferenceMaxChars:     4000,
		RequireAcknowledgment: true,
		ShareBaseURL:          "https://wa.me/",
		MaxImageBytes:         10 << 20,
		SessionTTL:            30 * time.Minute,
		LogLevel:              "info",
		LogFormat:             "json",
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

// Load reads defaults, then CONFIG_FILE (if set), then the environment.
// A missing provider credential is a startup configuration error.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.StartupConfiguration("read config file", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, apperr.StartupConfiguration("parse config file", err)
		}
	}

	var errs []error
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.Provider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.Provider))
	cfg.APIKey = getEnv("LLM_API_KEY", cfg.APIKey)
	cfg.BaseURL = getEnv("LLM_BASE_URL", cfg.BaseURL)
	cfg.Model = getEnv("LLM_MODEL", cfg.Model)
	cfg.Temperature = envFloat("LLM_TEMPERATURE", cfg.Temperature, &errs)
	cfg.ReferencePath = getEnv("REFERENCE_PATH", cfg.ReferencePath)
	cfg.ReferenceMaxPages = envInt("REFERENCE_MAX_PAGES", cfg.ReferenceMaxPages, &errs)
	cfg.ReferenceMaxChars = envInt("REFERENCE_MAX_CHARS", cfg.ReferenceMaxChars, &errs)
	cfg.RequireAcknowledgment = envBool("REQUIRE_ACKNOWLEDGMENT", cfg.RequireAcknowledgment, &errs)
	cfg.ValidateHeadings = envBool("VALIDATE_HEADINGS", cfg.ValidateHeadings, &errs)
	cfg.ShareBaseURL = getEnv("SHARE_BASE_URL", cfg.ShareBaseURL)
	cfg.MaxImageBytes = int64(envInt("MAX_IMAGE_BYTES", int(cfg.MaxImageBytes), &errs))
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.WebhookURL = getEnv("WEBHOOK_URL", cfg.WebhookURL)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL, &errs)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	if len(errs) > 0 {
		return nil, apperr.StartupConfiguration("invalid environment", errors.Join(errs...))
	}

	pd, ok := providers[cfg.Provider]
	if !ok {
		return nil, apperr.StartupConfiguration(fmt.Sprintf("unknown LLM_PROVIDER %q", cfg.Provider), nil)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = getEnv(pd.keyEnv, "")
	}
	if cfg.APIKey == "" {
		return nil, apperr.StartupConfiguration("missing inference credential: set LLM_API_KEY or "+pd.keyEnv, nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = pd.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = pd.model
	}

	if err := cfg.validate(); err != nil {
		return nil, apperr.StartupConfiguration("invalid configuration", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("port %q out of range", c.Port)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0,2]", c.Temperature)
	}
	if c.ReferenceMaxPages <= 0 || c.ReferenceMaxChars <= 0 {
		return errors.New("reference caps must be positive")
	}
	if c.MaxImageBytes <= 0 {
		return errors.New("max image bytes must be positive")
	}
	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("bad base url %q", c.BaseURL)
		}
	}
	return nil
}

// Addr is host:port for the listeners.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// ResolveDSN prefers DATABASE_URL, otherwise builds one from POSTGRES_* when a password is set.
func (c *Config) ResolveDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	if pass == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "eyereport"), pass),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "eyereport"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func envInt(k string, def int, errs *[]error) int {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func envFloat(k string, def float64, errs *[]error) float64 {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func envBool(k string, def bool, errs *[]error) bool {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

func envDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}
