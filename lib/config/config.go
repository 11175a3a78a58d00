// Package config loads medley's configuration from defaults, an optional
// YAML file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/medleyhq/medley/lib/validation"
)

// EnvPrefix prefixes every environment override, e.g. MEDLEY_SERVER_ADDR.
const EnvPrefix = "MEDLEY_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml", "/etc/medley/config.yaml"}

// legacyEnv maps the variable names the sites were historically deployed
// with onto config keys.
var legacyEnv = map[string]string{
	"DATABASE_URL":      "database.dsn",
	"OPENAI_API_KEY":    "ai.openai_key",
	"GEMINI_API_KEY":    "ai.gemini_key",
	"TMDB_API_KEY":      "tmdb.api_key",
	"STRIPE_SECRET_KEY": "stripe.secret_key",
	"STRIPE_PUBLIC_KEY": "stripe.publishable_key",
	"SECRET_KEY":        "auth.secret",
	"PORT":              "server.port",
}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	AI       AIConfig       `koanf:"ai"`
	TMDB     TMDBConfig     `koanf:"tmdb"`
	Stripe   StripeConfig   `koanf:"stripe"`
	Storage  StorageConfig  `koanf:"storage"`
	Movies   MoviesConfig   `koanf:"movies"`
}

type ServerConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	// AIRequestsPerMinute caps calls to model-backed endpoints per client IP.
	AIRequestsPerMinute int `koanf:"ai_requests_per_minute" validate:"min=1"`
	// TimeZone interprets booking times entered without an offset.
	TimeZone string `koanf:"time_zone" validate:"required"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type AuthConfig struct {
	Secret       string        `koanf:"secret" validate:"required,min=16"`
	AccessTTL    time.Duration `koanf:"access_ttl"`
	RefreshTTL   time.Duration `koanf:"refresh_ttl"`
	SessionTTL   time.Duration `koanf:"session_ttl"`
	CookieName   string        `koanf:"cookie_name" validate:"required"`
	SecureCookie bool          `koanf:"secure_cookie"`
}

type AIConfig struct {
	Provider       string `koanf:"provider" validate:"oneof=gemini openai"`
	GeminiProject  string `koanf:"gemini_project"`
	GeminiLocation string `koanf:"gemini_location"`
	GeminiKey      string `koanf:"gemini_key"`
	OpenAIKey      string `koanf:"openai_key"`
	OpenAIModel    string `koanf:"openai_model"`
	WhisperModel   string `koanf:"whisper_model"`
	// TaskPromptPath holds the instructions that open every task chat.
	TaskPromptPath string `koanf:"task_prompt_path"`
	// PersonaPath holds the conversation that primes the portfolio chatbot.
	PersonaPath string `koanf:"persona_path"`
}

type TMDBConfig struct {
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"min=1"`
	Timeout           time.Duration `koanf:"timeout"`
}

type StripeConfig struct {
	SecretKey      string `koanf:"secret_key"`
	PublishableKey string `koanf:"publishable_key"`
}

type StorageConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint" validate:"required_if=Enabled true"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket" validate:"required_if=Enabled true"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type MoviesConfig struct {
	RefreshPages int    `koanf:"refresh_pages" validate:"min=1,max=500"`
	LockDir      string `koanf:"lock_dir"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeout:         15 * time.Second,
			WriteTimeout:        120 * time.Second,
			AllowedOrigins:      []string{"*"},
			AIRequestsPerMinute: 30,
			TimeZone:            "UTC",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "medley.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Secret:     "change-me-in-production-please",
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			SessionTTL: 14 * 24 * time.Hour,
			CookieName: "medley_session",
		},
		AI: AIConfig{
			Provider:       "gemini",
			GeminiLocation: "us-central1",
			OpenAIModel:    "gpt-4o-mini",
			WhisperModel:   "whisper-1",
			TaskPromptPath: "media/initial_prompt.txt",
		},
		TMDB: TMDBConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			RequestsPerSecond: 20,
			Burst:             5,
			Timeout:           10 * time.Second,
		},
		Storage: StorageConfig{
			Bucket: "chat-attachments",
			UseSSL: true,
		},
		Movies: MoviesConfig{
			RefreshPages: 5,
			LockDir:      "",
		},
	}
}

// Load builds the configuration. An explicit path wins over CONFIG_PATH and
// the default search paths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.AI.Provider == "openai" && c.AI.OpenAIKey == "" {
		return fmt.Errorf("ai.openai_key is required when ai.provider is openai")
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps MEDLEY_SECTION_SOME_KEY to section.some_key and the
// legacy names in legacyEnv to their keys. Everything else is ignored.
func envTransformFunc(key, value string) (string, interface{}) {
	var path string
	switch {
	case strings.HasPrefix(key, EnvPrefix):
		rest := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		section, name, ok := strings.Cut(rest, "_")
		if !ok {
			return "", nil
		}
		path = section + "." + name
	case legacyEnv[key] != "":
		path = legacyEnv[key]
	default:
		return "", nil
	}

	if path == "server.allowed_origins" {
		parts := strings.Split(value, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		return path, origins
	}
	return path, value
}
