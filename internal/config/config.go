// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// UploadDir is where document blobs are kept. Empty means in-memory
	// storage, which is only useful for development and tests.
	UploadDir string `mapstructure:"UPLOAD_DIR"`

	// InboxDir, when set, is watched for files dropped by the clinic
	// scanner; each one runs the document intake pipeline.
	InboxDir string `mapstructure:"INBOX_DIR"`

	DocAIProvider  string        `mapstructure:"DOCAI_PROVIDER"`
	OpenAIAPIKey   string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel    string        `mapstructure:"OPENAI_MODEL"`
	AnthropicKey   string        `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel string        `mapstructure:"ANTHROPIC_MODEL"`
	DocAICacheTTL  time.Duration `mapstructure:"DOCAI_CACHE_TTL"`

	ChainEnabled bool          `mapstructure:"CHAIN_ENABLED"`
	ChainURL     string        `mapstructure:"CHAIN_URL"`
	ChainSecret  string        `mapstructure:"CHAIN_SECRET"`
	ChainName    string        `mapstructure:"CHAIN_NAME"`
	ChainTimeout time.Duration `mapstructure:"CHAIN_TIMEOUT"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DOCAI_PROVIDER", "none")
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
	v.SetDefault("DOCAI_CACHE_TTL", "1h")
	v.SetDefault("CHAIN_ENABLED", false)
	v.SetDefault("CHAIN_NAME", "leqvio_enrollment")
	v.SetDefault("CHAIN_TIMEOUT", "15s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "LOG_FILE",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"UPLOAD_DIR", "INBOX_DIR",
		"DOCAI_PROVIDER", "OPENAI_API_KEY", "OPENAI_MODEL",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "DOCAI_CACHE_TTL",
		"CHAIN_ENABLED", "CHAIN_URL", "CHAIN_SECRET", "CHAIN_NAME", "CHAIN_TIMEOUT",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks cross-field requirements that Load alone cannot: the chain
// client needs its endpoint and signing secret when enabled, and a selected
// extraction provider needs its API key.
func (c *Config) Validate() error {
	if c.ChainEnabled {
		if c.ChainURL == "" {
			return fmt.Errorf("CHAIN_URL is required when CHAIN_ENABLED is true")
		}
		if c.ChainSecret == "" {
			return fmt.Errorf("CHAIN_SECRET is required when CHAIN_ENABLED is true")
		}
	}

	switch strings.ToLower(c.DocAIProvider) {
	case "", "none":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when DOCAI_PROVIDER is openai")
		}
	case "anthropic", "claude":
		if c.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when DOCAI_PROVIDER is anthropic")
		}
	default:
		return fmt.Errorf("unknown DOCAI_PROVIDER %q (supported: openai, anthropic, none)", c.DocAIProvider)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	return nil
}
