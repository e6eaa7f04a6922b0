package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the orchestrator service.
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Deliberation DeliberationConfig `mapstructure:"deliberation"`
	Session      SessionConfig      `mapstructure:"session"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Market       MarketConfig       `mapstructure:"market"`
	Streaming    StreamingConfig    `mapstructure:"streaming"`
	Registry     RegistryConfig     `mapstructure:"registry"`
}

// ServiceConfig contains basic service configuration.
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	HealthPort      int           `mapstructure:"health_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// LoggingConfig controls zap logger construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// DeliberationConfig holds the per-session deliberation limits. The limits are
// injected into each session at creation so the termination policy stays a
// pure function of its parameters.
type DeliberationConfig struct {
	MaxTurns          int           `mapstructure:"max_turns"`
	MaxStalls         int           `mapstructure:"max_stalls"`
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout"`
	FastPathTimeout   time.Duration `mapstructure:"fast_path_timeout"`
}

// SessionConfig bounds the in-memory session store.
type SessionConfig struct {
	IdleTTL          time.Duration `mapstructure:"idle_ttl"`
	MaxSessions      int           `mapstructure:"max_sessions"`
	MaxRecentTurns   int           `mapstructure:"max_recent_turns"`
	MaxActiveSymbols int           `mapstructure:"max_active_symbols"`
}

// BackendConfig configures the reasoning backend (OpenAI-compatible API).
type BackendConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	APIVersion string `mapstructure:"api_version"` // set for Azure deployments
}

// IsConfigured reports whether the backend has the credentials it needs.
func (b BackendConfig) IsConfigured() bool {
	return b.APIKey != "" && !strings.Contains(b.BaseURL, "your-resource")
}

// RedisConfig configures the transcript sink and quote cache.
type RedisConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Addr             string `mapstructure:"addr"`
	Password         string `mapstructure:"password"`
	DB               int    `mapstructure:"db"`
	TranscriptMaxLen int64  `mapstructure:"transcript_max_len"`
}

// MarketConfig configures market data retrieval.
type MarketConfig struct {
	QuoteTimeout time.Duration `mapstructure:"quote_timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// StreamingConfig configures the in-process event stream.
type StreamingConfig struct {
	RingCapacity     int `mapstructure:"ring_capacity"`
	ClientRatePerSec int `mapstructure:"client_rate_per_sec"`
	ClientBurst      int `mapstructure:"client_burst"`
}

// RegistryConfig optionally points at a participant definition file.
type RegistryConfig struct {
	File string `mapstructure:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Port:            8000,
			HealthPort:      8081,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Deliberation: DeliberationConfig{
			MaxTurns:          20,
			MaxStalls:         3,
			InvocationTimeout: 90 * time.Second,
			FastPathTimeout:   10 * time.Second,
		},
		Session: SessionConfig{
			IdleTTL:          30 * time.Minute,
			MaxSessions:      1000,
			MaxRecentTurns:   5,
			MaxActiveSymbols: 5,
		},
		Backend: BackendConfig{
			Model: "gpt-4o",
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			TranscriptMaxLen: 2000,
		},
		Market: MarketConfig{
			QuoteTimeout: 5 * time.Second,
			CacheTTL:     time.Minute,
		},
		Streaming: StreamingConfig{
			RingCapacity:     256,
			ClientRatePerSec: 20,
			ClientBurst:      40,
		},
	}
}

// Load reads configuration from CONFIG_PATH (YAML, optional) with environment
// overrides (COUNCIL_ prefix, e.g. COUNCIL_BACKEND_API_KEY).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COUNCIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgPath := os.Getenv("CONFIG_PATH"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Deliberation.MaxTurns <= 0 {
		return fmt.Errorf("deliberation.max_turns must be positive, got %d", c.Deliberation.MaxTurns)
	}
	if c.Deliberation.MaxStalls <= 0 {
		return fmt.Errorf("deliberation.max_stalls must be positive, got %d", c.Deliberation.MaxStalls)
	}
	if c.Deliberation.InvocationTimeout <= 0 {
		return fmt.Errorf("deliberation.invocation_timeout must be positive")
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session.max_sessions must be positive, got %d", c.Session.MaxSessions)
	}
	if c.Streaming.RingCapacity <= 0 {
		return fmt.Errorf("streaming.ring_capacity must be positive, got %d", c.Streaming.RingCapacity)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("service.port", d.Service.Port)
	v.SetDefault("service.health_port", d.Service.HealthPort)
	v.SetDefault("service.read_timeout", d.Service.ReadTimeout)
	v.SetDefault("service.write_timeout", d.Service.WriteTimeout)
	v.SetDefault("service.graceful_timeout", d.Service.GracefulTimeout)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("deliberation.max_turns", d.Deliberation.MaxTurns)
	v.SetDefault("deliberation.max_stalls", d.Deliberation.MaxStalls)
	v.SetDefault("deliberation.invocation_timeout", d.Deliberation.InvocationTimeout)
	v.SetDefault("deliberation.fast_path_timeout", d.Deliberation.FastPathTimeout)
	v.SetDefault("session.idle_ttl", d.Session.IdleTTL)
	v.SetDefault("session.max_sessions", d.Session.MaxSessions)
	v.SetDefault("session.max_recent_turns", d.Session.MaxRecentTurns)
	v.SetDefault("session.max_active_symbols", d.Session.MaxActiveSymbols)
	v.SetDefault("backend.model", d.Backend.Model)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.transcript_max_len", d.Redis.TranscriptMaxLen)
	v.SetDefault("market.quote_timeout", d.Market.QuoteTimeout)
	v.SetDefault("market.cache_ttl", d.Market.CacheTTL)
	v.SetDefault("streaming.ring_capacity", d.Streaming.RingCapacity)
	v.SetDefault("streaming.client_rate_per_sec", d.Streaming.ClientRatePerSec)
	v.SetDefault("streaming.client_burst", d.Streaming.ClientBurst)
}
