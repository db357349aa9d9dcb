package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" json:"server"`
	Store    StoreConfig    `mapstructure:"store" json:"store"`
	Redis    RedisConfig    `mapstructure:"redis" json:"redis"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	LLM      LLMConfig      `mapstructure:"llm" json:"llm"`
	Tools    ToolsConfig    `mapstructure:"tools" json:"tools"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

type ServerConfig struct {
	Host               string   `mapstructure:"host" json:"host"`
	Port               int      `mapstructure:"port" json:"port"`
	CORSOrigins        []string `mapstructure:"cors_origins" json:"cors_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute" json:"rate_limit_per_minute"`
}

type StoreConfig struct {
	Backend              string        `mapstructure:"backend" json:"backend"`
	SessionTTL           time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	CleanupInterval      time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
	HistoryLimit         int           `mapstructure:"history_limit" json:"history_limit"`
	SearchRecentMessages int           `mapstructure:"search_recent_messages" json:"search_recent_messages"`
	FallbackToMemory     bool          `mapstructure:"fallback_to_memory" json:"fallback_to_memory"`
}

type RedisConfig struct {
	URL string `mapstructure:"url" json:"url"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" json:"driver"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
	Database string `mapstructure:"database" json:"database"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider" json:"provider"`
	APIKey      string        `mapstructure:"api_key" json:"-"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url,omitempty"`
	Model       string        `mapstructure:"model" json:"model"`
	Temperature float32       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

type ToolsConfig struct {
	FirecrawlAPIKey  string        `mapstructure:"firecrawl_api_key" json:"-"`
	FirecrawlBaseURL string        `mapstructure:"firecrawl_base_url" json:"firecrawl_base_url"`
	Timeout          time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxToolRounds    int           `mapstructure:"max_tool_rounds" json:"max_tool_rounds"`
	BreakerFailures  int           `mapstructure:"breaker_failures" json:"breaker_failures"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" json:"breaker_cooldown"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Load reads config.{json,yaml} from ., ./config or ~/.tripgenie, then applies
// TRIPGENIE_* and well-known environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".tripgenie"))
	}

	return load(v)
}

// LoadFile reads an explicit config file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

// Defaults returns the built-in configuration without reading files or environment
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("TRIPGENIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_minute", 60)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.session_ttl", 24*time.Hour)
	v.SetDefault("store.cleanup_interval", 10*time.Minute)
	v.SetDefault("store.history_limit", 100)
	v.SetDefault("store.search_recent_messages", 10)
	v.SetDefault("store.fallback_to_memory", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tripgenie")
	v.SetDefault("database.database", "tripgenie")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("tools.firecrawl_api_key", "")
	v.SetDefault("tools.firecrawl_base_url", "https://api.firecrawl.dev")
	v.SetDefault("tools.timeout", 90*time.Second)
	v.SetDefault("tools.max_tool_rounds", 5)
	v.SetDefault("tools.breaker_failures", 5)
	v.SetDefault("tools.breaker_cooldown", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func loadEnvOverrides(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if key := os.Getenv("FIRECRAWL_API_KEY"); key != "" && cfg.Tools.FirecrawlAPIKey == "" {
		cfg.Tools.FirecrawlAPIKey = key
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}
}

// Validate rejects unknown backends and providers and non-positive limits
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "stub":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	durations := map[string]time.Duration{
		"store.session_ttl":      c.Store.SessionTTL,
		"store.cleanup_interval": c.Store.CleanupInterval,
		"llm.timeout":            c.LLM.Timeout,
		"tools.timeout":          c.Tools.Timeout,
		"tools.breaker_cooldown": c.Tools.BreakerCooldown,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Store.HistoryLimit <= 0 {
		return errors.New("store.history_limit must be positive")
	}
	if c.Tools.MaxToolRounds <= 0 {
		return errors.New("tools.max_tool_rounds must be positive")
	}
	return nil
}

// Address returns host:port for the HTTP listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FirecrawlEnabled reports whether the scraping tools can be offered
func (t ToolsConfig) FirecrawlEnabled() bool {
	return strings.TrimSpace(t.FirecrawlAPIKey) != ""
}
