// Package config provides configuration loading for the indexer daemons.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Explorer ExplorerConfig `mapstructure:"explorer"`
	Provider ProviderConfig `mapstructure:"provider"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
}

// ServerConfig holds HTTP server configuration for the query API.
type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database" validate:"required"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// URL returns the postgres:// form used by the migration runner.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration. Redis is optional: it backs the
// per-network count cache and a failure never blocks the data path.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ExplorerConfig holds explorer-API access configuration.
type ExplorerConfig struct {
	APIKeys  []string `mapstructure:"api_keys"`
	ProxyURL string   `mapstructure:"proxy_url"`
	UseProxy bool     `mapstructure:"use_proxy"`
}

// ProviderConfig holds the canonical RPC provider configuration used for
// getLogs, tier detection and optimizer-governed batch reads.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	ProxyURL string `mapstructure:"proxy_url"`
	UseProxy bool   `mapstructure:"use_proxy"`
}

// IndexerConfig holds pipeline tuning knobs.
type IndexerConfig struct {
	// LookbackBlocks is the head-relative window a fresh network starts from.
	LookbackBlocks uint64 `mapstructure:"lookback_blocks" validate:"gt=0"`
	// TimeDelay is the pause between full scan cycles.
	TimeDelay time.Duration `mapstructure:"time_delay"`
	// FundUpdateDelay is the minimum age before a holder's fund is refreshed.
	FundUpdateDelay time.Duration `mapstructure:"fund_update_delay"`
	// RPCTimeout bounds individual JSON-RPC calls.
	RPCTimeout time.Duration `mapstructure:"rpc_timeout"`
	// GetLogsTimeout is the scanner-level wall clock on log fetches; on expiry
	// the watchdog forces RPC rotation.
	GetLogsTimeout time.Duration `mapstructure:"get_logs_timeout"`
	// RecentDays selects the recent-mode revalidation window.
	RecentDays int `mapstructure:"recent_days" validate:"gt=0"`
	// FundCapUSD drops any single per-token position above this value; such
	// rows are token contracts or mispriced symbols, not users.
	FundCapUSD float64 `mapstructure:"fund_cap_usd"`
	// Networks restricts the run to a subset; empty means all registered.
	Networks []string `mapstructure:"networks"`
	// TokensDir holds the per-network curated token metadata files.
	TokensDir string `mapstructure:"tokens_dir"`
}

// Load reads configuration from files and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/chainscope")

	v.SetEnvPrefix("CHAINSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Explicitly bind nested keys that AutomaticEnv misses on unmarshal.
	v.BindEnv("explorer.api_keys", "CHAINSCOPE_EXPLORER_API_KEYS")
	v.BindEnv("explorer.proxy_url", "CHAINSCOPE_EXPLORER_PROXY_URL")
	v.BindEnv("explorer.use_proxy", "CHAINSCOPE_EXPLORER_USE_PROXY")
	v.BindEnv("provider.api_key", "CHAINSCOPE_PROVIDER_API_KEY")
	v.BindEnv("provider.proxy_url", "CHAINSCOPE_PROVIDER_PROXY_URL")
	v.BindEnv("provider.use_proxy", "CHAINSCOPE_PROVIDER_USE_PROXY")
	v.BindEnv("indexer.networks", "CHAINSCOPE_INDEXER_NETWORKS")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Comma-separated env values arrive as a single element.
	cfg.Explorer.APIKeys = splitList(cfg.Explorer.APIKeys)
	cfg.Indexer.Networks = splitList(cfg.Indexer.Networks)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// splitList expands comma- or whitespace-separated entries.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		}) {
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chainscope")
	v.SetDefault("database.password", "chainscope")
	v.SetDefault("database.database", "chainscope")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_idle_time", "30s")
	v.SetDefault("database.connect_timeout", "2s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Explorer defaults
	v.SetDefault("explorer.use_proxy", false)

	// Provider defaults
	v.SetDefault("provider.use_proxy", false)

	// Indexer defaults
	v.SetDefault("indexer.lookback_blocks", 5000)
	v.SetDefault("indexer.time_delay", "4h")
	v.SetDefault("indexer.fund_update_delay", "168h") // 7 days
	v.SetDefault("indexer.rpc_timeout", "25s")
	v.SetDefault("indexer.get_logs_timeout", "120s")
	v.SetDefault("indexer.recent_days", 7)
	v.SetDefault("indexer.fund_cap_usd", 1_000_000_000)
	v.SetDefault("indexer.tokens_dir", "tokens")
}
