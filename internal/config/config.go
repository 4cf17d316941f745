// Package config loads the engine's typed settings: per-platform adapter
// tuning (RPC/REST endpoints, rate limits, backoff, circuit breaker),
// database DSN, API server settings, feature toggles, and polling cadences.
// YAML on disk, secrets resolved from the environment by name so they never
// live in the file itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/truthfeed/engine/internal/platform"
)

// BackoffConfig configures an adapter's exponential retry backoff, reused
// directly by internal/adapter.RetryConfig at wiring time.
type BackoffConfig struct {
	BaseMS   int  `yaml:"base_ms"`
	MaxMS    int  `yaml:"max_ms"`
	Attempts int  `yaml:"attempts"`
	Jitter   bool `yaml:"jitter"`
}

// CircuitConfig configures an adapter's sony/gobreaker circuit breaker.
type CircuitConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// PlatformConfig is one venue's adapter tuning.
type PlatformConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RPCURL          string        `yaml:"rpc_url"`
	WSURL           string        `yaml:"ws_url"`
	APIBaseURL      string        `yaml:"api_base_url"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	SubgraphURL     string        `yaml:"subgraph_url"`     // odds_evm venues only (Polymarket/Azuro-style)
	ContractAddress string        `yaml:"contract_address"` // binary_evm venues only (round contract address)
	RPS             float64       `yaml:"rps"`
	Burst           int           `yaml:"burst"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MinBetAmount    float64       `yaml:"min_bet_amount"`
	Backoff         BackoffConfig `yaml:"backoff"`
	Circuit         CircuitConfig `yaml:"circuit"`
}

// APIKey resolves this platform's upstream API key from the environment, or
// "" if the venue's read endpoints need no auth.
func (c PlatformConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// BotConfig toggles one analyzer bot on or off.
type BotConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CacheConfig holds TTLs for the caches the analyzers and API layer use,
// plus the optional Redis backing store for the smart-money aggregator's
// tracked-trader set (internal/cache).
type CacheConfig struct {
	BacktestResultTTL time.Duration `yaml:"backtest_result_ttl"`
	TrendCycleTTL     time.Duration `yaml:"trend_cycle_ttl"`
	RedisAddrEnv      string        `yaml:"redis_addr_env"`
	RedisPasswordEnv  string        `yaml:"redis_password_env"`
	RedisDB           int           `yaml:"redis_db"`
}

// RedisAddr resolves the Redis address from the environment, or "" when
// unconfigured. Callers treat an empty address as "run without the cache"
// rather than an error.
func (c CacheConfig) RedisAddr() string {
	key := c.RedisAddrEnv
	if key == "" {
		key = "REDIS_ADDR"
	}
	return os.Getenv(key)
}

// RedisPassword resolves the Redis auth password from the environment.
func (c CacheConfig) RedisPassword() string {
	key := c.RedisPasswordEnv
	if key == "" {
		key = "REDIS_PASSWORD"
	}
	return os.Getenv(key)
}

// APIConfig mirrors api.Config's externally-tunable fields.
type APIConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Config is the engine's fully-resolved configuration.
type Config struct {
	DatabaseDSNEnv string                               `yaml:"database_dsn_env"`
	API            APIConfig                            `yaml:"api"`
	Platforms      map[platform.Platform]PlatformConfig `yaml:"platforms"`
	Bots           map[string]BotConfig                 `yaml:"bots"`
	Cache          CacheConfig                          `yaml:"cache"`
}

// Load reads a YAML config file; secrets referenced by *_env fields resolve
// from the environment at access time, not here.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Validate rejects a config with a platform entry unknown to the closed
// venue registry. Caught at startup; the process exits with a diagnostic.
func (c *Config) Validate() error {
	for id := range c.Platforms {
		if !platform.Valid(id) {
			return fmt.Errorf("config: unknown platform %q", id)
		}
	}
	return nil
}

// DatabaseDSN resolves the Postgres connection string from the environment
// variable named by DatabaseDSNEnv (default DATABASE_URL).
func (c *Config) DatabaseDSN() string {
	key := c.DatabaseDSNEnv
	if key == "" {
		key = "DATABASE_URL"
	}
	return os.Getenv(key)
}

// APIKey resolves the shared-secret header value from the environment
// variable named by API.APIKeyEnv (default TRUTHFEED_API_KEY). An empty
// result disables auth entirely.
func (c *Config) APIKey() string {
	key := c.API.APIKeyEnv
	if key == "" {
		key = "TRUTHFEED_API_KEY"
	}
	return os.Getenv(key)
}

// BotEnabled reports whether the named analyzer bot is enabled, defaulting
// to true when unconfigured.
func (c *Config) BotEnabled(name string) bool {
	b, ok := c.Bots[name]
	if !ok {
		return true
	}
	return b.Enabled
}

// EnvInt reads an environment variable as an int, or returns def.
func EnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
