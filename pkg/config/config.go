package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FxSignal/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		CORS            bool          `yaml:"cors" default:"true"`
		// requests per second per client on generate and backtest
		RateLimit float64 `yaml:"rate_limit" default:"2"`
		RateBurst float64 `yaml:"rate_burst" default:"5"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool `yaml:"enabled" default:"true"`
	} `yaml:"metrics"`
	MarketData struct {
		BaseURL     string        `yaml:"base_url" default:"https://api.twelvedata.com" validate:"url"`
		APIKeys     []string      `yaml:"api_keys"`
		CallsPerKey int           `yaml:"calls_per_key" default:"8" validate:"gt=0"`
		KeyCooldown time.Duration `yaml:"key_cooldown" default:"60s"`
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"5m"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		CacheSize   int           `yaml:"cache_size" default:"1000"`
	} `yaml:"market_data"`
	Signals struct {
		MinConfidence int     `yaml:"min_confidence" default:"30" validate:"gte=0,lte=100"`
		SLMultiplier  float64 `yaml:"sl_multiplier" default:"1.5" validate:"gt=0"`
		TPMultiplier  float64 `yaml:"tp_multiplier" default:"2.5" validate:"gt=0"`
		// optional rule weights; zero fields fall back to the built-in table
		Weights map[string]float64 `yaml:"weights"`
	} `yaml:"signals"`
	Monitor struct {
		Interval       time.Duration `yaml:"interval" default:"30s"`
		SyncInterval   time.Duration `yaml:"sync_interval" default:"5m"`
		MaxConcurrency int           `yaml:"max_concurrency" default:"4" validate:"gt=0"`
		LockTTL        time.Duration `yaml:"lock_ttl" default:"25s"`
		StreamInterval time.Duration `yaml:"stream_interval" default:"5s"`
	} `yaml:"monitor"`
	Backtest struct {
		DefaultSize int           `yaml:"default_size" default:"50" validate:"gte=3"`
		Timeout     time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"backtest"`
	Ledger struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory clickhouse"`
	} `yaml:"ledger"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fxsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"fxsignal"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		LogsTopic    string        `yaml:"logs_topic" default:"fxsignal.logs"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		Consumer     struct {
			GroupID    string        `yaml:"group_id" default:"fxsignal-analytics"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

// Load reads a YAML file, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
// A missing file is allowed so the service can run from environment alone.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TWELVEDATA_API_KEYS"); v != "" {
		c.MarketData.APIKeys = util.SplitCSV(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("LEDGER_BACKEND"); v != "" {
		c.Ledger.Backend = strings.ToLower(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate runs tag validation and cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.MarketData.APIKeys) == 0 {
		return fmt.Errorf("market_data.api_keys cannot be empty")
	}
	if c.Ledger.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when ledger.backend is clickhouse")
	}
	if c.Monitor.LockTTL >= c.Monitor.Interval {
		return fmt.Errorf("monitor.lock_ttl must be shorter than monitor.interval")
	}
	return nil
}
