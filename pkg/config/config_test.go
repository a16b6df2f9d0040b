package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("market_data:\n  api_keys: [k1, k2]\n"))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 8, c.MarketData.CallsPerKey)
	assert.Equal(t, time.Minute, c.MarketData.KeyCooldown)
	assert.Equal(t, 5*time.Minute, c.MarketData.CacheTTL)
	assert.Equal(t, 30, c.Signals.MinConfidence)
	assert.Equal(t, 30*time.Second, c.Monitor.Interval)
	assert.Equal(t, 5*time.Minute, c.Monitor.SyncInterval)
	assert.Equal(t, "memory", c.Ledger.Backend)
	assert.Equal(t, []string{"k1", "k2"}, c.MarketData.APIKeys)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no keys":            "environment: test\n",
		"bad backend":        "market_data: {api_keys: [k]}\nledger: {backend: postgres}\n",
		"clickhouse no host": "market_data: {api_keys: [k]}\nledger: {backend: clickhouse}\n",
		"bad confidence":     "market_data: {api_keys: [k]}\nsignals: {min_confidence: 120}\n",
		"lock ttl":           "market_data: {api_keys: [k]}\nmonitor: {interval: 10s, lock_ttl: 20s}\n",
	}
	for name, y := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(y))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("market_data:\n  api_keys: [k1]\n"))
	require.NoError(t, err)

	env := map[string]string{
		"TWELVEDATA_API_KEYS": "a, b ,c",
		"KAFKA_BROKERS":       "k1:9092,k2:9092",
		"LEDGER_BACKEND":      "ClickHouse",
		"REDIS_ADDR":          "redis:6379",
		"CLICKHOUSE_HOST":     "ch",
		"LOG_LEVEL":           "DEBUG",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"a", "b", "c"}, c.MarketData.APIKeys)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "clickhouse", c.Ledger.Backend)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, "debug", c.Log.Level)
	assert.NoError(t, c.Validate())
}

func TestLoadWithEnvMissingFile(t *testing.T) {
	t.Setenv("TWELVEDATA_API_KEYS", "only")
	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, c.MarketData.APIKeys)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: prod\nmarket_data:\n  api_keys: [x]\nserver:\n  port: 9090\n"), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
}
