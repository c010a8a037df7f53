package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curveExchange/storage"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curvex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  listen: ":9000"
  request_timeout: 3s
  rate_limit: 5
storage:
  driver: pebble
  path: /tmp/curvex
exchange:
  error_fee: 25
  super_operators: [tz1one, tz1two]
  refund_surplus: true
kafka:
  brokers: [localhost:9092]
price_feed:
  heartbeat: 1m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, float64(5), cfg.Server.RateLimit)
	assert.Equal(t, "Referer", cfg.Server.CallerHeader)
	assert.Equal(t, storage.DriverPebble, cfg.Storage.Driver)
	assert.Equal(t, int64(25), cfg.Exchange.ErrorFee)
	assert.Equal(t, []string{"tz1one", "tz1two"}, cfg.Exchange.SuperOperators)
	assert.True(t, cfg.Exchange.RefundSurplus)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Minute, cfg.PriceFeed.Heartbeat)
	assert.Equal(t, 200*time.Millisecond, cfg.PriceFeed.MinInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CURVEX_LISTEN", ":7000")
	t.Setenv("CURVEX_STORAGE_DRIVER", "redis")
	t.Setenv("CURVEX_REDIS_ADDR", "r1:6379, r2:6379")
	t.Setenv("CURVEX_SUPER_OPERATORS", "tz1env")
	t.Setenv("CURVEX_LOG_LEVEL", "debug")

	cfg, err := Load(writeFile(t, "storage:\n  driver: badger\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Listen)
	assert.Equal(t, storage.DriverRedis, cfg.Storage.Driver)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Storage.Redis.Addr)
	assert.Equal(t, []string{"tz1env"}, cfg.Exchange.SuperOperators)
	assert.Equal(t, "debug", cfg.Log.Level)

	opts := cfg.StorageOptions()
	assert.Equal(t, storage.DriverRedis, opts.Driver)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, opts.Redis.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYaml(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":     func(c *Config) { c.Storage.Driver = "floppy" },
		"redis without addr": func(c *Config) { c.Storage.Driver = storage.DriverRedis },
		"negative fee":       func(c *Config) { c.Exchange.ErrorFee = -1 },
		"no super operators": func(c *Config) { c.Exchange.SuperOperators = nil },
		"bad super operator": func(c *Config) { c.Exchange.SuperOperators = []string{"tz1 x"} },
		"empty listen":       func(c *Config) { c.Server.Listen = "" },
		"negative rate":      func(c *Config) { c.Server.RateLimit = -1 },
	}

	require.NoError(t, Default().Validate())

	for name, mod := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mod(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
