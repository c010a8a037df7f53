package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"curveExchange/logger"
	"curveExchange/storage"
)

const DefaultFile = "curvex.yaml"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Log        logger.Config    `yaml:"log"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Settlement SettlementConfig `yaml:"settlement"`
	PriceFeed  PriceFeedConfig  `yaml:"price_feed"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// CallerHeader names the header the host sets to the caller address.
	CallerHeader   string        `yaml:"caller_header"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RateLimit is requests per second per caller, 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
}

type StorageConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Redis  RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      []string `yaml:"addr"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
}

type ExchangeConfig struct {
	ErrorFee        int64    `yaml:"error_fee"`
	SuperOperators  []string `yaml:"super_operators"`
	RefundSurplus   bool     `yaml:"refund_surplus"`
	LockStripes     int      `yaml:"lock_stripes"`
	DisplayDecimals int32    `yaml:"display_decimals"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SettlementConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
}

type PriceFeedConfig struct {
	Heartbeat   time.Duration `yaml:"heartbeat"`
	MinInterval time.Duration `yaml:"min_interval"`
	Buffer      int           `yaml:"buffer"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:         ":8002",
			CallerHeader:   "Referer",
			RequestTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver: storage.DriverSqlite,
			Path:   "database.sqlite3",
		},
		Exchange: ExchangeConfig{
			ErrorFee:        1000,
			SuperOperators:  []string{"tz1ZXxxkNYSUutm5VZvfudakRxx2mjpWko4J"},
			LockStripes:     256,
			DisplayDecimals: 4,
		},
		Log: logger.Config{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Settlement: SettlementConfig{
			Timeout: 10 * time.Second,
		},
		PriceFeed: PriceFeedConfig{
			Heartbeat:   10 * time.Second,
			MinInterval: 200 * time.Millisecond,
			Buffer:      64,
		},
	}
}

// Load reads .env (if present), then path (if it exists), then applies
// environment overrides. A missing file is not an error unless it was
// named explicitly.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	buf, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err = yaml.Unmarshal(buf, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %v", path)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, errors.Wrapf(err, "read config %v", path)
	}

	cfg.applyEnv()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CURVEX_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("CURVEX_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("CURVEX_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CURVEX_REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = splitList(v)
	}
	if v := os.Getenv("CURVEX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CURVEX_SUPER_OPERATORS"); v != "" {
		c.Exchange.SuperOperators = splitList(v)
	}
	if v := os.Getenv("CURVEX_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
}

func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	if c.Server.CallerHeader == "" {
		return fmt.Errorf("server.caller_header must not be empty")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverSqlite, storage.DriverBadger, storage.DriverPebble:
	case storage.DriverRedis:
		if len(c.Storage.Redis.Addr) == 0 {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver '%v'", c.Storage.Driver)
	}

	if c.Exchange.ErrorFee < 0 {
		return fmt.Errorf("exchange.error_fee must not be negative")
	}
	if len(c.Exchange.SuperOperators) == 0 {
		return fmt.Errorf("exchange.super_operators needs at least one address")
	}
	for _, op := range c.Exchange.SuperOperators {
		if op == "" || strings.ContainsAny(op, "/ \t\n") {
			return fmt.Errorf("invalid super operator address '%v'", op)
		}
	}
	if c.Exchange.DisplayDecimals < 0 {
		return fmt.Errorf("exchange.display_decimals must not be negative")
	}
	return nil
}

// StorageOptions converts the storage section into storage.Open options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver: c.Storage.Driver,
		Path:   c.Storage.Path,
		Redis: storage.RedisOptions{
			Addr:      c.Storage.Redis.Addr,
			Username:  c.Storage.Redis.Username,
			Password:  c.Storage.Redis.Password,
			DB:        c.Storage.Redis.DB,
			KeyPrefix: c.Storage.Redis.KeyPrefix,
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
