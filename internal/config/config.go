package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pairstream/internal/model"
)

// DefaultPairs are the QuickSwap pairs watched when none are configured.
var DefaultPairs = []string{
	"WMATIC_USDC=0x6e7a5fafcec6bb1e78bae2a1f0b612012bf14827",
	"USDC_WETH=0x853ee4b2a13f8a742d64c8f088be7ba2131f670d",
	"WMATIC_WETH=0xadbf1854e5883eb8aa7baf50705338739e558e5b",
}

// Sink names accepted by the sink option.
const (
	SinkConsole  = "console"
	SinkJSONL    = "jsonl"
	SinkKafka    = "kafka"
	SinkRedis    = "redis"
	SinkPostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	Pairs          []model.MonitoredPair
	PoolSize       int
	AcquireTimeout time.Duration
	DialRetries    int
	DialBackoff    time.Duration
	BlockInterval  time.Duration
	SwapInterval   time.Duration
	StatsInterval  time.Duration
	Workers        int
	Sinks          []string
	Out            string
	KafkaBrokers   []string
	KafkaTopic     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	PGDSN          string
	MetricsAddr    string
	LogLevel       string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PAIRSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pair", DefaultPairs)
	v.SetDefault("pool-size", 6)
	v.SetDefault("acquire-timeout", 3*time.Second)
	v.SetDefault("dial-retries", 3)
	v.SetDefault("dial-backoff", 500*time.Millisecond)
	v.SetDefault("block-interval", 300*time.Millisecond)
	v.SetDefault("swap-interval", 300*time.Millisecond)
	v.SetDefault("stats-interval", 10*time.Second)
	v.SetDefault("workers", 8)
	v.SetDefault("sink", []string{SinkConsole})
	v.SetDefault("out", "./data/events.jsonl")
	v.SetDefault("kafka-topic", "pairstream.events")
	v.SetDefault("redis-db", 0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	pairs, err := ParsePairs(getStringSlice(v, "pair"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc"),
		Pairs:          pairs,
		PoolSize:       v.GetInt("pool-size"),
		AcquireTimeout: v.GetDuration("acquire-timeout"),
		DialRetries:    v.GetInt("dial-retries"),
		DialBackoff:    v.GetDuration("dial-backoff"),
		BlockInterval:  v.GetDuration("block-interval"),
		SwapInterval:   v.GetDuration("swap-interval"),
		StatsInterval:  v.GetDuration("stats-interval"),
		Workers:        v.GetInt("workers"),
		Sinks:          lowerStrings(getStringSlice(v, "sink")),
		Out:            v.GetString("out"),
		KafkaBrokers:   getStringSlice(v, "kafka-brokers"),
		KafkaTopic:     v.GetString("kafka-topic"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		PGDSN:          v.GetString("pg-dsn"),
		MetricsAddr:    v.GetString("metrics-addr"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings needed to start polling.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool-size must be at least 1, got %d", c.PoolSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire-timeout must be positive")
	}
	if c.DialRetries < 0 {
		return fmt.Errorf("dial-retries must not be negative, got %d", c.DialRetries)
	}
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"block-interval", c.BlockInterval},
		{"swap-interval", c.SwapInterval},
		{"stats-interval", c.StatsInterval},
	}
	for _, interval := range intervals {
		if interval.d <= 0 {
			return fmt.Errorf("%s must be positive", interval.name)
		}
	}
	for _, s := range c.Sinks {
		switch s {
		case SinkConsole, SinkJSONL:
		case SinkKafka:
			if len(c.KafkaBrokers) == 0 {
				return fmt.Errorf("kafka sink requires kafka-brokers")
			}
		case SinkRedis:
			if c.RedisAddr == "" {
				return fmt.Errorf("redis sink requires redis-addr")
			}
		case SinkPostgres:
			if c.PGDSN == "" {
				return fmt.Errorf("postgres sink requires pg-dsn")
			}
		default:
			return fmt.Errorf("unknown sink: %s", s)
		}
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func lowerStrings(items []string) []string {
	for i, item := range items {
		items[i] = strings.ToLower(item)
	}
	return items
}
