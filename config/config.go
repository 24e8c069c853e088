/*
Package config loads the service configuration.

SOURCES (later wins):
  1. Defaults in setDefaults
  2. config.yaml in ., ./config or /etc/ledger (optional)
  3. A .env file in the working directory (optional)
  4. Environment variables with the LEDGER_ prefix, dots replaced by
     underscores: database.dsn -> LEDGER_DATABASE_DSN

USAGE:
  cfg, err := config.Load("")
  if err != nil {
      log.Fatal(err)
  }
  store, err := sqlstore.Open(cfg.Database.Dialect(), cfg.Database.DSN, logger)
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wdeanegpt/property-sub001/logger"
)

const envPrefix = "LEDGER"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      logger.Config
	Events   EventsConfig
	Redis    RedisConfig
	Lock     LockConfig
	Sweep    SweepConfig
	Receipts ReceiptsConfig
	CORS     CORSConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string
	// Migrate applies pending PostgreSQL migrations at startup.
	Migrate bool
}

// EventsConfig selects where ledger events are published.
type EventsConfig struct {
	Sink          string // log, kafka, pubsub, none
	KafkaBrokers  []string
	KafkaTopic    string
	PubSubProject string
	PubSubTopic   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LockConfig selects the per-record lock. Use redis when more than one
// instance serves writes.
type LockConfig struct {
	Backend string // local or redis
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
}

type ReceiptsConfig struct {
	Enabled           bool
	Queue             string // memory or kafka
	QueueSize         int
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaGroupID      string
	MaxAttempts       int
	Backoff           time.Duration
	ExtractorEndpoint string
	ExtractorTimeout  time.Duration
	Cache             string // memory, redis or none
	CacheTTL          time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration. An empty path searches the default locations;
// a missing config file is not an error, a malformed one is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ledger")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "ledger.db")
	v.SetDefault("database.migrate", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("events.sink", "log")
	v.SetDefault("events.kafka_topic", "ledger-events")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.retries", 20)
	v.SetDefault("lock.backoff", 100*time.Millisecond)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Hour)

	v.SetDefault("receipts.enabled", false)
	v.SetDefault("receipts.queue", "memory")
	v.SetDefault("receipts.queue_size", 256)
	v.SetDefault("receipts.kafka_topic", "ledger-receipts")
	v.SetDefault("receipts.kafka_group_id", "ledger-receipt-worker")
	v.SetDefault("receipts.max_attempts", 5)
	v.SetDefault("receipts.backoff", 2*time.Second)
	v.SetDefault("receipts.extractor_timeout", 30*time.Second)
	v.SetDefault("receipts.cache", "memory")
	v.SetDefault("receipts.cache_ttl", 24*time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Driver:  v.GetString("database.driver"),
			DSN:     v.GetString("database.dsn"),
			Migrate: v.GetBool("database.migrate"),
		},
		Log: logger.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			TimeFormat: v.GetString("log.time_format"),
		},
		Events: EventsConfig{
			Sink:          v.GetString("events.sink"),
			KafkaBrokers:  list(v, "events.kafka_brokers"),
			KafkaTopic:    v.GetString("events.kafka_topic"),
			PubSubProject: v.GetString("events.pubsub_project"),
			PubSubTopic:   v.GetString("events.pubsub_topic"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Lock: LockConfig{
			Backend: v.GetString("lock.backend"),
			TTL:     v.GetDuration("lock.ttl"),
			Retries: v.GetInt("lock.retries"),
			Backoff: v.GetDuration("lock.backoff"),
		},
		Sweep: SweepConfig{
			Enabled:  v.GetBool("sweep.enabled"),
			Interval: v.GetDuration("sweep.interval"),
		},
		Receipts: ReceiptsConfig{
			Enabled:           v.GetBool("receipts.enabled"),
			Queue:             v.GetString("receipts.queue"),
			QueueSize:         v.GetInt("receipts.queue_size"),
			KafkaBrokers:      list(v, "receipts.kafka_brokers"),
			KafkaTopic:        v.GetString("receipts.kafka_topic"),
			KafkaGroupID:      v.GetString("receipts.kafka_group_id"),
			MaxAttempts:       v.GetInt("receipts.max_attempts"),
			Backoff:           v.GetDuration("receipts.backoff"),
			ExtractorEndpoint: v.GetString("receipts.extractor_endpoint"),
			ExtractorTimeout:  v.GetDuration("receipts.extractor_timeout"),
			Cache:             v.GetString("receipts.cache"),
			CacheTTL:          v.GetDuration("receipts.cache_ttl"),
		},
		CORS: CORSConfig{
			AllowedOrigins: list(v, "cors.allowed_origins"),
		},
	}
}

// list reads a string slice that may come from YAML or from a
// comma-separated environment variable.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, s := range v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks the combinations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Events.Sink {
	case "log", "none":
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("events.kafka_brokers is required for the kafka sink"))
		}
	case "pubsub":
		if c.Events.PubSubProject == "" || c.Events.PubSubTopic == "" {
			errs = append(errs, errors.New("events.pubsub_project and events.pubsub_topic are required for the pubsub sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.sink %q: want log, kafka, pubsub or none", c.Events.Sink))
	}

	switch c.Lock.Backend {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Errorf("lock.backend %q: want local or redis", c.Lock.Backend))
	}

	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("sweep.interval must be positive"))
	}

	if c.Receipts.Enabled {
		if c.Receipts.ExtractorEndpoint == "" {
			errs = append(errs, errors.New("receipts.extractor_endpoint is required when receipts are enabled"))
		}
		switch c.Receipts.Queue {
		case "memory":
		case "kafka":
			if len(c.Receipts.KafkaBrokers) == 0 {
				errs = append(errs, errors.New("receipts.kafka_brokers is required for the kafka queue"))
			}
		default:
			errs = append(errs, fmt.Errorf("receipts.queue %q: want memory or kafka", c.Receipts.Queue))
		}
		switch c.Receipts.Cache {
		case "memory", "redis", "none":
		default:
			errs = append(errs, fmt.Errorf("receipts.cache %q: want memory, redis or none", c.Receipts.Cache))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Lock.Backend == "redis" || (c.Receipts.Enabled && c.Receipts.Cache == "redis")
}
