package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBootstrap        = "pkc-l6wr6.europe-west2.gcp.confluent.cloud:9092"
	DefaultTopic            = "prod-1010-Darwin-Train-Information-Push-Port-IIII1_1-JSON"
	DefaultGroup            = "darwin-consumer"
	DefaultSnapshotBackend  = "file"
	DefaultSnapshotFile     = "darwin_state.json"
	DefaultSnapshotInterval = 10 * time.Second
	DefaultPruneInterval    = 300 * time.Second
	DefaultPruneAge         = 4 * time.Hour
	DefaultPollTimeout      = 1 * time.Second
	DefaultReconnectDelay   = 15 * time.Second
	DefaultDepartureCount   = 8
	DefaultBoardCacheTTL    = 5 * time.Second
	DefaultLogLevel         = "info"
)

type KafkaConfig struct {
	// Comma separated host:port list
	Bootstrap string `yaml:"bootstrap" validate:"required"`
	Key       string `yaml:"key"`
	Secret    string `yaml:"secret"`
	Topic     string `yaml:"topic" validate:"required"`
	Group     string `yaml:"group" validate:"required"`

	// Plaintext, no SASL. For local brokers.
	Insecure bool `yaml:"insecure"`
}

func (c KafkaConfig) Brokers() []string {
	brokers := []string{}
	for _, b := range strings.Split(c.Bootstrap, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c KafkaConfig) HasCredentials() bool {
	return c.Key != "" && c.Secret != ""
}

type SnapshotConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=file sqlite postgres memory"`
	Path        string        `yaml:"path" validate:"required_if=Backend file"`
	Directory   string        `yaml:"directory"`
	PostgresURL string        `yaml:"postgres_url" validate:"required_if=Backend postgres"`
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
}

type ConsumerConfig struct {
	PruneInterval  time.Duration `yaml:"prune_interval" validate:"gt=0"`
	PruneAge       time.Duration `yaml:"prune_age" validate:"gt=0"`
	PollTimeout    time.Duration `yaml:"poll_timeout" validate:"gt=0"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" validate:"gt=0"`
}

type BoardConfig struct {
	Count            int           `yaml:"count" validate:"gt=0"`
	// Boards may lag live updates by up to this long. Zero
	// disables the cache.
	CacheTTL         time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	BackfillDeparted bool          `yaml:"backfill_departed"`
}

type Config struct {
	Kafka     KafkaConfig    `yaml:"kafka"`
	Snapshot  SnapshotConfig `yaml:"snapshot"`
	Consumer  ConsumerConfig `yaml:"consumer"`
	Board     BoardConfig    `yaml:"board"`
	Reference string         `yaml:"reference"`
	LogLevel  string         `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Configuration with every default applied.
func Default() *Config {
	snapshotPath := DefaultSnapshotFile
	if home, err := os.UserHomeDir(); err == nil {
		snapshotPath = filepath.Join(home, ".darwin", DefaultSnapshotFile)
	}

	return &Config{
		Kafka: KafkaConfig{
			Bootstrap: DefaultBootstrap,
			Topic:     DefaultTopic,
			Group:     DefaultGroup,
		},
		Snapshot: SnapshotConfig{
			Backend:  DefaultSnapshotBackend,
			Path:     snapshotPath,
			Interval: DefaultSnapshotInterval,
		},
		Consumer: ConsumerConfig{
			PruneInterval:  DefaultPruneInterval,
			PruneAge:       DefaultPruneAge,
			PollTimeout:    DefaultPollTimeout,
			ReconnectDelay: DefaultReconnectDelay,
		},
		Board: BoardConfig{
			Count:            DefaultDepartureCount,
			CacheTTL:         DefaultBoardCacheTTL,
			BackfillDeparted: true,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Loads configuration from an optional YAML file, then applies
// DARWIN_* environment variables on top.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	for name, field := range map[string]*string{
		"DARWIN_KAFKA_BOOTSTRAP":  &c.Kafka.Bootstrap,
		"DARWIN_KAFKA_KEY":        &c.Kafka.Key,
		"DARWIN_KAFKA_SECRET":     &c.Kafka.Secret,
		"DARWIN_KAFKA_TOPIC":      &c.Kafka.Topic,
		"DARWIN_KAFKA_GROUP":      &c.Kafka.Group,
		"DARWIN_SNAPSHOT_PATH":    &c.Snapshot.Path,
		"DARWIN_SNAPSHOT_BACKEND": &c.Snapshot.Backend,
		"DARWIN_POSTGRES_URL":     &c.Snapshot.PostgresURL,
		"DARWIN_REFERENCE_PATH":   &c.Reference,
		"DARWIN_LOG_LEVEL":        &c.LogLevel,
	} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*field = v
		}
	}
}

func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)

	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Kafka.Brokers()) == 0 {
		return fmt.Errorf("invalid config: no kafka brokers in %q", c.Kafka.Bootstrap)
	}

	return nil
}

func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
