// Package config loads auctiond settings: a YAML file layered under environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/gateway"
	"github.com/mcdev12/tourney-auction/go/internal/auction/outbox"
	"github.com/mcdev12/tourney-auction/go/internal/auction/round"
	"github.com/mcdev12/tourney-auction/go/internal/dbconfig"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "AUCTION_CONFIG"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	TransportMemory = "memory"
	TransportNATS   = "nats"
)

type Config struct {
	Server    ServerConfig                    `yaml:"server"`
	Log       LogConfig                       `yaml:"log"`
	Store     StoreConfig                     `yaml:"store"`
	Auction   coordinator.Config              `yaml:"auction"`
	Outbox    outbox.Config                   `yaml:"outbox"`
	Transport string                          `yaml:"transport"` // memory | nats
	NATS      outbox.JetStreamConfig          `yaml:"nats"`
	Consumer  gateway.JetStreamConsumerConfig `yaml:"consumer"`
	Timer     TimerRelayConfig                `yaml:"timer_relay"`
	Broker    gateway.BrokerConfig            `yaml:"broker"`
	WebSocket gateway.ConnectionConfig        `yaml:"websocket"`

	// Database comes from DB_* variables only.
	Database dbconfig.Config `yaml:"-"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

type StoreConfig struct {
	Driver        string        `yaml:"driver"` // memory | postgres
	Migrate       bool          `yaml:"migrate"`
	NotifyChannel string        `yaml:"notify_channel"`
	PingInterval  time.Duration `yaml:"listener_ping_interval"`
}

type TimerRelayConfig struct {
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns a config that runs everything in memory.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Driver:        StoreMemory,
			Migrate:       true,
			NotifyChannel: "auction_outbox_events",
			PingInterval:  90 * time.Second,
		},
		Auction:   coordinator.DefaultConfig(),
		Outbox:    outbox.DefaultConfig(),
		Transport: TransportMemory,
		NATS:      outbox.DefaultJetStreamConfig(),
		Consumer:  gateway.DefaultJetStreamConsumerConfig(),
		Timer:     TimerRelayConfig{SubjectPrefix: "auction.timer"},
		Broker:    gateway.DefaultBrokerConfig(),
		WebSocket: gateway.DefaultConnectionConfig(),
	}
}

// Load reads the file named by AUCTION_CONFIG, if set, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile reads path over the defaults. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Database = dbconfig.NewConfigFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Store.Driver = getEnv("AUCTION_STORE", c.Store.Driver)
	c.Transport = getEnv("AUCTION_TRANSPORT", c.Transport)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Auction.AutoCommitOnComplete = getEnvBool("AUCTION_AUTO_COMMIT", c.Auction.AutoCommitOnComplete)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Driver))
	}
	switch c.Transport {
	case TransportMemory, TransportNATS:
	default:
		errs = append(errs, fmt.Errorf("transport must be %q or %q, got %q", TransportMemory, TransportNATS, c.Transport))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	if err := c.Auction.Durations.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("auction.timer: %w", err))
	}
	if c.Auction.TickInterval != round.TickLength {
		errs = append(errs, fmt.Errorf("auction.tick_interval must be %s, got %s", round.TickLength, c.Auction.TickInterval))
	}
	if c.Auction.MinBidIncrement < 0 {
		errs = append(errs, errors.New("auction.min_bid_increment must not be negative"))
	}
	if c.Auction.MaxConflictRetries < 0 {
		errs = append(errs, errors.New("auction.max_conflict_retries must not be negative"))
	}
	if c.Broker.ReplayBuffer <= 0 {
		errs = append(errs, errors.New("broker.replay_buffer must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// SetupLogging configures the global zerolog logger.
func (l LogConfig) SetupLogging() {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if l.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
