package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auction.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
auction:
  timer:
    initial: 20s
  auto_commit_on_complete: true
transport: nats
nats:
  url: nats://nats:4222
broker:
  replay_buffer: 64
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 20*time.Second, cfg.Auction.Durations.Initial)
	assert.Equal(t, 15*time.Second, cfg.Auction.Durations.Subsequent, "unset phases keep defaults")
	assert.True(t, cfg.Auction.AutoCommitOnComplete)
	assert.Equal(t, TransportNATS, cfg.Transport)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "AUCTION_EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, 64, cfg.Broker.ReplayBuffer)
	assert.Equal(t, 256, cfg.Broker.SubscriberSize)
	assert.NotNil(t, cfg.WebSocket.CheckOrigin)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := LoadFile(filepath.Join("..", "..", "..", "..", "config", "auction.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Auction.Durations, cfg.Auction.Durations)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")
	t.Setenv(PathEnv, path)
	t.Setenv("AUCTION_STORE", "postgres")
	t.Setenv("PORT", "7000")
	t.Setenv("AUCTION_AUTO_COMMIT", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DB_NAME", "auction_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.True(t, cfg.Auction.AutoCommitOnComplete)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "auction_test", cfg.Database.Database)
}

func TestNoFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, TransportMemory, cfg.Transport)
}

func TestMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad store", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"bad transport", func(c *Config) { c.Transport = "kafka" }, "transport"},
		{"zero phase", func(c *Config) { c.Auction.Durations.FinalCall = 0 }, "finalCall phase must be positive"},
		{"fractional phase", func(c *Config) { c.Auction.Durations.Initial = 1500 * time.Millisecond }, "initial phase must be a whole number"},
		{"fast ticks", func(c *Config) { c.Auction.TickInterval = 500 * time.Millisecond }, "auction.tick_interval"},
		{"negative increment", func(c *Config) { c.Auction.MinBidIncrement = -1 }, "min_bid_increment"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"no port", func(c *Config) { c.Server.Port = "" }, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}
