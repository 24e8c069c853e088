package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/config"
)

// inTempDir runs the test from an empty directory so no stray config.yaml
// or .env is picked up.
func inTempDir(t *testing.T) string {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "log", cfg.Events.Sink)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
	assert.False(t, cfg.Receipts.Enabled)
	assert.False(t, cfg.UsesRedis())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// GIVEN: A config file and an environment override
	dir := inTempDir(t)
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: postgres
  dsn: postgres://ledger@localhost/ledger?sslmode=disable
sweep:
  interval: 15m
`), 0o644))
	t.Setenv("LEDGER_SERVER_PORT", "9191")
	t.Setenv("LEDGER_EVENTS_SINK", "kafka")
	t.Setenv("LEDGER_EVENTS_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	// WHEN: Loading it
	cfg, err := config.Load(path)

	// THEN: The environment wins, the file fills the rest
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEDGER_LOCK_BACKEND=redis\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LEDGER_LOCK_BACKEND") })

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.True(t, cfg.UsesRedis())
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))

	_, err := config.Load(path)

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	inTempDir(t)
	base, err := config.Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad driver", func(c *config.Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"kafka without brokers", func(c *config.Config) { c.Events.Sink = "kafka" }, "events.kafka_brokers"},
		{"pubsub without topic", func(c *config.Config) { c.Events.Sink = "pubsub"; c.Events.PubSubProject = "p" }, "events.pubsub_topic"},
		{"zero sweep interval", func(c *config.Config) { c.Sweep.Interval = 0 }, "sweep.interval"},
		{"receipts without extractor", func(c *config.Config) { c.Receipts.Enabled = true }, "receipts.extractor_endpoint"},
		{"unknown lock", func(c *config.Config) { c.Lock.Backend = "etcd" }, "lock.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
