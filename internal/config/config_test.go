package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "lot-ledger", cfg.ServiceName)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverMongoDB, cfg.Store.Driver)
	assert.Equal(t, "ledger.movements.events", cfg.Kafka.Topic)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.False(t, cfg.Auth.RequireOwner)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: postgres
postgres:
  dsn: postgres://file/ledger
outbox:
  pollInterval: 250ms
kafka:
  brokers: [k1:9092, k2:9092]
`)
	t.Setenv("LEDGER_POSTGRES_DSN", "postgres://env/ledger")
	t.Setenv("LEDGER_AUTH_REQUIREOWNER", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://env/ledger", cfg.Postgres.DSN)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Auth.RequireOwner)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "memory driver", mutate: func(c *Config) { c.Store.Driver = DriverMemory }},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "redis" }, wantErr: "store.driver"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = DriverPostgres; c.Postgres.DSN = "" }, wantErr: "postgres.dsn"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Kafka.Brokers = nil }, wantErr: "kafka.brokers"},
		{name: "sample rate out of range", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "sampleRate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "{}\n"))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
