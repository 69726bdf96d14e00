package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unset clears keys for the duration of the test; envconfig treats a set but
// empty variable as a value rather than falling back to the default.
func unset(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestFromEnvDefaults(t *testing.T) {
	unset(t, "HTTP_ADDR", "STORE_DRIVER", "KAFKA_BROKERS", "OIDC_ISSUER_URL", "MAX_MESSAGE_LENGTH", "SHUTDOWN_TIMEOUT")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 1000, cfg.MaxMessageLength)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.AuthEnabled())
}

func TestFromEnvOverrides(t *testing.T) {
	unset(t, "STORE_DRIVER")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OIDC_ISSUER_URL", "http://dex:5556/dex")
	t.Setenv("MAX_MESSAGE_LENGTH", "42")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, 42, cfg.MaxMessageLength)
}

func TestFromEnvRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("STORE_DRIVER", DriverPostgres)
	unset(t, "POSTGRES_DSN")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("POSTGRES_DSN", "postgres://board@localhost/board?sslmode=disable")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
}

func TestValidateRejectsZeroLength(t *testing.T) {
	unset(t, "STORE_DRIVER", "MAX_MESSAGE_LENGTH")
	cfg, err := FromEnv()
	require.NoError(t, err)
	cfg.MaxMessageLength = 0
	assert.Error(t, Validate(cfg))
}
