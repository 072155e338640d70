package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, StorePostgres, cfg.StoreBackend)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Auth.AllowAdminSignup)
	assert.Equal(t, "none", cfg.MQ.Backend)
	assert.Equal(t, "sweets.stock", cfg.MQ.Channel)
	assert.False(t, cfg.Telemetry.Enabled())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_TTL", "1h")
	t.Setenv("AUTH_ALLOW_ADMIN_SIGNUP", "1")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Auth.AllowAdminSignup)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.MQ.Kafka.Brokers)
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	t.Setenv("JWT_TTL", "-5m")
	t.Setenv("DB_USE_SSL", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, DefaultTokenTTL, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Database.UseSSL)
}

func TestLoadFile_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.ServerPort)
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweetshop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_port: 7000
store_backend: memory
auth:
  jwt_secret: from-file
  token_ttl: 2h
mq:
  backend: kafka
  kafka:
    brokers: [k1:9092]
`), 0o644))
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.ServerPort)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "kafka", cfg.MQ.Backend)
	assert.Equal(t, []string{"k1:9092"}, cfg.MQ.Kafka.Brokers)
	assert.Equal(t, "sweets.stock", cfg.MQ.Channel)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`{{{invalid`), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing")
}

func TestLoadFile_DevelopmentAllowsAdminSignup(t *testing.T) {
	assert.False(t, Default().Auth.AllowAdminSignup)

	cfg, err := LoadFile(filepath.Join("..", "development", "config.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Auth.AllowAdminSignup)
}
