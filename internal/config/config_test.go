package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "HOST", "METRICS_ENABLED", "REQUEST_TIMEOUT", "DB_TYPE", "DATABASE_URL",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"MONGO_URI", "MONGO_DATABASE", "JWT_SECRET", "JWT_ISSUER", "NATS_URL",
		"NATS_SUBJECT_PREFIX", "ALLOWED_ORIGINS", "DEBUG", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigPostgresFromURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/app?sslmode=disable")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, "heartline.rooms", cfg.NATS.SubjectPrefix)
}

func TestLoadConfigPostgresRequiresCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "DB_USER")
}

func TestLoadConfigBuildsPostgresURI(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_USER", "alice")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_NAME", "chat")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgresql://alice:pw@pg:5432/chat?sslmode=require", cfg.Database.URI)
}

func TestLoadConfigMongoAndMemory(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_TYPE", "mongodb")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "MONGO_URI")

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Database.Type)
	assert.Equal(t, "heartline", cfg.Database.MongoDatabase)

	t.Setenv("DB_TYPE", "memory")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Type)
}

func TestLoadConfigSecretRequiredOutsideDebug(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_TYPE", "memory")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("DEBUG", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.NotEmpty(t, cfg.Auth.Secret)
}

func TestLoadConfigRejectsUnknownDatabase(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_TYPE", "cassandra")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "unsupported DB_TYPE")
}
