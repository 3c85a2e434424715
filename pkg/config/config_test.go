package config_test

import (
	"testing"
	"time"

	"github.com/labstock/labstock-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("labstock-service")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, config.EnvDevelopment, cfg.Server.Environment)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "labstock", cfg.Database.Database)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, "labstock", cfg.Auth.Issuer)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LABSTOCK_SERVER_PORT", "9090")
	t.Setenv("LABSTOCK_DATABASE_HOST", "db.internal")

	cfg, err := config.Load("labstock-service")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "labstock",
		Password: "secret",
		Database: "labstock",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=labstock password=secret dbname=labstock sslmode=require",
		cfg.DSN())
}

func TestDatabaseConfig_Validate(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "localhost"}

	assert.NoError(t, cfg.Validate(config.EnvDevelopment))
	assert.Error(t, cfg.Validate(config.EnvProduction))
	assert.Error(t, cfg.Validate(config.EnvStaging))

	cfg.Host = "db.internal"
	assert.NoError(t, cfg.Validate(config.EnvProduction))
}

func TestLoadWithValidation_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("LABSTOCK_SERVER_ENVIRONMENT", "production")
	t.Setenv("LABSTOCK_DATABASE_HOST", "db.internal")
	t.Setenv("LABSTOCK_RABBITMQ_URL", "amqp://labstock:pw@mq.internal:5672/")

	// Default dev token secret must be rejected in production
	_, err := config.LoadWithValidation("labstock-service")
	require.Error(t, err)

	t.Setenv("LABSTOCK_AUTH_TOKEN_SECRET", "a-real-secret")
	cfg, err := config.LoadWithValidation("labstock-service")
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Server.Environment)
}
