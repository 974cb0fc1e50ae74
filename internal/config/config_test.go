package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Stream.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Stream.MaxBackoff)
	assert.Equal(t, 5, cfg.Stream.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Polling.Interval)
	assert.Equal(t, 30*time.Second, cfg.Polling.DegradedInterval)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 200, cfg.Store.MaxRecords)
	assert.Equal(t, 30, cfg.TTL.RetentionDays)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STOREFRONT_NOTIF_STORE_DRIVER", "redis")
	t.Setenv("STOREFRONT_NOTIF_POLLING_INTERVAL", "15s")
	t.Setenv("API_BASE_URL", "https://shop.example.com/api")
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, 15*time.Second, cfg.Polling.Interval)
	assert.Equal(t, "https://shop.example.com/api", cfg.Backend.BaseURL)
	assert.Equal(t, "9000", cfg.Server.Port)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "n", User: "u", Password: "p"}
	assert.Equal(t, "host=db port=5433 dbname=n user=u password=p sslmode=disable", d.DSN())
}
