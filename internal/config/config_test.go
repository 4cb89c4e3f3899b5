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

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "./data", cfg.Data.CacheDir)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, 20*time.Minute, cfg.ISIMIP.Timeout)
	assert.Equal(t, 128, cfg.Geocode.CacheSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/epiclim")
	t.Setenv("PORT", "9999")
	t.Setenv("ISIMIP_POLL_INTERVAL", "5s")
	t.Setenv("GEOCODE_CACHE_SIZE", "16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.ISIMIP.PollInterval)
	assert.Equal(t, 16, cfg.Geocode.CacheSize)
}
