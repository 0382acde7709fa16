package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "25")
	assert.Equal(t, 25, getEnvAsInt("SHUTDOWN_TIMEOUT", 10))

	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-number")
	assert.Equal(t, 10, getEnvAsInt("SHUTDOWN_TIMEOUT", 10))

	os.Unsetenv("SHUTDOWN_TIMEOUT")
	assert.Equal(t, 10, getEnvAsInt("SHUTDOWN_TIMEOUT", 10))
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WEATHER_CITY", "")

	config, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "Paris", config.Weather.DefaultCity)
}

func TestLoadConfigFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\nweather:\n  default_city: Lyon\n"), 0o644))

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", config.Server.Port)
	assert.Equal(t, "Lyon", config.Weather.DefaultCity)
}
