package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://maps.googleapis.com/maps/api/place", cfg.Google.BaseURL)
	assert.Equal(t, "https://api.geoapify.com", cfg.Geoapify.BaseURL)
	assert.Equal(t, "https://api.placekit.co", cfg.PlaceKit.BaseURL)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.Nominatim.BaseURL)
	assert.NotEmpty(t, cfg.Nominatim.UserAgent)
	assert.InDelta(t, 1.0, cfg.Nominatim.RPS, 0.001)
	assert.Equal(t, 200, cfg.Cache.MaxEntries)
	assert.Equal(t, 30, cfg.Cache.MaxAgeMins)
	assert.Equal(t, "trailgeo.db", cfg.Flags.Path)
	assert.Equal(t, 24, cfg.PGCache.TTLHours)
	assert.False(t, cfg.PGCache.Enabled)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "https://overpass-api.de/api/interpreter", cfg.Trails.OverpassURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
geoapify:
  key: geo-key
log:
  level: debug
  format: console
server:
  port: 9090
cache:
  max_entries: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "geo-key", cfg.Geoapify.Key)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	// Defaults still apply for unset values
	assert.Equal(t, 30, cfg.Cache.MaxAgeMins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
geoapify:
  key: from-file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TRAILGEO_GEOAPIFY_KEY", "from-env")
	t.Setenv("TRAILGEO_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "from-env", cfg.Geoapify.Key)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("TRAILGEO_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Batch.Concurrency = 4
	cfg.Cache.MaxEntries = 200
	cfg.Cache.MaxAgeMins = 30
	cfg.Trails.OverpassURL = "https://overpass-api.de/api/interpreter"
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 33
	err = cfg.Validate("batch")
	assert.Error(t, err)

	cfg.Batch.Concurrency = 32
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateCacheBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Cache.MaxEntries = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.max_entries")

	cfg.Cache.MaxEntries = 200
	cfg.Cache.MaxAgeMins = 0
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cache.max_age_mins")
}

func TestValidatePGCacheNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.PGCache.Enabled = true

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "pgcache.database_url")

	cfg.PGCache.DatabaseURL = "postgres://localhost/trailgeo"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateTrailsNeedsOverpass(t *testing.T) {
	cfg := validDefaults()
	cfg.Trails.OverpassURL = ""

	err := cfg.Validate("trails")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "trails.overpass_url")
}
