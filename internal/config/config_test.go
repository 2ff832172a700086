package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"REDIS_ADDR", "NATS_URL", "JWT_SIGNING_KEY", "OPS_HTTP_ADDR",
		"MAP_WIDTH", "MAP_HEIGHT", "REAL_MAP_WIDTH", "REAL_MAP_HEIGHT",
		"FRAME_BUFFER_SIZE", "FRAME_AGE_CAP_MS", "DETECTION_BUFFER_WINDOW_MS",
		"HAZARD_CLEAR_MS", "TCP_BUFFER_SIZE",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load("")

	assert.Equal(t, 960, cfg.Geometry.MapWidth)
	assert.Equal(t, 720, cfg.Geometry.MapHeight)
	assert.Equal(t, 1800, cfg.Geometry.RealMapWidth)
	assert.Equal(t, 1350, cfg.Geometry.RealMapHeight)
	assert.Equal(t, 60, cfg.Timing.FrameBufferSize)
	assert.Equal(t, 2000, cfg.Timing.FrameAgeCapMs)
	assert.Equal(t, 200, cfg.Timing.DetectionBufferWindowMs)
	assert.Equal(t, 2000, cfg.Timing.HazardClearMs)
	assert.Equal(t, 4000, cfg.Ports.FrameIngestUDP)
	assert.Equal(t, 5300, cfg.Ports.PilotTCP)
}

func TestLoadFromYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	content := []byte(`
db:
  host: pg.internal
  name: afg
timing:
  hazard_clear_ms: 3000
`)
	assert.NoError(t, os.WriteFile(path, content, 0600))

	cfg := Load(path)
	assert.Equal(t, "pg.internal", cfg.DB.Host)
	assert.Equal(t, "afg", cfg.DB.Name)
	assert.Equal(t, 3000, cfg.Timing.HazardClearMs)
	// untouched fields keep their defaults
	assert.Equal(t, 960, cfg.Geometry.MapWidth)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	content := []byte(`
db:
  host: file-host
timing:
  hazard_clear_ms: 3000
`)
	assert.NoError(t, os.WriteFile(path, content, 0600))
	os.Setenv("DB_HOST", "env-host")
	os.Setenv("HAZARD_CLEAR_MS", "500")
	defer clearEnv(t)

	cfg := Load(path)
	assert.Equal(t, "env-host", cfg.DB.Host)
	assert.Equal(t, 500, cfg.Timing.HazardClearMs)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load("/nonexistent/path/default.yaml")
	assert.Equal(t, "localhost", cfg.DB.Host)
}

func TestConnString(t *testing.T) {
	db := DBConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/n?sslmode=disable", db.ConnString())
}
