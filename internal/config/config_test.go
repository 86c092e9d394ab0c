package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appLog "agenda/internal/log"
)

func init() {
	appLog.SetOutput(io.Discard)
}

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Berlin
log_level: LOUD
calendars:
  - url: https://example.com/a.ics
  - id: work
    url: /tmp/work.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, defaultResync, cfg.Resync)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 90*24*time.Hour, cfg.ImportHorizon())
	require.Len(t, cfg.Calendars, 2)
	assert.Equal(t, "calendar-1", cfg.Calendars[0].ID)
	assert.Equal(t, "work", cfg.Calendars[1].ID)
	require.NoError(t, cfg.Validate())

	zone, err := cfg.Zone()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", zone.String())
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown zone", func(c *Config) { c.Timezone = "Nowhere/Special" }},
		{"calendar without url", func(c *Config) { c.Calendars = []CalendarConfig{{ID: "a"}} }},
		{"duplicate calendar", func(c *Config) {
			c.Calendars = []CalendarConfig{{ID: "a", URL: "x"}, {ID: "a", URL: "y"}}
		}},
		{"half basic auth", func(c *Config) { c.BasicAuth = &BasicAuthConfig{Username: "u"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Database = ""
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	cfg.Calendars = []CalendarConfig{{ID: "home", Name: "Home", URL: "https://example.com/home.ics"}}
	require.NoError(t, cfg.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file removed")
}
