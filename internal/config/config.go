package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	appLog "agenda/internal/log"
	"agenda/internal/tz"
)

// CalendarConfig describes a single ICS calendar imported at startup.
type CalendarConfig struct {
	// ID names the source in logs and keys its fetch cache.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is an http(s) endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone local-standard rules are evaluated in.
	// Empty selects the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Database is the sqlite file holding the agenda document. Empty keeps
	// the document in memory.
	Database string `yaml:"database" json:"database"`

	// CacheDir holds the conditional-fetch cache of remote calendars.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Resync is a cron expression (e.g. "0 */6 * * *") at which the
	// scheduler searches again even when no alarm is due.
	Resync string `yaml:"resync" json:"resync"`

	// ImportHorizonDays bounds the expansion of recurring calendar events
	// that have no native rule equivalent.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	// MaxOccurrences caps the expansion of a single calendar event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultResync         = "0 */6 * * *"
	defaultHorizonDays    = 90
	defaultMaxOccurrences = 5000
	defaultLogLevel       = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            defaultListen,
		Database:          "agenda.db",
		CacheDir:          "cache",
		Resync:            defaultResync,
		ImportHorizonDays: defaultHorizonDays,
		MaxOccurrences:    defaultMaxOccurrences,
		LogLevel:          defaultLogLevel,
		Calendars:         []CalendarConfig{},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Resync == "" {
		c.Resync = defaultResync
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultHorizonDays
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		if c.Calendars[i].ID == "" {
			c.Calendars[i].ID = fmt.Sprintf("calendar-%d", i+1)
		}
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := tz.Load(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Calendars))
	for _, cal := range c.Calendars {
		if cal.URL == "" {
			return fmt.Errorf("calendar %q: url is empty", cal.ID)
		}
		if seen[cal.ID] {
			return fmt.Errorf("calendar %q: duplicate id", cal.ID)
		}
		seen[cal.ID] = true
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		return errors.New("basic_auth needs both username and password")
	}
	return nil
}

// Zone resolves Timezone.
func (c *Config) Zone() (tz.Zone, error) {
	return tz.Load(c.Timezone)
}

// ImportHorizon returns ImportHorizonDays as a duration.
func (c *Config) ImportHorizon() time.Duration {
	return time.Duration(c.ImportHorizonDays) * 24 * time.Hour
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned. Otherwise the file is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			appLog.Info("default config written", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename. The file
// ends up with 0600 permissions in a 0700 directory.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".agenda-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
