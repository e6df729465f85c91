// Package config loads the transkit configuration: a YAML file, overridden
// by TRANSKIT_* environment variables, with defaults for everything but
// the addons path.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sirupsen/logrus"

	"github.com/minios-linux/transkit/langs"
)

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	// AddonsPath lists the directories holding addon directories. Earlier
	// directories win when an addon name repeats.
	AddonsPath []string `yaml:"addons_path" env:"TRANSKIT_ADDONS_PATH" env-separator:":"`
	// Languages are activated by loadlang when none is given.
	Languages []string  `yaml:"languages" env:"TRANSKIT_LANGUAGES" env-separator:","`
	Log       LogConfig `yaml:"log"`
	Export    ExportConfig `yaml:"export"`

	// path is the file the configuration was read from, if any.
	path string
}

// DatabaseConfig selects the database. A postgres:// URL uses PostgreSQL,
// anything else is a SQLite file name.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"TRANSKIT_DATABASE" env-default:"transkit.db"`
	// SourceCacheSize bounds the memoised code translation lookups.
	SourceCacheSize int `yaml:"source_cache_size" env:"TRANSKIT_SOURCE_CACHE_SIZE" env-default:"4096"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"TRANSKIT_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"TRANSKIT_LOG_FORMAT" env-default:"text"`
}

// ExportConfig stamps exported catalog headers.
type ExportConfig struct {
	Project string `yaml:"project" env:"TRANSKIT_PROJECT" env-default:"transkit"`
	Version string `yaml:"version" env:"TRANSKIT_VERSION" env-default:"16.0"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// FileName is the configuration file looked up in the working directory.
const FileName = "transkit.yaml"

// Load reads the configuration. path, or TRANSKIT_CONFIG when path is
// empty, names the YAML file and must exist; otherwise FileName is read
// when present, and environment plus defaults are used when it is not.
// Relative addons paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("TRANSKIT_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = FileName
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		cfg.path = path
	} else if explicit {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Path returns the file the configuration came from, or "".
func (c *Config) Path() string {
	return c.path
}

// Validate checks the configuration and normalises addons paths and
// language codes. Load calls it; call it again after applying overrides.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.SourceCacheSize <= 0 {
		return fmt.Errorf("database.source_cache_size must be > 0 (got %d)", c.Database.SourceCacheSize)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}

	base := "."
	if c.path != "" {
		base = filepath.Dir(c.path)
	}
	paths := c.AddonsPath[:0]
	for _, p := range c.AddonsPath {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		paths = append(paths, filepath.Clean(p))
	}
	c.AddonsPath = paths

	for i, l := range c.Languages {
		code, err := langs.Canonical(l)
		if err != nil {
			return fmt.Errorf("languages: %w", err)
		}
		c.Languages[i] = code
	}
	return nil
}

// NewLogger builds a logger writing to w at the configured level and format.
func (c LogConfig) NewLogger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return log, nil
}
