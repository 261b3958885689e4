// Package config loads pgtrack settings from pgtrack.yml, PGTRACK_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for configuration fields.
const (
	DefaultFile             = "pgtrack.yml"
	DefaultStatementTimeout = 30 * time.Second
	DefaultTrackingSchema   = "pgtrack"
	DefaultTrackingTable    = "tracking"
)

// Tracking holds the tracking policy and the location of tracking records.
type Tracking struct {
	Enabled         bool
	Schema          string
	Table           string
	AutoCreate      bool
	AddDropTable    bool
	AddDropView     bool
	AddDropDatabase bool
	// DefaultStatements is empty when every statement should be tracked.
	DefaultStatements []string
}

// Config holds the application configuration loaded from file, environment, and flags.
type Config struct {
	// DatabaseURL is the monitored server.
	DatabaseURL string
	// ControlDatabaseURL holds the tracking table; empty means DatabaseURL.
	ControlDatabaseURL string
	StatementTimeout   time.Duration
	// Username is written into log headers; empty means the connection user.
	Username string
	Tracking Tracking
}

type yamlTracking struct {
	Enabled           *bool  `yaml:"enabled"`
	Schema            string `yaml:"schema"`
	Table             string `yaml:"table"`
	AutoCreate        *bool  `yaml:"auto_create"`
	AddDropTable      *bool  `yaml:"add_drop_table"`
	AddDropView       *bool  `yaml:"add_drop_view"`
	AddDropDatabase   *bool  `yaml:"add_drop_database"`
	DefaultStatements string `yaml:"default_statements"`
}

// yamlConfig is the raw YAML file representation with string durations.
type yamlConfig struct {
	DatabaseURL        string       `yaml:"database_url"`
	ControlDatabaseURL string       `yaml:"control_database_url"`
	StatementTimeout   string       `yaml:"statement_timeout"`
	Username           string       `yaml:"username"`
	Tracking           yamlTracking `yaml:"tracking"`
}

// New returns a Config populated with default values.
func New() *Config {
	return &Config{
		StatementTimeout: DefaultStatementTimeout,
		Tracking: Tracking{
			Enabled:         true,
			Schema:          DefaultTrackingSchema,
			Table:           DefaultTrackingTable,
			AddDropTable:    true,
			AddDropView:     true,
			AddDropDatabase: true,
		},
	}
}

// ControlURL returns the URL of the server holding the tracking table.
func (c *Config) ControlURL() string {
	if c.ControlDatabaseURL != "" {
		return c.ControlDatabaseURL
	}

	return c.DatabaseURL
}

// Load reads a YAML configuration file and returns a Config.
// If allowMissing is true and the file does not exist, defaults are returned.
func Load(path string, allowMissing bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return New(), nil
		}

		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return fromYAML(&raw)
}

// fromYAML converts the raw YAML representation to a Config with defaults applied.
func fromYAML(raw *yamlConfig) (*Config, error) {
	cfg := New()

	if raw.DatabaseURL != "" {
		cfg.DatabaseURL = raw.DatabaseURL
	}

	if raw.ControlDatabaseURL != "" {
		cfg.ControlDatabaseURL = raw.ControlDatabaseURL
	}

	if raw.StatementTimeout != "" {
		d, err := time.ParseDuration(raw.StatementTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing statement_timeout %q: %w", raw.StatementTimeout, err)
		}

		cfg.StatementTimeout = d
	}

	if raw.Username != "" {
		cfg.Username = raw.Username
	}

	t := &cfg.Tracking

	setBool(&t.Enabled, raw.Tracking.Enabled)
	setBool(&t.AutoCreate, raw.Tracking.AutoCreate)
	setBool(&t.AddDropTable, raw.Tracking.AddDropTable)
	setBool(&t.AddDropView, raw.Tracking.AddDropView)
	setBool(&t.AddDropDatabase, raw.Tracking.AddDropDatabase)

	if raw.Tracking.Schema != "" {
		t.Schema = raw.Tracking.Schema
	}

	if raw.Tracking.Table != "" {
		t.Table = raw.Tracking.Table
	}

	t.DefaultStatements = SplitList(raw.Tracking.DefaultStatements)

	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// SplitList parses a comma-separated statement list such as
// "CREATE TABLE, insert". Entries are upper-cased and trimmed.
func SplitList(s string) []string {
	var out []string

	for _, item := range strings.Split(s, ",") {
		item = strings.Join(strings.Fields(strings.ToUpper(item)), " ")
		if item != "" {
			out = append(out, item)
		}
	}

	return out
}

// MergeEnv overrides config fields from PGTRACK_* environment variables.
// Unparseable values are ignored.
func MergeEnv(cfg *Config) {
	if v := os.Getenv("PGTRACK_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	if v := os.Getenv("PGTRACK_CONTROL_DATABASE_URL"); v != "" {
		cfg.ControlDatabaseURL = v
	}

	if v := os.Getenv("PGTRACK_STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StatementTimeout = d
		}
	}

	if v := os.Getenv("PGTRACK_USERNAME"); v != "" {
		cfg.Username = v
	}

	if v := os.Getenv("PGTRACK_TRACKING_SCHEMA"); v != "" {
		cfg.Tracking.Schema = v
	}

	if v := os.Getenv("PGTRACK_TRACKING_TABLE"); v != "" {
		cfg.Tracking.Table = v
	}

	envBool("PGTRACK_TRACKING_ENABLED", &cfg.Tracking.Enabled)
	envBool("PGTRACK_AUTO_CREATE", &cfg.Tracking.AutoCreate)

	if v := os.Getenv("PGTRACK_DEFAULT_STATEMENTS"); v != "" {
		cfg.Tracking.DefaultStatements = SplitList(v)
	}
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}

	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}
