package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saludmental/cohortload/internal/source"
)

// Source tags, used for column overrides, sidecar log entries, and errors.
const (
	SourceDepVisits = "dep_cons"
	SourceDepMeds   = "dep_meds"
	SourceAnxVisits = "ans_cons"
)

var knownSources = map[string]bool{
	SourceDepVisits: true,
	SourceDepMeds:   true,
	SourceAnxVisits: true,
}

// Config holds all runtime configuration for a cohortload run.
type Config struct {
	DSN       string
	LogFormat string // "text" or "json"

	// load/repair inputs
	DepVisitsPath string
	DepMedsPath   string
	AnxVisitsPath string

	// load sidecar outputs
	MapPath string
	LogPath string

	Reset  bool
	DryRun bool

	// serve
	Addr string

	// Column names: shared defaults plus per-source overrides, both keyed
	// by logical field name.
	Columns map[string]string            `yaml:"columns"`
	Sources map[string]map[string]string `yaml:"sources"`
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	Columns map[string]string            `yaml:"columns"`
	Sources map[string]map[string]string `yaml:"sources"`
}

// LoadFromFile reads a YAML config file and merges its values into Config.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	c.Columns = yc.Columns
	c.Sources = yc.Sources
	return c.validateColumns()
}

// validateColumns rejects unknown logical field names and unknown source tags.
func (c *Config) validateColumns() error {
	defaults := source.DefaultColumns()
	check := func(fields map[string]string, where string) error {
		for name := range fields {
			if _, ok := defaults[source.Field(name)]; !ok {
				return fmt.Errorf("unknown column field %q in %s", name, where)
			}
		}
		return nil
	}
	if err := check(c.Columns, "columns"); err != nil {
		return err
	}
	for tag, fields := range c.Sources {
		if !knownSources[tag] {
			return fmt.Errorf("unknown source %q in config (want one of dep_cons, dep_meds, ans_cons)", tag)
		}
		if err := check(fields, "sources."+tag); err != nil {
			return err
		}
	}
	return nil
}

// ColumnDefaults merges the shared built-in names with config overrides.
func (c *Config) ColumnDefaults() source.ColumnDefaults {
	out := source.DefaultColumns()
	for name, physical := range c.Columns {
		out[source.Field(name)] = physical
	}
	return out
}

// Overrides returns the per-source column overrides for a source tag.
func (c *Config) Overrides(sourceTag string) map[source.Field]string {
	fields := c.Sources[sourceTag]
	if len(fields) == 0 {
		return nil
	}
	out := make(map[source.Field]string, len(fields))
	for name, physical := range fields {
		out[source.Field(name)] = physical
	}
	return out
}

// ValidateLoad checks the three source files exist and are readable.
func (c *Config) ValidateLoad() error {
	for _, p := range []struct{ flag, path string }{
		{"--dep-consultas", c.DepVisitsPath},
		{"--dep-meds", c.DepMedsPath},
		{"--ans-consultas", c.AnxVisitsPath},
	} {
		if p.path == "" {
			return fmt.Errorf("%s is required", p.flag)
		}
		if _, err := os.Stat(p.path); err != nil {
			return fmt.Errorf("file not accessible: %w", err)
		}
	}
	return nil
}

// ValidateWithDSN checks source files plus the connection string.
func (c *Config) ValidateWithDSN() error {
	if err := c.ValidateLoad(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}
