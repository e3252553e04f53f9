// Package config resolves edtable settings from flags, environment,
// an optional edtable.yaml file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Keys understood by Load. Flags bound with viper.BindPFlag use the same names.
const (
	KeyProject     = "project"
	KeyEditorTable = "editor_table"
	KeyCSVRoot     = "csv_root"
	KeyRules       = "rules"
	KeyListen      = "listen"
	KeyDebounce    = "debounce"
	KeyUIDScope    = "uid_scope"
)

const (
	EnvPrefix = "EDTABLE"
	FileName  = "edtable" // edtable.yaml

	ScopeType   = "type"
	ScopeGlobal = "global"
)

// Config is the resolved configuration of one run.
type Config struct {
	Project     string        `mapstructure:"project"`
	EditorTable string        `mapstructure:"editor_table"`
	CSVRoot     string        `mapstructure:"csv_root"`
	Rules       string        `mapstructure:"rules"`
	Listen      string        `mapstructure:"listen"`
	Debounce    time.Duration `mapstructure:"debounce"`
	UIDScope    string        `mapstructure:"uid_scope"`
	File        string        `mapstructure:"-"` // config file used, if any
}

// GlobalUIDScope reports whether UIDs must be unique across all types.
func (c *Config) GlobalUIDScope() bool { return c.UIDScope == ScopeGlobal }

// SetDefaults registers the static defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyProject, ".")
	// Project-relative paths default empty and are derived in resolve; the
	// empty defaults make the keys visible to AutomaticEnv during Unmarshal.
	v.SetDefault(KeyEditorTable, "")
	v.SetDefault(KeyCSVRoot, "")
	v.SetDefault(KeyRules, "")
	v.SetDefault(KeyListen, "127.0.0.1:8765")
	v.SetDefault(KeyDebounce, 200*time.Millisecond)
	v.SetDefault(KeyUIDScope, ScopeType)
}

// Load reads the environment and config file into v and returns the
// resolved Config. file names an explicit config file; when empty,
// edtable.yaml is looked up in the project directory and the working
// directory, and its absence is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString(KeyProject))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	c.File = v.ConfigFileUsed()
	if err := c.resolve(); err != nil {
		return nil, err
	}
	log.Debug().
		Str("config", c.File).
		Str("project", c.Project).
		Str("editorTable", c.EditorTable).
		Str("csvRoot", c.CSVRoot).
		Str("uidScope", c.UIDScope).
		Msg("config loaded")
	return &c, nil
}

// resolve fills the project-relative defaults and validates the result.
func (c *Config) resolve() error {
	project, err := filepath.Abs(c.Project)
	if err != nil {
		return fmt.Errorf("resolving project: %w", err)
	}
	c.Project = project
	if c.EditorTable == "" {
		c.EditorTable = filepath.Join(project, "editor_table")
	}
	if c.CSVRoot == "" {
		c.CSVRoot = filepath.Join(project, "script", "y3-helper", "editor_table", "csv")
	}
	c.EditorTable = underProject(project, c.EditorTable)
	c.CSVRoot = underProject(project, c.CSVRoot)
	if c.Rules != "" {
		c.Rules = underProject(project, c.Rules)
	}

	c.UIDScope = strings.ToLower(strings.TrimSpace(c.UIDScope))
	switch c.UIDScope {
	case ScopeType, ScopeGlobal:
	default:
		return fmt.Errorf("uid_scope must be %q or %q, got %q", ScopeType, ScopeGlobal, c.UIDScope)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	return nil
}

func underProject(project, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(project, p)
}
