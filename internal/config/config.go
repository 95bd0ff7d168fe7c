// Package config loads overpassql configuration.
//
// Values are layered, lowest to highest precedence:
//
//  1. built-in defaults
//  2. overpassql.yaml (or an explicit --config file)
//  3. OVERPASSQL_* environment variables
//  4. command-line flags that were explicitly set
//
// The merged result is checked against an embedded CUE schema before any
// command runs.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/sqlgen"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "OVERPASSQL_"

// Default values.
const (
	DefaultDialect = dialect.NamePostgres
	DefaultSRID    = sqlgen.DefaultSRID
	DefaultFormat  = "text"
	DefaultJobs    = 4
)

// Config holds the merged configuration.
type Config struct {
	Dialect string `koanf:"dialect" json:"dialect"`
	SRID    string `koanf:"srid" json:"srid"`
	Table   string `koanf:"table" json:"table"`
	Format  string `koanf:"format" json:"format"`
	Verbose bool   `koanf:"verbose" json:"verbose"`
	Cache   string `koanf:"cache" json:"cache"`
	DSN     string `koanf:"dsn" json:"dsn"`
	Jobs    int    `koanf:"jobs" json:"jobs"`

	// File is the config file that was read, if any.
	File string `koanf:"-" json:"-"`
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"dialect": DefaultDialect,
		"srid":    DefaultSRID,
		"table":   "",
		"format":  DefaultFormat,
		"verbose": false,
		"cache":   "",
		"dsn":     "",
		"jobs":    DefaultJobs,
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > overpassql.yaml > overpassql.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"overpassql.yaml", "overpassql.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load merges defaults, the config file, the environment and flags, then
// validates the result. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// Transform: OVERPASSQL_SRID -> srid
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := Defaults()[key]; !known {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded", "file", used, "dialect", cfg.Dialect, "srid", cfg.SRID)
	return &cfg, nil
}

// ValidationError reports a configuration that does not satisfy the schema.
type ValidationError struct {
	File    string
	Details string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("invalid configuration (%s): %s", e.File, e.Details)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Details)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks cfg against the #Config CUE definition.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{
			File:    cfg.File,
			Details: strings.TrimSpace(cueerrors.Details(err, nil)),
			Err:     err,
		}
	}
	return nil
}
