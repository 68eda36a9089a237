// Package config loads scan settings from defaults, DUPAUDIT_* environment
// variables, an optional config file and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dupaudit/pkg/hasher"
	"dupaudit/pkg/report"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DUPAUDIT"

// Config holds the settings for one invocation.
type Config struct {
	Workers          int           `mapstructure:"workers"`           // hashing goroutines
	Extensions       []string      `mapstructure:"extensions"`        // allow-list, empty means all files
	SkipDirs         []string      `mapstructure:"skip_dirs"`         // directory names never entered
	Hash             string        `mapstructure:"hash"`              // full-hash algorithm
	Verify           bool          `mapstructure:"verify"`            // byte-compare confirmed sets
	Timeout          time.Duration `mapstructure:"timeout"`           // per read/stat, zero means none
	Format           string        `mapstructure:"format"`            // report format
	Output           string        `mapstructure:"output"`            // report path, empty means generated
	ProgressLog      string        `mapstructure:"progress_log"`      // JSONL progress event log
	ProgressInterval time.Duration `mapstructure:"progress_interval"` // minimum gap between progress updates
}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"workers":           "workers",
	"ext":               "extensions",
	"skip-dir":          "skip_dirs",
	"hash":              "hash",
	"verify":            "verify",
	"timeout":           "timeout",
	"format":            "format",
	"output":            "output",
	"progress-log":      "progress_log",
	"progress-interval": "progress_interval",
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Workers:          runtime.NumCPU(),
		Extensions:       []string{},
		SkipDirs:         []string{},
		Hash:             hasher.SHA256,
		Format:           string(report.FormatJSON),
		ProgressInterval: 500 * time.Millisecond,
	}
}

// Load resolves the configuration. file may be empty; flags may be nil.
// Only flags the user actually set override lower layers.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("workers", d.Workers)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("skip_dirs", d.SkipDirs)
	v.SetDefault("hash", d.Hash)
	v.SetDefault("verify", d.Verify)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("format", d.Format)
	v.SetDefault("output", d.Output)
	v.SetDefault("progress_log", d.ProgressLog)
	v.SetDefault("progress_interval", d.ProgressInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Extensions = splitList(cfg.Extensions)
	cfg.SkipDirs = splitList(cfg.SkipDirs)
	cfg.Hash = strings.ToLower(strings.TrimSpace(cfg.Hash))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c Config) Validate() error {
	var errs []error

	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.ProgressInterval < 0 {
		errs = append(errs, fmt.Errorf("progress_interval must not be negative, got %s", c.ProgressInterval))
	}
	if !slices.Contains(hasher.Algorithms(), c.Hash) {
		errs = append(errs, fmt.Errorf("%w: %q (want one of %s)", hasher.ErrUnknownAlgorithm, c.Hash, strings.Join(hasher.Algorithms(), ", ")))
	}
	if _, err := report.ParseFormat(c.Format); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// splitList accepts both repeated values and comma-separated ones, since
// environment variables and config files can only carry the latter.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
