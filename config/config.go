// Package config loads tuning settings from defaults, an optional YAML file
// and TIDYTUNE_* environment variables, in that order of precedence.
//
// Environment variables map to keys by dropping the prefix, lower-casing
// and turning "__" into a section separator:
//
//	TIDYTUNE_TUNE__GRID_SIZE=20       -> tune.grid_size
//	TIDYTUNE_TUNE__RACE__ENABLED=true -> tune.race.enabled
//	TIDYTUNE_METRICS=roc_auc,accuracy -> metrics
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "TIDYTUNE_"

// PathEnvVar overrides the config file path when Load is given "".
const PathEnvVar = EnvPrefix + "CONFIG"

// Config is the full configuration.
type Config struct {
	Split    SplitConfig    `koanf:"split"`
	Resample ResampleConfig `koanf:"resample"`
	Tune     TuneConfig     `koanf:"tune"`
	Metrics  []string       `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Store    StoreConfig    `koanf:"store"`
	Serve    ServeConfig    `koanf:"serve"`
}

// SplitConfig configures the initial training/test split.
type SplitConfig struct {
	Prop    float64 `koanf:"prop"`
	Strata  string  `koanf:"strata"`
	Breaks  int     `koanf:"breaks"`
	Pool    float64 `koanf:"pool"`
	Outcome string  `koanf:"outcome"`
	Seed    uint64  `koanf:"seed"`
}

// ResampleConfig configures the resamples built from the training set.
type ResampleConfig struct {
	// Kind is vfold, bootstrap or validation.
	Kind    string  `koanf:"kind"`
	V       int     `koanf:"v"`
	Repeats int     `koanf:"repeats"`
	Times   int     `koanf:"times"`
	Prop    float64 `koanf:"prop"`
	Strata  string  `koanf:"strata"`
	Seed    uint64  `koanf:"seed"`
}

// TuneConfig configures grid generation and the tuner.
type TuneConfig struct {
	GridSize int `koanf:"grid_size"`
	// GridKind is latin_hypercube, random or regular.
	GridKind string     `koanf:"grid_kind"`
	Levels   int        `koanf:"levels"`
	Seed     uint64     `koanf:"seed"`
	Workers  int        `koanf:"workers"`
	FailFast bool       `koanf:"fail_fast"`
	Race     RaceConfig `koanf:"race"`
}

// RaceConfig configures racing.
type RaceConfig struct {
	Enabled bool    `koanf:"enabled"`
	Alpha   float64 `koanf:"alpha"`
	BurnIn  int     `koanf:"burn_in"`
	Metric  string  `koanf:"metric"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StoreConfig configures the results journal. An empty DSN disables it.
type StoreConfig struct {
	DSN string `koanf:"dsn"`
}

// ServeConfig configures the prediction service.
type ServeConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Split:    SplitConfig{Prop: 0.75, Breaks: 4, Pool: 0.1},
		Resample: ResampleConfig{Kind: "vfold", V: 10, Repeats: 1, Times: 25, Prop: 0.75},
		Tune: TuneConfig{
			GridSize: 10,
			GridKind: "latin_hypercube",
			Levels:   3,
			Race:     RaceConfig{Alpha: 0.05, BurnIn: 3},
		},
		Log:   LogConfig{Level: "info", Format: "json"},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// Load layers defaults, the YAML file at path (skipped when path is empty
// and TIDYTUNE_CONFIG is unset) and the environment, then validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}
	if err := splitList(k, "metrics"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps TIDYTUNE_TUNE__GRID_SIZE to tune.grid_size.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// splitList turns a comma separated string (from the environment) into a
// list. Lists from YAML are left alone.
func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return errors.Wrap(k.Set(path, out), "split "+path)
}
