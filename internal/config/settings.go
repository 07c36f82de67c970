package config

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Settings are process-level run settings for the harness commands. They
// carry no measurement thresholds; those live in a Policy.
type Settings struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Workers bounds concurrent case processing in sweeps and batches.
	Workers int `koanf:"workers"`

	// TopN caps the warning histogram per measurement key.
	TopN int `koanf:"top_n"`

	// MaxErrorLen truncates stored error diagnostics.
	MaxErrorLen int `koanf:"max_error_len"`

	// PolicyPath is an optional policy override file.
	PolicyPath string `koanf:"policy_path"`

	// PolicyVersion names the built-in policy when PolicyPath is empty. With
	// a PolicyPath it must match the file's version; empty accepts either.
	PolicyVersion string `koanf:"policy_version"`

	// DatasetPath is the case bundle to read.
	DatasetPath string `koanf:"dataset_path"`

	// OutputDir receives CSV and JSON artifacts.
	OutputDir string `koanf:"output_dir"`

	// StorePath, when set, persists runs to a sqlite results store.
	StorePath string `koanf:"store_path"`

	// MetricsOut, when set, receives Prometheus text metrics after a run.
	MetricsOut string `koanf:"metrics_out"`
}

// Environment variable names.
const (
	EnvConfigFile = "BODYMEASURE_CONFIG"
	envPrefix     = "BODYMEASURE_"
)

// NewSettings returns Settings populated with defaults.
func NewSettings() *Settings {
	return &Settings{
		LogLevel:    "info",
		Workers:     runtime.NumCPU(),
		TopN:        5,
		MaxErrorLen: 2048,
		OutputDir:   "out",
	}
}

// LoadSettings builds Settings by layering defaults, an optional file, and
// environment variables. Order of precedence (low -> high):
//  1. defaults (NewSettings)
//  2. file (YAML) if BODYMEASURE_CONFIG is set
//  3. env (prefix BODYMEASURE_)
func LoadSettings(_ context.Context) (*Settings, error) {
	base := NewSettings()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	// BODYMEASURE_OUTPUT_DIR -> output_dir; underscores are preserved to
	// match the koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings for usable values.
func (s *Settings) Validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.TopN < 1 {
		return fmt.Errorf("top_n must be at least 1, got %d", s.TopN)
	}
	if s.MaxErrorLen < 64 {
		return fmt.Errorf("max_error_len must be at least 64, got %d", s.MaxErrorLen)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", s.LogLevel)
	}
	return nil
}
