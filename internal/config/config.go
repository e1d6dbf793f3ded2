// Package config loads tyuo configuration.
//
// Precedence, lowest first: compiled defaults, the YAML file, environment
// variables, then explicit overrides (CLI flags). The merged result is
// validated against an embedded CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TYUO"

// Config is the complete process configuration.
type Config struct {
	// DataDir holds one <context-id>.sqlite3 file per context.
	DataDir string `yaml:"data_dir"`
	// GenericBansFile lists substrings banned in every context, one per line.
	GenericBansFile string `yaml:"generic_bans_file"`
	// StopWordsFile lists tokens never used as primary keywords.
	StopWordsFile string `yaml:"stop_words_file"`

	Log        LogConfig        `yaml:"log"`
	Store      StoreConfig      `yaml:"store"`
	Learning   LearningConfig   `yaml:"learning"`
	Generation GenerationConfig `yaml:"generation"`
	Service    ServiceConfig    `yaml:"service"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Codec is the blob encoding for new writes; reads accept every codec.
	Codec string `yaml:"codec"`
}

// LearningConfig bounds what is learned and how long it is kept.
type LearningConfig struct {
	MaxTokenLength      int           `yaml:"max_token_length"`
	MinTokenCount       int           `yaml:"min_token_count"`
	MaxTransitionAge    time.Duration `yaml:"max_transition_age"`
	DecimationThreshold int           `yaml:"decimation_threshold"`
	DecimationFactor    int           `yaml:"decimation_factor"`
}

// GenerationConfig tunes keyword selection and walks.
type GenerationConfig struct {
	MinKeywords  int `yaml:"min_keywords"`
	MaxWalkSteps int `yaml:"max_walk_steps"`
	KeywordPool  int `yaml:"keyword_pool"`
}

// ServiceConfig configures the HTTP service.
type ServiceConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the compiled defaults.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Store: StoreConfig{Codec: "json-zlib"},
		Learning: LearningConfig{
			MaxTokenLength:      64,
			MinTokenCount:       1,
			MaxTransitionAge:    365 * 24 * time.Hour,
			DecimationThreshold: 100,
			DecimationFactor:    3,
		},
		Generation: GenerationConfig{
			MinKeywords:  3,
			MaxWalkSteps: 32,
			KeywordPool:  8,
		},
		Service: ServiceConfig{
			Listen:          ":48100",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tyuo",
		},
	}
}

// Loader builds a Config from its sources.
type Loader struct {
	path      string
	lookupEnv func(string) (string, bool)
	overrides []func(*Config)
}

// NewLoader returns a Loader reading the process environment.
func NewLoader() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithConfigPath sets the YAML file. An empty path skips the file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv replaces the environment lookup.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// WithOverride adds a function applied after the file and the environment.
func (l *Loader) WithOverride(fn func(*Config)) *Loader {
	l.overrides = append(l.overrides, fn)
	return l
}

// Load merges all sources and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(bytes.NewReader(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", l.path, err)
		}
	}

	l.applyEnv(cfg)
	for _, fn := range l.overrides {
		fn(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos surface instead of silently falling
// back to defaults.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) {
	if l.lookupEnv == nil {
		return
	}
	for key, dst := range map[string]*string{
		EnvPrefix + "_DATA_DIR":          &cfg.DataDir,
		EnvPrefix + "_GENERIC_BANS_FILE": &cfg.GenericBansFile,
		EnvPrefix + "_LOG_LEVEL":         &cfg.Log.Level,
		EnvPrefix + "_LISTEN":            &cfg.Service.Listen,
	} {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}
