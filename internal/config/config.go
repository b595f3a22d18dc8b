// Package config loads the application configuration from an optional
// YAML file with environment-variable overrides on top. Every setting
// has a working default, so a bare binary runs without any config at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/identify"
)

// Config is the full application configuration.
type Config struct {
	// SessionRoot is the base directory for stored sessions.
	SessionRoot string `yaml:"session_root"`
	// IndexPath is the SQLite session index file. Empty disables the index.
	IndexPath string `yaml:"index_path"`
	// ListenAddr is the HTTP server bind address.
	ListenAddr string `yaml:"listen_addr"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Shapes     detection.ShapeConfig      `yaml:"shapes"`
	Classifier detection.ClassifierConfig `yaml:"classifier"`
	Fallback   detection.FallbackConfig   `yaml:"fallback"`
	Pipeline   detection.PipelineConfig   `yaml:"pipeline"`
	Identify   identify.Config            `yaml:"identify"`
}

// Default returns the configuration used when no file or overrides exist.
func Default() Config {
	return Config{
		SessionRoot: "sessions",
		IndexPath:   "sessions/index.db",
		ListenAddr:  ":8080",
		LogLevel:    "info",
		Shapes:      detection.DefaultShapeConfig(),
		Classifier:  detection.DefaultClassifierConfig(),
		Fallback:    detection.DefaultFallbackConfig(),
		Pipeline:    detection.DefaultPipelineConfig(),
		Identify:    identify.DefaultConfig(),
	}
}

// Load reads path (if non-empty and present) over the defaults, then
// applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults apply.
		default:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv maps STAMPSCAN_* variables onto the config. Only the settings
// an operator realistically changes per deployment are exposed.
func (c *Config) applyEnv() {
	envString("STAMPSCAN_SESSION_ROOT", &c.SessionRoot)
	envString("STAMPSCAN_INDEX_PATH", &c.IndexPath)
	envString("STAMPSCAN_LISTEN_ADDR", &c.ListenAddr)
	envString("STAMPSCAN_LOG_LEVEL", &c.LogLevel)
	envString("STAMPSCAN_MODEL_PATH", &c.Fallback.ModelPath)
	envBool("STAMPSCAN_ENABLE_FALLBACK", &c.Pipeline.EnableFallback)
	envFloat("STAMPSCAN_CLASSIFIER_THRESHOLD", &c.Classifier.ConfidenceThreshold)
	envFloat("STAMPSCAN_AUTO_THRESHOLD", &c.Identify.AutoThreshold)
	envFloat("STAMPSCAN_MIN_THRESHOLD", &c.Identify.MinThreshold)
	envInt("STAMPSCAN_TOP_K", &c.Identify.TopK)
	envInt("STAMPSCAN_CONCURRENCY", &c.Identify.Concurrency)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
