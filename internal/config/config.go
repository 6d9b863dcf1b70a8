// Package config loads the rpmrepo configuration from a YAML file with
// RPMREPO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/rpmrepo/internal/logger"
	"github.com/dshills/rpmrepo/internal/repodata"
)

const (
	// DefaultPath is read when no path is given and RPMREPO_CONFIG is unset.
	DefaultPath = "/etc/rpmrepo.yaml"
	// DefaultTopic is the Kafka topic for published-index events.
	DefaultTopic = "repodata.published"

	envPrefix = "RPMREPO_"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Repodata  repodata.Config `yaml:"repodata"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// NotifyConfig controls published-index events. No brokers disables them.
type NotifyConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Repodata:  repodata.DefaultConfig(),
		Notify: NotifyConfig{
			Topic: DefaultTopic,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path falls back to RPMREPO_CONFIG and
// then DefaultPath; only an explicitly named file has to exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(envPrefix + "CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads RPMREPO_* variables over the loaded values.
func applyEnvOverrides(cfg *Config) error {
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sCONCURRENCY: %w", envPrefix, err)
		}
		cfg.Repodata.Concurrency = n
	}
	if v := getenv("USEFUL_FILES"); v != "" {
		cfg.Repodata.UsefulFiles = v
	}
	if v := getenv("GENERATE_FILELISTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sGENERATE_FILELISTS: %w", envPrefix, err)
		}
		cfg.Repodata.GenerateFilelists = b
	}
	if v := getenv("GENERATE_DATABASE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sGENERATE_DATABASE: %w", envPrefix, err)
		}
		cfg.Repodata.GenerateDatabase = b
	}
	if v := getenv("CHECKSUM"); v != "" {
		cfg.Repodata.Checksum = v
	}
	if v := getenv("COMPRESSION"); v != "" {
		cfg.Repodata.Compression = v
	}
	if v := getenv("METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v := getenv("NOTIFY_BROKERS"); v != "" {
		cfg.Notify.Brokers = strings.Split(v, ",")
	}
	if v := getenv("NOTIFY_TOPIC"); v != "" {
		cfg.Notify.Topic = v
	}
	return nil
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// Validate checks every setting before anything runs.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}
	if err := c.Repodata.Validate(); err != nil {
		return fmt.Errorf("repodata: %w", err)
	}
	if len(c.Notify.Brokers) > 0 && c.Notify.Topic == "" {
		return errors.New("notify: topic is required when brokers are set")
	}
	return nil
}

// YAML renders the configuration in file form.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
