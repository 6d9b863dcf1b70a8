package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dshills/rpmrepo/internal/repodata"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rpmrepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
log_format: json
repodata:
  concurrency: 2
  generate_database: true
  checksum: sha512
  compression: single
metrics:
  textfile: /var/lib/node_exporter/rpmrepo.prom
notify:
  brokers: [kafka-1:9092, kafka-2:9092]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2, cfg.Repodata.Concurrency)
	assert.True(t, cfg.Repodata.GenerateDatabase)
	assert.Equal(t, "sha512", cfg.Repodata.Checksum)
	assert.Equal(t, "single", cfg.Repodata.Compression)
	assert.Equal(t, "/var/lib/node_exporter/rpmrepo.prom", cfg.Metrics.Textfile)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.Brokers)

	// Keys absent from the file keep their defaults.
	assert.True(t, cfg.Repodata.GenerateFilelists)
	assert.Equal(t, repodata.DefaultUsefulFiles, cfg.Repodata.UsefulFiles)
	assert.Equal(t, -1, cfg.Repodata.CompressionLevel)
	assert.Equal(t, DefaultTopic, cfg.Notify.Topic)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("RPMREPO_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadFromEnvPath(t *testing.T) {
	t.Setenv("RPMREPO_CONFIG", writeConfig(t, "log_level: warn\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "repodata: [not, a, map"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "log_level: debug\nrepodata:\n  concurrency: 2\n")
	t.Setenv("RPMREPO_LOG_LEVEL", "error")
	t.Setenv("RPMREPO_CONCURRENCY", "16")
	t.Setenv("RPMREPO_GENERATE_FILELISTS", "false")
	t.Setenv("RPMREPO_GENERATE_DATABASE", "true")
	t.Setenv("RPMREPO_CHECKSUM", "sha")
	t.Setenv("RPMREPO_NOTIFY_BROKERS", "a:9092,b:9092")
	t.Setenv("RPMREPO_NOTIFY_TOPIC", "repos")
	t.Setenv("RPMREPO_METRICS_TEXTFILE", "/tmp/rpmrepo.prom")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 16, cfg.Repodata.Concurrency)
	assert.False(t, cfg.Repodata.GenerateFilelists)
	assert.True(t, cfg.Repodata.GenerateDatabase)
	assert.Equal(t, "sha", cfg.Repodata.Checksum)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Notify.Brokers)
	assert.Equal(t, "repos", cfg.Notify.Topic)
	assert.Equal(t, "/tmp/rpmrepo.prom", cfg.Metrics.Textfile)
}

func TestEnvOverrideErrors(t *testing.T) {
	path := writeConfig(t, "")

	t.Setenv("RPMREPO_CONCURRENCY", "many")
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("RPMREPO_CONCURRENCY", "")
	t.Setenv("RPMREPO_GENERATE_DATABASE", "perhaps")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := map[string]func(*Config){
		"log level":   func(c *Config) { c.LogLevel = "verbose" },
		"log format":  func(c *Config) { c.LogFormat = "xml" },
		"concurrency": func(c *Config) { c.Repodata.Concurrency = 0 },
		"pattern":     func(c *Config) { c.Repodata.UsefulFiles = "[" },
		"checksum":    func(c *Config) { c.Repodata.Checksum = "md5" },
		"compression": func(c *Config) { c.Repodata.Compression = "bzip2" },
		"level":       func(c *Config) { c.Repodata.CompressionLevel = 42 },
		"topic": func(c *Config) {
			c.Notify.Brokers = []string{"k:9092"}
			c.Notify.Topic = ""
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Notify.Brokers = []string{"kafka:9092"}

	data, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "useful_files:")

	got := &Config{}
	require.NoError(t, yaml.Unmarshal(data, got))
	assert.Equal(t, cfg, got)
}
