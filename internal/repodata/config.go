package repodata

import (
	"fmt"
	"regexp"
	"runtime"

	"github.com/dshills/rpmrepo/internal/compress"
	"github.com/dshills/rpmrepo/internal/digest"
)

// DefaultUsefulFiles selects the paths yum resolves file dependencies
// against without downloading filelists.
const DefaultUsefulFiles = `^(/etc/|.*/bin/|/usr/lib/sendmail$)`

// Config controls how metadata is generated.
type Config struct {
	Concurrency       int    `yaml:"concurrency"`
	UsefulFiles       string `yaml:"useful_files"`
	GenerateFilelists bool   `yaml:"generate_filelists"`
	GenerateDatabase  bool   `yaml:"generate_database"`
	Checksum          string `yaml:"checksum"`
	Compression       string `yaml:"compression"`
	CompressionLevel  int    `yaml:"compression_level"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Concurrency:       runtime.NumCPU(),
		UsefulFiles:       DefaultUsefulFiles,
		GenerateFilelists: true,
		Checksum:          "sha256",
		Compression:       compress.Parallel,
		CompressionLevel:  -1,
	}
}

// Validate checks that every setting can be compiled.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}

// settings is Config with its names resolved.
type settings struct {
	concurrency       int
	usefulFiles       *regexp.Regexp
	generateFilelists bool
	generateDatabase  bool
	hasher            *digest.Hasher
	compressor        compress.Compressor
}

func (c Config) compile() (*settings, error) {
	if c.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	useful, err := regexp.Compile(c.UsefulFiles)
	if err != nil {
		return nil, fmt.Errorf("useful_files: %w", err)
	}
	hasher, err := digest.New(c.Checksum)
	if err != nil {
		return nil, fmt.Errorf("checksum: %w", err)
	}
	compressor, err := compress.New(c.Compression, c.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("compression: %w", err)
	}
	return &settings{
		concurrency:       c.Concurrency,
		usefulFiles:       useful,
		generateFilelists: c.GenerateFilelists,
		generateDatabase:  c.GenerateDatabase,
		hasher:            hasher,
		compressor:        compressor,
	}, nil
}
