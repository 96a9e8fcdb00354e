// Package config loads the optional relift.toml options file. Values left
// out fall back to defaults; command-line flags override whatever the file
// provides.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full options file.
type Config struct {
	Lower LowerOptions `toml:"lower"`
	Apply ApplyOptions `toml:"apply"`
}

// LowerOptions steers the lowering pipeline.
type LowerOptions struct {
	// AutoNameConstraints assigns deterministic names to anonymous
	// foreign-key operations before extraction.
	AutoNameConstraints bool `toml:"auto_name_constraints"`
	// SkipWhenEmpty suppresses output artifacts when every change set was
	// lowered away.
	SkipWhenEmpty bool `toml:"skip_when_empty"`
	// OutputDir receives the emitted changelog artifacts.
	OutputDir string `toml:"output_dir"`
}

// ApplyOptions carries defaults for the apply command.
type ApplyOptions struct {
	Transaction           bool `toml:"transaction"`
	AllowNonTransactional bool `toml:"allow_non_transactional"`
	Unsafe                bool `toml:"unsafe"`
	TimeoutSeconds        int  `toml:"timeout_seconds"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Lower: LowerOptions{
			AutoNameConstraints: true,
			OutputDir:           ".",
		},
		Apply: ApplyOptions{
			Transaction:    true,
			TimeoutSeconds: 300,
		},
	}
}

// LoadFile reads the options file at path over the defaults.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open file %q: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes TOML content from reader over the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode error: %w", err)
	}
	return cfg, nil
}
