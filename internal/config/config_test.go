package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Lower.AutoNameConstraints)
	assert.False(t, cfg.Lower.SkipWhenEmpty)
	assert.Equal(t, ".", cfg.Lower.OutputDir)
	assert.True(t, cfg.Apply.Transaction)
	assert.Equal(t, 300, cfg.Apply.TimeoutSeconds)
}

func TestLoadOverridesDefaults(t *testing.T) {
	input := `
[lower]
auto_name_constraints = false
skip_when_empty = true
output_dir = "out/migrations"

[apply]
unsafe = true
timeout_seconds = 60
`
	cfg, err := Load(strings.NewReader(input))
	require.NoError(t, err)

	assert.False(t, cfg.Lower.AutoNameConstraints)
	assert.True(t, cfg.Lower.SkipWhenEmpty)
	assert.Equal(t, "out/migrations", cfg.Lower.OutputDir)
	assert.True(t, cfg.Apply.Unsafe)
	assert.Equal(t, 60, cfg.Apply.TimeoutSeconds)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Apply.Transaction)
}

func TestLoadPartialFile(t *testing.T) {
	cfg, err := Load(strings.NewReader("[lower]\noutput_dir = \"artifacts\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "artifacts", cfg.Lower.OutputDir)
	assert.True(t, cfg.Lower.AutoNameConstraints)
}

func TestLoadInvalidTOML(t *testing.T) {
	_, err := Load(strings.NewReader("[lower\nbroken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode error")
}
