package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "feed_url: ws://localhost:8545\npublish_addr: :8546\n")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultMinTokenQuality), cfg.MinTokenQuality)
	assert.Equal(t, DefaultMetricsAddr, cfg.MetricsAddr)
	assert.False(t, cfg.SkipStateDecodeFailures)
}

func TestLoadConfigHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
feed_url: ws://localhost:8545
publish_addr: :8546
metrics_addr: :9999
min_token_quality: 80
skip_state_decode_failures: true
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, uint32(80), cfg.MinTokenQuality)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
	assert.True(t, cfg.SkipStateDecodeFailures)
}

func TestLoadConfigRejectsMissingFeedURL(t *testing.T) {
	path := writeConfig(t, "publish_addr: :8546\n")

	_, err := LoadConfig(path)

	assert.ErrorContains(t, err, "feed_url")
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Error(t, err)
}
