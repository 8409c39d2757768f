// Package config loads the decoder's YAML configuration file, following
// the same load-then-validate shape as the teacher's
// streams/jsonrpc/client.Config and differ.StateDifferConfig.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMinTokenQuality matches the reference decoder's own
	// default: tokens below this quality score are never ingested.
	DefaultMinTokenQuality = 51
	// DefaultMetricsAddr is the MetricsAddr used when the file leaves it
	// unset.
	DefaultMetricsAddr = ":9090"
)

// DecoderConfig is the on-disk shape of the decoder's configuration.
type DecoderConfig struct {
	// SkipStateDecodeFailures, if true, downgrades a per-pool decode
	// failure from a fatal tick abort to a logged skip.
	SkipStateDecodeFailures bool `yaml:"skip_state_decode_failures"`
	// MinTokenQuality gates which feed-reported tokens are admitted
	// into the Token Registry. Zero in the file means "unset": it is
	// replaced with DefaultMinTokenQuality by LoadConfig.
	MinTokenQuality uint32 `yaml:"min_token_quality"`
	// FeedURL is the upstream JSON-RPC endpoint of the feed. It is
	// required by validation; decoderd does not dial it.
	FeedURL string `yaml:"feed_url"`
	// PublishAddr is the JSON-RPC address for publishing BlockUpdate
	// snapshots and diffs to downstream mirrors. It is required by
	// validation; decoderd only logs it and binds no listener.
	PublishAddr string `yaml:"publish_addr"`
	// MetricsAddr is the address for Prometheus metrics. decoderd only
	// logs it and starts no HTTP listener.
	MetricsAddr string `yaml:"metrics_addr"`
}

// validate checks that a loaded configuration is usable.
func (c *DecoderConfig) validate() error {
	if c.FeedURL == "" {
		return errors.New("config: feed_url is required")
	}
	if c.PublishAddr == "" {
		return errors.New("config: publish_addr is required")
	}
	return nil
}

// applyDefaults fills in zero-valued fields the decoder cannot run
// sensibly without, matching spec-mandated defaults.
func (c *DecoderConfig) applyDefaults() {
	if c.MinTokenQuality == 0 {
		c.MinTokenQuality = DefaultMinTokenQuality
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
}

// LoadConfig reads and validates a DecoderConfig from a YAML file at path.
func LoadConfig(path string) (*DecoderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg DecoderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
