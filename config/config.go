// Package config loads the PHY and channel configuration from a YAML
// file, the way samoyed's tocalls.yaml loader (src/deviceid.go) reads a
// data file with gopkg.in/yaml.v3 rather than hand-rolling a parser.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pavelkvkv/go-wireless-rdt/engine"
)

// Channel is one channel's queue depths and block size limit, mirroring
// Wireless_Channels_Init's per-channel depth configuration.
type Channel struct {
	RxQueueLen   int    `yaml:"rx_queue_len"`
	TxQueueLen   int    `yaml:"tx_queue_len"`
	MaxBlockSize uint32 `yaml:"max_block_size"`
}

// Config is the full on-disk configuration.
type Config struct {
	EngineID string             `yaml:"engine_id"`
	PMK      string             `yaml:"pmk"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Channels map[string]Channel `yaml:"channels"`
}

// MetricsConfig controls the Prometheus HTTP endpoint.
type MetricsConfig struct {
	Listen  string `yaml:"listen"`
	Enabled bool   `yaml:"enabled"`
}

// Default returns the built-in configuration used when no file is
// given, mirroring the per-channel depths the C original wires in
// Wireless_Channels_Init.
func Default() Config {
	return Config{
		EngineID: "rdt-engine",
		Metrics:  MetricsConfig{Listen: ":9477", Enabled: true},
		Channels: map[string]Channel{
			"system":  {RxQueueLen: 4, TxQueueLen: 4, MaxBlockSize: 1024},
			"sensors": {RxQueueLen: 8, TxQueueLen: 4, MaxBlockSize: 4096},
			"params":  {RxQueueLen: 4, TxQueueLen: 4, MaxBlockSize: 8 * 1024},
			"files":   {RxQueueLen: 2, TxQueueLen: 2, MaxBlockSize: 64 * 1024},
		},
	}
}

// Load reads and parses path, falling back to Default on an empty path.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ChannelConfigs maps the named channel config onto engine.ChannelConfig
// keyed by the engine's numeric channel IDs.
func (c Config) ChannelConfigs() map[uint8]engine.ChannelConfig {
	named := map[string]uint8{
		"system":  engine.System,
		"sensors": engine.Sensors,
		"params":  engine.Params,
		"files":   engine.Files,
	}
	out := make(map[uint8]engine.ChannelConfig, len(named))
	for name, id := range named {
		ch, ok := c.Channels[name]
		if !ok {
			continue
		}
		out[id] = engine.ChannelConfig{
			RxQueueLen:   ch.RxQueueLen,
			TxQueueLen:   ch.TxQueueLen,
			MaxBlockSize: ch.MaxBlockSize,
		}
	}
	return out
}
