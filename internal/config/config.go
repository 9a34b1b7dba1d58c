// Package config loads agent configuration from a YAML file with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "2s" and "5m" parse.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// SyncConfig configures the remote-store collaborator.
type SyncConfig struct {
	BaseURL      string   `yaml:"base_url"`
	PollInterval Duration `yaml:"poll_interval"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// IntervalsConfig holds the periodic timer settings.
type IntervalsConfig struct {
	UsagePoll    Duration `yaml:"usage_poll"`
	UsagePublish Duration `yaml:"usage_publish"`
	PositionPoll Duration `yaml:"position_poll"`
	Heartbeat    Duration `yaml:"heartbeat"`
}

// BridgeConfig configures the localhost HTTP surface (call screening and
// metrics).
type BridgeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LocationConfig points at the local location bridge.
type LocationConfig struct {
	BridgeURL string `yaml:"bridge_url"`
}

// ActuatorConfig maps enforcement actions to commands. An empty command
// disables that action (logged only).
type ActuatorConfig struct {
	LockCommand   []string `yaml:"lock_command"`
	HomeCommand   []string `yaml:"home_command"`
	NotifyCommand []string `yaml:"notify_command"`
}

// Config is the full agent configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	LogPath string `yaml:"log_path"`

	Sync      SyncConfig      `yaml:"sync"`
	Intervals IntervalsConfig `yaml:"intervals"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Location  LocationConfig  `yaml:"location"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
}

// Default returns the built-in configuration. LogPath is left empty
// here and derived from the effective DataDir in applyDefaults, so a
// file that sets data_dir without log_path keeps its logs in the
// configured data directory.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".agentd"),
		Sync: SyncConfig{
			PollInterval: Duration(5 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Intervals: IntervalsConfig{
			UsagePoll:    Duration(2 * time.Second),
			UsagePublish: Duration(time.Minute),
			PositionPoll: Duration(5 * time.Minute),
			Heartbeat:    Duration(30 * time.Second),
		},
		Bridge: BridgeConfig{
			ListenAddr: "127.0.0.1:9437",
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		cfg.applyDefaults()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults backfills zero intervals so a partial file cannot produce
// a ticker with period zero.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Intervals.UsagePoll <= 0 {
		c.Intervals.UsagePoll = def.Intervals.UsagePoll
	}
	if c.Intervals.UsagePublish <= 0 {
		c.Intervals.UsagePublish = def.Intervals.UsagePublish
	}
	if c.Intervals.PositionPoll <= 0 {
		c.Intervals.PositionPoll = def.Intervals.PositionPoll
	}
	if c.Intervals.Heartbeat <= 0 {
		c.Intervals.Heartbeat = def.Intervals.Heartbeat
	}
	if c.Sync.PollInterval <= 0 {
		c.Sync.PollInterval = def.Sync.PollInterval
	}
	if c.Sync.WriteTimeout <= 0 {
		c.Sync.WriteTimeout = def.Sync.WriteTimeout
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogPath == "" {
		c.LogPath = filepath.Join(c.DataDir, "agentd.log")
	}
}
