// Package config loads daemon configuration: built-in defaults, then an
// optional YAML file, then environment overrides for the deployment knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/belt-sentinel/internal/logic"
)

// Duration wraps time.Duration for YAML values like "30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon configuration.
type Config struct {
	Device struct {
		ID         string   `yaml:"id"`
		StaleAfter Duration `yaml:"stale_after"`
	} `yaml:"device"`

	Thresholds struct {
		InstabilityG  float64 `yaml:"instability_g"`
		SuddenG       float64 `yaml:"sudden_g"`
		FallG         float64 `yaml:"fall_g"`
		HeartRateLow  float64 `yaml:"heart_rate_low"`
		HeartRateHigh float64 `yaml:"heart_rate_high"`
		SpO2Low       float64 `yaml:"spo2_low"`
	} `yaml:"thresholds"`

	Dispatch struct {
		Cooldown         Duration `yaml:"cooldown"`
		SendTimeout      Duration `yaml:"send_timeout"`
		EscalationWindow Duration `yaml:"escalation_window"`
		// Channels is the try order; remote-first is the default policy
		// since the network path is cheaper and faster than the modem.
		Channels []string `yaml:"channels"`
	} `yaml:"dispatch"`

	Remote struct {
		URL       string   `yaml:"url"`
		AuthToken string   `yaml:"auth_token"`
		Timeout   Duration `yaml:"timeout"`
	} `yaml:"remote"`

	Modem struct {
		Device    string `yaml:"device"`
		Baud      int    `yaml:"baud"`
		Recipient string `yaml:"recipient"`
	} `yaml:"modem"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`

	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load builds the configuration. path may be empty (defaults + env only);
// a named file that doesn't exist is an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Device.ID = "vois-belt-01"
	cfg.Device.StaleAfter = Duration(5 * time.Second)

	th := logic.DefaultThresholds()
	cfg.Thresholds.InstabilityG = th.InstabilityG
	cfg.Thresholds.SuddenG = th.SuddenG
	cfg.Thresholds.FallG = th.FallG
	cfg.Thresholds.HeartRateLow = th.HeartRateLowBpm
	cfg.Thresholds.HeartRateHigh = th.HeartRateHighBpm
	cfg.Thresholds.SpO2Low = th.SpO2LowPct

	cfg.Dispatch.Cooldown = Duration(30 * time.Second)
	cfg.Dispatch.SendTimeout = Duration(10 * time.Second)
	cfg.Dispatch.EscalationWindow = Duration(60 * time.Second)
	cfg.Dispatch.Channels = []string{"remote", "modem"}

	cfg.Remote.Timeout = Duration(10 * time.Second)
	cfg.Modem.Device = "/dev/ttyUSB0"
	cfg.Modem.Baud = 9600
	cfg.MQTT.Broker = "tcp://192.168.1.200:1883"
	cfg.MQTT.ClientID = "belt-sentinel"
	cfg.Journal.Path = "/var/lib/belt-sentinel/journal.db"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.Device.ID = getEnv("BELT_DEVICE_ID", cfg.Device.ID)
	cfg.Remote.URL = getEnv("BELT_REMOTE_URL", cfg.Remote.URL)
	cfg.Remote.AuthToken = getEnv("BELT_REMOTE_TOKEN", cfg.Remote.AuthToken)
	cfg.Modem.Device = getEnv("BELT_MODEM_DEVICE", cfg.Modem.Device)
	cfg.Modem.Recipient = getEnv("BELT_MODEM_RECIPIENT", cfg.Modem.Recipient)
	cfg.MQTT.Broker = getEnv("BELT_MQTT_BROKER", cfg.MQTT.Broker)
	cfg.Journal.Path = getEnv("BELT_JOURNAL_PATH", cfg.Journal.Path)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

func (c *Config) validate() error {
	t := c.Thresholds
	if !(t.InstabilityG < t.SuddenG && t.SuddenG < t.FallG) {
		return fmt.Errorf("thresholds must satisfy instability < sudden < fall, got %.2f/%.2f/%.2f",
			t.InstabilityG, t.SuddenG, t.FallG)
	}
	if t.HeartRateLow >= t.HeartRateHigh {
		return fmt.Errorf("heart rate band inverted: %.0f >= %.0f", t.HeartRateLow, t.HeartRateHigh)
	}
	for _, ch := range c.Dispatch.Channels {
		if ch != "remote" && ch != "modem" {
			return fmt.Errorf("unknown channel %q in dispatch order", ch)
		}
	}
	return nil
}

// LogicThresholds converts the configured bands into classifier thresholds.
func (c *Config) LogicThresholds() logic.Thresholds {
	return logic.Thresholds{
		InstabilityG:     c.Thresholds.InstabilityG,
		SuddenG:          c.Thresholds.SuddenG,
		FallG:            c.Thresholds.FallG,
		HeartRateLowBpm:  c.Thresholds.HeartRateLow,
		HeartRateHighBpm: c.Thresholds.HeartRateHigh,
		SpO2LowPct:       c.Thresholds.SpO2Low,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
