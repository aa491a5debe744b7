// Package config loads connection tuning knobs for a cast device client:
// dial timeout, heartbeat cadence, and TLS verification policy.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds client tuning knobs. Zero-value fields are filled in by
// applyDefaults.
type Config struct {
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	SenderID           string        `yaml:"sender_id"`
	LogLevel           string        `yaml:"log_level"`
}

// rawConfig mirrors Config but with string durations, since Cast receivers
// are configured in YAML documents, not Go source.
type rawConfig struct {
	DialTimeout        string `yaml:"dial_timeout"`
	HeartbeatInterval  string `yaml:"heartbeat_interval"`
	HeartbeatTimeout   string `yaml:"heartbeat_timeout"`
	InsecureSkipVerify *bool  `yaml:"insecure_skip_verify"`
	SenderID           string `yaml:"sender_id"`
	LogLevel           string `yaml:"log_level"`
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.SenderID == "" {
		c.SenderID = "sender-0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Default returns a Config populated with the library's default knobs.
// Cast receiver certificates are self-signed and not chained to a public
// root, so InsecureSkipVerify defaults to true; callers connecting to a
// device whose certificate they can otherwise validate should set it to
// false explicitly.
func Default() Config {
	c := Config{InsecureSkipVerify: true}
	c.applyDefaults()
	return c
}

// Load parses a YAML document into a Config, applying defaults to any field
// left unset.
func Load(data []byte) (Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	c := Config{
		InsecureSkipVerify: true,
		SenderID:           raw.SenderID,
		LogLevel:           raw.LogLevel,
	}
	if raw.InsecureSkipVerify != nil {
		c.InsecureSkipVerify = *raw.InsecureSkipVerify
	}

	var err error
	if c.DialTimeout, err = parseDuration(raw.DialTimeout); err != nil {
		return Config{}, fmt.Errorf("config: dial_timeout: %w", err)
	}
	if c.HeartbeatInterval, err = parseDuration(raw.HeartbeatInterval); err != nil {
		return Config{}, fmt.Errorf("config: heartbeat_interval: %w", err)
	}
	if c.HeartbeatTimeout, err = parseDuration(raw.HeartbeatTimeout); err != nil {
		return Config{}, fmt.Errorf("config: heartbeat_timeout: %w", err)
	}

	c.applyDefaults()
	return c, nil
}

// LoadFile reads path and parses it as a Config document.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(data)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
