// Package config loads dgramctl settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/opd-ai/dgram/limits"
	"gopkg.in/yaml.v3"
)

// Config holds the dgramctl configuration.
type Config struct {
	Stack        string            `yaml:"stack" json:"stack"`
	Timeout      string            `yaml:"timeout" json:"timeout"`
	Bind         string            `yaml:"bind" json:"bind"`
	LocalAddress string            `yaml:"local_address" json:"local_address"`
	QueueDepth   int               `yaml:"queue_depth" json:"queue_depth"`
	LogLevel     string            `yaml:"log_level" json:"log_level"`
	Hosts        map[string]string `yaml:"hosts" json:"hosts"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Stack:      string(interfaces.StackReal),
		Timeout:    "forever",
		QueueDepth: limits.DefaultQueueDepth,
		LogLevel:   "warn",
		Hosts:      map[string]string{},
	}
}

// DefaultPath returns the default config file path: ~/.dgram/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".dgram", "config.yaml")
	}
	return filepath.Join(home, ".dgram", "config.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns the default Config with no error.
// Keys missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseTimeout interprets a timeout setting. "forever" (or "-1") blocks
// without limit, "0" polls, anything else is a Go duration such as "2s".
func ParseTimeout(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forever", "-1":
		return interfaces.ForeverTimeout, nil
	case "0", "nonblocking":
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", interfaces.ErrInvalidTimeout, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %q", interfaces.ErrInvalidTimeout, s)
	}
	return d, nil
}

// ToStackConfig converts the file settings into a validated stack configuration.
func (c *Config) ToStackConfig() (*interfaces.StackConfig, error) {
	timeout, err := ParseTimeout(c.Timeout)
	if err != nil {
		return nil, err
	}

	hosts := make(map[string]string, len(c.Hosts))
	for name, addr := range c.Hosts {
		hosts[name] = addr
	}

	sc := &interfaces.StackConfig{
		Kind:         interfaces.StackKind(c.Stack),
		BindAddress:  c.Bind,
		LocalAddress: c.LocalAddress,
		Timeout:      timeout,
		QueueDepth:   c.QueueDepth,
		Hosts:        hosts,
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}
