// Package config loads fleetwall settings from a YAML file.
//
// Settings describe how to reach devices and how hard to push on them; the
// rule and address-list definitions themselves live in the database or in a
// separate definitions file.
//
// Config file locations (priority order):
//  1. $FLEETWALL_CONFIG
//  2. ./fleetwall.yaml
//  3. $XDG_CONFIG_HOME/fleetwall/config.yaml
//  4. ~/.config/fleetwall/config.yaml
//  5. /etc/fleetwall/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		return DefaultConfig(), "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./fleetwall.db"
	}
	if c.Transport.SSH.User == "" {
		c.Transport.SSH.User = "admin"
	}
	if c.Transport.SSH.Port == 0 {
		c.Transport.SSH.Port = 22
	}
	if c.Transport.SSH.ConnectTimeout == 0 {
		c.Transport.SSH.ConnectTimeout = Duration(10 * time.Second)
	}
	if c.Reachability.TTL == 0 {
		c.Reachability.TTL = Duration(time.Minute)
	}
	if c.Reachability.Timeout == 0 {
		c.Reachability.Timeout = Duration(2 * time.Second)
	}
}

// Validate rejects settings no deployment could run with
func (c *Config) Validate() error {
	if c.Deploy.MaxInFlight != nil && *c.Deploy.MaxInFlight < 1 {
		return fmt.Errorf("deploy.max_in_flight must be at least 1, got %d", *c.Deploy.MaxInFlight)
	}
	if c.Deploy.CommandTimeout != nil && *c.Deploy.CommandTimeout <= 0 {
		return fmt.Errorf("deploy.command_timeout must be positive")
	}
	if c.Transport.SSH.Port < 1 || c.Transport.SSH.Port > 65535 {
		return fmt.Errorf("transport.ssh.port out of range: %d", c.Transport.SSH.Port)
	}
	return nil
}

// EffectiveDeploy returns the posture profile with overrides applied
func (c *Config) EffectiveDeploy() DeployProfile {
	base := c.Posture.GetProfile()

	if c.Deploy.MaxInFlight != nil {
		base.MaxInFlight = *c.Deploy.MaxInFlight
	}
	if c.Deploy.CommandTimeout != nil {
		base.CommandTimeout = c.Deploy.CommandTimeout.Duration()
	}
	if c.Deploy.Preflight != nil {
		base.Preflight = *c.Deploy.Preflight
	}

	return base
}

// SSHPassword resolves the password from the configured environment variable
func (c *Config) SSHPassword() string {
	if c.Transport.SSH.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Transport.SSH.PasswordEnv)
}

// SSHPassphrase resolves the key passphrase from the configured environment
// variable
func (c *Config) SSHPassphrase() string {
	if c.Transport.SSH.PassphraseEnv == "" {
		return ""
	}
	return os.Getenv(c.Transport.SSH.PassphraseEnv)
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	profile := c.EffectiveDeploy()
	summary := fmt.Sprintf("Posture: %s, Max in flight: %d, Command timeout: %s, Preflight: %v\n",
		c.Posture, profile.MaxInFlight, profile.CommandTimeout, profile.Preflight)
	summary += fmt.Sprintf("SSH: %s@*:%d, Database: %s", c.Transport.SSH.User, c.Transport.SSH.Port, c.Database.Path)
	if c.Definitions.Path != "" {
		summary += fmt.Sprintf(", Definitions: %s (watch=%v)", c.Definitions.Path, c.Definitions.Watch)
	}
	return summary
}
