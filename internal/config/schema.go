package config

import (
	"time"

	"fleetwall/internal/parser"
)

// Config is the root configuration structure
type Config struct {
	Version      int                `yaml:"version"`
	Posture      Posture            `yaml:"posture"`
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Deploy       DeployConfig       `yaml:"deploy"`
	Transport    TransportConfig    `yaml:"transport"`
	Reachability ReachabilityConfig `yaml:"reachability"`
	Parser       ParserConfig       `yaml:"parser"`
	Definitions  DefinitionsConfig  `yaml:"definitions"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// APIKeys, when set, are required on every API request
	APIKeys []string `yaml:"api_keys,omitempty"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DeployConfig overrides the posture's deployment profile.
// Unset fields fall back to the profile.
type DeployConfig struct {
	MaxInFlight    *int      `yaml:"max_in_flight,omitempty"`
	CommandTimeout *Duration `yaml:"command_timeout,omitempty"`
	Preflight      *bool     `yaml:"preflight,omitempty"`
}

// TransportConfig holds device transport settings
type TransportConfig struct {
	SSH SSHConfig `yaml:"ssh"`
}

// SSHConfig holds SSH credentials. The password itself is never stored in
// the file, only the name of the environment variable holding it.
type SSHConfig struct {
	User           string   `yaml:"user"`
	KeyPath        string   `yaml:"key_path,omitempty"`
	PassphraseEnv  string   `yaml:"passphrase_env,omitempty"`
	PasswordEnv    string   `yaml:"password_env,omitempty"`
	Port           int      `yaml:"port"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// ReachabilityConfig holds preflight probe settings
type ReachabilityConfig struct {
	TTL     Duration `yaml:"ttl"`
	Timeout Duration `yaml:"timeout"`
	UseNmap bool     `yaml:"use_nmap"`
}

// ParserConfig holds per-family parser overrides
type ParserConfig struct {
	Families map[string]parser.Options `yaml:"families,omitempty"`
}

// DefinitionsConfig points at the YAML definitions file
type DefinitionsConfig struct {
	Path  string `yaml:"path,omitempty"`
	Watch bool   `yaml:"watch"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
