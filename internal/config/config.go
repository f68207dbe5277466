// Package config provides TOML configuration file loading for the chat client.
// The configuration file lives at ~/.chatlink/config.toml by default, but can be
// overridden with the --config flag. CLI flags always take precedence over file values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/chatlink/client/internal/errors"
)

// Config represents the client configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files.
type Config struct {
	// ServerURL is the websocket endpoint of the chat server.
	// Default: ws://127.0.0.1:8090
	ServerURL string `toml:"server_url"`

	// APIURL is the HTTP base URL used to fetch the user profile
	// when restoring a stored session.
	// Default: http://127.0.0.1:8080
	APIURL string `toml:"api_url"`

	// DataPath is the SQLite file holding the credential and cached profile.
	// Default: ~/.chatlink/chatlink.db
	DataPath string `toml:"data_path"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// LogFormat selects console or json log output.
	// Default: console
	LogFormat string `toml:"log_format"`

	// HeartbeatIntervalMs is how often the transport sends a heartbeat frame.
	// Default: 9900
	HeartbeatIntervalMs int `toml:"heartbeat_interval_ms"`

	// HandshakeTimeoutMs bounds the websocket dial.
	// Default: 10000
	HandshakeTimeoutMs int `toml:"handshake_timeout_ms"`

	// RestoreTimeoutMs bounds the profile fetch performed when a stored
	// credential is restored at startup.
	// Default: 10000
	RestoreTimeoutMs int `toml:"restore_timeout_ms"`

	// LoginTimeoutMs is how long a QR or password login may stay pending
	// before the watchdog gives up.
	// Default: 120000
	LoginTimeoutMs int `toml:"login_timeout_ms"`

	// SendRate is the sustained outbound frame rate per second.
	// Default: 50
	SendRate float64 `toml:"send_rate"`

	// SendBurst is the outbound burst allowance.
	// Default: 20
	SendBurst int `toml:"send_burst"`

	// Discover resolves the server over mDNS when ServerURL is empty.
	// Default: false
	Discover bool `toml:"discover"`

	// CACert is a PEM file of extra certificates to trust for wss:// and
	// https:// endpoints, e.g. the dev server's self-signed certificate.
	CACert string `toml:"ca_cert"`

	// CertFingerprint pins the server certificate by SHA-256 fingerprint.
	// When set, chain verification is replaced by the pin.
	CertFingerprint string `toml:"cert_fingerprint"`

	// QR renders login challenge URLs as terminal QR codes.
	// Default: true when unset in the file (see Resolve).
	QR *bool `toml:"qr"`
}

// DefaultConfigPath returns the default config file location: ~/.chatlink/config.toml.
// Returns an error only if the user's home directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatlink", "config.toml"), nil
}

// DefaultDataPath returns the default SQLite location: ~/.chatlink/chatlink.db.
func DefaultDataPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".chatlink", "chatlink.db"), nil
}

// WriteDefault creates a config file pointing at the given server.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
//   - Returns an error if the file cannot be written.
func WriteDefault(path string, serverURL string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# chatlink configuration

# Chat server websocket endpoint
server_url = %q

# HTTP API used to restore a stored session
api_url = %q

log_level = "info"
`, serverURL, DefaultAPIURL)

	// The database next to this file holds a bearer token.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location (~/.chatlink/config.toml).
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Resolve fills zero-valued fields with defaults and validates URLs.
// ServerURL may stay empty when Discover is set; the caller resolves it later.
func (c *Config) Resolve() error {
	if c.ServerURL == "" && !c.Discover {
		c.ServerURL = DefaultServerURL
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.DataPath == "" {
		p, err := DefaultDataPath()
		if err != nil {
			return err
		}
		c.DataPath = p
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.HeartbeatIntervalMs <= 0 {
		c.HeartbeatIntervalMs = DefaultHeartbeatIntervalMs
	}
	if c.HandshakeTimeoutMs <= 0 {
		c.HandshakeTimeoutMs = DefaultHandshakeTimeoutMs
	}
	if c.RestoreTimeoutMs <= 0 {
		c.RestoreTimeoutMs = DefaultRestoreTimeoutMs
	}
	if c.LoginTimeoutMs <= 0 {
		c.LoginTimeoutMs = DefaultLoginTimeoutMs
	}
	if c.SendRate <= 0 {
		c.SendRate = DefaultSendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = DefaultSendBurst
	}
	if c.QR == nil {
		qr := true
		c.QR = &qr
	}

	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return apperrors.New(apperrors.CodeConfigInvalid,
				fmt.Sprintf("server_url %q must be a ws:// or wss:// URL", c.ServerURL))
		}
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return apperrors.New(apperrors.CodeConfigInvalid,
			fmt.Sprintf("api_url %q must be an http:// or https:// URL", c.APIURL))
	}
	return nil
}

// HeartbeatInterval returns HeartbeatIntervalMs as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// HandshakeTimeout returns HandshakeTimeoutMs as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMs) * time.Millisecond
}

// RestoreTimeout returns RestoreTimeoutMs as a duration.
func (c *Config) RestoreTimeout() time.Duration {
	return time.Duration(c.RestoreTimeoutMs) * time.Millisecond
}

// LoginTimeout returns LoginTimeoutMs as a duration.
func (c *Config) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutMs) * time.Millisecond
}

// QREnabled reports whether login QR codes should be rendered.
func (c *Config) QREnabled() bool {
	return c.QR == nil || *c.QR
}
