package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the runtime configuration the server actually consumes, derived
// from a TOMLConfig plus defaults.
type Config struct {
	TCPPort  int
	HTTPPort int
	DataPath string

	TickInterval        time.Duration
	HandshakeTimeout    time.Duration
	MaxNameLength       int
	DecryptFailureLimit int

	// ManagerNames are auto-promoted to manager on admission.
	ManagerNames []string
	// Colors is the palette member colors are drawn from at random.
	Colors []string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		TCPPort:             8000,
		HTTPPort:            8080,
		DataPath:            "~/.chat-program/attachments.db",
		TickInterval:        50 * time.Millisecond,
		HandshakeTimeout:    10 * time.Second,
		MaxNameLength:       20,
		DecryptFailureLimit: 5,
		ManagerNames:        nil,
		Colors: []string{
			"#aa0000", "#005500", "#00007f", "#aa007f",
			"#00557f", "#550000", "#b07500", "#00aa00",
		},
	}
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return path, nil
}

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
	Chat   ChatSection   `toml:"chat"`
}

type ServerSection struct {
	TCPPort  int    `toml:"tcp_port"`
	HTTPPort int    `toml:"http_port"`
	DataPath string `toml:"data_path"`
}

type LimitsSection struct {
	MaxNameLength           int `toml:"max_name_length"`
	TickIntervalMs          int `toml:"tick_interval_ms"`
	DecryptFailureLimit     int `toml:"decrypt_failure_limit"`
	HandshakeTimeoutSeconds int `toml:"handshake_timeout_seconds"`
}

type ChatSection struct {
	ManagerNames []string `toml:"manager_names"`
	Colors       []string `toml:"colors"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	def := DefaultConfig()
	return TOMLConfig{
		Server: ServerSection{
			TCPPort:  def.TCPPort,
			HTTPPort: def.HTTPPort,
			DataPath: def.DataPath,
		},
		Limits: LimitsSection{
			MaxNameLength:           def.MaxNameLength,
			TickIntervalMs:          int(def.TickInterval / time.Millisecond),
			DecryptFailureLimit:     def.DecryptFailureLimit,
			HandshakeTimeoutSeconds: int(def.HandshakeTimeout / time.Second),
		},
		Chat: ChatSection{
			ManagerNames: def.ManagerNames,
			Colors:       def.Colors,
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found,
// and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path); err != nil {
			// If we can't write, just return defaults without error
			// (might be a permissions issue, but we can still run)
			return applyEnvOverrides(config), nil
		}
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

// applyEnvOverrides applies environment variable overrides to the config
// Environment variables follow the pattern: CHATPROG_SECTION_KEY
// Example: CHATPROG_SERVER_TCP_PORT=9000
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("CHATPROG_SERVER_TCP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.TCPPort = port
		}
	}
	if val := os.Getenv("CHATPROG_SERVER_HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("CHATPROG_SERVER_DATA_PATH"); val != "" {
		config.Server.DataPath = val
	}
	if val := os.Getenv("CHATPROG_LIMITS_MAX_NAME_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxNameLength = limit
		}
	}
	if val := os.Getenv("CHATPROG_LIMITS_TICK_INTERVAL_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			config.Limits.TickIntervalMs = ms
		}
	}
	if val := os.Getenv("CHATPROG_LIMITS_DECRYPT_FAILURE_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.DecryptFailureLimit = limit
		}
	}
	if val := os.Getenv("CHATPROG_LIMITS_HANDSHAKE_TIMEOUT_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil {
			config.Limits.HandshakeTimeoutSeconds = secs
		}
	}
	if val := os.Getenv("CHATPROG_CHAT_MANAGER_NAMES"); val != "" {
		names := strings.Split(val, ",")
		for i, name := range names {
			names[i] = strings.TrimSpace(name)
		}
		config.Chat.ManagerNames = names
	}
	return config
}

// writeDefaultConfig writes the default config to a file with all options documented
func writeDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	content := `# Chat server configuration
# This file was auto-generated with default values
# Restart the server for changes to take effect
#
# Environment variables can override these settings:
# CHATPROG_SECTION_KEY (e.g., CHATPROG_SERVER_TCP_PORT=9000)

[server]
# Port for TCP client connections
tcp_port = 8000

# Port for the HTTP server (/metrics, /ws, /health)
# Set to 0 to disable
http_port = 8080

# Path to the SQLite attachment store
data_path = "~/.chat-program/attachments.db"

[limits]
# Maximum member name length in characters
max_name_length = 20

# Control loop tick interval in milliseconds
tick_interval_ms = 50

# Close a connection after this many consecutive messages that fail
# authentication
decrypt_failure_limit = 5

# Seconds a connecting client has to complete the name/key handshake
handshake_timeout_seconds = 10

[chat]
# Members with these names are promoted to manager on admission
# Uncomment and add names to grant manager permissions:
# manager_names = ["alice", "bob"]

# Palette member display colors are drawn from at random
# colors = ["#aa0000", "#005500", "#00007f", "#aa007f", "#00557f", "#550000", "#b07500", "#00aa00"]
`

	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ToConfig converts TOMLConfig to the runtime Config
func (c *TOMLConfig) ToConfig() Config {
	cfg := DefaultConfig()

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}
	cfg.HTTPPort = c.Server.HTTPPort
	if strings.TrimSpace(c.Server.DataPath) != "" {
		cfg.DataPath = c.Server.DataPath
	}
	if c.Limits.MaxNameLength != 0 {
		cfg.MaxNameLength = c.Limits.MaxNameLength
	}
	if c.Limits.TickIntervalMs != 0 {
		cfg.TickInterval = time.Duration(c.Limits.TickIntervalMs) * time.Millisecond
	}
	if c.Limits.DecryptFailureLimit != 0 {
		cfg.DecryptFailureLimit = c.Limits.DecryptFailureLimit
	}
	if c.Limits.HandshakeTimeoutSeconds != 0 {
		cfg.HandshakeTimeout = time.Duration(c.Limits.HandshakeTimeoutSeconds) * time.Second
	}
	if len(c.Chat.ManagerNames) > 0 {
		cfg.ManagerNames = c.Chat.ManagerNames
	}
	if len(c.Chat.Colors) > 0 {
		cfg.Colors = c.Chat.Colors
	}
	return cfg
}
