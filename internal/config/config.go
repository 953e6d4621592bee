// Package config handles configuration management using Viper
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	IPC     IPCConfig     `mapstructure:"ipc" yaml:"ipc"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	DBus    DBusConfig    `mapstructure:"dbus" yaml:"dbus"`
	MQTT    MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`

	// Idle tiers, each with its own timeout and optional hooks
	Tiers []TierConfig `mapstructure:"tiers" yaml:"tiers"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"` // Override LOG_LEVEL env var
	File     string `mapstructure:"file" yaml:"file"`           // Log to this file instead of stderr
}

// IPCConfig contains control socket settings
type IPCConfig struct {
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"` // Empty means the per-user default
}

// InputConfig controls the evdev activity source
type InputConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Devices  []string      `mapstructure:"devices" yaml:"devices"`   // Empty means auto-detect
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"` // Minimum spacing between pokes
}

// DBusConfig controls the org.freedesktop.ScreenSaver service
type DBusConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	LockTier string `mapstructure:"lock_tier" yaml:"lock_tier"` // Tier reported as the screensaver "active" state
}

// MQTTConfig controls publishing of tier transitions
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	QoS      byte   `mapstructure:"qos" yaml:"qos"`
	Retained bool   `mapstructure:"retained" yaml:"retained"`
}

// HistoryConfig controls the transition history database
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // Empty means the default data directory
}

// TierConfig is one idle timeout with the commands run on its transitions
type TierConfig struct {
	Name     string        `mapstructure:"name" yaml:"name"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	OnIdle   string        `mapstructure:"on_idle" yaml:"on_idle,omitempty"`
	OnActive string        `mapstructure:"on_active" yaml:"on_active,omitempty"`
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
		Input: InputConfig{
			Enabled:  false,
			Devices:  []string{},
			Debounce: 250 * time.Millisecond,
		},
		DBus: DBusConfig{
			Enabled:  true,
			LockTier: "lock",
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			Topic:    "wayidle",
			ClientID: "wayidle",
			QoS:      0,
			Retained: true,
		},
		History: HistoryConfig{
			Enabled: false,
		},
		Tiers: []TierConfig{
			{Name: "dim", Timeout: 2 * time.Minute},
			{Name: "lock", Timeout: 5 * time.Minute},
			{Name: "suspend", Timeout: 15 * time.Minute},
		},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("wayidle")
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("WAYIDLE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a specific path is set, use only that
	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		for _, dir := range userConfigDirs() {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath("/etc/wayidle")
		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg = loaded
	return nil
}

func setDefaults() {
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)
	viper.SetDefault("logging.file", DefaultConfig.Logging.File)

	viper.SetDefault("ipc.socket_path", DefaultConfig.IPC.SocketPath)

	viper.SetDefault("input.enabled", DefaultConfig.Input.Enabled)
	viper.SetDefault("input.devices", DefaultConfig.Input.Devices)
	viper.SetDefault("input.debounce", DefaultConfig.Input.Debounce.String())

	viper.SetDefault("dbus.enabled", DefaultConfig.DBus.Enabled)
	viper.SetDefault("dbus.lock_tier", DefaultConfig.DBus.LockTier)

	viper.SetDefault("mqtt.enabled", DefaultConfig.MQTT.Enabled)
	viper.SetDefault("mqtt.broker", DefaultConfig.MQTT.Broker)
	viper.SetDefault("mqtt.topic", DefaultConfig.MQTT.Topic)
	viper.SetDefault("mqtt.client_id", DefaultConfig.MQTT.ClientID)
	viper.SetDefault("mqtt.qos", DefaultConfig.MQTT.QoS)
	viper.SetDefault("mqtt.retained", DefaultConfig.MQTT.Retained)

	viper.SetDefault("history.enabled", DefaultConfig.History.Enabled)
	viper.SetDefault("history.path", DefaultConfig.History.Path)

	viper.SetDefault("tiers", tierMaps(DefaultConfig.Tiers))
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		defaults := DefaultConfig
		return &defaults
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Validate checks the tier list and the settings that refer to it.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Tiers))
	for i, tier := range c.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("tier %d has no name", i)
		}
		if seen[tier.Name] {
			return fmt.Errorf("duplicate tier name %q", tier.Name)
		}
		seen[tier.Name] = true
		if tier.Timeout <= 0 {
			return fmt.Errorf("tier %q: timeout must be positive, got %s", tier.Name, tier.Timeout)
		}
	}
	if c.DBus.Enabled && c.DBus.LockTier != "" && !seen[c.DBus.LockTier] {
		return fmt.Errorf("dbus.lock_tier %q does not name a tier", c.DBus.LockTier)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt is enabled but mqtt.broker is empty")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.Input.Debounce < 0 {
		return fmt.Errorf("input.debounce must not be negative")
	}
	return nil
}

// Tier returns the tier with the given name.
func (c *Config) Tier(name string) (TierConfig, bool) {
	for _, tier := range c.Tiers {
		if tier.Name == name {
			return tier, true
		}
	}
	return TierConfig{}, false
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	c := Get()
	viper.Set("logging", map[string]interface{}{
		"log_level": c.Logging.LogLevel,
		"file":      c.Logging.File,
	})
	viper.Set("ipc.socket_path", c.IPC.SocketPath)
	viper.Set("input", map[string]interface{}{
		"enabled":  c.Input.Enabled,
		"devices":  c.Input.Devices,
		"debounce": c.Input.Debounce.String(),
	})
	viper.Set("dbus", map[string]interface{}{
		"enabled":   c.DBus.Enabled,
		"lock_tier": c.DBus.LockTier,
	})
	viper.Set("mqtt", map[string]interface{}{
		"enabled":   c.MQTT.Enabled,
		"broker":    c.MQTT.Broker,
		"topic":     c.MQTT.Topic,
		"client_id": c.MQTT.ClientID,
		"qos":       c.MQTT.QoS,
		"retained":  c.MQTT.Retained,
	})
	viper.Set("history", map[string]interface{}{
		"enabled": c.History.Enabled,
		"path":    c.History.Path,
	})
	viper.Set("tiers", tierMaps(c.Tiers))

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	// If override is set, use that
	if configPathOverride != "" {
		return configPathOverride
	}

	// Check if config file is already loaded
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	dirs := userConfigDirs()
	if len(dirs) == 0 {
		return "/etc/wayidle/wayidle.toml"
	}
	return filepath.Join(dirs[0], "wayidle.toml")
}

// userConfigDirs lists the per-user config directories, most specific first.
func userConfigDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "wayidle"))
	}
	if home := os.Getenv("HOME"); home != "" {
		dir := filepath.Join(home, ".config", "wayidle")
		if len(dirs) == 0 || dirs[0] != dir {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// tierMaps renders tiers in the shape the TOML file uses, with timeouts as
// duration strings.
func tierMaps(tiers []TierConfig) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tiers))
	for _, tier := range tiers {
		m := map[string]interface{}{
			"name":    tier.Name,
			"timeout": tier.Timeout.String(),
		}
		if tier.OnIdle != "" {
			m["on_idle"] = tier.OnIdle
		}
		if tier.OnActive != "" {
			m["on_active"] = tier.OnActive
		}
		out = append(out, m)
	}
	return out
}
