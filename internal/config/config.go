// Package config handles configuration loading, validation, and hot reload
// for expandd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"expandd/internal/security"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Triggers      TriggerConfig     `toml:"triggers" json:"triggers" yaml:"triggers"`
	Apps          AppsConfig        `toml:"apps" json:"apps" yaml:"apps"`
	Performance   PerformanceConfig `toml:"performance" json:"performance" yaml:"performance"`
	Storage       StorageConfig     `toml:"storage" json:"storage" yaml:"storage"`
	Clipboard     ClipboardConfig   `toml:"clipboard" json:"clipboard" yaml:"clipboard"`
	Plugins       PluginsConfig     `toml:"plugins" json:"plugins" yaml:"plugins"`
	Notifications NotifyConfig      `toml:"notifications" json:"notifications" yaml:"notifications"`
	Diagnostics   DiagnosticsConfig `toml:"diagnostics" json:"diagnostics" yaml:"diagnostics"`
	Logging       LoggingConfig     `toml:"logging" json:"logging" yaml:"logging"`
}

// TriggerConfig selects which keys end a shortcut and bounds the buffer.
type TriggerConfig struct {
	UseSpace      bool `toml:"use_space" json:"use_space" yaml:"use_space"`
	UseTab        bool `toml:"use_tab" json:"use_tab" yaml:"use_tab"`
	UseEnter      bool `toml:"use_enter" json:"use_enter" yaml:"use_enter"`
	MaxBufferSize int  `toml:"max_buffer_size" json:"max_buffer_size" yaml:"max_buffer_size"`
}

// AppsConfig holds the global application scope lists. Entries are matched
// case-insensitively as substrings of the foreground process name or
// executable path.
type AppsConfig struct {
	Whitelist []string `toml:"whitelist" json:"whitelist" yaml:"whitelist"`
	Blacklist []string `toml:"blacklist" json:"blacklist" yaml:"blacklist"`

	// PollIntervalMs is how often the foreground process is sampled on
	// platforms where resolving it is expensive.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// PerformanceConfig controls timing of synthesized input and latency
// bookkeeping.
type PerformanceConfig struct {
	Enabled           bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	MaxLatencyMs      int  `toml:"max_latency_ms" json:"max_latency_ms" yaml:"max_latency_ms"`
	LogSlowExpansions bool `toml:"log_slow_expansions" json:"log_slow_expansions" yaml:"log_slow_expansions"`
	KeystrokeDelayMs  int  `toml:"keystroke_delay_ms" json:"keystroke_delay_ms" yaml:"keystroke_delay_ms"`
	BackspaceDelayMs  int  `toml:"backspace_delay_ms" json:"backspace_delay_ms" yaml:"backspace_delay_ms"`
	SampleWindow      int  `toml:"sample_window" json:"sample_window" yaml:"sample_window"`
}

// StorageConfig holds snippet persistence settings.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// EncryptSensitive seals the text of snippets marked sensitive. The
	// passphrase is read from the environment variable named by
	// PassphraseEnv and never from the config file itself.
	EncryptSensitive bool   `toml:"encrypt_sensitive" json:"encrypt_sensitive" yaml:"encrypt_sensitive"`
	PassphraseEnv    string `toml:"passphrase_env" json:"passphrase_env" yaml:"passphrase_env"`
}

// ClipboardConfig controls the clipboard history monitor.
type ClipboardConfig struct {
	Enabled        bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	HistorySize    int    `toml:"history_size" json:"history_size" yaml:"history_size"`
	PollIntervalMs int    `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
	Persist        bool   `toml:"persist" json:"persist" yaml:"persist"`
	Source         string `toml:"source" json:"source" yaml:"source"` // auto, system, klipper
}

// PluginsConfig locates Lua variable plugins.
type PluginsConfig struct {
	Enabled   bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Dir       string `toml:"dir" json:"dir" yaml:"dir"`
	TimeoutMs int    `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	OnExpansion   bool `toml:"on_expansion" json:"on_expansion" yaml:"on_expansion"`
	OnError       bool `toml:"on_error" json:"on_error" yaml:"on_error"`
	RatePerMinute int  `toml:"rate_per_minute" json:"rate_per_minute" yaml:"rate_per_minute"`
}

// DiagnosticsConfig controls the loopback HTTP endpoint.
type DiagnosticsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: Version,
		Triggers: TriggerConfig{
			UseSpace:      true,
			UseTab:        true,
			UseEnter:      false,
			MaxBufferSize: 50,
		},
		Apps: AppsConfig{
			PollIntervalMs: 250,
		},
		Performance: PerformanceConfig{
			Enabled:           true,
			MaxLatencyMs:      100,
			LogSlowExpansions: false,
			KeystrokeDelayMs:  5,
			BackspaceDelayMs:  10,
			SampleWindow:      100,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dataDir, "snippets.db"),
			BusyTimeoutMs: 5000,
			PassphraseEnv: "EXPANDD_PASSPHRASE",
		},
		Clipboard: ClipboardConfig{
			Enabled:        true,
			HistorySize:    50,
			PollIntervalMs: 500,
			Persist:        false,
			Source:         "auto",
		},
		Plugins: PluginsConfig{
			Enabled:   true,
			Dir:       filepath.Join(PlatformConfigDir(), "plugins"),
			TimeoutMs: 50,
		},
		Notifications: NotifyConfig{
			OnExpansion:   false,
			OnError:       true,
			RatePerMinute: 6,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7878",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "expandd.log"),
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
	}
}

// Load reads the configuration at path. A missing file yields defaults.
// Environment overrides are applied and the result validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if err := autoDetect(data, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// autoDetect tries TOML, then JSON, then YAML. Each attempt decodes into a
// fresh default so a partial failure does not leak into the next try.
func autoDetect(data []byte, cfg *Config) error {
	try := func(decode func(*Config) error) bool {
		c := DefaultConfig()
		if decode(c) != nil {
			return false
		}
		*cfg = *c
		return true
	}
	if try(func(c *Config) error { _, err := toml.Decode(string(data), c); return err }) {
		return nil
	}
	if try(func(c *Config) error { return json.Unmarshal(data, c) }) {
		return nil
	}
	if try(func(c *Config) error { return yaml.Unmarshal(data, c) }) {
		return nil
	}
	return fmt.Errorf("parse config: unrecognised format (tried TOML, JSON, YAML)")
}

// SaveConfig writes cfg to path in the format implied by its extension
// (TOML by default).
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(cfg)
		data = []byte(b.String())
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := security.WritePrivateFile(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadOrCreate loads path, writing a default file first if none exists.
// The boolean reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}
	cfg, err := Load(path)
	return cfg, false, err
}

// ApplyEnvOverrides applies EXPANDD_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EXPANDD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("EXPANDD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EXPANDD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("EXPANDD_PLUGIN_DIR"); v != "" {
		c.Plugins.Dir = v
	}
	if v := os.Getenv("EXPANDD_DIAG_LISTEN"); v != "" {
		c.Diagnostics.Listen = v
		c.Diagnostics.Enabled = true
	}
	if v := os.Getenv("EXPANDD_MAX_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Triggers.MaxBufferSize = n
		}
	}
	if v := os.Getenv("EXPANDD_BLACKLIST"); v != "" {
		c.Apps.Blacklist = splitList(v)
	}
	if v := os.Getenv("EXPANDD_WHITELIST"); v != "" {
		c.Apps.Whitelist = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Apps.Whitelist = append([]string(nil), c.Apps.Whitelist...)
	out.Apps.Blacklist = append([]string(nil), c.Apps.Blacklist...)
	return &out
}

// EnsureDirectories creates the directories the configured paths live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.Path)}
	if c.Plugins.Enabled && c.Plugins.Dir != "" {
		dirs = append(dirs, c.Plugins.Dir)
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, d := range dirs {
		if err := security.EnsurePrivateDir(d); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
