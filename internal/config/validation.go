package config

import (
	"fmt"
	"net"
	"strings"

	"expandd/internal/logging"
)

// ValidationError represents a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidationErrors when any
// setting is unusable.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	if c.Triggers.MaxBufferSize < 1 || c.Triggers.MaxBufferSize > 1024 {
		add("triggers.max_buffer_size", "must be between 1 and 1024, got %d", c.Triggers.MaxBufferSize)
	}
	if !c.Triggers.UseSpace && !c.Triggers.UseTab && !c.Triggers.UseEnter {
		add("triggers", "at least one trigger key must be enabled")
	}

	for i, entry := range c.Apps.Whitelist {
		if strings.TrimSpace(entry) == "" {
			add(fmt.Sprintf("apps.whitelist[%d]", i), "empty entry")
		}
	}
	for i, entry := range c.Apps.Blacklist {
		if strings.TrimSpace(entry) == "" {
			add(fmt.Sprintf("apps.blacklist[%d]", i), "empty entry")
		}
	}
	if c.Apps.PollIntervalMs < 0 {
		add("apps.poll_interval_ms", "must not be negative")
	}

	p := c.Performance
	if p.MaxLatencyMs < 0 {
		add("performance.max_latency_ms", "must not be negative")
	}
	if p.KeystrokeDelayMs < 0 || p.KeystrokeDelayMs > 1000 {
		add("performance.keystroke_delay_ms", "must be between 0 and 1000")
	}
	if p.BackspaceDelayMs < 0 || p.BackspaceDelayMs > 1000 {
		add("performance.backspace_delay_ms", "must be between 0 and 1000")
	}
	if p.SampleWindow < 1 {
		add("performance.sample_window", "must be positive")
	}

	if c.Storage.Path == "" {
		add("storage.path", "required")
	}
	if c.Storage.EncryptSensitive && c.Storage.PassphraseEnv == "" {
		add("storage.passphrase_env", "required when encrypt_sensitive is set")
	}

	if c.Clipboard.HistorySize < 1 {
		add("clipboard.history_size", "must be positive")
	}
	if c.Clipboard.PollIntervalMs < 50 {
		add("clipboard.poll_interval_ms", "must be at least 50")
	}
	switch c.Clipboard.Source {
	case "", "auto", "system", "klipper":
	default:
		add("clipboard.source", "unknown source %q", c.Clipboard.Source)
	}

	if c.Plugins.Enabled && c.Plugins.TimeoutMs <= 0 {
		add("plugins.timeout_ms", "must be positive")
	}

	if c.Notifications.RatePerMinute < 0 {
		add("notifications.rate_per_minute", "must not be negative")
	}

	if c.Diagnostics.Enabled {
		host, _, err := net.SplitHostPort(c.Diagnostics.Listen)
		if err != nil {
			add("diagnostics.listen", "invalid address: %v", err)
		} else if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			add("diagnostics.listen", "must be a loopback address")
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		add("logging.format", "%v", err)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr", "file", "both":
	default:
		add("logging.output", "must be stdout, stderr, file or both")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// LoggingOptions converts the logging section into a logging.Config.
func (c *Config) LoggingOptions() *logging.Config {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = lvl
	}
	if f, err := logging.ParseFormat(c.Logging.Format); err == nil {
		lc.Format = f
	}
	lc.Output = c.Logging.Output
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	lc.MaxSizeMB = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAgeDays = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc
}
