package engine

import (
	"time"

	"expandd/internal/config"
	"expandd/internal/scope"
	"expandd/internal/synth"
	"expandd/internal/trigger"
)

// Settings is the runtime-replaceable part of the engine configuration.
type Settings struct {
	Triggers trigger.Settings
	Rules    scope.Rules

	KeystrokeDelay time.Duration
	BackspaceDelay time.Duration

	// SlowThreshold logs expansions slower than this; zero disables it.
	SlowThreshold time.Duration
}

// DefaultSettings mirrors config.DefaultConfig.
func DefaultSettings() Settings {
	return Settings{
		Triggers:       trigger.DefaultSettings(),
		KeystrokeDelay: synth.DefaultKeystrokeDelay,
		BackspaceDelay: synth.DefaultBackspaceDelay,
	}
}

// SettingsFromConfig extracts engine settings from a daemon config.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		Triggers: trigger.Settings{
			UseSpace: cfg.Triggers.UseSpace,
			UseTab:   cfg.Triggers.UseTab,
			UseEnter: cfg.Triggers.UseEnter,
			MaxLen:   cfg.Triggers.MaxBufferSize,
		},
		Rules: scope.Rules{
			Whitelist: cfg.Apps.Whitelist,
			Blacklist: cfg.Apps.Blacklist,
		},
		KeystrokeDelay: time.Duration(cfg.Performance.KeystrokeDelayMs) * time.Millisecond,
		BackspaceDelay: time.Duration(cfg.Performance.BackspaceDelayMs) * time.Millisecond,
	}
	if cfg.Performance.Enabled && cfg.Performance.LogSlowExpansions {
		s.SlowThreshold = time.Duration(cfg.Performance.MaxLatencyMs) * time.Millisecond
	}
	return s
}

func (s Settings) normalized() Settings {
	if s.Triggers.MaxLen <= 0 {
		s.Triggers.MaxLen = trigger.DefaultMaxLen
	}
	if s.KeystrokeDelay < 0 {
		s.KeystrokeDelay = 0
	}
	if s.BackspaceDelay < 0 {
		s.BackspaceDelay = 0
	}
	return s
}
