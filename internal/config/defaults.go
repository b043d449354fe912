package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "expandd"

// PlatformDataDir returns the platform-specific data directory.
//
//   - macOS:   ~/Library/Application Support/expandd/
//   - Linux:   $XDG_DATA_HOME/expandd/ (~/.local/share/expandd/)
//   - Windows: %APPDATA%\expandd\
func PlatformDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		if d := os.Getenv("APPDATA"); d != "" {
			return filepath.Join(d, appName)
		}
		return filepath.Join(home, "AppData", "Roaming", appName)
	case "linux":
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			return filepath.Join(d, appName)
		}
		return filepath.Join(home, ".local", "share", appName)
	default:
		return filepath.Join(home, "."+appName)
	}
}

// PlatformConfigDir returns the platform-specific config directory.
// macOS and Windows share the data directory.
func PlatformConfigDir() string {
	if runtime.GOOS != "linux" {
		return PlatformDataDir()
	}
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return filepath.Join(d, appName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", appName)
}

// PlatformLogDir returns the platform-specific log directory.
func PlatformLogDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", appName)
	case "windows":
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			return filepath.Join(d, appName, "logs")
		}
		return filepath.Join(PlatformDataDir(), "logs")
	default:
		if d := os.Getenv("XDG_STATE_HOME"); d != "" {
			return filepath.Join(d, appName)
		}
		return filepath.Join(home, ".local", "state", appName)
	}
}

// DataDir is PlatformDataDir unless EXPANDD_DATA_DIR is set.
func DataDir() string {
	if d := os.Getenv("EXPANDD_DATA_DIR"); d != "" {
		return d
	}
	return PlatformDataDir()
}

// ConfigPath returns the config file to use: EXPANDD_CONFIG if set, else
// the first existing config.{toml,json,yaml,yml} in the working directory or
// the config directory, else config.toml in the config directory.
func ConfigPath() string {
	if p := os.Getenv("EXPANDD_CONFIG"); p != "" {
		return p
	}
	if p := FindConfigFile(); p != "" {
		return p
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// SupportedConfigFormats lists recognised config file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the standard locations for a config file.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			p := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
