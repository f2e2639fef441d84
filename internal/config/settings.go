package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings represents the structure of ~/.flashhunt/settings.json
type Settings struct {
	Baud           *int              `json:"baud,omitempty"`
	DBPath         string            `json:"db_path,omitempty"`
	Debug          *bool             `json:"debug,omitempty"`
	Envs           map[string]string `json:"envs,omitempty"`
	FirmwareDir    string            `json:"firmware_dir,omitempty"`
	MaxLogFiles    *int              `json:"max_log_files,omitempty"`
	PioPath        string            `json:"pio_path,omitempty"`
	PollIntervalMS *int              `json:"poll_interval_ms,omitempty"`
	SettleDelayMS  *int              `json:"settle_delay_ms,omitempty"`
}

// Defaults applied when settings.json leaves a field unset
const (
	DefaultBaud           = 115200
	DefaultPioPath        = "pio"
	DefaultPollIntervalMS = 500
	DefaultSettleDelayMS  = 1000
)

// LoadSettings loads settings from $FLASHHUNT_HOME/settings.json
// (or ~/.flashhunt/settings.json if not set).
// Returns empty Settings if file doesn't exist (not an error)
func LoadSettings() (*Settings, error) {
	path := GetSettingsPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil // Not an error, use defaults
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings.json: %w", err)
	}

	if settings.FirmwareDir != "" {
		settings.FirmwareDir = ExpandPath(settings.FirmwareDir)
	}
	if settings.DBPath != "" {
		settings.DBPath = ExpandPath(settings.DBPath)
	}

	return &settings, nil
}

// GetHomePath returns the flashhunt home directory ($FLASHHUNT_HOME or ~/.flashhunt)
func GetHomePath() string {
	if home := os.Getenv("FLASHHUNT_HOME"); home != "" {
		return ExpandPath(home)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".flashhunt" // Fallback to relative path
	}
	return filepath.Join(homeDir, ".flashhunt")
}

// GetSettingsPath returns the path to the settings file
func GetSettingsPath() string {
	return filepath.Join(GetHomePath(), "settings.json")
}

// GetDBPath returns the sqlite database path, honoring the db_path setting
func (s *Settings) GetDBPath() string {
	if s != nil && s.DBPath != "" {
		return s.DBPath
	}
	return filepath.Join(GetHomePath(), "flashhunt.db")
}

// GetPioPath returns the PlatformIO executable to invoke
func (s *Settings) GetPioPath() string {
	if s != nil && s.PioPath != "" {
		return s.PioPath
	}
	return DefaultPioPath
}

// GetBaud returns the serial baud rate used for priming
func (s *Settings) GetBaud() int {
	if s != nil && s.Baud != nil {
		return *s.Baud
	}
	return DefaultBaud
}

// ExpandPath expands ~ to home directory in paths
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		if len(path) == 1 {
			return homeDir
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
