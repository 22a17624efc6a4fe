package config

import (
	"os"
	"path/filepath"

	"voicescribe/internal/domain"
)

// AppDirName is the application-private directory under the user home.
const AppDirName = ".voicescribe"

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelID:       "base",
		ModelPath:     filepath.Join(homeDir, AppDirName, "models"),
		OutputDir:     filepath.Join(homeDir, "Documents", "Transcripts"),
		Language:      "auto",
		CloudProvider: domain.CloudProviderOpenAI,
	}
}

// AppDir returns the application-private directory path.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName)
}

// LedgerPath returns the job ledger snapshot location.
func LedgerPath() string {
	return filepath.Join(AppDir(), "jobs.json")
}

// SettingsPath returns the settings file location.
func SettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}
