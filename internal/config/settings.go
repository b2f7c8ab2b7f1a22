package config

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gunlicence/licensedesk/internal/models"
)

// LoadSettings loads the global settings from settings.yaml.
// If the file doesn't exist, returns default settings.
func LoadSettings() (*models.Settings, error) {
	path, err := GlobalSettingsFile()
	if err != nil {
		return nil, err
	}
	return LoadSettingsFile(path)
}

// LoadSettingsFile loads settings from an explicit path and normalizes them.
func LoadSettingsFile(path string) (*models.Settings, error) {
	s, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	s.Normalize()
	return s, nil
}

// SaveSettings saves the global settings to settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := GlobalSettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}

// EnsureInstallID returns the analytics install ID from settings.yaml,
// generating and saving one the first time.
func EnsureInstallID() (string, error) {
	settings, err := LoadSettings()
	if err != nil {
		return "", err
	}
	if id := settings.Analytics.InstallID; id != "" {
		return id, nil
	}
	settings.Analytics.InstallID = uuid.NewString()
	if err := SaveSettings(settings); err != nil {
		return "", fmt.Errorf("failed to save install id: %w", err)
	}
	return settings.Analytics.InstallID, nil
}
