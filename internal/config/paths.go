// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

const (
	// GlobalDirName is the name of the global LicenseDesk directory.
	GlobalDirName = ".licensedesk"

	// HomeEnv overrides the global directory location when set.
	HomeEnv = "LICENSEDESK_HOME"

	// LogsDirName is the name of the logs directory.
	LogsDirName = "logs"

	// UpdatesDirName holds downloaded release payloads.
	UpdatesDirName = "updates"
)

// File names
const (
	DaemonFileName   = "daemon.yaml"
	SettingsFileName = "settings.yaml"
	LogFileName      = "licensedeskd.log"
)

// GlobalDir returns the path to the global directory (~/.licensedesk/ unless
// LICENSEDESK_HOME is set).
func GlobalDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalDirName), nil
}

func globalPath(elem ...string) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{dir}, elem...)...), nil
}

// GlobalDaemonFile returns the path to the daemon.yaml file.
func GlobalDaemonFile() (string, error) {
	return globalPath(DaemonFileName)
}

// GlobalSettingsFile returns the path to the settings.yaml file.
func GlobalSettingsFile() (string, error) {
	return globalPath(SettingsFileName)
}

// GlobalLogsDir returns the path to the logs directory.
func GlobalLogsDir() (string, error) {
	return globalPath(LogsDirName)
}

// GlobalLogFile returns the path to the host's rotating log file.
func GlobalLogFile() (string, error) {
	return globalPath(LogsDirName, LogFileName)
}

// UpdatesDir returns the directory downloaded payloads are written to.
func UpdatesDir() (string, error) {
	return globalPath(UpdatesDirName)
}

// EnsureGlobalDir creates the global directory if it doesn't exist.
func EnsureGlobalDir() error {
	dir, err := GlobalDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureGlobalLogsDir creates the global logs directory if it doesn't exist.
func EnsureGlobalLogsDir() error {
	dir, err := GlobalLogsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureUpdatesDir creates the payload directory if it doesn't exist.
func EnsureUpdatesDir() (string, error) {
	dir, err := UpdatesDir()
	if err != nil {
		return "", err
	}
	return dir, os.MkdirAll(dir, 0755)
}
