package models

import "time"

// DaemonInfo represents the host process connection information.
// This corresponds to ~/.licensedesk/daemon.yaml.
type DaemonInfo struct {
	Version   int       `yaml:"version"`
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	WebPort   int       `yaml:"web_port,omitempty"`
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewDaemonInfo creates a new daemon info with current values.
func NewDaemonInfo(host string, port, webPort, pid int) *DaemonInfo {
	return &DaemonInfo{
		Version:   1,
		Host:      host,
		Port:      port,
		WebPort:   webPort,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	}
}
