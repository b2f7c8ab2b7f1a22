package models

import "time"

// UpdateState is a state of the update lifecycle state machine.
type UpdateState string

// Update lifecycle states.
const (
	StateIdle                         UpdateState = "Idle"
	StateChecking                     UpdateState = "Checking"
	StateUpToDate                     UpdateState = "UpToDate"
	StateAwaitingDownloadConfirmation UpdateState = "AwaitingDownloadConfirmation"
	StateCheckFailed                  UpdateState = "CheckFailed"
	StateDownloading                  UpdateState = "Downloading"
	StateDownloadFailed               UpdateState = "DownloadFailed"
	StateReadyToInstall               UpdateState = "ReadyToInstall"
	StateInstalling                   UpdateState = "Installing"
	StateInstallFailed                UpdateState = "InstallFailed"
)

// Failed reports whether s is one of the settled failure states.
func (s UpdateState) Failed() bool {
	return s == StateCheckFailed || s == StateDownloadFailed || s == StateInstallFailed
}

// Release describes a candidate release discovered on the release feed.
type Release struct {
	Version     string `json:"version"`
	Notes       string `json:"notes,omitempty"`
	URL         string `json:"url,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	AssetName   string `json:"assetName,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Checksum    string `json:"checksum,omitempty"` // hex sha256, optional
}

// Progress is the transfer state of one download attempt.
type Progress struct {
	Percent          float64 `json:"percent"`
	TransferredBytes int64   `json:"transferredBytes"`
	TotalBytes       int64   `json:"totalBytes"`
	Attempt          int     `json:"attempt,omitempty"`
}

// UpdateSnapshot is a read-only copy of the host's update session.
type UpdateSnapshot struct {
	SessionID          string      `json:"sessionId"`
	Seq                uint64      `json:"seq,omitempty"`
	State              UpdateState `json:"state"`
	CurrentVersion     string      `json:"currentVersion"`
	RetryCount         int         `json:"retryCount"`
	DownloadRetryCount int         `json:"downloadRetryCount"`
	Progress           *Progress   `json:"progress,omitempty"`
	LastError          string      `json:"lastError,omitempty"`
	Release            *Release    `json:"release,omitempty"`
	LastChecked        *time.Time  `json:"lastChecked,omitempty"`
}
