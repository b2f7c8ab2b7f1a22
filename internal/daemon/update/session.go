package update

import (
	"time"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Session is the host's single update session. Only the Coordinator
// mutates it.
type Session struct {
	ID                 string
	State              models.UpdateState
	RetryCount         int
	DownloadRetryCount int
	Progress           *models.Progress
	LastError          string
	Release            *models.Release
	PayloadPath        string
	LastChecked        *time.Time
}

func (s *Session) snapshot(currentVersion string) models.UpdateSnapshot {
	snap := models.UpdateSnapshot{
		SessionID:          s.ID,
		State:              s.State,
		CurrentVersion:     currentVersion,
		RetryCount:         s.RetryCount,
		DownloadRetryCount: s.DownloadRetryCount,
		LastError:          s.LastError,
	}
	if s.Progress != nil {
		p := *s.Progress
		snap.Progress = &p
	}
	if s.Release != nil {
		r := *s.Release
		snap.Release = &r
	}
	if s.LastChecked != nil {
		t := *s.LastChecked
		snap.LastChecked = &t
	}
	return snap
}

// quiescent reports whether the session holds nothing a cancel would clear.
func (s *Session) quiescent() bool {
	return s.State == models.StateIdle &&
		s.RetryCount == 0 &&
		s.DownloadRetryCount == 0 &&
		s.Progress == nil &&
		s.Release == nil &&
		s.PayloadPath == "" &&
		s.LastError == ""
}
