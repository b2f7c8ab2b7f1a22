package server

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/config"
)

// startUpdateCheck runs the startup check when settings say one is due.
func (s *Server) startUpdateCheck() {
	settings := s.Settings()
	if !settings.Updates.DueForCheck(time.Now()) {
		log.Debugf("[update] startup check not due (frequency %s)", settings.Updates.CheckFrequency)
		return
	}
	log.Info("[update] running startup check")
	s.coord.CheckForUpdates()
}

// watchLastChecked records last_checked in settings.yaml whenever a check
// reaches the feed and gets an answer.
func (s *Server) watchLastChecked() error {
	for _, ch := range []bridge.Channel{bridge.ChannelUpdateAvailable, bridge.ChannelUpdateNotAvailable} {
		sub, err := s.hub.Subscribe(ch, func(bridge.Event) { s.recordLastChecked(time.Now()) })
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}
	return nil
}

func (s *Server) recordLastChecked(now time.Time) {
	// Re-read from disk so edits made since the last reload are kept.
	settings, err := config.LoadSettings()
	if err != nil {
		log.Warnf("[update] failed to load settings: %v", err)
		return
	}
	now = now.UTC()
	settings.Updates.LastChecked = &now
	if err := config.SaveSettings(settings); err != nil {
		log.Warnf("[update] failed to save last_checked: %v", err)
		return
	}

	s.mu.Lock()
	if s.settings != nil {
		s.settings.Updates.LastChecked = &now
	}
	s.mu.Unlock()
}
