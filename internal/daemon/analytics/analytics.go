// Package analytics reports update pipeline events to PostHog when the user
// has opted in.
package analytics

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	log "github.com/sirupsen/logrus"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// Tracker forwards bridge events as analytics captures. A nil or disabled
// Tracker does nothing.
type Tracker struct {
	client    posthog.Client
	installID string
	version   string

	mu   sync.Mutex
	subs []bridge.Subscription
}

// New creates a tracker from cfg. It returns nil when analytics are off.
func New(cfg models.AnalyticsConfig, version string) (*Tracker, error) {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil, nil
	}
	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{Endpoint: cfg.Endpoint})
	if err != nil {
		return nil, fmt.Errorf("failed to create analytics client: %w", err)
	}
	return NewWithClient(client, cfg.InstallID, version), nil
}

// NewWithClient creates a tracker over an existing client.
func NewWithClient(client posthog.Client, installID, version string) *Tracker {
	if installID == "" {
		installID = uuid.NewString()
	}
	return &Tracker{client: client, installID: installID, version: version}
}

// Subscribe starts tracking every update event published on hub.
func (t *Tracker) Subscribe(hub *bridge.Hub) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range bridge.Channels {
		if ch == bridge.ChannelDownloadProgress {
			continue
		}
		sub, err := hub.Subscribe(ch, t.Track)
		if err != nil {
			return err
		}
		t.subs = append(t.subs, sub)
	}
	return nil
}

// Track enqueues one capture for ev.
func (t *Tracker) Track(ev bridge.Event) {
	if t == nil {
		return
	}
	props := posthog.NewProperties().
		Set("app_version", t.version).
		Set("os", runtime.GOOS).
		Set("arch", runtime.GOARCH).
		Set("session_id", ev.SessionID)
	if ev.Release != nil {
		props.Set("release_version", ev.Release.Version)
	}
	if ev.ErrorKind != "" {
		props.Set("error_kind", ev.ErrorKind)
	}
	if ev.Retry != nil {
		props.Set("retry_attempt", ev.Retry.Attempt)
	}

	err := t.client.Enqueue(posthog.Capture{
		DistinctId: t.installID,
		Event:      string(ev.Channel),
		Properties: props,
	})
	if err != nil {
		log.Debugf("[analytics] failed to enqueue %s: %v", ev.Channel, err)
	}
}

// Close unsubscribes and flushes pending captures.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	for _, sub := range t.subs {
		sub.Unsubscribe()
	}
	t.subs = nil
	t.mu.Unlock()
	return t.client.Close()
}
