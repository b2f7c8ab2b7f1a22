package analytics

import (
	"sync"
	"testing"

	"github.com/posthog/posthog-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// fakeClient embeds the interface so only the methods used here need bodies.
type fakeClient struct {
	posthog.Client

	mu       sync.Mutex
	captures []posthog.Capture
	closed   bool
}

func (c *fakeClient) Enqueue(msg posthog.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if capture, ok := msg.(posthog.Capture); ok {
		c.captures = append(c.captures, capture)
	}
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) Captures() []posthog.Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]posthog.Capture(nil), c.captures...)
}

func TestNew_DisabledReturnsNil(t *testing.T) {
	tr, err := New(models.AnalyticsConfig{Enabled: false, APIKey: "phc_key"}, "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = New(models.AnalyticsConfig{Enabled: true}, "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, tr)

	// A nil tracker is safe to use.
	assert.NoError(t, tr.Subscribe(bridge.NewHub()))
	tr.Track(bridge.Event{Channel: bridge.ChannelUpdateAvailable})
	assert.NoError(t, tr.Close())
}

func TestTracker_CapturesUpdateEvents(t *testing.T) {
	hub := bridge.NewHub()
	defer hub.Close()
	client := &fakeClient{}
	tr := NewWithClient(client, "install-1", "1.9.0")
	require.NoError(t, tr.Subscribe(hub))

	hub.Publish(bridge.Event{Channel: bridge.ChannelUpdateAvailable, SessionID: "s1", Release: &models.Release{Version: "2.0.0"}})
	hub.Publish(bridge.Event{Channel: bridge.ChannelDownloadProgress, Progress: &models.Progress{Percent: 10}})
	hub.Publish(bridge.Event{Channel: bridge.ChannelUpdateError, ErrorKind: "Timeout", Retry: &bridge.RetryInfo{Attempt: 1, Max: 2}})
	hub.Flush()

	captures := client.Captures()
	require.Len(t, captures, 2, "progress is not tracked")
	assert.Equal(t, "update-available", captures[0].Event)
	assert.Equal(t, "install-1", captures[0].DistinctId)
	assert.Equal(t, "2.0.0", captures[0].Properties["release_version"])
	assert.Equal(t, "s1", captures[0].Properties["session_id"])
	assert.Equal(t, "update-error", captures[1].Event)
	assert.Equal(t, "Timeout", captures[1].Properties["error_kind"])

	require.NoError(t, tr.Close())
	assert.True(t, client.closed)
	assert.Zero(t, hub.TotalListeners())
}
