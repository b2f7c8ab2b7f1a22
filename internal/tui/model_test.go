package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/display"
)

func newTestModel(t *testing.T) (Model, *bridge.Hub) {
	t.Helper()
	hub := bridge.NewHub()
	t.Cleanup(hub.Close)
	m := NewModel(Options{Bridge: bridge.NewLocal(&stubHost{}, hub), Version: "1.9.0"}, &programRef{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), hub
}

func TestModel_InitMountsAndQuitUnmounts(t *testing.T) {
	m, hub := newTestModel(t)

	require.NotNil(t, m.Init())
	assert.Equal(t, len(bridge.Channels), hub.TotalListeners())
	assert.True(t, m.connected, "an in-process bridge is always connected")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Zero(t, hub.TotalListeners())
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_HelpOverlayCapturesKeys(t *testing.T) {
	m, _ := newTestModel(t)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	m = next.(Model)
	assert.Equal(t, overlayHelp, m.activeOverlay)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	m = next.(Model)
	assert.Nil(t, cmd)
	assert.Equal(t, display.PhaseCheck, m.panel.Projection().Phase)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.Equal(t, overlayNone, m.activeOverlay)
}

func TestModel_NoticeClearsOnlyLatest(t *testing.T) {
	m, _ := newTestModel(t)

	next, _ := m.Update(NoticeMsg{Text: "Update cancelled"})
	m = next.(Model)
	next, _ = m.Update(NoticeMsg{Text: "Update cancelled again"})
	m = next.(Model)

	next, _ = m.Update(clearNoticeMsg{seq: 1})
	m = next.(Model)
	assert.Equal(t, "Update cancelled again", m.notice)
	assert.Contains(t, m.View(), "Update cancelled again")

	next, _ = m.Update(clearNoticeMsg{seq: 2})
	m = next.(Model)
	assert.Empty(t, m.notice)
}

func TestModel_ErrorBar(t *testing.T) {
	m, _ := newTestModel(t)

	next, cmd := m.Update(ErrorMsg{Err: errors.New("failed to check for updates: unavailable")})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "failed to check for updates")

	next, _ = m.Update(ClearErrorMsg{})
	m = next.(Model)
	assert.NotContains(t, m.View(), "failed to check for updates")
}

func TestModel_DisconnectedBlocksCommands(t *testing.T) {
	m, _ := newTestModel(t)

	next, _ := m.Update(ConnectionMsg{Connected: false})
	m = next.(Model)
	assert.Contains(t, m.View(), "Connecting to licensedeskd")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	assert.Nil(t, cmd)
	assert.Equal(t, display.PhaseCheck, m.panel.Projection().Phase)

	next, cmd = m.Update(ConnectionMsg{Connected: true})
	m = next.(Model)
	assert.NotNil(t, cmd, "reconnect reseeds the panel")
	assert.True(t, m.connected)
}
