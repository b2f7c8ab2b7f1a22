package tui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gunlicence/licensedesk/internal/bridge"
)

const (
	minWidth  = 50
	minHeight = 12
)

// connectionNotifier is implemented by bridges whose event stream can drop.
type connectionNotifier interface {
	NotifyConnection(fn func(connected bool))
	Connected() bool
}

// Model is the root Bubbletea model for the TUI.
type Model struct {
	bridge   bridge.Bridge
	notifier connectionNotifier
	closer   io.Closer
	version  string

	connected bool

	// UI state
	activeOverlay overlay
	width         int
	height        int

	// Status display
	err       error
	notice    string
	noticeSeq int

	panel *UpdatePanel

	// Program reference for listener Send()
	program *programRef
}

// NewModel creates the initial TUI model.
func NewModel(opts Options, program *programRef) Model {
	m := Model{
		bridge:    opts.Bridge,
		version:   opts.Version,
		panel:     NewUpdatePanel(opts.Bridge, opts.Panel),
		program:   program,
		connected: true,
	}
	if n, ok := opts.Bridge.(connectionNotifier); ok {
		m.notifier = n
		m.connected = n.Connected()
	}
	if c, ok := opts.Bridge.(io.Closer); ok {
		m.closer = c
	}
	return m
}

// Init mounts the update panel and seeds it once the bridge is connected.
func (m Model) Init() tea.Cmd {
	if m.notifier != nil {
		m.notifier.NotifyConnection(func(connected bool) {
			m.program.Send(ConnectionMsg{Connected: connected})
		})
	}
	if err := m.panel.Mount(m.program.Send); err != nil {
		return errorCmd(err)
	}
	if m.notifier == nil || m.notifier.Connected() {
		return m.panel.Seed()
	}
	return nil
}

// Update processes messages and returns an updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.panel.SetWidth(min(70, m.width-8))
		return m, nil

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case ConnectionMsg:
		m.connected = msg.Connected
		if msg.Connected {
			return m, m.panel.Seed()
		}
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, clearErrorAfter(5 * time.Second)

	case ClearErrorMsg:
		m.err = nil
		return m, nil

	case NoticeMsg:
		m.notice = msg.Text
		m.noticeSeq++
		return m, clearNoticeAfter(3*time.Second, m.noticeSeq)

	case clearNoticeMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil
	}

	return m, m.panel.Update(msg)
}

// handleKey processes key events.
func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.activeOverlay != overlayNone {
		if key.Matches(msg, overlayKeys.Close) {
			m.activeOverlay = overlayNone
		}
		return nil
	}

	switch {
	case key.Matches(msg, globalKeys.Quit), msg.Type == tea.KeyCtrlC:
		return m.doQuit()
	case key.Matches(msg, globalKeys.Help):
		m.activeOverlay = overlayHelp
		return nil
	}

	if !m.connected {
		return nil
	}
	return m.panel.HandleKey(msg)
}

func (m *Model) doQuit() tea.Cmd {
	m.panel.Unmount()
	m.program.Clear()
	if m.closer != nil {
		_ = m.closer.Close()
	}
	return tea.Quit
}

// View renders the TUI.
func (m Model) View() string {
	if m.width < minWidth || m.height < minHeight {
		sizeStr := fmt.Sprintf("%dx%d", m.width, m.height)
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(colorYellow).
			Render(lipgloss.JoinVertical(lipgloss.Center,
				"Terminal too small",
				hintStyle.Render(fmt.Sprintf("Need %dx%d, have ", minWidth, minHeight)+
					lipgloss.NewStyle().Bold(true).Render(sizeStr)),
			))
	}

	header := renderHeader(m.version, m.panel.Projection(), m.width)
	statusBar := renderStatusBar(&m, m.width)

	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	var body string
	if !m.connected {
		body = lipgloss.NewStyle().
			Width(m.width).
			Height(bodyHeight).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(colorDim).
			Render("Connecting to licensedeskd...")
	} else {
		body = lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center,
			panelStyle.Render(m.panel.View()))
	}

	view := lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
	if m.activeOverlay == overlayHelp {
		view = renderOverlay(view, renderHelp(m.width), m.width, m.height)
	}
	return view
}
