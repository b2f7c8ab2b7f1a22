// Package tui implements the interactive update presenter for licensedesk.
package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gunlicence/licensedesk/internal/bridge"
)

// programRef is a shared reference to the tea.Program for goroutine sends.
// It's set after tea.NewProgram but before p.Run().
type programRef struct {
	mu sync.Mutex
	p  *tea.Program
}

func (r *programRef) Set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

func (r *programRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Clear nils out the program reference, preventing post-exit sends.
func (r *programRef) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Options configures the TUI.
type Options struct {
	Bridge  bridge.Bridge
	Version string
	Panel   PanelOptions
}

// Run launches the TUI. If the bridge implements io.Closer it is closed on
// quit.
func Run(opts Options) error {
	ref := &programRef{}
	p := tea.NewProgram(NewModel(opts, ref), tea.WithAltScreen())

	// Store program reference for listener sends
	ref.Set(p)

	_, err := p.Run()
	ref.Clear()
	return err
}
