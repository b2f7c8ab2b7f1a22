package cmd

import (
	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/daemon/server"
)

// lazyDaemonState wraps server.TrayState with lazy initialization.
// The server is nil at tray startup and created inside onStart.
type lazyDaemonState struct {
	getSrv func() *server.Server
}

func (l *lazyDaemonState) Port() int {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).Port()
	}
	return 0
}

func (l *lazyDaemonState) UpdateBridge() bridge.Bridge {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).UpdateBridge()
	}
	return nil
}

func (l *lazyDaemonState) AttachDisplay() (detach func()) {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).AttachDisplay()
	}
	return func() {}
}

func (l *lazyDaemonState) RequestShutdown() {
	if srv := l.getSrv(); srv != nil {
		server.NewTrayState(srv).RequestShutdown()
	}
}
