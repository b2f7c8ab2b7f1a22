package server

import (
	"os"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/daemon/control"
)

// daemonService serves the lifecycle service from a Server.
type daemonService struct {
	server *Server
}

func (d *daemonService) Status() *control.Status {
	s := d.server
	return &control.Status{
		Version:   s.version,
		Host:      "localhost",
		Port:      int32(s.Port()),
		WebPort:   int32(s.WebPort()),
		PID:       int32(os.Getpid()),
		StartedAt: timestamppb.New(s.startedAt),
		Displays:  int32(s.Displays()),
		Update:    s.Snapshot(),
	}
}

func (d *daemonService) RequestShutdown() {
	d.server.RequestShutdown()
}

// TrayState adapts a Server to the tray.DaemonState interface.
type TrayState struct {
	srv *Server
}

// NewTrayState creates a TrayState for the given server.
func NewTrayState(srv *Server) *TrayState {
	return &TrayState{srv: srv}
}

// Port returns the port the server is listening on.
func (t *TrayState) Port() int {
	return t.srv.Port()
}

// UpdateBridge returns the in-process bridge.
func (t *TrayState) UpdateBridge() bridge.Bridge {
	return t.srv.UpdateBridge()
}

// AttachDisplay counts the tray as an attached display.
func (t *TrayState) AttachDisplay() (detach func()) {
	return t.srv.UpdateBridge().Attach()
}

// RequestShutdown asks the daemon to exit.
func (t *TrayState) RequestShutdown() {
	t.srv.RequestShutdown()
}
