package cli

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/daemon/control"
)

// daemonAddr returns the running daemon's gRPC address.
func daemonAddr() (string, error) {
	info, err := config.LoadDaemonInfo()
	if err != nil {
		return "", fmt.Errorf("failed to load daemon info: %w", err)
	}
	if info == nil {
		return "", fmt.Errorf("daemon not running")
	}
	return fmt.Sprintf("%s:%d", info.Host, info.Port), nil
}

// connectDaemon establishes a gRPC connection to the running daemon.
func connectDaemon() (*grpc.ClientConn, error) {
	addr, err := daemonAddr()
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(bridge.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// dialBridge opens the update bridge to the running daemon.
func dialBridge() (*bridge.Client, error) {
	addr, err := daemonAddr()
	if err != nil {
		return nil, err
	}
	return bridge.Dial(addr)
}

// controlClient opens the daemon's lifecycle service. Close the returned
// connection when done.
func controlClient() (*control.Client, *grpc.ClientConn, error) {
	conn, err := connectDaemon()
	if err != nil {
		return nil, nil, err
	}
	return control.NewClient(conn), conn, nil
}
