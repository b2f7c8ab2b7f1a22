// Package control is the daemon's lifecycle service: status and shutdown
// for the CLI. Update commands go through the bridge, not here.
package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "licensedesk.daemon.DaemonService"

const (
	methodGetStatus = "GetStatus"
	methodShutdown  = "Shutdown"
)

// Status describes the running daemon.
type Status struct {
	Version   string                 `json:"version"`
	Host      string                 `json:"host"`
	Port      int32                  `json:"port"`
	WebPort   int32                  `json:"web_port,omitempty"`
	PID       int32                  `json:"pid"`
	StartedAt *timestamppb.Timestamp `json:"started_at"`
	Displays  int32                  `json:"displays"`
	Update    models.UpdateSnapshot  `json:"update"`
}

// Daemon is what the service exposes.
type Daemon interface {
	Status() *Status
	RequestShutdown()
}

type daemonServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*Status, error)
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

type service struct {
	daemon Daemon
}

// Register registers the daemon service for d on s.
func Register(s grpc.ServiceRegistrar, d Daemon) {
	s.RegisterService(&serviceDesc, &service{daemon: d})
}

func (s *service) GetStatus(context.Context, *emptypb.Empty) (*Status, error) {
	return s.daemon.Status(), nil
}

func (s *service) Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	s.daemon.RequestShutdown()
	return &emptypb.Empty{}, nil
}

func unaryHandler[Resp any](name string, call func(daemonServer, context.Context, *emptypb.Empty) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(daemonServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(daemonServer), ctx, req.(*emptypb.Empty))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*daemonServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(methodGetStatus, daemonServer.GetStatus),
		unaryHandler(methodShutdown, daemonServer.Shutdown),
	},
	Metadata: "licensedesk/daemon",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// Client calls the daemon service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client over conn. The connection must use the bridge
// JSON codec.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// GetStatus fetches the daemon status.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	out := new(Status)
	if err := c.conn.Invoke(ctx, fullMethod(methodGetStatus), &emptypb.Empty{}, out, grpc.CallContentSubtype(bridge.CodecName)); err != nil {
		return nil, fmt.Errorf("failed to get daemon status: %w", err)
	}
	return out, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, fullMethod(methodShutdown), &emptypb.Empty{}, &emptypb.Empty{}, grpc.CallContentSubtype(bridge.CodecName)); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	return nil
}
