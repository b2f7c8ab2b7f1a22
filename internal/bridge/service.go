package bridge

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/gunlicence/licensedesk/internal/models"
)

// ServiceName is the fully-qualified gRPC service name of the bridge.
const ServiceName = "licensedesk.bridge.UpdateBridge"

const (
	methodCheckForUpdates = "CheckForUpdates"
	methodConfirmDownload = "ConfirmDownload"
	methodConfirmInstall  = "ConfirmInstall"
	methodGetStatus       = "GetStatus"
	streamSubscribeEvents = "SubscribeEvents"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// SubscribeRequest selects the channels a stream carries. Empty means all.
type SubscribeRequest struct {
	Channels []string `json:"channels,omitempty"`
}

func (r *SubscribeRequest) channels() ([]Channel, error) {
	if len(r.Channels) == 0 {
		return Channels, nil
	}
	out := make([]Channel, 0, len(r.Channels))
	for _, name := range r.Channels {
		ch, err := ParseChannel(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}

// updateBridgeServer is the server API for the UpdateBridge service.
type updateBridgeServer interface {
	CheckForUpdates(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ConfirmDownload(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ConfirmInstall(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetStatus(context.Context, *emptypb.Empty) (*models.UpdateSnapshot, error)
	SubscribeEvents(*SubscribeRequest, grpc.ServerStream) error
}

// Service exposes a Host and its event Hub over gRPC.
type Service struct {
	host Host
	hub  *Hub
}

// NewService creates the gRPC side of the bridge.
func NewService(host Host, hub *Hub) *Service {
	return &Service{host: host, hub: hub}
}

// RegisterService registers svc on s.
func RegisterService(s grpc.ServiceRegistrar, svc *Service) {
	s.RegisterService(&serviceDesc, svc)
}

func (s *Service) CheckForUpdates(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	log.Debugf("[bridge] %s", CommandCheckForUpdates)
	s.host.CheckForUpdates()
	return &emptypb.Empty{}, nil
}

func (s *Service) ConfirmDownload(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	log.Debugf("[bridge] %s", CommandConfirmDownload)
	s.host.ConfirmDownload()
	return &emptypb.Empty{}, nil
}

func (s *Service) ConfirmInstall(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	log.Debugf("[bridge] %s", CommandConfirmInstall)
	s.host.ConfirmInstall()
	return &emptypb.Empty{}, nil
}

func (s *Service) GetStatus(context.Context, *emptypb.Empty) (*models.UpdateSnapshot, error) {
	snap := s.host.Snapshot()
	return &snap, nil
}

// SubscribeEvents streams hub events until the client goes away. An open
// stream counts as an attached display.
func (s *Service) SubscribeEvents(req *SubscribeRequest, stream grpc.ServerStream) error {
	channels, err := req.channels()
	if err != nil {
		return status.Error(codes.PermissionDenied, err.Error())
	}

	q := newEventQueue()
	subs := make([]Subscription, 0, len(channels))
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()
	for _, ch := range channels {
		sub, err := s.hub.Subscribe(ch, q.push)
		if err != nil {
			return status.Error(codes.Unavailable, err.Error())
		}
		subs = append(subs, sub)
	}

	if err := stream.SendHeader(metadata.MD{}); err != nil {
		return err
	}

	if t, ok := s.host.(DisplayTracker); ok {
		t.DisplayAttached()
		defer t.DisplayDetached()
	}

	log.Info("[bridge] display subscribed to update events")
	defer log.Info("[bridge] display unsubscribed from update events")

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.ready:
			for _, ev := range q.drain() {
				if err := stream.SendMsg(&ev); err != nil {
					return err
				}
			}
		}
	}
}

// eventQueue buffers events for one stream so a slow client never stalls
// the hub.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// ============================================================================
// Service descriptor
// ============================================================================

func commandHandler(name string, call func(updateBridgeServer, context.Context, *emptypb.Empty) (*emptypb.Empty, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(emptypb.Empty)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(updateBridgeServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(updateBridgeServer), ctx, req.(*emptypb.Empty))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func getStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(updateBridgeServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(methodGetStatus)}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(updateBridgeServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(updateBridgeServer).SubscribeEvents(in, stream)
}

var subscribeStreamDesc = grpc.StreamDesc{
	StreamName:    streamSubscribeEvents,
	Handler:       subscribeEventsHandler,
	ServerStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*updateBridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		commandHandler(methodCheckForUpdates, updateBridgeServer.CheckForUpdates),
		commandHandler(methodConfirmDownload, updateBridgeServer.ConfirmDownload),
		commandHandler(methodConfirmInstall, updateBridgeServer.ConfirmInstall),
		{MethodName: methodGetStatus, Handler: getStatusHandler},
	},
	Streams:  []grpc.StreamDesc{subscribeStreamDesc},
	Metadata: "licensedesk/bridge",
}
