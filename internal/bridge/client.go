package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Client is the display-process side of the bridge. It keeps one event
// stream open to the host, reconnecting with exponential backoff, and fans
// received events out to local listeners.
type Client struct {
	conn *grpc.ClientConn
	hub  *Hub

	mu        sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	onConn    []func(bool)

	// MaxReconnectInterval caps the wait between stream reconnects.
	MaxReconnectInterval time.Duration
}

// Dial creates a client for the host at addr ("host:port").
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an existing connection. The client owns conn from now on.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{
		conn:                 conn,
		hub:                  NewHub(),
		MaxReconnectInterval: 10 * time.Second,
	}
}

func (c *Client) CheckForUpdates(ctx context.Context) error {
	return c.command(ctx, methodCheckForUpdates)
}

func (c *Client) ConfirmDownload(ctx context.Context) error {
	return c.command(ctx, methodConfirmDownload)
}

func (c *Client) ConfirmInstall(ctx context.Context) error {
	return c.command(ctx, methodConfirmInstall)
}

func (c *Client) command(ctx context.Context, method string) error {
	if err := c.conn.Invoke(ctx, fullMethod(method), &emptypb.Empty{}, &emptypb.Empty{}, grpc.CallContentSubtype(CodecName)); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Status fetches the host's session snapshot.
func (c *Client) Status(ctx context.Context) (models.UpdateSnapshot, error) {
	var snap models.UpdateSnapshot
	if err := c.conn.Invoke(ctx, fullMethod(methodGetStatus), &emptypb.Empty{}, &snap, grpc.CallContentSubtype(CodecName)); err != nil {
		return models.UpdateSnapshot{}, fmt.Errorf("%s: %w", methodGetStatus, err)
	}
	return snap, nil
}

// Subscribe registers fn for ch. The first subscription opens the event stream.
func (c *Client) Subscribe(ch Channel, fn Listener) (Subscription, error) {
	sub, err := c.hub.Subscribe(ch, fn)
	if err != nil {
		return nil, err
	}
	c.startStream()
	return sub, nil
}

// ListenerCount returns the number of local listeners on ch.
func (c *Client) ListenerCount(ch Channel) int {
	return c.hub.ListenerCount(ch)
}

// NotifyConnection registers fn to be told when the event stream connects
// or drops.
func (c *Client) NotifyConnection(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConn = append(c.onConn, fn)
}

// Connected reports whether the event stream is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close stops the event stream and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.hub.Close()
	return c.conn.Close()
}

func (c *Client) startStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	expBackOff := backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         c.MaxReconnectInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}, ctx)

	notify := func(err error, wait time.Duration) {
		log.Debugf("[bridge] event stream lost, reconnecting in %s: %v", wait, err)
	}
	err := backoff.RetryNotify(func() error {
		return c.streamEvents(ctx, expBackOff.Reset)
	}, expBackOff, notify)
	if err != nil && ctx.Err() == nil {
		log.Errorf("[bridge] event stream ended: %v", err)
	}
}

func (c *Client) streamEvents(ctx context.Context, resetBackoff func()) error {
	stream, err := c.conn.NewStream(ctx, &subscribeStreamDesc, fullMethod(streamSubscribeEvents), grpc.CallContentSubtype(CodecName))
	if err != nil {
		return c.streamErr(ctx, fmt.Errorf("failed to subscribe to events: %w", err))
	}
	if err := stream.SendMsg(&SubscribeRequest{}); err != nil {
		return c.streamErr(ctx, fmt.Errorf("send subscribe request: %w", err))
	}
	if err := stream.CloseSend(); err != nil {
		return c.streamErr(ctx, fmt.Errorf("close send: %w", err))
	}
	if _, err := stream.Header(); err != nil {
		return c.streamErr(ctx, fmt.Errorf("await stream header: %w", err))
	}

	c.setConnected(true)
	defer c.setConnected(false)
	resetBackoff()

	for {
		var ev Event
		if err := stream.RecvMsg(&ev); err != nil {
			return c.streamErr(ctx, fmt.Errorf("error receiving event: %w", err))
		}
		c.hub.Publish(ev)
	}
}

func (c *Client) streamErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if status.Code(err) == codes.PermissionDenied {
		return backoff.Permanent(err)
	}
	return err
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	if c.connected == v {
		c.mu.Unlock()
		return
	}
	c.connected = v
	listeners := make([]func(bool), len(c.onConn))
	copy(listeners, c.onConn)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
