package rtc

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

var _ ControlChannel = (*WSControlChannel)(nil)

// WSControlChannel is a [ControlChannel] carried over a WebSocket. It is
// used when the structured event side-channel is bridged over WS instead of
// a native data channel. Messages are read by a single loop and delivered
// in arrival order; messages read before a handler is registered are
// buffered, never dropped.
type WSControlChannel struct {
	conn *websocket.Conn

	mu      sync.Mutex
	handler func([]byte)
	pending [][]byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// DialControl connects a WebSocket control channel to url and starts the
// read loop.
func DialControl(ctx context.Context, url string, header http.Header) (*WSControlChannel, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("rtc: dial control channel: %w", err)
	}

	chCtx, cancel := context.WithCancel(context.Background())
	c := &WSControlChannel{
		conn:   conn,
		ctx:    chCtx,
		cancel: cancel,
	}
	go c.readLoop()
	return c, nil
}

// readLoop reads messages until the connection closes or the channel is
// shut down. Each message is dispatched to the handler, or buffered while
// none is registered.
func (c *WSControlChannel) readLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

func (c *WSControlChannel) dispatch(data []byte) {
	c.mu.Lock()
	fn := c.handler
	if fn == nil {
		c.pending = append(c.pending, data)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn(data)
}

// OnMessage implements [ControlChannel]. The first registration flushes any
// buffered messages in arrival order.
func (c *WSControlChannel) OnMessage(fn func([]byte)) {
	c.mu.Lock()
	c.handler = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if fn == nil {
		return
	}
	for _, msg := range pending {
		fn(msg)
	}
}

// Send implements [ControlChannel]. Messages are written as text frames.
func (c *WSControlChannel) Send(ctx context.Context, data []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("rtc: control channel write: %w", err)
	}
	return nil
}

// Close implements [ControlChannel]. Idempotent.
func (c *WSControlChannel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "control channel closed")
	})
	return nil
}
