// Package wsconn carries connection frames as binary WebSocket messages.
package wsconn

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	errs "github.com/c360/callbridge/errors"
	"github.com/c360/callbridge/transport"
)

const (
	writeWait   = 10 * time.Second
	closeWait   = time.Second
	maxFrameLen = 16 << 20
)

// Conn is a transport.Conn over a single WebSocket.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	inbox   chan []byte
	done    chan struct{}
	once    sync.Once
}

// Dial connects to a WebSocket endpoint.
func Dial(ctx context.Context, url string, header http.Header, logger *slog.Logger) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errs.WrapTransient(err, "wsconn", "Dial", fmt.Sprintf("dial %s", url))
	}
	return newConn(ws, logger), nil
}

// Upgrader accepts WebSocket connections on an HTTP server.
type Upgrader struct {
	websocket.Upgrader
	Logger *slog.Logger
}

// Accept upgrades an HTTP request.
func (u *Upgrader) Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.Upgrade(w, r, nil)
	if err != nil {
		return nil, errs.WrapInvalid(err, "wsconn", "Accept", "upgrade request")
	}
	return newConn(ws, u.Logger), nil
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	ws.SetReadLimit(maxFrameLen)
	c := &Conn{
		ws:     ws,
		logger: logger.With("remote", ws.RemoteAddr().String()),
		inbox:  make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop owns every read on the socket. It ends on the first read error.
func (c *Conn) readLoop() {
	defer close(c.inbox)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.done:
				default:
					c.logger.Debug("websocket read ended", "error", err)
				}
			}
			return
		}
		if kind != websocket.BinaryMessage {
			c.logger.Debug("ignoring non-binary message", "type", kind)
			continue
		}
		select {
		case c.inbox <- data:
		case <-c.done:
			return
		}
	}
}

// Send writes one binary message.
func (c *Conn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errs.WrapTransient(err, "wsconn", "Send", "set write deadline")
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return errs.WrapTransient(err, "wsconn", "Send", "write frame")
	}
	return nil
}

// Recv returns the next binary message. Once the peer goes away it returns
// transport.ErrClosed.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-c.inbox:
		if !ok {
			return nil, transport.ErrClosed
		}
		return frame, nil
	case <-c.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close message and closes the socket.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

var _ transport.Conn = (*Conn)(nil)
