//go:build linux

package oob

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sys/unix"

	"github.com/multirange/core/internal/ranging/model"
)

// deviceHeader carries the connecting peer's identity below the OOB
// message layer itself; spec section 6 defines the message formats but
// leaves peer identification at the transport layer to the transport
// (spec section 1).
const deviceHeader = "X-Ranging-Device"

const keepaliveInterval = 30 * time.Second

// tuneSocket applies the socket options the reference OOB transport needs:
// SO_REUSEADDR so a responder can rebind promptly after a restart, mirrored
// on the BFD UDP sender's own SO_REUSEADDR use.
func tuneSocket(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	return nil
}

func controlTuneSocket(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		//nolint:gosec // fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = tuneSocket(int(fd))
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

// WebSocketConn is the reference Conn implementation (spec section 1
// treats the OOB byte-message transport as external; this is the in-repo
// stand-in used by cmd/rangingd and the OOB integration tests, analogous
// to the teacher's split between a noopSender and its real UDP sender).
type WebSocketConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func newWebSocketConn(c *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{conn: c}
}

// Send writes msg as a single binary WebSocket frame, bounded by ctx's
// deadline or DefaultTimeout.
func (c *WebSocketConn) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if err := c.conn.SetWriteDeadline(deadlineOf(ctx, DefaultTimeout)); err != nil {
		return fmt.Errorf("oob: set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("oob: send: %w", err)
	}
	return nil
}

// Receive blocks for one binary WebSocket frame, bounded by ctx's deadline
// or DefaultTimeout.
func (c *WebSocketConn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.SetReadDeadline(deadlineOf(ctx, DefaultTimeout)); err != nil {
		return nil, fmt.Errorf("oob: set read deadline: %w", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("oob: receive: %w", err)
	}
	return data, nil
}

// Close releases the underlying WebSocket connection. Idempotent.
func (c *WebSocketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func deadlineOf(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

// dialer is the package-wide WebSocket dialer, tuned with the same socket
// options as the reference listener so initiator and responder sides are
// symmetric.
var dialer = websocket.Dialer{
	HandshakeTimeout: DefaultTimeout,
	NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{KeepAlive: keepaliveInterval, Control: controlTuneSocket}
		return d.DialContext(ctx, network, addr)
	},
}

// NewWebSocketDialer builds a Dialer (spec section 4.9 step 1: "open an
// OOB connection") that opens a WebSocket connection to the address
// addressOf resolves the peer to, identifying the local device to the
// responder via deviceHeader.
func NewWebSocketDialer(addressOf func(model.RangingDevice) string, local model.RangingDevice) Dialer {
	return func(ctx context.Context, peer model.RangingDevice) (Conn, error) {
		url := addressOf(peer)
		header := http.Header{}
		header.Set(deviceHeader, local.String())
		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("oob: dial %s: %w", url, err)
		}
		return newWebSocketConn(conn), nil
	}
}

// -------------------------------------------------------------------------
// Responder-side listener
// -------------------------------------------------------------------------

type acceptedConn struct {
	peer model.RangingDevice
	conn Conn
}

// Listener accepts inbound OOB connections on a single HTTP endpoint,
// upgrading each to a Conn and pairing it with the peer identity declared
// in deviceHeader. Used by the OOB responder (spec section 4.9: "listen
// for a capability request").
type Listener struct {
	upgrader websocket.Upgrader
	server   *http.Server
	accepted chan acceptedConn
}

// NewListener constructs a Listener bound to addr, serving a single
// upgrade path.
func NewListener(addr string) *Listener {
	l := &Listener{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		accepted: make(chan acceptedConn, 16),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/oob", l.handleUpgrade)
	l.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: DefaultTimeout,
	}
	return l
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.Header.Get(deviceHeader))
	if err != nil {
		http.Error(w, "missing or invalid "+deviceHeader+" header", http.StatusBadRequest)
		return
	}
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	l.accepted <- acceptedConn{peer: model.NewRangingDevice(id), conn: newWebSocketConn(conn)}
}

// Serve listens on l's address with the same tuned socket options as the
// dialer and blocks until ctx is cancelled.
func (l *Listener) Serve(ctx context.Context) error {
	lc := net.ListenConfig{Control: controlTuneSocket}
	ln, err := lc.Listen(ctx, "tcp", l.server.Addr)
	if err != nil {
		return fmt.Errorf("oob: listen %s: %w", l.server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- l.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		_ = l.server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Accept blocks until the next inbound peer connection, or ctx is done.
func (l *Listener) Accept(ctx context.Context) (model.RangingDevice, Conn, error) {
	select {
	case a := <-l.accepted:
		return a.peer, a.conn, nil
	case <-ctx.Done():
		return model.RangingDevice{}, nil, ctx.Err()
	}
}
