package oob_test

import (
	"context"
	"sync"

	"github.com/multirange/core/internal/ranging/oob"
)

// fakeConn is an in-memory oob.Conn test double: Receive drains a buffered
// channel fed via queue, and Send appends to a recorded slice inspectable
// by sentAt/sentCount.
type fakeConn struct {
	mu      sync.Mutex
	closed  bool
	sent    [][]byte
	recv    chan []byte
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{recv: make(chan []byte, 8)}
}

func (c *fakeConn) queue(msg []byte) {
	c.recv <- msg
}

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return oob.ErrConnClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), msg...))
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, oob.ErrConnClosed
	}
	c.mu.Unlock()
	select {
	case msg, ok := <-c.recv:
		if !ok {
			return nil, oob.ErrConnClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.recv)
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) sentAt(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[i]
}
