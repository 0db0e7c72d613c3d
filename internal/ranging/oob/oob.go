// Package oob drives the out-of-band capability/configuration handshake
// described in spec section 4.9: a reliable, framed, bidirectional
// byte-message transport per peer is assumed to exist outside this
// specification (spec section 1); this package only defines the Conn
// contract that transport must satisfy, a reference transport over
// WebSockets (tcpconn.go), and the initiator/responder drivers that turn a
// set of Conns into a running session.Kernel.
package oob

import (
	"context"
	"errors"
	"time"

	"github.com/multirange/core/internal/ranging/model"
)

// DefaultTimeout is the 4s bound spec section 4.9 and section 5 name for
// every OOB send/receive step ("capability exchange 4 s, set-config send
// 4 s").
const DefaultTimeout = 4 * time.Second

// Sentinel errors surfaced by the initiator/responder drivers.
var (
	// ErrNoPeersFound is returned when every peer drops out of a handshake
	// (timeout, parse failure, or send failure) before a session can start
	// (spec section 4.9 step 3, section 7 "NO_PEERS_FOUND").
	ErrNoPeersFound = errors.New("oob: no peers found")

	// ErrConnClosed is returned by Send/Receive on a Conn that has already
	// been closed.
	ErrConnClosed = errors.New("oob: connection closed")
)

// Conn is the framed, bidirectional, per-peer byte-message transport spec
// section 1 and section 4.9 assume is supplied externally. One Conn
// addresses exactly one peer.
type Conn interface {
	// Send writes one complete OOB message. Send does not fragment or
	// buffer partial messages; msg is exactly what UnmarshalHeader and its
	// sibling parsers in internal/ranging/wire expect to read back.
	Send(ctx context.Context, msg []byte) error

	// Receive blocks for exactly one complete OOB message, or until ctx is
	// done.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases the connection. Idempotent.
	Close() error
}

// Dialer opens a Conn to peer. Used by the initiator (spec section 4.9
// step 1: "open an OOB connection (created via the external OOB
// controller)").
type Dialer func(ctx context.Context, peer model.RangingDevice) (Conn, error)
