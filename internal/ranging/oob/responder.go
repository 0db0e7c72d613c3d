package oob

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/session"
	"github.com/multirange/core/internal/ranging/tech"
	"github.com/multirange/core/internal/ranging/wire"
)

// Acceptor is the inbound side of a Conn factory (spec section 4.9: "the
// OOB responder ... listen[s] for a capability request"). *Listener
// satisfies this directly; tests supply their own.
type Acceptor interface {
	Accept(ctx context.Context) (model.RangingDevice, Conn, error)
}

// ResponderOption configures an optional Responder parameter.
type ResponderOption func(*Responder)

// WithResponderTimeout overrides DefaultTimeout for every OOB step.
func WithResponderTimeout(d time.Duration) ResponderOption {
	return func(r *Responder) { r.timeout = d }
}

// WithResponderLogger sets the responder's logger. Defaults to
// slog.Default().
func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) { r.logger = logger }
}

// Responder drives the responder side of the OOB handshake (spec section
// 4.9): it mirrors the initiator, answering capability requests with the
// local device's supported technologies and translating an inbound
// SetConfigurationMessage into a session kernel start(), then continues
// listening for StopRangingMessages.
type Responder struct {
	acceptor Acceptor
	caps     func() model.LocalCapabilities
	kernel   *session.Kernel
	factory  session.AdapterFactory
	timeout  time.Duration
	logger   *slog.Logger
}

// NewResponder constructs a Responder. caps is consulted fresh for every
// inbound capability request, so it may reflect a CapabilitiesProvider
// whose snapshot changes over the responder's lifetime.
func NewResponder(acceptor Acceptor, caps func() model.LocalCapabilities, kernel *session.Kernel, factory session.AdapterFactory, opts ...ResponderOption) *Responder {
	r := &Responder{
		acceptor: acceptor,
		caps:     caps,
		kernel:   kernel,
		factory:  factory,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Serve accepts inbound connections and handles each one on its own
// goroutine until ctx is cancelled, at which point it returns once every
// in-flight handshake has unwound.
func (r *Responder) Serve(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for {
		peer, conn, err := r.acceptor.Accept(gCtx)
		if err != nil {
			break
		}
		g.Go(func() error {
			r.handleConn(gCtx, peer, conn)
			return nil
		})
	}
	return g.Wait()
}

// handleConn runs one peer's capability-response, set-configuration, and
// stop-listening sequence (spec section 4.9 "the OOB responder is a
// mirror").
func (r *Responder) handleConn(ctx context.Context, peer model.RangingDevice, conn Conn) {
	reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
	reqBuf, err := conn.Receive(reqCtx)
	cancel()
	if err != nil {
		r.logger.Warn("capability request receive failed", slog.String("peer", peer.String()), slog.Any("error", err))
		conn.Close()
		return
	}
	req, err := wire.UnmarshalCapabilityRequest(reqBuf)
	if err != nil {
		r.logger.Warn("capability request parse failed", slog.String("peer", peer.String()), slog.Any("error", err))
		conn.Close()
		return
	}

	local := r.caps()
	supported := local.Supported & req.Requested
	resp := wire.CapabilityResponseMessage{Supported: supported, PriorityOrder: supported.Slice()}
	if supported.Has(tech.UWB) {
		resp.UWB = local.UWB
	}
	if supported.Has(tech.RTT) {
		resp.RTT = local.RTT
	}

	respCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err = conn.Send(respCtx, resp.Marshal())
	cancel()
	if err != nil {
		r.logger.Warn("capability response send failed", slog.String("peer", peer.String()), slog.Any("error", err))
		conn.Close()
		return
	}

	setCfgCtx, cancel := context.WithTimeout(ctx, r.timeout)
	setBuf, err := conn.Receive(setCfgCtx)
	cancel()
	if err != nil {
		r.logger.Warn("set-configuration receive failed", slog.String("peer", peer.String()), slog.Any("error", err))
		conn.Close()
		return
	}
	setMsg, err := wire.UnmarshalSetConfiguration(setBuf, peer)
	if err != nil {
		r.logger.Warn("set-configuration parse failed", slog.String("peer", peer.String()), slog.Any("error", err))
		conn.Close()
		return
	}

	if err := r.kernel.Start(ctx, setMsg.Configs, r.factory); err != nil {
		r.logger.Error("session start failed", slog.String("peer", peer.String()), slog.Any("error", err))
		conn.Close()
		return
	}

	r.listenForStop(ctx, peer, conn)
}

// listenForStop keeps reading from conn until it closes or ctx is
// cancelled, translating every StopRangingMessage into
// kernel.StopTechnologies (spec section 4.9: "calls
// kernel.stop_technologies(set, reason=REMOTE_REQUEST)").
func (r *Responder) listenForStop(ctx context.Context, peer model.RangingDevice, conn Conn) {
	defer conn.Close()
	for {
		buf, err := conn.Receive(ctx)
		if err != nil {
			return
		}
		hdr, err := wire.UnmarshalHeader(buf)
		if err != nil || hdr.MessageType != wire.StopRanging {
			continue
		}
		stopMsg, err := wire.UnmarshalStopRanging(buf)
		if err != nil {
			r.logger.Warn("stop-ranging parse failed", slog.String("peer", peer.String()), slog.Any("error", err))
			continue
		}
		r.kernel.StopTechnologies(peer, stopMsg.TechnologiesToStop, model.ReasonRemoteRequest)
	}
}
