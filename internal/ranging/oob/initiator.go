package oob

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/session"
	"github.com/multirange/core/internal/ranging/tech"
	"github.com/multirange/core/internal/ranging/wire"
)

// InitiatorOption configures an optional Initiator parameter.
type InitiatorOption func(*Initiator)

// WithInitiatorTimeout overrides DefaultTimeout for every OOB step.
func WithInitiatorTimeout(d time.Duration) InitiatorOption {
	return func(i *Initiator) { i.timeout = d }
}

// WithInitiatorLogger sets the initiator's logger. Defaults to
// slog.Default().
func WithInitiatorLogger(logger *slog.Logger) InitiatorOption {
	return func(i *Initiator) { i.logger = logger }
}

// Initiator drives the initiator side of the OOB handshake (spec section
// 4.9): one capability exchange and configuration push per peer, followed
// by the session kernel's start(), and later the initiator's stop
// protocol.
type Initiator struct {
	dial    Dialer
	engine  *engine.Engine
	kernel  *session.Kernel
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	conns    map[model.RangingDevice]Conn
	peerTech map[model.RangingDevice]tech.Set
}

// NewInitiator constructs an Initiator. eng must already be built with one
// selector per locally-supported technology (engine.New); kernel is the
// session this handshake will start.
func NewInitiator(dial Dialer, eng *engine.Engine, kernel *session.Kernel, opts ...InitiatorOption) *Initiator {
	i := &Initiator{
		dial:    dial,
		engine:  eng,
		kernel:  kernel,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type capabilityResult struct {
	peer model.RangingDevice
	conn Conn
	resp wire.CapabilityResponseMessage
	err  error
}

// Run drives the full initiator handshake (spec section 4.9 steps 1-7) for
// peers, then starts factory-built adapters for the finalized
// configuration via the session kernel.
func (i *Initiator) Run(ctx context.Context, peers []model.RangingDevice, factory session.AdapterFactory) error {
	requested := i.engine.RequestedTechnologies()
	requestMsg := wire.CapabilityRequestMessage{Requested: requested}.Marshal()

	results := make([]capabilityResult, len(peers))
	g, gCtx := errgroup.WithContext(ctx)
	for idx, peer := range peers {
		idx, peer := idx, peer
		g.Go(func() error {
			results[idx] = i.exchangeCapabilities(gCtx, peer, requestMsg)
			return nil
		})
	}
	_ = g.Wait() // per-peer failures are recorded in results, not propagated (spec section 4.9 step 3)

	conns := make(map[model.RangingDevice]Conn, len(peers))
	for _, r := range results {
		if r.err != nil {
			i.logger.Warn("peer dropped from capability exchange", slog.String("peer", r.peer.String()), slog.Any("error", r.err))
			continue
		}
		accepted, rejected := i.engine.OnCapabilityResponse(r.peer, r.resp)
		for t, err := range rejected {
			i.logger.Warn("peer rejected on technology", slog.String("peer", r.peer.String()),
				slog.String("technology", t.String()), slog.Any("error", err))
		}
		if accepted.Empty() {
			r.conn.Close()
			continue
		}
		conns[r.peer] = r.conn
	}
	if len(conns) == 0 {
		return fmt.Errorf("oob: initiator capability exchange: %w", ErrNoPeersFound)
	}

	selected, err := i.engine.SelectConfigs()
	if err != nil {
		for _, c := range conns {
			c.Close()
		}
		return fmt.Errorf("oob: select configs: %w", err)
	}

	for peer, msg := range selected.PerPeerMessages {
		conn, ok := conns[peer]
		if !ok {
			continue
		}
		buf, err := msg.Marshal()
		if err != nil {
			i.logger.Warn("set-configuration marshal failed", slog.String("peer", peer.String()), slog.Any("error", err))
			conn.Close()
			delete(conns, peer)
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, i.timeout)
		err = conn.Send(sendCtx, buf)
		cancel()
		if err != nil {
			i.logger.Warn("set-configuration send failed", slog.String("peer", peer.String()), slog.Any("error", err))
			conn.Close()
			delete(conns, peer)
		}
	}
	if len(conns) == 0 {
		return fmt.Errorf("oob: initiator set-configuration send: %w", ErrNoPeersFound)
	}

	finalConfigs, peerTech := configsForSurvivingPeers(selected.Local, conns)

	i.mu.Lock()
	i.conns = conns
	i.peerTech = peerTech
	i.mu.Unlock()

	return i.kernel.Start(ctx, finalConfigs, factory)
}

// exchangeCapabilities performs steps 1-3 of the handshake for a single
// peer: open the connection, send the capability request, and await the
// response within i.timeout.
func (i *Initiator) exchangeCapabilities(ctx context.Context, peer model.RangingDevice, requestMsg []byte) capabilityResult {
	conn, err := i.dial(ctx, peer)
	if err != nil {
		return capabilityResult{peer: peer, err: fmt.Errorf("dial: %w", err)}
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if err := conn.Send(exchangeCtx, requestMsg); err != nil {
		conn.Close()
		return capabilityResult{peer: peer, err: fmt.Errorf("send capability request: %w", err)}
	}
	respBuf, err := conn.Receive(exchangeCtx)
	if err != nil {
		conn.Close()
		return capabilityResult{peer: peer, err: fmt.Errorf("receive capability response: %w", err)}
	}
	resp, err := wire.UnmarshalCapabilityResponse(respBuf)
	if err != nil {
		conn.Close()
		return capabilityResult{peer: peer, err: fmt.Errorf("parse capability response: %w", err)}
	}
	return capabilityResult{peer: peer, conn: conn, resp: resp}
}

// configsForSurvivingPeers trims selected to the configs whose peer still
// has an open connection (dropped during set-configuration send), and
// records each surviving peer's active technology set for the stop
// protocol.
func configsForSurvivingPeers(selected []model.TechnologyConfig, conns map[model.RangingDevice]Conn) ([]model.TechnologyConfig, map[model.RangingDevice]tech.Set) {
	var final []model.TechnologyConfig
	peerTech := make(map[model.RangingDevice]tech.Set, len(conns))
	for _, cfg := range selected {
		for _, peer := range cfg.PeerSet() {
			if _, ok := conns[peer]; !ok {
				continue
			}
			final = append(final, cfg)
			peerTech[peer] = peerTech[peer].Add(cfg.Technology)
			break
		}
	}
	return final, peerTech
}

// Stop implements the initiator's stop protocol (spec section 4.9): for
// each remaining peer, send a StopRangingMessage listing the technologies
// that peer is currently using, then invoke the session kernel's stop
// regardless of send outcomes.
func (i *Initiator) Stop(ctx context.Context, reason model.Reason) {
	i.mu.Lock()
	conns := i.conns
	peerTech := i.peerTech
	i.conns = nil
	i.peerTech = nil
	i.mu.Unlock()

	for peer, conn := range conns {
		msg := wire.StopRangingMessage{TechnologiesToStop: peerTech[peer]}.Marshal()
		stopCtx, cancel := context.WithTimeout(ctx, i.timeout)
		if err := conn.Send(stopCtx, msg); err != nil {
			i.logger.Warn("stop-ranging send failed", slog.String("peer", peer.String()), slog.Any("error", err))
		}
		cancel()
		conn.Close()
	}

	i.kernel.Stop(reason)
}
