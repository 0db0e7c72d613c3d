// Package session implements the per-session state machine described in
// spec section 4.8: it owns the adapter table, the peer table, the
// technology-scoped close-reason overrides, and the background-app
// deadline timer, and serializes every adapter callback under a single
// session lock (spec section 5 "session lock").
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/multirange/core/internal/ranging/adapter"
	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/fusion"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// defaultBackgroundTimeout is the background-app deadline spec section
// 4.8 names: "default 60 s".
const defaultBackgroundTimeout = 60 * time.Second

// ErrAlreadyStarted indicates Start was called while the kernel was not
// Stopped.
var ErrAlreadyStarted = errors.New("session: already started")

// AdapterFactory builds the concrete Adapter for cfg. The session kernel
// calls it once per TechnologyConfig passed to Start; concrete adapters
// (UWB, RTT, CS, BLE-RSSI) live outside this package (spec section 1).
type AdapterFactory func(cfg model.TechnologyConfig) (adapter.Adapter, error)

// Config bundles the session-kernel construction parameters that are not
// already covered by a KernelOption.
type Config struct {
	SessionConfig model.SessionConfig
	PrimerConfig  fusion.PrimerConfig
	// NewFuser constructs a fresh DataFuser for each peer (Preferential and
	// Passthrough both carry per-peer state, so one instance is needed per
	// peer.Engine, not one shared instance).
	NewFuser func() fusion.DataFuser
}

// KernelOption configures optional Kernel parameters.
type KernelOption func(*Kernel)

// WithLogger sets the kernel's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) KernelOption {
	return func(k *Kernel) { k.logger = logger }
}

// WithBackgroundTimeout overrides the default 60s background-app deadline.
func WithBackgroundTimeout(d time.Duration) KernelOption {
	return func(k *Kernel) { k.bgTimeout = d }
}

// WithAttribution sets the non-privileged caller attribution under which
// this session runs. A nil attribution (the default) means the session is
// privileged and the background timer is never armed (spec section 4.8:
// "if a non-privileged caller attribution exists and the app moves to
// background, arm the timer").
func WithAttribution(attribution *adapter.Attribution) KernelOption {
	return func(k *Kernel) { k.attribution = attribution }
}

// adapterEntry is the session kernel's per-adapter state (spec section
// 4.8: "a map TechnologyConfig -> Adapter").
type adapterEntry struct {
	handle   uint32
	cfg      model.TechnologyConfig
	instance adapter.Adapter
}

// Kernel is the per-session state machine (spec section 4.8).
type Kernel struct {
	mu sync.Mutex // the "session lock" (spec section 5)

	cfg      Config
	listener Listener
	handles  *engine.HandleAllocator
	logger   *slog.Logger

	state           State
	adapters        map[model.TechnologyConfigKey]*adapterEntry
	peers           map[model.RangingDevice]*peerEntry
	overrideReason  map[model.TechnologyConfigKey]model.Reason
	lastCloseReason model.Reason

	attribution *adapter.Attribution
	bgTimeout   time.Duration
	bgTimer     *time.Timer
}

// New constructs a Kernel in the Stopped state. listener receives every
// session event; it must not be nil.
func New(cfg Config, listener Listener, opts ...KernelOption) *Kernel {
	k := &Kernel{
		cfg:            cfg,
		listener:       listener,
		handles:        engine.NewHandleAllocator(),
		logger:         slog.Default(),
		adapters:       make(map[model.TechnologyConfigKey]*adapterEntry),
		peers:          make(map[model.RangingDevice]*peerEntry),
		overrideReason: make(map[model.TechnologyConfigKey]model.Reason),
		bgTimeout:      defaultBackgroundTimeout,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// State returns the kernel's current state.
func (k *Kernel) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// PeerSnapshot summarizes one peer's currently active technologies, for
// introspection callers (cmd/rangingd's HTTP API) that must not reach
// into the adapter table directly.
type PeerSnapshot struct {
	Peer         model.RangingDevice
	Technologies []tech.Technology
}

// Snapshot returns the kernel's current state and one PeerSnapshot per
// peer with at least one open adapter. Safe to call from any goroutine.
func (k *Kernel) Snapshot() (State, []PeerSnapshot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	byPeer := make(map[model.RangingDevice][]tech.Technology)
	for key := range k.adapters {
		byPeer[key.Peer] = append(byPeer[key.Peer], key.Technology)
	}
	snaps := make([]PeerSnapshot, 0, len(byPeer))
	for peer, techs := range byPeer {
		snaps = append(snaps, PeerSnapshot{Peer: peer, Technologies: techs})
	}
	return k.state, snaps
}

// Start finalizes configs, transitions Stopped -> Starting, and
// instantiates one adapter per config via factory (spec section 4.8
// "start(set<TechnologyConfig>)"). Each adapter's Start call runs off the
// session lock, offloaded onto an errgroup.Group scoped to this call
// (spec section 5 "adapter start ... invocations ... must not be
// performed under the lock").
func (k *Kernel) Start(ctx context.Context, configs []model.TechnologyConfig, factory AdapterFactory) error {
	k.listener.OnConfigFinalized(configs)

	k.mu.Lock()
	if k.state != Stopped {
		k.mu.Unlock()
		return fmt.Errorf("start: state is %s: %w", k.state, ErrAlreadyStarted)
	}
	k.state = Starting
	for _, cfg := range configs {
		for _, peer := range cfg.PeerSet() {
			if _, exists := k.peers[peer]; !exists {
				k.peers[peer] = k.newPeerEntry(peer)
			}
			k.peers[peer].fusion.AddDataSource(cfg.Technology)
		}
	}
	k.mu.Unlock()

	g, gCtx := errgroup.WithContext(ctx)
	for _, cfg := range configs {
		cfg := cfg
		g.Go(func() error {
			k.startOne(gCtx, cfg, factory)
			return nil
		})
	}
	return g.Wait()
}

// startOne instantiates and starts a single adapter, committing it to the
// adapter table only on success. Failures are logged, not propagated,
// since one technology's adapter failing to start does not prevent the
// others from running (spec section 4.8 names no all-or-nothing
// requirement for Start, unlike the selector's Select()).
func (k *Kernel) startOne(ctx context.Context, cfg model.TechnologyConfig, factory AdapterFactory) {
	inst, err := factory(cfg)
	if err != nil {
		k.logger.Error("create adapter failed", slog.String("technology", cfg.Technology.String()), slog.Any("error", err))
		return
	}

	k.mu.Lock()
	handle, err := k.handles.Allocate()
	if err != nil {
		k.mu.Unlock()
		k.logger.Error("allocate adapter handle failed", slog.Any("error", err))
		return
	}
	key := cfg.Key()
	k.mu.Unlock()

	cb := &kernelCallback{kernel: k, key: key}
	if err := inst.Start(ctx, cfg, k.attribution, cb); err != nil {
		k.mu.Lock()
		k.handles.Release(handle)
		k.mu.Unlock()
		k.logger.Error("adapter start failed", slog.String("technology", cfg.Technology.String()), slog.Any("error", err))
		return
	}

	k.mu.Lock()
	k.adapters[key] = &adapterEntry{handle: handle, cfg: cfg, instance: inst}
	k.mu.Unlock()
}

// Stop begins a session-wide shutdown (spec section 4.8 "stop(reason =
// LOCAL_REQUEST)"). In Stopped/Stopping it is a no-op. reason, if not
// ReasonLocalRequest, is recorded as the override for every currently
// open adapter so their eventual OnClosed is reported at the
// session level under this reason rather than whatever the adapter itself
// reports.
func (k *Kernel) Stop(reason model.Reason) {
	k.mu.Lock()
	if k.state == Stopped || k.state == Stopping {
		k.mu.Unlock()
		return
	}
	k.cancelBackgroundTimerLocked()
	k.state = Stopping
	k.lastCloseReason = reason

	instances := make([]adapter.Adapter, 0, len(k.adapters))
	for key, entry := range k.adapters {
		if reason != model.ReasonLocalRequest {
			k.overrideReason[key] = reason
		}
		instances = append(instances, entry.instance)
	}
	empty := len(k.adapters) == 0
	k.mu.Unlock()

	for _, inst := range instances {
		inst.Stop()
	}

	if empty {
		k.mu.Lock()
		k.finishCloseLocked()
		k.mu.Unlock()
	}
}

// finishCloseLocked transitions to Stopped and fires OnSessionClosed
// exactly once. Callers must hold k.mu.
func (k *Kernel) finishCloseLocked() {
	if k.state == Stopped {
		return
	}
	k.state = Stopped
	reason := k.lastCloseReason
	k.overrideReason = make(map[model.TechnologyConfigKey]model.Reason)
	k.mu.Unlock()
	k.listener.OnSessionClosed(reason)
	k.mu.Lock()
}

// AddPeer routes raw to the adapter identified by key, if and only if
// that adapter supports dynamic peer updates (spec section 4.8 "Dynamic
// peers"). A key with no running adapter, or an adapter that does not
// support dynamic updates, is a silent no-op.
func (k *Kernel) AddPeer(key model.TechnologyConfigKey, raw adapter.RawPeerConfig) error {
	k.mu.Lock()
	entry, ok := k.adapters[key]
	k.mu.Unlock()
	if !ok || !entry.instance.DynamicUpdatePeersSupported() {
		return nil
	}
	return entry.instance.AddPeer(raw)
}

// RemovePeer is AddPeer's counterpart (spec section 4.8).
func (k *Kernel) RemovePeer(key model.TechnologyConfigKey, peer model.RangingDevice) error {
	k.mu.Lock()
	entry, ok := k.adapters[key]
	k.mu.Unlock()
	if !ok || !entry.instance.DynamicUpdatePeersSupported() {
		return nil
	}
	return entry.instance.RemovePeer(peer)
}

// StopTechnologies stops every currently open adapter addressed to peer
// whose technology is in set, recording reason as each one's override so
// its eventual OnClosed/OnStopped is reported under reason rather than
// whatever the adapter itself reports (spec section 4.9: the OOB
// responder calls "kernel.stop_technologies(set, reason=REMOTE_REQUEST)"
// for a StopRangingMessage). Unlike Stop, the session itself is left
// running; only the matching adapters are torn down.
func (k *Kernel) StopTechnologies(peer model.RangingDevice, set tech.Set, reason model.Reason) {
	k.mu.Lock()
	if k.state == Stopped || k.state == Stopping {
		k.mu.Unlock()
		return
	}
	var instances []adapter.Adapter
	for key, entry := range k.adapters {
		if key.Peer != peer || !set.Has(key.Technology) {
			continue
		}
		if reason != model.ReasonLocalRequest {
			k.overrideReason[key] = reason
		}
		instances = append(instances, entry.instance)
	}
	k.mu.Unlock()

	for _, inst := range instances {
		inst.Stop()
	}
}

// AppToForeground cancels the background timer and notifies every
// adapter and every peer's data-notification gate that the app is now in
// the foreground (spec section 4.8, section 4.3).
func (k *Kernel) AppToForeground() {
	k.mu.Lock()
	if k.attribution != nil {
		k.attribution.IsForeground = true
	}
	k.cancelBackgroundTimerLocked()
	instances := k.adapterInstancesLocked()
	for _, p := range k.peers {
		p.gate.AppToForeground()
	}
	k.mu.Unlock()

	for _, inst := range instances {
		inst.AppForegroundStateUpdated(true)
	}
}

// AppToBackground arms the background timer (if a non-privileged
// attribution is set) and notifies every adapter and peer gate that the
// app has moved to background (spec section 4.8, section 4.3).
func (k *Kernel) AppToBackground() {
	k.mu.Lock()
	if k.attribution != nil {
		k.attribution.IsForeground = false
		if k.bgTimer == nil {
			k.bgTimer = time.AfterFunc(k.bgTimeout, k.onBackgroundTimeout)
		}
	}
	instances := k.adapterInstancesLocked()
	for _, p := range k.peers {
		p.gate.AppToBackground()
	}
	k.mu.Unlock()

	for _, inst := range instances {
		inst.AppForegroundStateUpdated(false)
	}
}

func (k *Kernel) onBackgroundTimeout() {
	k.mu.Lock()
	k.bgTimer = nil
	instances := k.adapterInstancesLocked()
	k.mu.Unlock()

	for _, inst := range instances {
		inst.AppInBackgroundTimeout()
	}
}

// cancelBackgroundTimerLocked stops and clears the background timer, if
// armed. Callers must hold k.mu.
func (k *Kernel) cancelBackgroundTimerLocked() {
	if k.bgTimer != nil {
		k.bgTimer.Stop()
		k.bgTimer = nil
	}
}

func (k *Kernel) adapterInstancesLocked() []adapter.Adapter {
	instances := make([]adapter.Adapter, 0, len(k.adapters))
	for _, entry := range k.adapters {
		instances = append(instances, entry.instance)
	}
	return instances
}

// forwardRangingData delivers a fused sample to the session listener,
// subject to the Stopping/Stopped gate (spec section 4.8 "Fusion listener
// forwards to the session listener, subject to the same STOPPING/STOPPED
// gate") and the peer's data-notification gate (spec section 4.4).
// Callers must hold k.mu (fusion.Engine.Feed invokes this synchronously,
// on the same goroutine, before releasing its own internal lock).
func (k *Kernel) forwardRangingData(p *peerEntry, data model.RangingData) {
	if k.state == Stopping || k.state == Stopped {
		return
	}
	if !p.gate.ShouldEmit(data.Distance.Value) {
		return
	}
	k.listener.OnRangingData(p.device, data)
}
