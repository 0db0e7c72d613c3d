package adapter

import (
	"context"
	"sync"

	"github.com/multirange/core/internal/ranging/model"
)

// Fake is a test double implementing Adapter with injectable behavior and
// a recorded call log. It is exported (unlike a _test.go-only mock) so the
// session kernel's own tests, which live in a different package, can drive
// adapter behavior deterministically without a real radio backend.
type Fake struct {
	mu sync.Mutex

	// StartFunc, if set, is called by Start instead of the default
	// behavior (record the call and succeed).
	StartFunc func(ctx context.Context, cfg model.TechnologyConfig, attribution *Attribution, cb Callback) error

	dynamicPeers bool
	background   bool

	cb       Callback
	started  bool
	stopped  bool
	peersAdd []RawPeerConfig
	peersRem []model.RangingDevice
}

// NewFake creates a Fake adapter. dynamicPeers and background set the
// values DynamicUpdatePeersSupported and BackgroundSupported report.
func NewFake(dynamicPeers, background bool) *Fake {
	return &Fake{dynamicPeers: dynamicPeers, background: background}
}

// Start records the call and invokes StartFunc if set.
func (f *Fake) Start(ctx context.Context, cfg model.TechnologyConfig, attribution *Attribution, cb Callback) error {
	f.mu.Lock()
	f.cb = cb
	f.started = true
	f.mu.Unlock()
	if f.StartFunc != nil {
		return f.StartFunc(ctx, cfg, attribution, cb)
	}
	return nil
}

// Stop marks the fake as stopped. Callers drive OnClosed themselves via
// EmitClosed to control callback timing precisely in tests.
func (f *Fake) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// AddPeer records the call.
func (f *Fake) AddPeer(raw RawPeerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peersAdd = append(f.peersAdd, raw)
	return nil
}

// RemovePeer records the call.
func (f *Fake) RemovePeer(device model.RangingDevice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peersRem = append(f.peersRem, device)
	return nil
}

// ReconfigureRangingInterval is a no-op success.
func (f *Fake) ReconfigureRangingInterval(skipCount uint32) error { return nil }

// AppForegroundStateUpdated is a no-op.
func (f *Fake) AppForegroundStateUpdated(inForeground bool) {}

// AppInBackgroundTimeout is a no-op.
func (f *Fake) AppInBackgroundTimeout() {}

// DynamicUpdatePeersSupported reports the value passed to NewFake.
func (f *Fake) DynamicUpdatePeersSupported() bool { return f.dynamicPeers }

// BackgroundSupported reports the value passed to NewFake.
func (f *Fake) BackgroundSupported() bool { return f.background }

// EmitStarted invokes the registered callback's OnStarted, as a real
// adapter would after Start succeeds.
func (f *Fake) EmitStarted(peers []model.RangingDevice) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb.OnStarted(peers)
	}
}

// EmitRangingData invokes the registered callback's OnRangingData.
func (f *Fake) EmitRangingData(peer model.RangingDevice, data model.RangingData) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb.OnRangingData(peer, data)
	}
}

// EmitStopped invokes the registered callback's OnStopped.
func (f *Fake) EmitStopped(peers []model.RangingDevice, reason model.Reason) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb.OnStopped(peers, reason)
	}
}

// EmitClosed invokes the registered callback's OnClosed.
func (f *Fake) EmitClosed(reason model.Reason) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb.OnClosed(reason)
	}
}

// WasStarted reports whether Start has been called.
func (f *Fake) WasStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// WasStopped reports whether Stop has been called.
func (f *Fake) WasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}
