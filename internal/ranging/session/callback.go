package session

import (
	"log/slog"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// kernelCallback is the adapter.Callback the kernel hands to each adapter
// it starts. Every method commits state while holding the session lock.
// OnStarted, OnStopped and OnClosed call the listener after releasing the
// lock; OnRangingData keeps it held while feeding the peer's fusion
// engine, so ranging data reaches the listener under the lock.
type kernelCallback struct {
	kernel *Kernel
	key    model.TechnologyConfigKey
}

// OnStarted marks the technology active for each reported peer and
// transitions Starting -> Started on the first call (spec section 4.8
// "Adapter event handling").
func (cb *kernelCallback) OnStarted(peers []model.RangingDevice) {
	k := cb.kernel
	k.mu.Lock()
	if k.state == Starting {
		k.state = Started
	}
	for _, peer := range peers {
		if p, ok := k.peers[peer]; ok {
			p.technologies = p.technologies.Add(cb.key.Technology)
		}
	}
	k.mu.Unlock()

	for _, peer := range peers {
		k.listener.OnPeerStarted(peer, cb.key.Technology)
	}
}

// OnRangingData feeds data into peer's fusion engine, unless the session
// is Stopping/Stopped (spec section 4.8 "drop if session is
// STOPPING/STOPPED; else feed the peer's fusion engine").
func (cb *kernelCallback) OnRangingData(peer model.RangingDevice, data model.RangingData) {
	k := cb.kernel
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == Stopping || k.state == Stopped {
		return
	}
	p, ok := k.peers[peer]
	if !ok {
		return
	}
	p.fusion.Feed(data)
}

// OnStopped deactivates the technology for each reported peer, dropping
// any peer whose technology set becomes empty, and notifies the listener
// with the possibly-overridden reason (spec section 4.8).
func (cb *kernelCallback) OnStopped(peers []model.RangingDevice, reason model.Reason) {
	k := cb.kernel
	k.mu.Lock()
	resolved := k.resolveReasonLocked(cb.key, reason)
	for _, peer := range peers {
		k.deactivatePeerTechnologyLocked(peer, cb.key.Technology)
	}
	k.mu.Unlock()

	for _, peer := range peers {
		k.listener.OnPeerStopped(peer, cb.key.Technology, resolved)
	}
}

// OnClosed removes the adapter from the table and, if it was not already
// the subject of an OnStopped for every peer it addressed, deactivates
// the technology for any peer still holding it open (an adapter may jump
// straight to OnClosed without an intervening OnStopped). When the
// adapter table becomes empty, the kernel transitions to Stopped and
// fires OnSessionClosed exactly once (spec section 4.8).
func (cb *kernelCallback) OnClosed(reason model.Reason) {
	k := cb.kernel
	k.mu.Lock()

	entry, ok := k.adapters[cb.key]
	if !ok {
		k.mu.Unlock()
		return
	}
	resolved := k.resolveReasonLocked(cb.key, reason)

	var stillActive []model.RangingDevice
	for _, peer := range entry.cfg.PeerSet() {
		if p, exists := k.peers[peer]; exists && p.technologies.Has(cb.key.Technology) {
			stillActive = append(stillActive, peer)
			k.deactivatePeerTechnologyLocked(peer, cb.key.Technology)
		}
	}

	delete(k.adapters, cb.key)
	delete(k.overrideReason, cb.key)
	k.handles.Release(entry.handle)
	k.lastCloseReason = resolved

	empty := len(k.adapters) == 0
	if empty {
		k.finishCloseLocked()
	}
	k.mu.Unlock()

	for _, peer := range stillActive {
		k.listener.OnPeerStopped(peer, cb.key.Technology, resolved)
	}
	if empty {
		k.logger.Debug("session adapter table empty", slog.String("reason", resolved.String()))
	}
}

// resolveReasonLocked returns the session-level override for key if one
// was recorded by Stop, else reported. Callers must hold k.mu.
func (k *Kernel) resolveReasonLocked(key model.TechnologyConfigKey, reported model.Reason) model.Reason {
	if override, ok := k.overrideReason[key]; ok {
		return override
	}
	return reported
}

// deactivatePeerTechnologyLocked removes t from peer's active set,
// disposing of the peer's fusion engine and dropping the peer entirely
// once its technology set is empty (spec section 4.8 "when a peer's
// technology set empties, stop and drop its fusion engine and remove the
// peer"). Callers must hold k.mu.
func (k *Kernel) deactivatePeerTechnologyLocked(peer model.RangingDevice, t tech.Technology) {
	p, ok := k.peers[peer]
	if !ok {
		return
	}
	p.technologies = p.technologies.Remove(t)
	if p.technologies.Empty() {
		p.fusion.Stop()
		delete(k.peers, peer)
	}
}
