package session

import (
	"github.com/multirange/core/internal/ranging/fusion"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/notify"
	"github.com/multirange/core/internal/ranging/tech"
)

// peerEntry is the session kernel's per-peer state (spec section 4.8:
// "a map RangingDevice -> Peer"): which technologies are currently active
// for this peer, its fusion pipeline, and its data-notification gate.
type peerEntry struct {
	device       model.RangingDevice
	technologies tech.Set
	fusion       *fusion.Engine
	gate         *notify.Gate
}

// newPeerEntry constructs a peer's fusion engine and notification gate and
// arms the fusion engine's listener to forward fused samples through k's
// forwardRangingData (spec section 4.8: "Fusion listener forwards to the
// session listener, subject to the same STOPPING/STOPPED gate").
func (k *Kernel) newPeerEntry(device model.RangingDevice) *peerEntry {
	fe := fusion.NewEngine(k.cfg.NewFuser(), k.cfg.SessionConfig.AngleOfArrivalNeeded, k.cfg.PrimerConfig)
	p := &peerEntry{
		device: device,
		fusion: fe,
		gate:   notify.NewGate(k.cfg.SessionConfig.DataNotification),
	}
	fe.Start(func(fused model.RangingData) {
		k.forwardRangingData(p, fused)
	})
	return p
}
