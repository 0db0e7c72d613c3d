package session

import (
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// Listener receives every externally-visible event a Kernel produces
// (spec section 4.8). Implementations must not block and must not call
// back into the Kernel (spec section 5: "no resource acquisition is
// permitted in listeners").
type Listener interface {
	// OnConfigFinalized reports the configuration set Start was called
	// with, before any state transition occurs.
	OnConfigFinalized(configs []model.TechnologyConfig)

	// OnPeerStarted reports that technology began producing measurements
	// for peer.
	OnPeerStarted(peer model.RangingDevice, technology tech.Technology)

	// OnPeerStopped reports that technology stopped producing
	// measurements for peer, for reason (already resolved through any
	// session-initiated override).
	OnPeerStopped(peer model.RangingDevice, technology tech.Technology, reason model.Reason)

	// OnRangingData reports one fused measurement for peer.
	OnRangingData(peer model.RangingDevice, data model.RangingData)

	// OnSessionClosed is the terminal event: every adapter has closed and
	// the kernel has returned to Stopped. Fired exactly once per Start.
	OnSessionClosed(reason model.Reason)
}
