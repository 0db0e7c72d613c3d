// Package adapter defines the uniform contract every technology adapter
// implements (spec section 2 "Adapter contract", section 4.3). The session
// kernel drives adapters only through this interface; concrete adapters
// (UWB, RTT, CS, BLE-RSSI) live outside this specification and wrap the
// native radio stacks (spec section 1).
package adapter

import (
	"context"
	"errors"

	"github.com/multirange/core/internal/ranging/model"
)

// Sentinel errors returned by Start (spec section 4.3).
var (
	// ErrFailedToStart indicates Start was called while the adapter was not
	// STOPPED, or the underlying radio stack refused to start.
	ErrFailedToStart = errors.New("adapter: failed to start")

	// ErrBackgroundPolicy indicates Start was refused because a
	// non-privileged attribution is set, the caller is backgrounded, and
	// the technology declares no background support.
	ErrBackgroundPolicy = errors.New("adapter: refused to start under background policy")
)

// Attribution identifies the non-privileged caller an adapter start is made
// on behalf of, if any. A nil *Attribution means the call is privileged
// (spec section 4.8: "Calls into external radio stacks are made with the
// privileged identity; callers outside this specification strip any
// app-level identity first" — Attribution is what remains after that
// stripping, carried only far enough to evaluate background policy).
type Attribution struct {
	AppID        string
	IsForeground bool
}

// RawPeerConfig is the technology-specific, not-yet-validated peer
// parameters passed to AddPeer (spec section 4.3). Concrete adapters type
// assert or decode this to their own parameter shape.
type RawPeerConfig any

// Callback receives the ordered lifecycle events an Adapter emits (spec
// section 4.3): zero or one OnStarted, then zero or more OnRangingData
// interleaved with OnStopped for individual peers, followed by exactly one
// terminal OnClosed. No method is called after OnClosed. Implementations
// (the session kernel) must treat every method as potentially called from
// a goroutine other than the one that called Start, and must not block.
type Callback interface {
	// OnStarted reports that peers have begun producing measurements.
	OnStarted(peers []model.RangingDevice)

	// OnRangingData reports one measurement for peer. Must be non-blocking
	// (spec section 4.3: "onRangingData must be non-blocking from the
	// adapter's perspective").
	OnRangingData(peer model.RangingDevice, data model.RangingData)

	// OnStopped reports that peers have stopped producing measurements for
	// reason, but the adapter itself remains open.
	OnStopped(peers []model.RangingDevice, reason model.Reason)

	// OnClosed is the terminal event: the adapter has released its backend
	// client and will make no further calls on Callback.
	OnClosed(reason model.Reason)
}

// Adapter is the uniform interface every per-technology ranging driver
// implements (spec section 2, section 4.3).
type Adapter interface {
	// Start begins ranging with cfg. Idempotent only when the adapter is
	// STOPPED; otherwise returns ErrFailedToStart. attribution, if
	// non-nil, identifies the non-privileged caller for background-policy
	// evaluation. cb receives the lifecycle callbacks described above.
	Start(ctx context.Context, cfg model.TechnologyConfig, attribution *Attribution, cb Callback) error

	// Stop begins shutting the adapter down. Idempotent. cb.OnClosed is
	// always eventually invoked, even if Stop is called on an adapter that
	// never successfully started.
	Stop()

	// AddPeer adds a peer to an already-started multicast/group config.
	// Only routed to adapters whose DynamicUpdatePeersSupported is true;
	// otherwise this is a silent no-op at the session-kernel level, not an
	// error returned here.
	AddPeer(raw RawPeerConfig) error

	// RemovePeer removes a peer from an already-started config. Same
	// DynamicUpdatePeersSupported gating as AddPeer.
	RemovePeer(device model.RangingDevice) error

	// ReconfigureRangingInterval adjusts the update rate by skipping
	// skipCount intervals between measurements. Best-effort: an adapter
	// that cannot honor this silently continues at its current rate.
	ReconfigureRangingInterval(skipCount uint32) error

	// AppForegroundStateUpdated notifies the adapter that the owning app's
	// foreground state changed, for data-notification gate selection
	// (spec section 4.3 background policy).
	AppForegroundStateUpdated(inForeground bool)

	// AppInBackgroundTimeout notifies the adapter that the background
	// grace period has elapsed. The adapter may stop itself if the
	// technology forbids background operation.
	AppInBackgroundTimeout()

	// DynamicUpdatePeersSupported reports whether AddPeer/RemovePeer may be
	// called on a running adapter.
	DynamicUpdatePeersSupported() bool

	// BackgroundSupported reports whether the technology can continue
	// ranging while the owning app is backgrounded. When false, Start
	// refuses a backgrounded non-privileged attribution with
	// ErrBackgroundPolicy rather than silently degrading.
	BackgroundSupported() bool
}
