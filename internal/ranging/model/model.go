// Package model holds the data types shared by every ranging-core
// subsystem: measurements, ranging data, session/notification configuration,
// per-technology configs, and the reason taxonomy used to explain session
// and selector outcomes (spec section 3 "Data model", section 7 "Error
// handling design").
package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/multirange/core/internal/ranging/tech"
)

// -------------------------------------------------------------------------
// Identity
// -------------------------------------------------------------------------

// RangingDevice is an opaque peer identity. Equality defines peer identity
// throughout the core (spec section 3).
type RangingDevice struct {
	id uuid.UUID
}

// NewRangingDevice wraps an existing UUID as a RangingDevice.
func NewRangingDevice(id uuid.UUID) RangingDevice { return RangingDevice{id: id} }

// RandomRangingDevice generates a new random peer identity.
func RandomRangingDevice() RangingDevice { return RangingDevice{id: uuid.New()} }

// ParseRangingDevice parses s as a RangingDevice's canonical UUID string
// form.
func ParseRangingDevice(s string) (RangingDevice, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RangingDevice{}, fmt.Errorf("parse ranging device %q: %w", s, err)
	}
	return RangingDevice{id: id}, nil
}

// UUID returns the underlying UUID.
func (d RangingDevice) UUID() uuid.UUID { return d.id }

// String returns the canonical UUID string form.
func (d RangingDevice) String() string { return d.id.String() }

// IsZero reports whether d is the zero-value device (no identity set).
func (d RangingDevice) IsZero() bool { return d.id == uuid.Nil }

// MarshalJSON renders d as its canonical UUID string, for the
// introspection API's JSON responses.
func (d RangingDevice) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.id.String())
}

// UnmarshalJSON parses d from a canonical UUID string.
func (d *RangingDevice) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("unmarshal ranging device %q: %w", s, err)
	}
	d.id = id
	return nil
}

// UwbAddress is a 2-byte UWB short address (spec section 3).
type UwbAddress [2]byte

// String renders the address as 4 hex digits.
func (a UwbAddress) String() string { return fmt.Sprintf("%02x%02x", a[0], a[1]) }

// -------------------------------------------------------------------------
// Device role
// -------------------------------------------------------------------------

// DeviceRole distinguishes the initiating side of a ranging exchange from
// the responding side (spec section 3).
type DeviceRole uint8

const (
	// RoleInitiator drives session setup and OOB negotiation.
	RoleInitiator DeviceRole = iota + 1
	// RoleResponder answers OOB negotiation and applies received config.
	RoleResponder
)

// String returns the human-readable role name.
func (r DeviceRole) String() string {
	switch r {
	case RoleInitiator:
		return "Initiator"
	case RoleResponder:
		return "Responder"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(r))
	}
}

// WireByte returns the on-wire encoding of the role (spec section 3:
// INITIATOR<->0x01, RESPONDER<->0x02).
func (r DeviceRole) WireByte() byte {
	switch r {
	case RoleInitiator:
		return 0x01
	case RoleResponder:
		return 0x02
	default:
		return 0x00
	}
}

// RoleFromWireByte decodes the on-wire role encoding.
func RoleFromWireByte(b byte) (DeviceRole, bool) {
	switch b {
	case 0x01:
		return RoleInitiator, true
	case 0x02:
		return RoleResponder, true
	default:
		return 0, false
	}
}

// -------------------------------------------------------------------------
// Measurement & ranging data
// -------------------------------------------------------------------------

// Confidence describes how reliable a Measurement's value is.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// String returns the human-readable confidence level.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "Low"
	case ConfidenceMedium:
		return "Medium"
	case ConfidenceHigh:
		return "High"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// Measurement is a single scalar reading with an associated confidence
// (spec section 3).
type Measurement struct {
	Value      float64
	Confidence Confidence
}

// RangingData is one fused or per-technology sample (spec section 3).
// Distance is always present; Azimuth/Elevation presence must match what
// the filter chain was configured to expect (the invariant is enforced by
// the fusion package, not this struct).
type RangingData struct {
	Technology  tech.Technology
	TimestampMs int64
	Distance    Measurement
	Azimuth     *Measurement
	Elevation   *Measurement
	RssiDbm     *int16
}

// -------------------------------------------------------------------------
// Notification configuration
// -------------------------------------------------------------------------

// NotificationKind selects the data-notification gate's decision policy
// (spec section 4.4).
type NotificationKind uint8

const (
	NotificationDisable NotificationKind = iota
	NotificationEnable
	NotificationProximityLevel
	NotificationProximityEdge
)

// String returns the human-readable notification kind.
func (k NotificationKind) String() string {
	switch k {
	case NotificationDisable:
		return "Disable"
	case NotificationEnable:
		return "Enable"
	case NotificationProximityLevel:
		return "ProximityLevel"
	case NotificationProximityEdge:
		return "ProximityEdge"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// NotificationConfig configures the data-notification gate (spec section
// 3, section 4.4). NearCm and FarCm are in centimeters; NearCm must be <=
// FarCm whenever Kind involves proximity (enforced by Validate).
type NotificationConfig struct {
	Kind   NotificationKind
	NearCm uint32
	FarCm  uint32
}

// Validate checks the near/far invariant for proximity-based kinds.
func (c NotificationConfig) Validate() error {
	switch c.Kind {
	case NotificationProximityLevel, NotificationProximityEdge:
		if c.NearCm > c.FarCm {
			return fmt.Errorf("%w: near=%d far=%d", ErrInvalidNotificationBand, c.NearCm, c.FarCm)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Session configuration
// -------------------------------------------------------------------------

// SessionConfig is the user-supplied, technology-agnostic portion of a
// ranging session's configuration (spec section 3).
type SessionConfig struct {
	DataNotification        NotificationConfig
	AngleOfArrivalNeeded    bool
	SensorFusionEnabled     bool
	RangingMeasurementsLimit uint32 // 0 = unlimited
}

// -------------------------------------------------------------------------
// Reason taxonomy (spec section 7)
// -------------------------------------------------------------------------

// Reason is the internal taxonomy of why a session, adapter, or selector
// stopped or failed to start.
type Reason uint8

const (
	ReasonUnknown Reason = iota
	ReasonLocalRequest
	ReasonRemoteRequest
	ReasonSystemPolicy
	ReasonFailedToStart
	ReasonUnsupported
	ReasonPeerCapabilitiesMismatch
	ReasonNoPeersFound
	ReasonLostConnection
	ReasonBackgroundPolicy
	ReasonInternalError
)

var reasonNames = [...]string{
	"Unknown", "LocalRequest", "RemoteRequest", "SystemPolicy",
	"FailedToStart", "Unsupported", "PeerCapabilitiesMismatch",
	"NoPeersFound", "LostConnection", "BackgroundPolicy", "InternalError",
}

// String returns the human-readable reason name.
func (r Reason) String() string {
	if int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(r))
}

// SessionCloseReason is the coarser, user-visible close reason a Reason
// maps to (spec section 7 mapping table).
type SessionCloseReason uint8

const (
	CloseUnknown SessionCloseReason = iota
	CloseLocalRequest
	CloseUnsupported
	CloseNoPeersFound
	CloseSystemPolicy
)

// String returns the human-readable close reason name.
func (c SessionCloseReason) String() string {
	switch c {
	case CloseLocalRequest:
		return "LocalRequest"
	case CloseUnsupported:
		return "Unsupported"
	case CloseNoPeersFound:
		return "NoPeersFound"
	case CloseSystemPolicy:
		return "SystemPolicy"
	default:
		return "Unknown"
	}
}

// ToCloseReason maps an internal Reason to the user-visible
// SessionCloseReason, per spec section 7's mapping table.
func (r Reason) ToCloseReason() SessionCloseReason {
	switch r {
	case ReasonLocalRequest:
		return CloseLocalRequest
	case ReasonUnsupported, ReasonFailedToStart:
		return CloseUnsupported
	case ReasonNoPeersFound, ReasonLostConnection:
		return CloseNoPeersFound
	case ReasonSystemPolicy, ReasonBackgroundPolicy:
		return CloseSystemPolicy
	default:
		return CloseUnknown
	}
}
