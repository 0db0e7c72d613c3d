package model

import (
	"time"

	"github.com/multirange/core/internal/ranging/tech"
)

// -------------------------------------------------------------------------
// Per-technology parameter records
// -------------------------------------------------------------------------

// UwbConfigID identifies a negotiated UWB ranging configuration (spec
// section 4.6).
type UwbConfigID uint8

const (
	ConfigUnicastDSTWR                     UwbConfigID = 1
	ConfigProvisionedUnicastDSTWR          UwbConfigID = 2
	ConfigProvisionedUnicastDSTWRVeryFast   UwbConfigID = 3
)

// UwbSecurityLevel is the user-requested UWB security posture.
type UwbSecurityLevel uint8

const (
	UwbSecurityBasic UwbSecurityLevel = iota
	UwbSecuritySecure
)

// UwbRateTier is one of the three standard UWB/RTT update-rate tiers (spec
// section 4.6).
type UwbRateTier uint8

const (
	RateInfrequent UwbRateTier = iota
	RateNormal
	RateFrequent
)

// String returns the human-readable rate tier name.
func (t UwbRateTier) String() string {
	switch t {
	case RateFrequent:
		return "Frequent"
	case RateNormal:
		return "Normal"
	case RateInfrequent:
		return "Infrequent"
	default:
		return "Unknown"
	}
}

// Interval returns the canonical period for the tier.
func (t UwbRateTier) Interval() time.Duration {
	switch t {
	case RateFrequent:
		return 200 * time.Millisecond
	case RateNormal:
		return 800 * time.Millisecond
	case RateInfrequent:
		return 4 * time.Second
	default:
		return 0
	}
}

// UwbParams is the UWB-specific portion of a selected TechnologyConfig
// (spec section 4.6, section 6 SetConfigurationMessage UWB payload).
type UwbParams struct {
	ConfigID             UwbConfigID
	SessionID             uint32
	SessionKey            []byte // 8, 16, or 32 bytes
	Channel               uint8
	PreambleIndex         uint8
	RangingIntervalMs     uint16
	SlotDurationMs        uint8
	LocalAddress          UwbAddress
	CountryCode           [2]byte
	Role                  DeviceRole
}

// RttParams is the Wi-Fi RTT specific portion of a selected
// TechnologyConfig (spec section 4.6).
type RttParams struct {
	ServiceName string
	RateTier    UwbRateTier
	Periodic    bool
}

// CsParams is the Bluetooth Channel Sounding specific portion of a
// selected TechnologyConfig (spec section 4.6: single-shot, no
// negotiation beyond capability presence).
type CsParams struct {
	Role DeviceRole
}

// BleRssiParams is the BLE-RSSI specific portion of a selected
// TechnologyConfig (spec section 4.6).
type BleRssiParams struct {
	Role DeviceRole
}

// -------------------------------------------------------------------------
// Capability records
// -------------------------------------------------------------------------

// UwbCapability describes what a device's UWB hardware can do, whether the
// local device or a peer (spec section 4.2, section 6
// CapabilityResponseMessage UWB payload). It is shared between the wire
// codec and the UWB selector so a capability report only has one shape on
// either side of the wire.
type UwbCapability struct {
	Address                  UwbAddress
	SupportedChannels        []uint8
	SupportedPreambleIndexes []uint8
	SupportedConfigIDs       []UwbConfigID
	MinimumRangingIntervalMs uint16
	MinimumSlotDurationMs    uint8
	SupportedDeviceRoles     []DeviceRole
}

// RttCapability describes what a device's Wi-Fi RTT stack can do (spec
// section 4.2, section 6 CapabilityResponseMessage RTT payload).
type RttCapability struct {
	Features               byte
	PeriodicRangingSupport bool
	MaxBandwidth           byte
	MaxRxChain             byte
}

// LocalCapabilities is the snapshot a CapabilitiesProvider exposes: which
// technologies the local device supports, plus the detailed per-technology
// record for those that have one (spec section 2 "Capabilities provider").
type LocalCapabilities struct {
	Supported   tech.Set
	CountryCode [2]byte
	UWB         *UwbCapability
	RTT         *RttCapability
	// CS and BLE-RSSI carry no detailed record beyond presence in Supported
	// (spec section 4.2: capability is a boolean for these).
}

// -------------------------------------------------------------------------
// TechnologyConfig sum type
// -------------------------------------------------------------------------

// TechnologyConfig is the sum type described in spec section 3: either a
// UnicastTechnologyConfig or a MulticastTechnologyConfig, each carrying one
// concrete technology's parameter record. It is implemented as a tagged
// struct (rather than an interface) so adapters and the session kernel can
// switch on Technology without a type assertion on every call site.
type TechnologyConfig struct {
	Technology tech.Technology
	Multicast  bool
	Peer       RangingDevice   // set when !Multicast
	Peers      []RangingDevice // set when Multicast

	UWB     *UwbParams
	RTT     *RttParams
	CS      *CsParams
	BleRssi *BleRssiParams
}

// PeerSet returns every peer this config addresses, regardless of whether
// it is unicast or multicast.
func (c TechnologyConfig) PeerSet() []RangingDevice {
	if c.Multicast {
		return c.Peers
	}
	return []RangingDevice{c.Peer}
}

// Key identifies a TechnologyConfig for use as a map key in the session
// kernel's adapter table: one adapter per (technology, unicast peer) or
// (technology, multicast group) pair.
type TechnologyConfigKey struct {
	Technology tech.Technology
	Multicast  bool
	Peer       RangingDevice
}

// Key returns the map key for this config. For multicast configs the key's
// Peer field is the zero value; multicast groups are expected to be unique
// per technology in a single session.
func (c TechnologyConfig) Key() TechnologyConfigKey {
	if c.Multicast {
		return TechnologyConfigKey{Technology: c.Technology, Multicast: true}
	}
	return TechnologyConfigKey{Technology: c.Technology, Peer: c.Peer}
}
