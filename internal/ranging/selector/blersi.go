package selector

import (
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// BleRssiSelector is the single-shot BLE-RSSI selector (spec section 4.6:
// "single-shot per-peer configs, no negotiation beyond capability
// presence"). Construct with NewBleRssiSelector.
type BleRssiSelector struct {
	accepted []model.RangingDevice
}

// NewBleRssiSelector constructs a BleRssiSelector. Fails with
// ReasonUnsupported if the local device does not report BLE-RSSI
// capability.
func NewBleRssiSelector(local model.LocalCapabilities) (*BleRssiSelector, error) {
	if !local.Supported.Has(tech.RSSI) {
		return nil, unsupported(tech.RSSI, "local device does not report BLE-RSSI capability")
	}
	return &BleRssiSelector{}, nil
}

// AddPeerCapabilities accepts peer if it reports BLE-RSSI support.
func (s *BleRssiSelector) AddPeerCapabilities(peer model.RangingDevice, caps model.LocalCapabilities) error {
	if !caps.Supported.Has(tech.RSSI) {
		return mismatch(tech.RSSI, "peer does not report BLE-RSSI capability")
	}
	s.accepted = append(s.accepted, peer)
	return nil
}

// HasPeersToConfigure reports whether any peer has been accepted.
func (s *BleRssiSelector) HasPeersToConfigure() bool {
	return len(s.accepted) > 0
}

// Select produces one TechnologyConfig per accepted peer.
func (s *BleRssiSelector) Select() ([]model.TechnologyConfig, error) {
	if !s.HasPeersToConfigure() {
		return nil, &SelectionError{Technology: tech.RSSI, Reason: model.ReasonNoPeersFound, Detail: "no peers accepted"}
	}
	configs := make([]model.TechnologyConfig, 0, len(s.accepted))
	for _, peer := range s.accepted {
		configs = append(configs, model.TechnologyConfig{
			Technology: tech.RSSI,
			Peer:       peer,
			BleRssi:    &model.BleRssiParams{Role: model.RoleInitiator},
		})
	}
	return configs, nil
}
