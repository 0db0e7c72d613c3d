package selector

import (
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// CsSelector is the single-shot Bluetooth Channel Sounding selector (spec
// section 4.6: "single-shot per-peer configs, no negotiation beyond
// capability presence"). Construct with NewCsSelector.
type CsSelector struct {
	accepted []model.RangingDevice
}

// NewCsSelector constructs a CsSelector. Fails with ReasonUnsupported if
// the local device does not report CS capability.
func NewCsSelector(local model.LocalCapabilities) (*CsSelector, error) {
	if !local.Supported.Has(tech.CS) {
		return nil, unsupported(tech.CS, "local device does not report CS capability")
	}
	return &CsSelector{}, nil
}

// AddPeerCapabilities accepts peer if it reports CS support.
func (s *CsSelector) AddPeerCapabilities(peer model.RangingDevice, caps model.LocalCapabilities) error {
	if !caps.Supported.Has(tech.CS) {
		return mismatch(tech.CS, "peer does not report CS capability")
	}
	s.accepted = append(s.accepted, peer)
	return nil
}

// HasPeersToConfigure reports whether any peer has been accepted.
func (s *CsSelector) HasPeersToConfigure() bool {
	return len(s.accepted) > 0
}

// Select produces one TechnologyConfig per accepted peer.
func (s *CsSelector) Select() ([]model.TechnologyConfig, error) {
	if !s.HasPeersToConfigure() {
		return nil, &SelectionError{Technology: tech.CS, Reason: model.ReasonNoPeersFound, Detail: "no peers accepted"}
	}
	configs := make([]model.TechnologyConfig, 0, len(s.accepted))
	for _, peer := range s.accepted {
		configs = append(configs, model.TechnologyConfig{
			Technology: tech.CS,
			Peer:       peer,
			CS:         &model.CsParams{Role: model.RoleInitiator},
		})
	}
	return configs, nil
}
