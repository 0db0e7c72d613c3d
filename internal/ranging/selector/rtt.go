package selector

import (
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// RttInitiatorConfig is the user-supplied portion of RTT selection: the
// acceptable update-rate interval range, in milliseconds (spec section
// 4.6 "RTT selection").
type RttInitiatorConfig struct {
	FastestIntervalMs uint16
	SlowestIntervalMs uint16
}

// RttSelector negotiates Wi-Fi RTT ranging parameters across one or more
// peers (spec section 4.6 "RTT selection"). Construct with
// NewRttSelector; the zero value is not usable.
type RttSelector struct {
	local        model.LocalCapabilities
	initiatorCfg RttInitiatorConfig

	// periodicSupported starts true iff the local device supports periodic
	// ranging, then is AND-ed with each accepted peer's support: periodic
	// hardware must be present on both ends (spec section 4.6: "with
	// shorter periods when periodic hardware is supported by both ends").
	// Unlike the module-level cache the source used for this flag, it is
	// held on the selector instance (spec section 9 "Global mutable
	// state").
	periodicSupported bool

	accepted []model.RangingDevice
}

// NewRttSelector constructs an RttSelector bound to local's RTT
// capability. Fails with ReasonUnsupported if the local device does not
// support RTT.
func NewRttSelector(initiatorCfg RttInitiatorConfig, local model.LocalCapabilities) (*RttSelector, error) {
	if !local.Supported.Has(tech.RTT) || local.RTT == nil {
		return nil, unsupported(tech.RTT, "local device does not report RTT capability")
	}
	return &RttSelector{
		local:             local,
		initiatorCfg:      initiatorCfg,
		periodicSupported: local.RTT.PeriodicRangingSupport,
	}, nil
}

// AddPeerCapabilities accepts peer if it reports RTT support, narrowing
// periodicSupported to false if the peer lacks periodic hardware.
func (s *RttSelector) AddPeerCapabilities(peer model.RangingDevice, caps model.LocalCapabilities) error {
	if caps.RTT == nil && !caps.Supported.Has(tech.RTT) {
		return mismatch(tech.RTT, "peer does not report RTT capability")
	}
	if caps.RTT != nil && !caps.RTT.PeriodicRangingSupport {
		s.periodicSupported = false
	}
	s.accepted = append(s.accepted, peer)
	return nil
}

// HasPeersToConfigure reports whether any peer has been accepted.
func (s *RttSelector) HasPeersToConfigure() bool {
	return len(s.accepted) > 0
}

// availableTiers returns the rate tiers this selector may offer, fastest
// first, restricted by periodic hardware support.
func (s *RttSelector) availableTiers() []model.UwbRateTier {
	if s.periodicSupported {
		return []model.UwbRateTier{model.RateFrequent, model.RateNormal, model.RateInfrequent}
	}
	return []model.UwbRateTier{model.RateNormal, model.RateInfrequent}
}

// Select finalizes the negotiation, producing one TechnologyConfig per
// accepted peer, each with its own derived service name but a shared rate
// tier (spec section 4.6: "derive one RTT service name per peer as
// \"rtt_ranging\" + first-6-hex-of-peer-uuid").
func (s *RttSelector) Select() ([]model.TechnologyConfig, error) {
	if !s.HasPeersToConfigure() {
		return nil, &SelectionError{Technology: tech.RTT, Reason: model.ReasonNoPeersFound, Detail: "no peers accepted"}
	}

	tiers := s.availableTiers()
	slowestAvailableMs := uint16(tiers[len(tiers)-1].Interval().Milliseconds())

	var rateTier model.UwbRateTier
	switch {
	case s.initiatorCfg.FastestIntervalMs > slowestAvailableMs:
		rateTier = tiers[len(tiers)-1]
	default:
		found := false
		for _, tier := range tiers {
			iv := uint16(tier.Interval().Milliseconds())
			if iv >= s.initiatorCfg.FastestIntervalMs && iv <= s.initiatorCfg.SlowestIntervalMs {
				rateTier = tier
				found = true
				break
			}
		}
		if !found {
			return nil, mismatch(tech.RTT, "no standard rate tier falls within the negotiated interval range")
		}
	}

	configs := make([]model.TechnologyConfig, 0, len(s.accepted))
	for _, peer := range s.accepted {
		configs = append(configs, model.TechnologyConfig{
			Technology: tech.RTT,
			Peer:       peer,
			RTT: &model.RttParams{
				ServiceName: rttServiceName(peer),
				RateTier:    rateTier,
				Periodic:    s.periodicSupported,
			},
		})
	}
	return configs, nil
}

// rttServiceName derives the per-peer RTT service name (spec section 4.6).
func rttServiceName(peer model.RangingDevice) string {
	id := peer.UUID().String()
	if len(id) < 6 {
		return "rtt_ranging" + id
	}
	return "rtt_ranging" + id[:6]
}
