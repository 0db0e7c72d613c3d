package selector

import (
	"math/rand/v2"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// uwbConfigMinIntervalMs and uwbConfigMaxIntervalMs bound the update-rate
// interval any UWB config id can negotiate (spec section 4.6: "intersecting
// the user's [fastest, slowest] with [max(peer_min_intervals, config_min),
// config_max]"). Spec section 6 does not give config_min/config_max
// numerically; this implementation pins them to the fastest and slowest
// standard rate tiers (model.RateFrequent / model.RateInfrequent), which is
// also what reproduces spec section 8 scenario 1's expected FREQUENT-tier
// result exactly.
const (
	uwbConfigMinIntervalMs = 200  // model.RateFrequent.Interval()
	uwbConfigMaxIntervalMs = 4000 // model.RateInfrequent.Interval()
)

// uwbHprfLow and uwbHprfHigh bound the HPRF preamble index range (spec
// GLOSSARY "HPRF ... a subset of UWB preamble indexes (25-32)").
const (
	uwbHprfLow  = 25
	uwbHprfHigh = 32
)

// UwbInitiatorConfig is the user-supplied portion of UWB selection (spec
// section 4.6): security posture and the acceptable update-rate interval
// range, in milliseconds.
type UwbInitiatorConfig struct {
	Security             model.UwbSecurityLevel
	FastestIntervalMs    uint16
	SlowestIntervalMs    uint16
}

// UwbSelector negotiates UWB ranging parameters across one or more peers
// (spec section 4.6 "UWB selection algorithm"). Construct with
// NewUwbSelector; the zero value is not usable.
type UwbSelector struct {
	local        model.LocalCapabilities
	initiatorCfg UwbInitiatorConfig
	rng          *rand.Rand

	channels  []uint8
	preambles []uint8
	configIDs []model.UwbConfigID

	// minIntervalMs is peer_min_intervals: the maximum, across every
	// accepted peer, of MinimumRangingIntervalMs. Starts at 0 (no peer
	// constraint yet); the local device's own minimum interval does not
	// participate in this running value (spec section 4.6's formula names
	// only peer_min_intervals and config_min).
	minIntervalMs uint16

	accepted []model.RangingDevice
}

// NewUwbSelector constructs a UwbSelector bound to local's UWB capability.
// Fails with ReasonUnsupported if the local device does not support UWB.
func NewUwbSelector(initiatorCfg UwbInitiatorConfig, local model.LocalCapabilities, rng *rand.Rand) (*UwbSelector, error) {
	if !local.Supported.Has(tech.UWB) || local.UWB == nil {
		return nil, unsupported(tech.UWB, "local device does not report UWB capability")
	}
	return &UwbSelector{
		local:        local,
		initiatorCfg: initiatorCfg,
		rng:          rng,
		channels:     append([]uint8(nil), local.UWB.SupportedChannels...),
		preambles:    append([]uint8(nil), local.UWB.SupportedPreambleIndexes...),
		configIDs:    append([]model.UwbConfigID(nil), local.UWB.SupportedConfigIDs...),
	}, nil
}

// AddPeerCapabilities intersects peer's UWB capability report into the
// running channel/preamble/config-id sets. The candidate intersections are
// computed before anything is committed, so a rejected peer leaves
// previously accepted peers and the aggregate state untouched (spec
// section 8 scenario 2: "initiator drops the peer").
func (s *UwbSelector) AddPeerCapabilities(peer model.RangingDevice, caps model.LocalCapabilities) error {
	if caps.UWB == nil {
		return mismatch(tech.UWB, "peer does not report UWB capability")
	}
	peerCap := caps.UWB

	candidateChannels := intersectUint8(s.channels, peerCap.SupportedChannels)
	if len(candidateChannels) == 0 {
		return mismatch(tech.UWB, "no channel in common with peer")
	}
	candidatePreambles := intersectUint8(s.preambles, peerCap.SupportedPreambleIndexes)
	if len(candidatePreambles) == 0 {
		return mismatch(tech.UWB, "no preamble index in common with peer")
	}
	candidateConfigIDs := intersectUint8(s.configIDs, peerCap.SupportedConfigIDs)
	if len(candidateConfigIDs) == 0 {
		return mismatch(tech.UWB, "no config id in common with peer")
	}

	s.channels = candidateChannels
	s.preambles = candidatePreambles
	s.configIDs = candidateConfigIDs
	s.minIntervalMs = maxUint16(s.minIntervalMs, peerCap.MinimumRangingIntervalMs)
	s.accepted = append(s.accepted, peer)
	return nil
}

// HasPeersToConfigure reports whether any peer has been accepted.
func (s *UwbSelector) HasPeersToConfigure() bool {
	return len(s.accepted) > 0
}

// Select finalizes the negotiation (spec section 4.6 "UWB selection
// algorithm"), producing one TechnologyConfig per accepted peer, all
// sharing the same negotiated config id, session key, channel, preamble
// index and update rate (spec section 4.6: "peer OOB configs all carry the
// same UWB config payload").
func (s *UwbSelector) Select() ([]model.TechnologyConfig, error) {
	if !s.HasPeersToConfigure() {
		return nil, &SelectionError{Technology: tech.UWB, Reason: model.ReasonNoPeersFound, Detail: "no peers accepted"}
	}

	configID, err := s.selectConfigID()
	if err != nil {
		return nil, err
	}

	channel, ok := s.selectChannel()
	if !ok {
		return nil, mismatch(tech.UWB, "no acceptable channel (9 or 5) in common with all peers")
	}

	preamble, ok := s.selectPreamble()
	if !ok {
		return nil, mismatch(tech.UWB, "no preamble index in common with all peers")
	}

	intervalMs, err := s.selectIntervalMs()
	if err != nil {
		return nil, err
	}

	sessionKeyLen := 8
	if s.initiatorCfg.Security == model.UwbSecuritySecure {
		sessionKeyLen = 16
	}
	sessionKey := make([]byte, sessionKeyLen)
	for i := range sessionKey {
		sessionKey[i] = byte(s.rng.IntN(256))
	}

	localAddress := model.UwbAddress{byte(s.rng.IntN(256)), byte(s.rng.IntN(256))}
	sessionID := uint32(s.rng.Uint64())

	params := model.UwbParams{
		ConfigID:          configID,
		SessionID:         sessionID,
		SessionKey:        sessionKey,
		Channel:           channel,
		PreambleIndex:     preamble,
		RangingIntervalMs: intervalMs,
		SlotDurationMs:    s.local.UWB.MinimumSlotDurationMs,
		LocalAddress:      localAddress,
		CountryCode:       s.local.CountryCode,
		Role:              model.RoleInitiator,
	}

	configs := make([]model.TechnologyConfig, 0, len(s.accepted))
	for _, peer := range s.accepted {
		p := params
		p.SessionKey = append([]byte(nil), sessionKey...)
		configs = append(configs, model.TechnologyConfig{
			Technology: tech.UWB,
			Peer:       peer,
			UWB:        &p,
		})
	}
	return configs, nil
}

func (s *UwbSelector) selectConfigID() (model.UwbConfigID, error) {
	switch s.initiatorCfg.Security {
	case model.UwbSecurityBasic:
		if containsUint8(s.configIDs, model.ConfigUnicastDSTWR) {
			return model.ConfigUnicastDSTWR, nil
		}
	case model.UwbSecuritySecure:
		if containsUint8(s.configIDs, model.ConfigProvisionedUnicastDSTWRVeryFast) {
			return model.ConfigProvisionedUnicastDSTWRVeryFast, nil
		}
		if containsUint8(s.configIDs, model.ConfigProvisionedUnicastDSTWR) {
			return model.ConfigProvisionedUnicastDSTWR, nil
		}
	}
	return 0, mismatch(tech.UWB, "no config id supports the requested security level")
}

func (s *UwbSelector) selectChannel() (uint8, bool) {
	if containsUint8(s.channels, 9) {
		return 9, true
	}
	if containsUint8(s.channels, 5) {
		return 5, true
	}
	return 0, false
}

func (s *UwbSelector) selectPreamble() (uint8, bool) {
	var hprf []uint8
	for _, p := range s.preambles {
		if p >= uwbHprfLow && p <= uwbHprfHigh {
			hprf = append(hprf, p)
		}
	}
	if len(hprf) > 0 {
		return hprf[0], true
	}
	if len(s.preambles) == 0 {
		return 0, false
	}
	return s.preambles[s.rng.IntN(len(s.preambles))], true
}

func (s *UwbSelector) selectIntervalMs() (uint16, error) {
	lo := maxUint16(s.minIntervalMs, uwbConfigMinIntervalMs)
	hi := uint16(uwbConfigMaxIntervalMs)

	if s.initiatorCfg.FastestIntervalMs > hi {
		return uint16(model.RateInfrequent.Interval().Milliseconds()), nil
	}

	finalLo := maxUint16(lo, s.initiatorCfg.FastestIntervalMs)
	finalHi := hi
	if s.initiatorCfg.SlowestIntervalMs < finalHi {
		finalHi = s.initiatorCfg.SlowestIntervalMs
	}
	if finalLo > finalHi {
		return 0, mismatch(tech.UWB, "no update-rate interval satisfies every participant")
	}

	for _, tier := range []model.UwbRateTier{model.RateFrequent, model.RateNormal, model.RateInfrequent} {
		iv := uint16(tier.Interval().Milliseconds())
		if iv >= finalLo && iv <= finalHi {
			return iv, nil
		}
	}
	return 0, mismatch(tech.UWB, "no standard rate tier falls within the negotiated interval range")
}
