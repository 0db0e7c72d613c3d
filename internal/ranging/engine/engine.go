// Package engine aggregates the per-technology selectors into the ranging
// engine described in spec section 4.7: it computes the technology set a
// CapabilityRequestMessage should advertise, dispatches capability
// responses to the right selector, and finalizes a SelectedConfig once
// every participating selector has accepted its peers — subject to the
// RangingMode policy in force for the session.
package engine

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/selector"
	"github.com/multirange/core/internal/ranging/tech"
	"github.com/multirange/core/internal/ranging/wire"
)

// Config bundles everything needed to construct the set of per-technology
// selectors a session will use. Only the selectors whose technology is
// present in Local.Supported are built; construction of any of them can
// fail with ReasonUnsupported if Local's detailed capability record for
// that technology is missing or inadequate.
type Config struct {
	Local model.LocalCapabilities
	Mode  Mode
	UWB   selector.UwbInitiatorConfig
	RTT   selector.RttInitiatorConfig
	RNG   *rand.Rand
}

// ConfigSelectionException is the engine-level failure raised when the
// RangingMode policy rejects the selected set. A selector's own failure is
// returned as that selector's *selector.SelectionError, not wrapped in
// this type.
type ConfigSelectionException struct {
	Reason model.Reason
	Detail string
}

func (e *ConfigSelectionException) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("config selection: %s", e.Reason)
	}
	return fmt.Sprintf("config selection: %s: %s", e.Reason, e.Detail)
}

// SelectedConfig is the result of a successful SelectConfigs call (spec
// section 4.7): the finalized local TechnologyConfig set plus the
// per-peer SetConfigurationMessage to send over OOB.
type SelectedConfig struct {
	Local           []model.TechnologyConfig
	PerPeerMessages map[model.RangingDevice]wire.SetConfigurationMessage
}

// Engine aggregates one Selector per locally-supported technology and
// drives them through a capability exchange to a finalized configuration.
type Engine struct {
	mu        sync.Mutex
	mode      Mode
	selectors map[tech.Technology]selector.Selector
}

// New builds an Engine with one selector per technology cfg.Local reports
// support for. A selector construction failure (e.g. a technology is
// flagged supported but its detailed capability record is nil) is
// returned immediately; no partial Engine is returned.
func New(cfg Config) (*Engine, error) {
	e := &Engine{
		mode:      cfg.Mode,
		selectors: make(map[tech.Technology]selector.Selector),
	}
	if cfg.Local.Supported.Has(tech.UWB) {
		s, err := selector.NewUwbSelector(cfg.UWB, cfg.Local, cfg.RNG)
		if err != nil {
			return nil, err
		}
		e.selectors[tech.UWB] = s
	}
	if cfg.Local.Supported.Has(tech.RTT) {
		s, err := selector.NewRttSelector(cfg.RTT, cfg.Local)
		if err != nil {
			return nil, err
		}
		e.selectors[tech.RTT] = s
	}
	if cfg.Local.Supported.Has(tech.CS) {
		s, err := selector.NewCsSelector(cfg.Local)
		if err != nil {
			return nil, err
		}
		e.selectors[tech.CS] = s
	}
	if cfg.Local.Supported.Has(tech.RSSI) {
		s, err := selector.NewBleRssiSelector(cfg.Local)
		if err != nil {
			return nil, err
		}
		e.selectors[tech.RSSI] = s
	}
	return e, nil
}

// RequestedTechnologies is the technology set to advertise in the outbound
// CapabilityRequestMessage: every technology a selector was successfully
// built for (spec section 4.7: "the set of technologies whose local
// device is capable given the session config").
func (e *Engine) RequestedTechnologies() tech.Set {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s tech.Set
	for t := range e.selectors {
		s = s.Add(t)
	}
	return s
}

// OnCapabilityResponse dispatches peer's response to every selector whose
// technology the response reports as supported. It returns the set of
// technologies for which peer was accepted, and a per-technology map of
// rejection errors for technologies peer reported but was not accepted
// for (spec section 4.6: a peer rejected on one technology does not
// disturb any other technology's running intersection).
func (e *Engine) OnCapabilityResponse(peer model.RangingDevice, resp wire.CapabilityResponseMessage) (accepted tech.Set, rejected map[tech.Technology]error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	peerCaps := model.LocalCapabilities{
		Supported: resp.Supported,
		UWB:       resp.UWB,
		RTT:       resp.RTT,
	}

	for _, t := range resp.Supported.Slice() {
		s, ok := e.selectors[t]
		if !ok {
			continue
		}
		if err := s.AddPeerCapabilities(peer, peerCaps); err != nil {
			if rejected == nil {
				rejected = make(map[tech.Technology]error)
			}
			rejected[t] = err
			continue
		}
		accepted = accepted.Add(t)
	}
	return accepted, rejected
}

// SelectConfigs invokes Select on every selector that has at least one
// accepted peer, aggregates the results into a SelectedConfig, and
// enforces the RangingMode policy (spec section 4.7). The first selector
// failure aborts the whole call, matching spec section 4.6's "select()
// returns ... or a ConfigSelectionException" — selection is all-or-nothing,
// not partial per technology.
func (e *Engine) SelectConfigs() (*SelectedConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		allConfigs []model.TechnologyConfig
		selected   tech.Set
	)
	for t, s := range e.selectors {
		if !s.HasPeersToConfigure() {
			continue
		}
		configs, err := s.Select()
		if err != nil {
			return nil, err
		}
		allConfigs = append(allConfigs, configs...)
		selected = selected.Add(t)
	}

	if !e.mode.Accepts(selected) {
		return nil, &ConfigSelectionException{
			Reason: model.ReasonUnsupported,
			Detail: fmt.Sprintf("ranging mode %s rejects selected technologies %v", e.mode, selected.Slice()),
		}
	}

	perPeer := make(map[model.RangingDevice][]model.TechnologyConfig)
	for _, c := range allConfigs {
		perPeer[c.Peer] = append(perPeer[c.Peer], c)
	}
	messages := make(map[model.RangingDevice]wire.SetConfigurationMessage, len(perPeer))
	for peer, cfgs := range perPeer {
		var techSet tech.Set
		for _, c := range cfgs {
			techSet = techSet.Add(c.Technology)
		}
		messages[peer] = wire.SetConfigurationMessage{
			TechnologiesSet:  techSet,
			StartRangingList: techSet,
			Configs:          cfgs,
		}
	}

	return &SelectedConfig{Local: allConfigs, PerPeerMessages: messages}, nil
}
