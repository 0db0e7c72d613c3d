package selector_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/selector"
	"github.com/multirange/core/internal/ranging/tech"
)

func TestRttServiceNamePerPeer(t *testing.T) {
	t.Parallel()

	local := model.LocalCapabilities{
		Supported: tech.NewSet(tech.RTT),
		RTT:       &model.RttCapability{PeriodicRangingSupport: true},
	}
	s, err := selector.NewRttSelector(selector.RttInitiatorConfig{FastestIntervalMs: 96, SlowestIntervalMs: 900}, local)
	if err != nil {
		t.Fatalf("NewRttSelector: %v", err)
	}

	peer := model.RandomRangingDevice()
	peerCaps := model.LocalCapabilities{Supported: tech.NewSet(tech.RTT), RTT: &model.RttCapability{PeriodicRangingSupport: true}}
	if err := s.AddPeerCapabilities(peer, peerCaps); err != nil {
		t.Fatalf("AddPeerCapabilities: %v", err)
	}

	configs, err := s.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(configs) != 1 || configs[0].RTT == nil {
		t.Fatalf("unexpected configs: %+v", configs)
	}
	want := "rtt_ranging" + peer.UUID().String()[:6]
	if configs[0].RTT.ServiceName != want {
		t.Errorf("ServiceName = %q, want %q", configs[0].RTT.ServiceName, want)
	}
	if !configs[0].RTT.Periodic {
		t.Error("expected Periodic true when both ends support it")
	}
}

func TestRttFallsBackWhenPeerLacksPeriodicSupport(t *testing.T) {
	t.Parallel()

	local := model.LocalCapabilities{
		Supported: tech.NewSet(tech.RTT),
		RTT:       &model.RttCapability{PeriodicRangingSupport: true},
	}
	s, err := selector.NewRttSelector(selector.RttInitiatorConfig{FastestIntervalMs: 96, SlowestIntervalMs: 5000}, local)
	if err != nil {
		t.Fatalf("NewRttSelector: %v", err)
	}

	peerCaps := model.LocalCapabilities{Supported: tech.NewSet(tech.RTT), RTT: &model.RttCapability{PeriodicRangingSupport: false}}
	if err := s.AddPeerCapabilities(model.RandomRangingDevice(), peerCaps); err != nil {
		t.Fatalf("AddPeerCapabilities: %v", err)
	}

	configs, err := s.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if configs[0].RTT.Periodic {
		t.Error("expected Periodic false once any peer lacks periodic hardware")
	}
	if configs[0].RTT.RateTier == model.RateFrequent {
		t.Error("expected FREQUENT tier to be unavailable without periodic support on both ends")
	}
}
