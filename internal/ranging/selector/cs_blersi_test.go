package selector_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/selector"
	"github.com/multirange/core/internal/ranging/tech"
)

// Compile-time check that every selector implements the Selector
// interface (spec section 4.6's uniform selector contract).
var (
	_ selector.Selector = (*selector.UwbSelector)(nil)
	_ selector.Selector = (*selector.RttSelector)(nil)
	_ selector.Selector = (*selector.CsSelector)(nil)
	_ selector.Selector = (*selector.BleRssiSelector)(nil)
)

func TestCsSelectorSingleShot(t *testing.T) {
	t.Parallel()

	local := model.LocalCapabilities{Supported: tech.NewSet(tech.CS)}
	s, err := selector.NewCsSelector(local)
	if err != nil {
		t.Fatalf("NewCsSelector: %v", err)
	}

	peer := model.RandomRangingDevice()
	if err := s.AddPeerCapabilities(peer, model.LocalCapabilities{Supported: tech.NewSet(tech.CS)}); err != nil {
		t.Fatalf("AddPeerCapabilities: %v", err)
	}
	configs, err := s.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(configs) != 1 || configs[0].CS == nil || configs[0].CS.Role != model.RoleInitiator {
		t.Fatalf("unexpected configs: %+v", configs)
	}
}

func TestCsSelectorRejectsPeerWithoutCapability(t *testing.T) {
	t.Parallel()

	local := model.LocalCapabilities{Supported: tech.NewSet(tech.CS)}
	s, err := selector.NewCsSelector(local)
	if err != nil {
		t.Fatalf("NewCsSelector: %v", err)
	}
	if err := s.AddPeerCapabilities(model.RandomRangingDevice(), model.LocalCapabilities{}); err == nil {
		t.Fatal("expected rejection of a peer without CS capability")
	}
}

func TestBleRssiSelectorSingleShot(t *testing.T) {
	t.Parallel()

	local := model.LocalCapabilities{Supported: tech.NewSet(tech.RSSI)}
	s, err := selector.NewBleRssiSelector(local)
	if err != nil {
		t.Fatalf("NewBleRssiSelector: %v", err)
	}

	peer := model.RandomRangingDevice()
	if err := s.AddPeerCapabilities(peer, model.LocalCapabilities{Supported: tech.NewSet(tech.RSSI)}); err != nil {
		t.Fatalf("AddPeerCapabilities: %v", err)
	}
	configs, err := s.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(configs) != 1 || configs[0].BleRssi == nil {
		t.Fatalf("unexpected configs: %+v", configs)
	}
}
