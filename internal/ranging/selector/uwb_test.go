package selector_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/selector"
	"github.com/multirange/core/internal/ranging/tech"
)

func testLocalUwbCaps() model.LocalCapabilities {
	return model.LocalCapabilities{
		Supported:   tech.NewSet(tech.UWB),
		CountryCode: [2]byte{'U', 'S'},
		UWB: &model.UwbCapability{
			SupportedChannels:        []uint8{5, 9},
			SupportedPreambleIndexes: []uint8{25, 26, 32},
			SupportedConfigIDs:       []model.UwbConfigID{1, 2, 3, 4},
			MinimumRangingIntervalMs: 96,
			MinimumSlotDurationMs:    2,
		},
	}
}

func testPeerUwbCaps(channels []uint8) model.LocalCapabilities {
	return model.LocalCapabilities{
		Supported: tech.NewSet(tech.UWB),
		UWB: &model.UwbCapability{
			SupportedChannels:        channels,
			SupportedPreambleIndexes: []uint8{11, 26},
			SupportedConfigIDs:       []model.UwbConfigID{1, 2},
			MinimumRangingIntervalMs: 120,
		},
	}
}

// TestUwbBasicUnicastNegotiation pins spec section 8 scenario 1.
func TestUwbBasicUnicastNegotiation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	s, err := selector.NewUwbSelector(selector.UwbInitiatorConfig{
		Security:          model.UwbSecurityBasic,
		FastestIntervalMs: 96,
		SlowestIntervalMs: 480,
	}, testLocalUwbCaps(), rng)
	if err != nil {
		t.Fatalf("NewUwbSelector: %v", err)
	}

	peer := model.RandomRangingDevice()
	if err := s.AddPeerCapabilities(peer, testPeerUwbCaps([]uint8{9})); err != nil {
		t.Fatalf("AddPeerCapabilities: %v", err)
	}

	configs, err := s.Select()
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("len(configs) = %d, want 1", len(configs))
	}

	uwb := configs[0].UWB
	if uwb == nil {
		t.Fatal("configs[0].UWB is nil")
	}
	if uwb.ConfigID != model.ConfigUnicastDSTWR {
		t.Errorf("ConfigID = %v, want ConfigUnicastDSTWR", uwb.ConfigID)
	}
	if uwb.Channel != 9 {
		t.Errorf("Channel = %d, want 9", uwb.Channel)
	}
	if uwb.PreambleIndex != 26 {
		t.Errorf("PreambleIndex = %d, want 26", uwb.PreambleIndex)
	}
	if len(uwb.SessionKey) != 8 {
		t.Errorf("len(SessionKey) = %d, want 8", len(uwb.SessionKey))
	}
	if uwb.RangingIntervalMs < 120 {
		t.Errorf("RangingIntervalMs = %d, want >= 120 (peer's min)", uwb.RangingIntervalMs)
	}
	if uwb.RangingIntervalMs != uint16(model.RateFrequent.Interval().Milliseconds()) {
		t.Errorf("RangingIntervalMs = %d, want FREQUENT tier value", uwb.RangingIntervalMs)
	}
	if uwb.CountryCode != [2]byte{'U', 'S'} {
		t.Errorf("CountryCode = %v, want US", uwb.CountryCode)
	}
}

// TestUwbIncompatibleChannelsMismatch pins spec section 8 scenario 2.
func TestUwbIncompatibleChannelsMismatch(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	s, err := selector.NewUwbSelector(selector.UwbInitiatorConfig{
		Security:          model.UwbSecurityBasic,
		FastestIntervalMs: 96,
		SlowestIntervalMs: 480,
	}, testLocalUwbCaps(), rng)
	if err != nil {
		t.Fatalf("NewUwbSelector: %v", err)
	}

	peer := model.RandomRangingDevice()
	err = s.AddPeerCapabilities(peer, testPeerUwbCaps([]uint8{6}))
	if err == nil {
		t.Fatal("expected AddPeerCapabilities to reject an incompatible-channel peer")
	}

	var selErr *selector.SelectionError
	if !errors.As(err, &selErr) {
		t.Fatalf("error is not a *SelectionError: %v", err)
	}
	if selErr.Reason != model.ReasonPeerCapabilitiesMismatch {
		t.Errorf("Reason = %v, want PeerCapabilitiesMismatch", selErr.Reason)
	}

	if s.HasPeersToConfigure() {
		t.Fatal("expected the incompatible peer not to be accepted")
	}
}

func TestUwbSelectorUnsupportedWithoutLocalCapability(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	_, err := selector.NewUwbSelector(selector.UwbInitiatorConfig{}, model.LocalCapabilities{}, rng)
	if err == nil {
		t.Fatal("expected construction to fail without local UWB capability")
	}
	var selErr *selector.SelectionError
	if !errors.As(err, &selErr) || selErr.Reason != model.ReasonUnsupported {
		t.Fatalf("error = %v, want ReasonUnsupported", err)
	}
}
