package wire_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
	"github.com/multirange/core/internal/ranging/wire"
)

func TestCapabilityRequestRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  wire.CapabilityRequestMessage
	}{
		{name: "uwb only", req: wire.CapabilityRequestMessage{Requested: tech.NewSet(tech.UWB)}},
		{name: "all technologies", req: wire.CapabilityRequestMessage{Requested: tech.NewSet(tech.UWB, tech.CS, tech.RTT, tech.RSSI)}},
		{name: "empty", req: wire.CapabilityRequestMessage{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := tt.req.Marshal()
			got, err := wire.UnmarshalCapabilityRequest(buf)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Requested != tt.req.Requested {
				t.Fatalf("requested = %v, want %v", got.Requested, tt.req.Requested)
			}
		})
	}
}

func TestCapabilityResponseRoundTrip(t *testing.T) {
	t.Parallel()

	resp := wire.CapabilityResponseMessage{
		Supported:     tech.NewSet(tech.UWB, tech.RTT),
		PriorityOrder: []tech.Technology{tech.UWB, tech.RTT},
		UWB: &wire.UwbCapability{
			Address:                  model.UwbAddress{0x12, 0x34},
			SupportedChannels:        []uint8{5, 9},
			SupportedPreambleIndexes: []uint8{9, 10, 25},
			SupportedConfigIDs:       []model.UwbConfigID{model.ConfigUnicastDSTWR, model.ConfigProvisionedUnicastDSTWRVeryFast},
			MinimumRangingIntervalMs: 120,
			MinimumSlotDurationMs:    2,
			SupportedDeviceRoles:     []model.DeviceRole{model.RoleInitiator, model.RoleResponder},
		},
		RTT: &wire.RttCapability{
			Features:               0x01,
			PeriodicRangingSupport: true,
			MaxBandwidth:           80,
			MaxRxChain:             2,
		},
	}

	buf := resp.Marshal()
	got, err := wire.UnmarshalCapabilityResponse(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Supported != resp.Supported {
		t.Fatalf("supported = %v, want %v", got.Supported, resp.Supported)
	}
	if len(got.PriorityOrder) != 2 || got.PriorityOrder[0] != tech.UWB || got.PriorityOrder[1] != tech.RTT {
		t.Fatalf("priority order = %v", got.PriorityOrder)
	}
	if got.UWB == nil {
		t.Fatal("UWB capability missing after round trip")
	}
	if got.UWB.Address != resp.UWB.Address {
		t.Errorf("address = %v, want %v", got.UWB.Address, resp.UWB.Address)
	}
	if got.UWB.MinimumRangingIntervalMs != 120 {
		t.Errorf("minimum ranging interval = %d, want 120", got.UWB.MinimumRangingIntervalMs)
	}
	if len(got.UWB.SupportedPreambleIndexes) != 3 {
		t.Errorf("preamble indexes = %v", got.UWB.SupportedPreambleIndexes)
	}
	if got.RTT == nil || got.RTT.MaxBandwidth != 80 {
		t.Fatalf("RTT capability = %+v", got.RTT)
	}
}

func TestSetConfigurationRoundTripUWB(t *testing.T) {
	t.Parallel()

	peer := model.RandomRangingDevice()
	msg := wire.SetConfigurationMessage{
		TechnologiesSet:  tech.NewSet(tech.UWB),
		StartRangingList: tech.NewSet(tech.UWB),
		UwbDeviceMode:    wire.UwbModeController,
		Configs: []model.TechnologyConfig{
			{
				Technology: tech.UWB,
				Peer:       peer,
				UWB: &model.UwbParams{
					ConfigID:          model.ConfigUnicastDSTWR,
					SessionID:         0xAABBCCDD,
					SessionKey:        make([]byte, 16),
					Channel:           9,
					PreambleIndex:     10,
					RangingIntervalMs: 200,
					SlotDurationMs:    2,
					LocalAddress:      model.UwbAddress{0xAB, 0xCD},
					CountryCode:       [2]byte{'U', 'S'},
					Role:              model.RoleInitiator,
				},
			},
		},
	}

	buf, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := wire.UnmarshalSetConfiguration(buf, peer)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.TechnologiesSet != msg.TechnologiesSet {
		t.Errorf("technologies set = %v, want %v", got.TechnologiesSet, msg.TechnologiesSet)
	}
	if got.UwbDeviceMode != wire.UwbModeController {
		t.Errorf("device mode = %v, want controller", got.UwbDeviceMode)
	}
	if len(got.Configs) != 1 || got.Configs[0].UWB == nil {
		t.Fatalf("configs = %+v", got.Configs)
	}
	gotUWB := got.Configs[0].UWB
	if gotUWB.SessionID != 0xAABBCCDD || gotUWB.Channel != 9 || gotUWB.RangingIntervalMs != 200 {
		t.Errorf("uwb params = %+v", gotUWB)
	}
	if gotUWB.CountryCode != [2]byte{'U', 'S'} {
		t.Errorf("country code = %v", gotUWB.CountryCode)
	}
}

func TestRttConfigBodySizeMatchesDocumentedFormula(t *testing.T) {
	t.Parallel()

	// spec section 9: the RTT config payload's documented serialized size
	// is service_name length + 6 for the whole wire block (TechnologyHeader
	// + body); TechnologyHeaderSize is 2, so the body alone must be
	// len(serviceName) + 4.
	peer := model.RandomRangingDevice()
	serviceName := "abc123"
	msg := wire.SetConfigurationMessage{
		TechnologiesSet: tech.NewSet(tech.RTT),
		Configs: []model.TechnologyConfig{
			{
				Technology: tech.RTT,
				Peer:       peer,
				RTT:        &model.RttParams{ServiceName: serviceName, RateTier: model.RateFrequent, Periodic: true},
			},
		},
	}
	buf, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	wantBlockSize := len(serviceName) + 6
	gotBlockSize := len(buf) - (wire.HeaderSize + 2*2) // minus envelope + two 16-bit bitmaps
	if gotBlockSize != wantBlockSize {
		t.Fatalf("RTT wire block size = %d, want %d (service_name length + 6)", gotBlockSize, wantBlockSize)
	}

	got, err := wire.UnmarshalSetConfiguration(buf, peer)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Configs) != 1 || got.Configs[0].RTT == nil {
		t.Fatalf("configs = %+v", got.Configs)
	}
	if got.Configs[0].RTT.ServiceName != serviceName {
		t.Errorf("service name = %q, want %q", got.Configs[0].RTT.ServiceName, serviceName)
	}
	if !got.Configs[0].RTT.Periodic || got.Configs[0].RTT.RateTier != model.RateFrequent {
		t.Errorf("rtt params = %+v", got.Configs[0].RTT)
	}
}

func TestSetConfigurationRejectsBadSessionKeyLength(t *testing.T) {
	t.Parallel()

	peer := model.RandomRangingDevice()
	msg := wire.SetConfigurationMessage{
		TechnologiesSet: tech.NewSet(tech.UWB),
		Configs: []model.TechnologyConfig{
			{
				Technology: tech.UWB,
				Peer:       peer,
				UWB: &model.UwbParams{
					SessionKey: make([]byte, 12), // not 8, 16, or 32
				},
			},
		},
	}
	buf, err := msg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := wire.UnmarshalSetConfiguration(buf, peer); err == nil {
		t.Fatal("expected error for invalid session key length, got nil")
	}
}

func TestStopAndStartRangingRoundTrip(t *testing.T) {
	t.Parallel()

	stop := wire.StopRangingMessage{TechnologiesToStop: tech.NewSet(tech.UWB, tech.RSSI)}
	buf := stop.Marshal()
	got, err := wire.UnmarshalStopRanging(buf)
	if err != nil {
		t.Fatalf("unmarshal stop: %v", err)
	}
	if got.TechnologiesToStop != stop.TechnologiesToStop {
		t.Errorf("technologies to stop = %v, want %v", got.TechnologiesToStop, stop.TechnologiesToStop)
	}

	start := wire.StartRangingMessage{TechnologiesToStart: tech.NewSet(tech.RTT)}
	buf = start.Marshal()
	gotStart, err := wire.UnmarshalStartRanging(buf)
	if err != nil {
		t.Fatalf("unmarshal start: %v", err)
	}
	if gotStart.TechnologiesToStart != start.TechnologiesToStart {
		t.Errorf("technologies to start = %v, want %v", gotStart.TechnologiesToStart, start.TechnologiesToStart)
	}
}

func TestStatusResponseRoundTrip(t *testing.T) {
	t.Parallel()

	status := wire.StatusResponseMessage{Succeeded: tech.NewSet(tech.UWB)}
	buf := status.Marshal()
	got, err := wire.UnmarshalStatusResponse(buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Succeeded != status.Succeeded {
		t.Errorf("succeeded = %v, want %v", got.Succeeded, status.Succeeded)
	}
}

func TestUnmarshalRejectsTruncatedBuffers(t *testing.T) {
	t.Parallel()

	if _, err := wire.UnmarshalCapabilityRequest(nil); err == nil {
		t.Fatal("expected error for nil buffer")
	}
	if _, err := wire.UnmarshalCapabilityResponse([]byte{0x02, 0x01}); err == nil {
		t.Fatal("expected error for truncated capability response")
	}
	if _, err := wire.UnmarshalSetConfiguration([]byte{0x03, 0x01, 0x00}, model.RangingDevice{}); err == nil {
		t.Fatal("expected error for truncated set configuration")
	}
}
