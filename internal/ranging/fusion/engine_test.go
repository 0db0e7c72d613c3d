package fusion_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/fusion"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

func TestEngineFeedIgnoresUnregisteredTechnology(t *testing.T) {
	t.Parallel()

	e := fusion.NewEngine(fusion.NewPassthrough(), false, fusion.DefaultPrimerConfig())
	var got []model.RangingData
	e.Start(func(d model.RangingData) { got = append(got, d) })

	// No AddDataSource call for RTT: feeding it must be a silent no-op.
	e.Feed(model.RangingData{Technology: tech.RTT, Distance: model.Measurement{Value: 1.0}})
	if len(got) != 0 {
		t.Fatalf("expected no emission for unregistered technology, got %v", got)
	}
}

func TestEngineFeedEmitsForRegisteredSource(t *testing.T) {
	t.Parallel()

	e := fusion.NewEngine(fusion.NewPassthrough(), false, fusion.DefaultPrimerConfig())
	e.AddDataSource(tech.RTT)

	var got []model.RangingData
	e.Start(func(d model.RangingData) { got = append(got, d) })

	e.Feed(model.RangingData{Technology: tech.RTT, TimestampMs: 1, Distance: model.Measurement{Value: 2.0}})
	if len(got) != 1 {
		t.Fatalf("expected one emission, got %d", len(got))
	}
	if got[0].Distance.Value != 2.0 {
		t.Fatalf("Distance.Value = %v, want 2.0", got[0].Distance.Value)
	}
}

func TestEngineRemoveDataSourceStopsEmission(t *testing.T) {
	t.Parallel()

	e := fusion.NewEngine(fusion.NewPassthrough(), false, fusion.DefaultPrimerConfig())
	e.AddDataSource(tech.RTT)

	var count int
	e.Start(func(model.RangingData) { count++ })

	e.Feed(model.RangingData{Technology: tech.RTT, TimestampMs: 1, Distance: model.Measurement{Value: 2.0}})
	e.RemoveDataSource(tech.RTT)
	e.Feed(model.RangingData{Technology: tech.RTT, TimestampMs: 2, Distance: model.Measurement{Value: 2.1}})

	if count != 1 {
		t.Fatalf("emission count = %d, want 1 (second feed after removal must be a no-op)", count)
	}
}

func TestEngineAddDataSourceIsIdempotent(t *testing.T) {
	t.Parallel()

	e := fusion.NewEngine(fusion.NewPassthrough(), false, fusion.DefaultPrimerConfig())
	e.AddDataSource(tech.RTT)
	e.AddDataSource(tech.RTT)
	if e.ActiveSources().Slice()[0] != tech.RTT {
		t.Fatal("expected RTT to remain the sole active source")
	}
}

func TestEngineUwbPreferenceEndToEnd(t *testing.T) {
	t.Parallel()

	e := fusion.NewEngine(fusion.NewPreferential(), false, fusion.DefaultPrimerConfig())
	e.AddDataSource(tech.UWB)
	e.AddDataSource(tech.RTT)

	var got []model.RangingData
	e.Start(func(d model.RangingData) { got = append(got, d) })

	e.Feed(model.RangingData{Technology: tech.UWB, TimestampMs: 10, Distance: model.Measurement{Value: 2.00}})
	e.Feed(model.RangingData{Technology: tech.RTT, TimestampMs: 12, Distance: model.Measurement{Value: 1.80}})

	if len(got) != 2 {
		t.Fatalf("expected 2 fused emissions, got %d", len(got))
	}
	if got[1].Distance.Value != 2.00 || got[1].TimestampMs != 12 {
		t.Fatalf("second emission = %+v, want distance 2.00 at t=12", got[1])
	}

	e.RemoveDataSource(tech.UWB)
	e.Feed(model.RangingData{Technology: tech.RTT, TimestampMs: 20, Distance: model.Measurement{Value: 1.75}})
	// RTT's linear filter has now seen two samples (1.80, 1.75); its
	// 3-window median is their average since the window isn't full yet.
	const wantThirdDistance = (1.80 + 1.75) / 2
	if len(got) != 3 || got[2].Distance.Value != wantThirdDistance {
		t.Fatalf("expected RTT passthrough after UWB stopped, got %+v", got)
	}
}
