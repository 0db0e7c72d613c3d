package fusion_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/fusion"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

func TestPassthroughEmitsEveryInput(t *testing.T) {
	t.Parallel()

	f := fusion.NewPassthrough()
	in := model.RangingData{Technology: tech.RTT, TimestampMs: 5, Distance: model.Measurement{Value: 1.2}}
	out, ok := f.Fuse(in, tech.NewSet(tech.RTT))
	if !ok || out != in {
		t.Fatalf("Fuse() = %+v, %v; want %+v, true", out, ok, in)
	}
}

// TestPreferentialPrefersUwb pins spec section 8 scenario 4: a UWB sample
// at t=10ms and an RTT sample at t=12ms on the same peer, with UWB active
// throughout. Both fused emissions must carry UWB's distance value, each
// stamped with its own triggering input's timestamp.
func TestPreferentialPrefersUwb(t *testing.T) {
	t.Parallel()

	f := fusion.NewPreferential()
	active := tech.NewSet(tech.UWB, tech.RTT)

	uwbSample := model.RangingData{Technology: tech.UWB, TimestampMs: 10, Distance: model.Measurement{Value: 2.00}}
	out, ok := f.Fuse(uwbSample, active)
	if !ok {
		t.Fatal("expected UWB sample to emit")
	}
	if out.Distance.Value != 2.00 || out.TimestampMs != 10 {
		t.Fatalf("first emission = %+v, want distance 2.00 at t=10", out)
	}

	rttSample := model.RangingData{Technology: tech.RTT, TimestampMs: 12, Distance: model.Measurement{Value: 1.80}}
	out, ok = f.Fuse(rttSample, active)
	if !ok {
		t.Fatal("expected RTT sample to still produce a fused emission")
	}
	if out.Distance.Value != 2.00 {
		t.Fatalf("second emission distance = %v, want 2.00 (UWB dominates)", out.Distance.Value)
	}
	if out.TimestampMs != 12 {
		t.Fatalf("second emission timestamp = %v, want 12 (triggering input's timestamp)", out.TimestampMs)
	}
}

// TestPreferentialFallsBackWhenUwbStops pins the second half of scenario
// 4: once UWB is no longer an active source, RTT samples pass through
// directly.
func TestPreferentialFallsBackWhenUwbStops(t *testing.T) {
	t.Parallel()

	f := fusion.NewPreferential()
	activeWithUwb := tech.NewSet(tech.UWB, tech.RTT)

	f.Fuse(model.RangingData{Technology: tech.UWB, TimestampMs: 10, Distance: model.Measurement{Value: 2.00}}, activeWithUwb)

	f.Forget(tech.UWB)
	activeWithoutUwb := tech.NewSet(tech.RTT)

	out, ok := f.Fuse(model.RangingData{Technology: tech.RTT, TimestampMs: 20, Distance: model.Measurement{Value: 1.75}}, activeWithoutUwb)
	if !ok {
		t.Fatal("expected RTT sample to emit once UWB has stopped")
	}
	if out.Distance.Value != 1.75 {
		t.Fatalf("emission distance = %v, want 1.75 (RTT passthrough)", out.Distance.Value)
	}
}
