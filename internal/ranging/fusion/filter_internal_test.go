package fusion

import (
	"testing"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

func TestMedianFilterSmoothsWithinWindow(t *testing.T) {
	t.Parallel()

	f := newMedianFilter(3, 0)
	values := []float64{1, 3, 2}
	var got []float64
	for _, v := range values {
		out, ok := f.feed(v)
		if !ok {
			t.Fatalf("feed(%v) unexpectedly rejected", v)
		}
		got = append(got, out)
	}
	want := []float64{1, 2, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("median after sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMedianFilterRejectsOutlierBeyondInlierFactor(t *testing.T) {
	t.Parallel()

	f := newMedianFilter(3, 0.5)
	for _, v := range []float64{10, 10, 10} {
		if _, ok := f.feed(v); !ok {
			t.Fatalf("feed(%v) unexpectedly rejected while filling window", v)
		}
	}
	if _, ok := f.feed(100); ok {
		t.Fatal("expected feed(100) to be rejected as an outlier (median=10, inlier=0.5)")
	}
	if _, ok := f.feed(11); !ok {
		t.Fatal("expected feed(11) to be accepted as within the inlier band")
	}
}

func TestLinearFilterUpdatesDistanceOnly(t *testing.T) {
	t.Parallel()

	f := newLinearFilter()
	d := model.RangingData{Technology: tech.RTT, TimestampMs: 5, Distance: model.Measurement{Value: 1.0}}
	out, ok := f.feed(d)
	if !ok {
		t.Fatal("expected first sample to be accepted")
	}
	if out.Distance.Value != 1.0 {
		t.Fatalf("Distance.Value = %v, want 1.0", out.Distance.Value)
	}
}
