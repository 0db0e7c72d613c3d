package fusion

import (
	"sort"

	"github.com/multirange/core/internal/ranging/model"
)

// Filter constants (spec section 4.5): window sizes are sample counts, the
// inlier factor bounds how far a new sample may deviate from the running
// median (as a fraction of the median) before it is rejected as an outlier.
const (
	distanceWindow = 3
	angleWindow    = 5
	angleInlier    = 0.50
)

// medianFilter is a median-averaging filter over a fixed-size sliding
// window, with optional outlier rejection. It is the building block for
// both the rotation filter (azimuth/elevation) and the linear filter
// (distance) described in spec section 4.5.
type medianFilter struct {
	window []float64
	size   int
	inlier float64 // 0 disables outlier rejection
}

func newMedianFilter(size int, inlier float64) *medianFilter {
	return &medianFilter{size: size, inlier: inlier}
}

// feed pushes v into the window and returns the new median, or ok=false if
// v was rejected as an outlier (window left unchanged).
func (f *medianFilter) feed(v float64) (out float64, ok bool) {
	if f.inlier > 0 && len(f.window) == f.size {
		med := median(f.window)
		if med != 0 && absFloat(v-med) > f.inlier*absFloat(med) {
			return 0, false
		}
	}
	f.window = append(f.window, v)
	if len(f.window) > f.size {
		f.window = f.window[1:]
	}
	return median(f.window), true
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// linearFilter is the median-averaging filter applied to distance for every
// technology (spec section 4.5: "for non-UWB or AoA disabled, only the
// linear distance filter is active").
type linearFilter struct {
	distance *medianFilter
}

func newLinearFilter() *linearFilter {
	return &linearFilter{distance: newMedianFilter(distanceWindow, 0)}
}

func (f *linearFilter) feed(d model.RangingData) (model.RangingData, bool) {
	v, ok := f.distance.feed(d.Distance.Value)
	if !ok {
		return model.RangingData{}, false
	}
	d.Distance.Value = v
	return d, true
}

// rotationFilter is the median-averaging filter applied to azimuth and
// elevation when AoA is enabled (spec section 4.5). Either angle may be
// absent on a given sample (e.g. elevation unsupported); only present
// angles are filtered.
type rotationFilter struct {
	azimuth   *medianFilter
	elevation *medianFilter
}

func newRotationFilter() *rotationFilter {
	return &rotationFilter{
		azimuth:   newMedianFilter(angleWindow, angleInlier),
		elevation: newMedianFilter(angleWindow, angleInlier),
	}
}

func (f *rotationFilter) feed(d model.RangingData) (model.RangingData, bool) {
	if d.Azimuth != nil {
		v, ok := f.azimuth.feed(d.Azimuth.Value)
		if !ok {
			return model.RangingData{}, false
		}
		az := *d.Azimuth
		az.Value = v
		d.Azimuth = &az
	}
	if d.Elevation != nil {
		v, ok := f.elevation.feed(d.Elevation.Value)
		if !ok {
			return model.RangingData{}, false
		}
		el := *d.Elevation
		el.Value = v
		d.Elevation = &el
	}
	return d, true
}
